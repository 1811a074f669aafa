package models

import "time"

// EntryStatus is the lifecycle phase of a timetable entry. Drafts are the
// staging area: persistence itself stages the work, there is no in-memory
// draft state.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "draft"
	EntryStatusActive EntryStatus = "active"
)

// Valid reports whether the status is a known lifecycle phase.
func (s EntryStatus) Valid() bool {
	return s == EntryStatusDraft || s == EntryStatusActive
}

// TimetableEntry assigns a subject (and optionally a teacher) to a class at
// a concrete time slot. TeacherID is nil for an unassigned slot.
type TimetableEntry struct {
	ID         string      `db:"id" json:"id"`
	SchoolID   string      `db:"school_id" json:"school_id"`
	ClassID    string      `db:"class_id" json:"class_id"`
	SubjectID  string      `db:"subject_id" json:"subject_id"`
	TeacherID  *string     `db:"teacher_id" json:"teacher_id,omitempty"`
	TimeSlotID string      `db:"time_slot_id" json:"time_slot_id"`
	Status     EntryStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// TimetableEntryDetail enriches entries with display fields for grid views.
type TimetableEntryDetail struct {
	TimetableEntry
	SubjectName string  `db:"subject_name" json:"subject_name"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
	SlotName    string  `db:"slot_name" json:"slot_name"`
	DayOfWeek   int     `db:"day_of_week" json:"day_of_week"`
	StartTime   string  `db:"start_time" json:"start_time"`
	EndTime     string  `db:"end_time" json:"end_time"`
}

// ConflictReason enumerates why a proposed assignment was rejected.
type ConflictReason string

const (
	ReasonNotQualified        ConflictReason = "NOT_QUALIFIED"
	ReasonTeacherUnavailable  ConflictReason = "TEACHER_UNAVAILABLE"
	ReasonClassOverlap        ConflictReason = "CLASS_OVERLAP"
	ReasonTeacherDoubleBooked ConflictReason = "TEACHER_DOUBLE_BOOKED"
	ReasonBudgetExceeded      ConflictReason = "BUDGET_EXCEEDED"
)

// TimetableConflict identifies the colliding resource so callers can explain
// a rejection without a second lookup.
type TimetableConflict struct {
	Reason     ConflictReason `json:"reason"`
	Detail     string         `json:"detail"`
	EntryID    string         `json:"entry_id,omitempty"`
	ClassID    string         `json:"class_id,omitempty"`
	TeacherID  string         `json:"teacher_id,omitempty"`
	TimeSlotID string         `json:"time_slot_id,omitempty"`
}

// TimetableConflictError is returned when an assignment collides with the
// existing schedule state.
type TimetableConflictError struct {
	Reason    ConflictReason      `json:"reason"`
	Message   string              `json:"message"`
	Conflict  TimetableConflict   `json:"conflict"`
	Conflicts []TimetableConflict `json:"conflicts,omitempty"`
}

// Error implements the error interface for conflict errors.
func (e *TimetableConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

package service

import (
	"fmt"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/pkg/config"
)

// ProposedAssignment is a candidate timetable entry under validation.
// ReplacesEntryID, when set, excludes that entry from collision scans so an
// assignment can be swapped in place.
type ProposedAssignment struct {
	SchoolID        string
	ClassID         string
	SubjectID       string
	TeacherID       *string
	TimeSlotID      string
	ReplacesEntryID string
}

// ValidationSnapshot carries the slice of schedule state a single decision
// needs. The validator never reads storage; callers load the snapshot.
type ValidationSnapshot struct {
	Slot           models.TimeSlot
	Qualifications []models.TeacherQualification
	Availability   []models.TeacherAvailability
	Existing       []models.TimetableEntry
	Assignment     *models.TeacherClassAssignment
	ScheduledHours int
}

// ValidationOutcome is the validator's decision. Rejections carry the reason
// and the colliding resource; warnings never block the write.
type ValidationOutcome struct {
	Accepted bool
	Reason   models.ConflictReason
	Detail   string
	Conflict *models.TimetableConflict
	Warnings []string
}

// ConflictValidator is the single source of truth for admission decisions.
// It is a pure function over its inputs: identical proposed assignment and
// snapshot always produce the identical outcome.
type ConflictValidator struct {
	policy config.SchedulingConfig
}

// NewConflictValidator builds a validator with the given scheduling policy.
func NewConflictValidator(policy config.SchedulingConfig) *ConflictValidator {
	return &ConflictValidator{policy: policy}
}

// Validate runs the admission checks in a fixed order, short-circuiting on
// the first failure: qualification, availability, class collision, teacher
// collision, then the weekly-hour budget.
func (v *ConflictValidator) Validate(proposed ProposedAssignment, snap ValidationSnapshot) ValidationOutcome {
	if proposed.TeacherID != nil {
		if out, ok := v.checkQualification(proposed, snap); !ok {
			return out
		}
		if out, ok := v.checkAvailability(proposed, snap); !ok {
			return out
		}
	}
	if out, ok := v.checkClassCollision(proposed, snap); !ok {
		return out
	}
	if proposed.TeacherID != nil {
		if out, ok := v.checkTeacherCollision(proposed, snap); !ok {
			return out
		}
		return v.checkWeeklyBudget(proposed, snap)
	}
	return ValidationOutcome{Accepted: true}
}

func (v *ConflictValidator) checkQualification(proposed ProposedAssignment, snap ValidationSnapshot) (ValidationOutcome, bool) {
	for _, q := range snap.Qualifications {
		if q.SchoolID != proposed.SchoolID {
			continue
		}
		if q.TeacherID == *proposed.TeacherID && q.SubjectID == proposed.SubjectID {
			return ValidationOutcome{}, true
		}
	}
	detail := fmt.Sprintf("teacher %s holds no qualification for subject %s", *proposed.TeacherID, proposed.SubjectID)
	return v.reject(models.ReasonNotQualified, detail, models.TimetableConflict{
		Reason:    models.ReasonNotQualified,
		Detail:    detail,
		TeacherID: *proposed.TeacherID,
	}), false
}

func (v *ConflictValidator) checkAvailability(proposed ProposedAssignment, snap ValidationSnapshot) (ValidationOutcome, bool) {
	windows := 0
	for _, w := range snap.Availability {
		if w.SchoolID != proposed.SchoolID || w.TeacherID != *proposed.TeacherID {
			continue
		}
		windows++
		if slotWithinWindow(snap.Slot, w) {
			return ValidationOutcome{}, true
		}
	}
	if windows == 0 && !v.policy.RequireExplicitAvailability {
		return ValidationOutcome{}, true
	}
	detail := fmt.Sprintf("teacher %s is not available on day %d between %s and %s",
		*proposed.TeacherID, snap.Slot.DayOfWeek, snap.Slot.StartTime, snap.Slot.EndTime)
	return v.reject(models.ReasonTeacherUnavailable, detail, models.TimetableConflict{
		Reason:     models.ReasonTeacherUnavailable,
		Detail:     detail,
		TeacherID:  *proposed.TeacherID,
		TimeSlotID: proposed.TimeSlotID,
	}), false
}

func (v *ConflictValidator) checkClassCollision(proposed ProposedAssignment, snap ValidationSnapshot) (ValidationOutcome, bool) {
	for _, e := range snap.Existing {
		if !v.relevant(e, proposed) {
			continue
		}
		if e.ClassID == proposed.ClassID && e.TimeSlotID == proposed.TimeSlotID {
			detail := fmt.Sprintf("class %s already has a %s entry at slot %s", e.ClassID, e.Status, e.TimeSlotID)
			return v.reject(models.ReasonClassOverlap, detail, models.TimetableConflict{
				Reason:     models.ReasonClassOverlap,
				Detail:     detail,
				EntryID:    e.ID,
				ClassID:    e.ClassID,
				TimeSlotID: e.TimeSlotID,
			}), false
		}
	}
	return ValidationOutcome{}, true
}

func (v *ConflictValidator) checkTeacherCollision(proposed ProposedAssignment, snap ValidationSnapshot) (ValidationOutcome, bool) {
	for _, e := range snap.Existing {
		if !v.relevant(e, proposed) || e.TeacherID == nil {
			continue
		}
		if *e.TeacherID == *proposed.TeacherID && e.TimeSlotID == proposed.TimeSlotID {
			detail := fmt.Sprintf("teacher %s already has a %s entry at slot %s for class %s",
				*e.TeacherID, e.Status, e.TimeSlotID, e.ClassID)
			return v.reject(models.ReasonTeacherDoubleBooked, detail, models.TimetableConflict{
				Reason:     models.ReasonTeacherDoubleBooked,
				Detail:     detail,
				EntryID:    e.ID,
				ClassID:    e.ClassID,
				TeacherID:  *e.TeacherID,
				TimeSlotID: e.TimeSlotID,
			}), false
		}
	}
	return ValidationOutcome{}, true
}

func (v *ConflictValidator) checkWeeklyBudget(proposed ProposedAssignment, snap ValidationSnapshot) ValidationOutcome {
	if snap.Assignment == nil || snap.Assignment.WeeklyHours <= 0 {
		return ValidationOutcome{Accepted: true}
	}
	if snap.ScheduledHours+1 <= snap.Assignment.WeeklyHours {
		return ValidationOutcome{Accepted: true}
	}
	detail := fmt.Sprintf("teacher %s would exceed the %d weekly hours budgeted for subject %s in class %s",
		*proposed.TeacherID, snap.Assignment.WeeklyHours, proposed.SubjectID, proposed.ClassID)
	if v.policy.StrictWeeklyBudget {
		return v.reject(models.ReasonBudgetExceeded, detail, models.TimetableConflict{
			Reason:    models.ReasonBudgetExceeded,
			Detail:    detail,
			TeacherID: *proposed.TeacherID,
			ClassID:   proposed.ClassID,
		})
	}
	return ValidationOutcome{Accepted: true, Warnings: []string{detail}}
}

// relevant filters the snapshot down to rows that can actually collide:
// same school, draft or active, and not the entry being replaced.
func (v *ConflictValidator) relevant(e models.TimetableEntry, proposed ProposedAssignment) bool {
	if e.SchoolID != proposed.SchoolID {
		return false
	}
	if proposed.ReplacesEntryID != "" && e.ID == proposed.ReplacesEntryID {
		return false
	}
	return e.Status == models.EntryStatusDraft || e.Status == models.EntryStatusActive
}

func (v *ConflictValidator) reject(reason models.ConflictReason, detail string, conflict models.TimetableConflict) ValidationOutcome {
	return ValidationOutcome{
		Accepted: false,
		Reason:   reason,
		Detail:   detail,
		Conflict: &conflict,
	}
}

// slotWithinWindow reports whether the slot is fully contained in the
// availability window. Times are zero-padded HH:MM strings, so lexical
// comparison matches chronological order.
func slotWithinWindow(slot models.TimeSlot, w models.TeacherAvailability) bool {
	return w.DayOfWeek == slot.DayOfWeek && w.StartTime <= slot.StartTime && w.EndTime >= slot.EndTime
}

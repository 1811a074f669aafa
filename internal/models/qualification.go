package models

import "time"

// TeacherQualification records that a teacher may teach a subject within a
// school. At most one row exists per (teacher, subject, school).
type TeacherQualification struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TeacherClassAssignment states that a teacher teaches a subject to a class
// for a weekly-hour budget. (teacher, class, subject) is unique per school.
type TeacherClassAssignment struct {
	ID          string    `db:"id" json:"id"`
	SchoolID    string    `db:"school_id" json:"school_id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	WeeklyHours int       `db:"weekly_hours" json:"weekly_hours"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// QualifiedTeacher is the projection returned to callers populating
// teacher choices for a subject.
type QualifiedTeacher struct {
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	FullName  string `db:"full_name" json:"full_name"`
}

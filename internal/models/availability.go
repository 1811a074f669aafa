package models

import "time"

// TeacherAvailability is a window in which a teacher may be scheduled.
// Windows are not exclusive: a teacher may hold several, possibly adjacent
// or overlapping, windows on the same day.
type TeacherAvailability struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

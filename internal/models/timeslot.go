package models

import "time"

// TimeSlotTemplate is a named, reusable set of time slots. At most one
// template per school carries the default flag at any time.
type TimeSlotTemplate struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	IsDefault bool      `db:"is_default" json:"is_default"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TimeSlot is a concrete (day, start, end) window inside a template.
// DayOfWeek runs 1 (Monday) through 7 (Sunday); times are zero-padded
// "HH:MM" strings so lexical comparison matches chronological order.
type TimeSlot struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"school_id"`
	TemplateID string    `db:"template_id" json:"template_id"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	Name       string    `db:"name" json:"name"`
	IsBreak    bool      `db:"is_break" json:"is_break"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

package models

import "time"

// Class represents an academic class or section. Every class is bound to
// exactly one time slot template that defines its weekly grid.
type Class struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"school_id"`
	Name       string    `db:"name" json:"name"`
	Grade      string    `db:"grade" json:"grade"`
	TemplateID string    `db:"template_id" json:"template_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

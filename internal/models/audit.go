package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionDraftCreate    = "TIMETABLE_DRAFT_CREATE"
	AuditActionDraftReplace   = "TIMETABLE_DRAFT_REPLACE"
	AuditActionDraftDiscard   = "TIMETABLE_DRAFT_DISCARD"
	AuditActionPublish        = "TIMETABLE_PUBLISH"
	AuditActionEntryDelete    = "TIMETABLE_ENTRY_DELETE"
	AuditActionTemplateChange = "SLOT_TEMPLATE_CHANGE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"school_id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nimbus-edu/timetable-api/internal/models"
)

const (
	templateColumns = "id, school_id, name, is_default, is_active, created_at, updated_at"
	slotColumns     = "id, school_id, template_id, day_of_week, start_time, end_time, name, is_break, created_at, updated_at"
)

// TimeSlotRepository persists slot templates and their time slots.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// ListTemplates returns a school's templates.
func (r *TimeSlotRepository) ListTemplates(ctx context.Context, schoolID string) ([]models.TimeSlotTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM slot_templates WHERE school_id = $1 ORDER BY name ASC", templateColumns)
	var templates []models.TimeSlotTemplate
	if err := r.db.SelectContext(ctx, &templates, query, schoolID); err != nil {
		return nil, fmt.Errorf("list slot templates: %w", err)
	}
	return templates, nil
}

// FindTemplateByID loads a template by id.
func (r *TimeSlotRepository) FindTemplateByID(ctx context.Context, id string) (*models.TimeSlotTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM slot_templates WHERE id = $1", templateColumns)
	var template models.TimeSlotTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}
	return &template, nil
}

// CreateTemplate inserts a template. When the template is flagged default
// the school's previous default is cleared in the same transaction so at
// most one default exists per school.
func (r *TimeSlotRepository) CreateTemplate(ctx context.Context, template *models.TimeSlotTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if template.IsDefault {
		if _, err = tx.ExecContext(ctx,
			`UPDATE slot_templates SET is_default = FALSE, updated_at = $2 WHERE school_id = $1 AND is_default = TRUE`,
			template.SchoolID, now); err != nil {
			return fmt.Errorf("clear previous default template: %w", err)
		}
	}

	const query = `INSERT INTO slot_templates (id, school_id, name, is_default, is_active, created_at, updated_at)
		VALUES (:id, :school_id, :name, :is_default, :is_active, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, query, template); err != nil {
		return fmt.Errorf("insert slot template: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create template: %w", err)
	}
	return nil
}

// UpdateTemplate modifies name and flags, preserving the single-default
// invariant transactionally.
func (r *TimeSlotRepository) UpdateTemplate(ctx context.Context, template *models.TimeSlotTemplate) error {
	now := time.Now().UTC()
	template.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if template.IsDefault {
		if _, err = tx.ExecContext(ctx,
			`UPDATE slot_templates SET is_default = FALSE, updated_at = $3 WHERE school_id = $1 AND is_default = TRUE AND id <> $2`,
			template.SchoolID, template.ID, now); err != nil {
			return fmt.Errorf("clear previous default template: %w", err)
		}
	}

	result, err := sqlx.NamedExecContext(ctx, tx,
		`UPDATE slot_templates SET name = :name, is_default = :is_default, is_active = :is_active, updated_at = :updated_at
		 WHERE id = :id AND school_id = :school_id`, template)
	if err != nil {
		return fmt.Errorf("update slot template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updated template rows affected: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update template: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template and its slots.
func (r *TimeSlotRepository) DeleteTemplate(ctx context.Context, schoolID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM slot_templates WHERE id = $1 AND school_id = $2`, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete slot template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleted template rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSlots returns a template's slots ordered by day and start time.
func (r *TimeSlotRepository) ListSlots(ctx context.Context, schoolID, templateID string) ([]models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM time_slots WHERE school_id = $1 AND template_id = $2 ORDER BY day_of_week ASC, start_time ASC", slotColumns)
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, schoolID, templateID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindSlotByID loads a slot by id.
func (r *TimeSlotRepository) FindSlotByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM time_slots WHERE id = $1", slotColumns)
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// CreateSlot inserts a slot into a template.
func (r *TimeSlotRepository) CreateSlot(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO time_slots (id, school_id, template_id, day_of_week, start_time, end_time, name, is_break, created_at, updated_at)
		VALUES (:id, :school_id, :template_id, :day_of_week, :start_time, :end_time, :name, :is_break, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("insert time slot: %w", err)
	}
	return nil
}

// UpdateSlot modifies a slot's window and labels.
func (r *TimeSlotRepository) UpdateSlot(ctx context.Context, slot *models.TimeSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE time_slots SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time,
		name = :name, is_break = :is_break, updated_at = :updated_at
		WHERE id = :id AND school_id = :school_id`
	result, err := r.db.NamedExecContext(ctx, query, slot)
	if err != nil {
		return fmt.Errorf("update time slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updated slot rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSlot removes a slot.
func (r *TimeSlotRepository) DeleteSlot(ctx context.Context, schoolID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM time_slots WHERE id = $1 AND school_id = $2`, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleted slot rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

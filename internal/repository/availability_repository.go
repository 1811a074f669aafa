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

const availabilityColumns = "id, school_id, teacher_id, day_of_week, start_time, end_time, created_at"

// AvailabilityRepository persists teacher availability windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTeacher returns all windows recorded for a teacher.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherAvailability, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_availability WHERE school_id = $1 AND teacher_id = $2 ORDER BY day_of_week ASC, start_time ASC", availabilityColumns)
	var windows []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &windows, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	return windows, nil
}

// Create inserts a new availability window.
func (r *AvailabilityRepository) Create(ctx context.Context, window *models.TeacherAvailability) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	if window.CreatedAt.IsZero() {
		window.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_availability (id, school_id, teacher_id, day_of_week, start_time, end_time, created_at)
		VALUES (:id, :school_id, :teacher_id, :day_of_week, :start_time, :end_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("insert availability window: %w", err)
	}
	return nil
}

// Delete removes a window verifying teacher ownership.
func (r *AvailabilityRepository) Delete(ctx context.Context, schoolID, teacherID, windowID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM teacher_availability WHERE id = $1 AND school_id = $2 AND teacher_id = $3`,
		windowID, schoolID, teacherID)
	if err != nil {
		return fmt.Errorf("delete availability window: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleted window rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

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

const classAssignmentColumns = "id, school_id, teacher_id, class_id, subject_id, weekly_hours, created_at"

// ClassAssignmentRepository persists teacher-class-subject weekly budgets.
type ClassAssignmentRepository struct {
	db *sqlx.DB
}

// NewClassAssignmentRepository constructs the repository.
func NewClassAssignmentRepository(db *sqlx.DB) *ClassAssignmentRepository {
	return &ClassAssignmentRepository{db: db}
}

// ListByTeacher returns all assignments owned by a teacher.
func (r *ClassAssignmentRepository) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherClassAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_class_assignments WHERE school_id = $1 AND teacher_id = $2 ORDER BY created_at ASC", classAssignmentColumns)
	var assignments []models.TeacherClassAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list class assignments: %w", err)
	}
	return assignments, nil
}

// Find returns the assignment for a (teacher, class, subject) tuple, or
// sql.ErrNoRows when none is recorded.
func (r *ClassAssignmentRepository) Find(ctx context.Context, schoolID, teacherID, classID, subjectID string) (*models.TeacherClassAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_class_assignments WHERE school_id = $1 AND teacher_id = $2 AND class_id = $3 AND subject_id = $4", classAssignmentColumns)
	var assignment models.TeacherClassAssignment
	if err := r.db.GetContext(ctx, &assignment, query, schoolID, teacherID, classID, subjectID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Exists checks whether the tuple is already assigned.
func (r *ClassAssignmentRepository) Exists(ctx context.Context, schoolID, teacherID, classID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_class_assignments WHERE school_id = $1 AND teacher_id = $2 AND class_id = $3 AND subject_id = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, schoolID, teacherID, classID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class assignment: %w", err)
	}
	return true, nil
}

// Create inserts a new assignment.
func (r *ClassAssignmentRepository) Create(ctx context.Context, assignment *models.TeacherClassAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_class_assignments (id, school_id, teacher_id, class_id, subject_id, weekly_hours, created_at)
		VALUES (:id, :school_id, :teacher_id, :class_id, :subject_id, :weekly_hours, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("insert class assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment verifying ownership.
func (r *ClassAssignmentRepository) Delete(ctx context.Context, schoolID, teacherID, assignmentID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM teacher_class_assignments WHERE id = $1 AND school_id = $2 AND teacher_id = $3`,
		assignmentID, schoolID, teacherID)
	if err != nil {
		return fmt.Errorf("delete class assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleted assignment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

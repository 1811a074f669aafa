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

const qualificationColumns = "id, school_id, teacher_id, subject_id, created_at"

// QualificationRepository persists teacher-subject eligibility facts.
type QualificationRepository struct {
	db *sqlx.DB
}

// NewQualificationRepository constructs the repository.
func NewQualificationRepository(db *sqlx.DB) *QualificationRepository {
	return &QualificationRepository{db: db}
}

// ListByTeacher returns the subjects a teacher may teach.
func (r *QualificationRepository) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherQualification, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_qualifications WHERE school_id = $1 AND teacher_id = $2 ORDER BY created_at ASC", qualificationColumns)
	var qualifications []models.TeacherQualification
	if err := r.db.SelectContext(ctx, &qualifications, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher qualifications: %w", err)
	}
	return qualifications, nil
}

// Exists checks whether the (teacher, subject, school) fact is recorded.
func (r *QualificationRepository) Exists(ctx context.Context, schoolID, teacherID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_qualifications WHERE school_id = $1 AND teacher_id = $2 AND subject_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, schoolID, teacherID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check qualification: %w", err)
	}
	return true, nil
}

// Create inserts a new qualification fact.
func (r *QualificationRepository) Create(ctx context.Context, qualification *models.TeacherQualification) error {
	if qualification.ID == "" {
		qualification.ID = uuid.NewString()
	}
	if qualification.CreatedAt.IsZero() {
		qualification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_qualifications (id, school_id, teacher_id, subject_id, created_at)
		VALUES (:id, :school_id, :teacher_id, :subject_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, qualification); err != nil {
		return fmt.Errorf("insert qualification: %w", err)
	}
	return nil
}

// Delete removes the qualification for a (teacher, subject) pair.
func (r *QualificationRepository) Delete(ctx context.Context, schoolID, teacherID, subjectID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM teacher_qualifications WHERE school_id = $1 AND teacher_id = $2 AND subject_id = $3`,
		schoolID, teacherID, subjectID)
	if err != nil {
		return fmt.Errorf("delete qualification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleted qualification rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListQualifiedTeachers returns active teachers holding a qualification for
// the subject, reflecting the qualification rows exactly.
func (r *QualificationRepository) ListQualifiedTeachers(ctx context.Context, schoolID, subjectID string) ([]models.QualifiedTeacher, error) {
	const query = `
SELECT q.teacher_id, t.full_name
FROM teacher_qualifications q
JOIN teachers t ON t.id = q.teacher_id
WHERE q.school_id = $1 AND q.subject_id = $2 AND t.active = TRUE
ORDER BY t.full_name ASC`
	var teachers []models.QualifiedTeacher
	if err := r.db.SelectContext(ctx, &teachers, query, schoolID, subjectID); err != nil {
		return nil, fmt.Errorf("list qualified teachers: %w", err)
	}
	return teachers, nil
}

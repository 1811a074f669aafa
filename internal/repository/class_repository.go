package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nimbus-edu/timetable-api/internal/models"
)

const classColumns = "id, school_id, name, grade, template_id, created_at, updated_at"

// ClassRepository reads class records for scope and reference checks.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1", classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListBySchool returns all classes in a school.
func (r *ClassRepository) ListBySchool(ctx context.Context, schoolID string) ([]models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE school_id = $1 ORDER BY grade ASC, name ASC", classColumns)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, schoolID); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// CountByTemplate counts classes bound to a slot template.
func (r *ClassRepository) CountByTemplate(ctx context.Context, schoolID, templateID string) (int, error) {
	const query = `SELECT COUNT(*) FROM classes WHERE school_id = $1 AND template_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, schoolID, templateID); err != nil {
		return 0, fmt.Errorf("count classes by template: %w", err)
	}
	return count, nil
}

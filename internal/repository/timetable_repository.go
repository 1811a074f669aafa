package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nimbus-edu/timetable-api/internal/models"
)

const timetableColumns = "id, school_id, class_id, subject_id, teacher_id, time_slot_id, status, created_at, updated_at"

// TimetableRepository persists timetable entries. Collision invariants are
// backed by partial unique indexes on (school_id, class_id, time_slot_id,
// status) and (school_id, teacher_id, time_slot_id, status); racing writers
// that slipped past validation lose here with a unique violation.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// IsUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation, the signal of a lost check-then-write race.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// InsertDraft stores a new entry with status draft.
func (r *TimetableRepository) InsertDraft(ctx context.Context, entry *models.TimetableEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Status = models.EntryStatusDraft
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO timetable_entries (id, school_id, class_id, subject_id, teacher_id, time_slot_id, status, created_at, updated_at)
		VALUES (:id, :school_id, :class_id, :subject_id, :teacher_id, :time_slot_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert draft entry: %w", err)
	}
	return nil
}

// FindByID loads an entry by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE id = $1", timetableColumns)
	var entry models.TimetableEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByClass returns a class's entries, optionally filtered by status.
func (r *TimetableRepository) ListByClass(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE school_id = $1 AND class_id = $2", timetableColumns)
	args := []interface{}{schoolID, classID}
	if status != "" {
		query += " AND status = $3"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"

	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list class entries: %w", err)
	}
	return entries, nil
}

// ListByTeacher returns every draft and active entry booked for a teacher
// across all classes in the school.
func (r *TimetableRepository) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE school_id = $1 AND teacher_id = $2", timetableColumns)
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher entries: %w", err)
	}
	return entries, nil
}

// ListDetailByClass returns entries joined with display fields, ordered by
// day and start time for grid rendering.
func (r *TimetableRepository) ListDetailByClass(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntryDetail, error) {
	query := `
SELECT e.id, e.school_id, e.class_id, e.subject_id, e.teacher_id, e.time_slot_id, e.status, e.created_at, e.updated_at,
       s.name AS subject_name, t.full_name AS teacher_name,
       ts.name AS slot_name, ts.day_of_week, ts.start_time, ts.end_time
FROM timetable_entries e
JOIN subjects s ON s.id = e.subject_id
JOIN time_slots ts ON ts.id = e.time_slot_id
LEFT JOIN teachers t ON t.id = e.teacher_id
WHERE e.school_id = $1 AND e.class_id = $2`
	args := []interface{}{schoolID, classID}
	if status != "" {
		query += " AND e.status = $3"
		args = append(args, status)
	}
	query += " ORDER BY ts.day_of_week ASC, ts.start_time ASC"

	var entries []models.TimetableEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list class entry details: %w", err)
	}
	return entries, nil
}

// ListActiveDetailByTeacher returns the teacher's published timetable.
func (r *TimetableRepository) ListActiveDetailByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntryDetail, error) {
	const query = `
SELECT e.id, e.school_id, e.class_id, e.subject_id, e.teacher_id, e.time_slot_id, e.status, e.created_at, e.updated_at,
       s.name AS subject_name, t.full_name AS teacher_name,
       ts.name AS slot_name, ts.day_of_week, ts.start_time, ts.end_time
FROM timetable_entries e
JOIN subjects s ON s.id = e.subject_id
JOIN time_slots ts ON ts.id = e.time_slot_id
LEFT JOIN teachers t ON t.id = e.teacher_id
WHERE e.school_id = $1 AND e.teacher_id = $2 AND e.status = 'active'
ORDER BY ts.day_of_week ASC, ts.start_time ASC`
	var entries []models.TimetableEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher entry details: %w", err)
	}
	return entries, nil
}

// CountBySlot counts entries of any status referencing a time slot. Used to
// refuse slot deletion while references exist.
func (r *TimetableRepository) CountBySlot(ctx context.Context, schoolID, timeSlotID string) (int, error) {
	const query = `SELECT COUNT(*) FROM timetable_entries WHERE school_id = $1 AND time_slot_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, schoolID, timeSlotID); err != nil {
		return 0, fmt.Errorf("count slot references: %w", err)
	}
	return count, nil
}

// Delete removes a single entry regardless of status.
func (r *TimetableRepository) Delete(ctx context.Context, schoolID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timetable_entries WHERE id = $1 AND school_id = $2`, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleted entry rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DiscardDraft deletes every draft entry for the class in one statement and
// returns the number of rows removed.
func (r *TimetableRepository) DiscardDraft(ctx context.Context, schoolID, classID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timetable_entries WHERE school_id = $1 AND class_id = $2 AND status = 'draft'`,
		schoolID, classID)
	if err != nil {
		return 0, fmt.Errorf("discard draft entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("discarded draft rows affected: %w", err)
	}
	return affected, nil
}

// ReplaceDraft swaps the class's draft set for the provided entries in one
// transaction. Entries are forced to draft status; a unique violation from a
// racing writer aborts the whole batch and surfaces raw for IsUniqueViolation.
func (r *TimetableRepository) ReplaceDraft(ctx context.Context, schoolID, classID string, entries []models.TimetableEntry) (inserted []models.TimetableEntry, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace draft: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM timetable_entries WHERE school_id = $1 AND class_id = $2 AND status = 'draft'`,
		schoolID, classID); err != nil {
		return nil, fmt.Errorf("clear draft entries: %w", err)
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO timetable_entries (id, school_id, class_id, subject_id, teacher_id, time_slot_id, status, created_at, updated_at)
		VALUES (:id, :school_id, :class_id, :subject_id, :teacher_id, :time_slot_id, :status, :created_at, :updated_at)`
	inserted = make([]models.TimetableEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.SchoolID = schoolID
		entry.ClassID = classID
		entry.Status = models.EntryStatusDraft
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if _, err = sqlx.NamedExecContext(ctx, tx, insertQuery, entry); err != nil {
			if IsUniqueViolation(err) {
				return nil, err
			}
			return nil, fmt.Errorf("insert replacement draft entry: %w", err)
		}
		inserted = append(inserted, entry)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace draft: %w", err)
	}
	return inserted, nil
}

// PublishDraft atomically replaces the class's active entries with its draft
// set. The draft rows are locked, re-checked against other classes' active
// bookings for teacher collisions, and promoted in a single transaction.
// When the re-check finds collisions the transaction is rolled back and the
// colliding active entries are returned; nothing changes.
//
// Publishing a class with no draft rows is a no-op that returns the current
// active set, which makes publish idempotent in effect.
func (r *TimetableRepository) PublishDraft(ctx context.Context, schoolID, classID string) (promoted []models.TimetableEntry, conflicts []models.TimetableEntry, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin publish: %w", err)
	}
	defer func() {
		if err != nil || conflicts != nil {
			_ = tx.Rollback()
		}
	}()

	var drafts []models.TimetableEntry
	draftQuery := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE school_id = $1 AND class_id = $2 AND status = 'draft' FOR UPDATE", timetableColumns)
	if err = tx.SelectContext(ctx, &drafts, draftQuery, schoolID, classID); err != nil {
		return nil, nil, fmt.Errorf("lock draft entries: %w", err)
	}

	if len(drafts) == 0 {
		_ = tx.Rollback()
		active, listErr := r.ListByClass(ctx, schoolID, classID, models.EntryStatusActive)
		if listErr != nil {
			return nil, nil, listErr
		}
		return active, nil, nil
	}

	const conflictQuery = `
SELECT DISTINCT ` + "a.id, a.school_id, a.class_id, a.subject_id, a.teacher_id, a.time_slot_id, a.status, a.created_at, a.updated_at" + `
FROM timetable_entries a
JOIN timetable_entries d
  ON d.school_id = a.school_id
 AND d.teacher_id = a.teacher_id
 AND d.time_slot_id = a.time_slot_id
WHERE d.school_id = $1 AND d.class_id = $2 AND d.status = 'draft' AND d.teacher_id IS NOT NULL
  AND a.status = 'active' AND a.class_id <> $2`
	var colliding []models.TimetableEntry
	if err = tx.SelectContext(ctx, &colliding, conflictQuery, schoolID, classID); err != nil {
		return nil, nil, fmt.Errorf("re-check publish conflicts: %w", err)
	}
	if len(colliding) > 0 {
		return nil, colliding, nil
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM timetable_entries WHERE school_id = $1 AND class_id = $2 AND status = 'active'`,
		schoolID, classID); err != nil {
		return nil, nil, fmt.Errorf("delete previous active entries: %w", err)
	}

	promoteQuery := fmt.Sprintf(`UPDATE timetable_entries SET status = 'active', updated_at = $3
WHERE school_id = $1 AND class_id = $2 AND status = 'draft'
RETURNING %s`, timetableColumns)
	if err = tx.SelectContext(ctx, &promoted, promoteQuery, schoolID, classID, time.Now().UTC()); err != nil {
		return nil, nil, fmt.Errorf("promote draft entries: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit publish: %w", err)
	}
	return promoted, nil, nil
}

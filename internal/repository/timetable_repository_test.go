package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-edu/timetable-api/internal/models"
)

func newTimetableMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func entryRows(entries ...models.TimetableEntry) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "school_id", "class_id", "subject_id", "teacher_id", "time_slot_id", "status", "created_at", "updated_at"})
	for _, e := range entries {
		rows.AddRow(e.ID, e.SchoolID, e.ClassID, e.SubjectID, e.TeacherID, e.TimeSlotID, e.Status, time.Now(), time.Now())
	}
	return rows
}

func TestTimetableRepositoryInsertDraft(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec("INSERT INTO timetable_entries").
		WithArgs(sqlmock.AnyArg(), "school-1", "class-1", "subject-1", "teacher-1", "slot-1", "draft", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacherID := "teacher-1"
	entry := &models.TimetableEntry{
		SchoolID:   "school-1",
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  &teacherID,
		TimeSlotID: "slot-1",
	}
	require.NoError(t, repo.InsertDraft(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.EntryStatusDraft, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryInsertDraftUniqueViolation(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	pqErr := &pq.Error{Code: "23505", Constraint: "timetable_entries_teacher_slot_status_key"}
	mock.ExpectExec("INSERT INTO timetable_entries").WillReturnError(pqErr)

	teacherID := "teacher-1"
	err := repo.InsertDraft(context.Background(), &models.TimetableEntry{
		SchoolID:   "school-1",
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  &teacherID,
		TimeSlotID: "slot-1",
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListByClassWithStatus(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery("SELECT .+ FROM timetable_entries WHERE school_id = .+ AND class_id = .+ AND status = .+").
		WithArgs("school-1", "class-1", models.EntryStatusDraft).
		WillReturnRows(entryRows(models.TimetableEntry{
			ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusDraft,
		}))

	entries, err := repo.ListByClass(context.Background(), "school-1", "class-1", models.EntryStatusDraft)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryStatusDraft, entries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDiscardDraft(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM timetable_entries WHERE school_id = $1 AND class_id = $2 AND status = 'draft'`)).
		WithArgs("school-1", "class-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := repo.DiscardDraft(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDeleteMissingEntry(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM timetable_entries WHERE id = $1 AND school_id = $2`)).
		WithArgs("entry-404", "school-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "school-1", "entry-404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryPublishDraftPromotes(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	teacherID := "teacher-1"
	draft := models.TimetableEntry{
		ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1",
		TeacherID: &teacherID, TimeSlotID: "slot-1", Status: models.EntryStatusDraft,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM timetable_entries WHERE school_id = .+ AND class_id = .+ AND status = 'draft' FOR UPDATE").
		WithArgs("school-1", "class-1").
		WillReturnRows(entryRows(draft))
	mock.ExpectQuery("SELECT DISTINCT .+ FROM timetable_entries a").
		WithArgs("school-1", "class-1").
		WillReturnRows(entryRows())
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM timetable_entries WHERE school_id = $1 AND class_id = $2 AND status = 'active'`)).
		WithArgs("school-1", "class-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	promoted := draft
	promoted.Status = models.EntryStatusActive
	mock.ExpectQuery("UPDATE timetable_entries SET status = 'active'").
		WithArgs("school-1", "class-1", sqlmock.AnyArg()).
		WillReturnRows(entryRows(promoted))
	mock.ExpectCommit()

	entries, conflicts, err := repo.PublishDraft(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.Nil(t, conflicts)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryStatusActive, entries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryPublishDraftAbortsOnConflict(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	teacherID := "teacher-1"
	draft := models.TimetableEntry{
		ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1",
		TeacherID: &teacherID, TimeSlotID: "slot-1", Status: models.EntryStatusDraft,
	}
	colliding := models.TimetableEntry{
		ID: "entry-9", SchoolID: "school-1", ClassID: "class-2", SubjectID: "subject-2",
		TeacherID: &teacherID, TimeSlotID: "slot-1", Status: models.EntryStatusActive,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("school-1", "class-1").
		WillReturnRows(entryRows(draft))
	mock.ExpectQuery("SELECT DISTINCT .+ FROM timetable_entries a").
		WithArgs("school-1", "class-1").
		WillReturnRows(entryRows(colliding))
	mock.ExpectRollback()

	promoted, conflicts, err := repo.PublishDraft(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.Nil(t, promoted)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "class-2", conflicts[0].ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryPublishDraftNoopWithoutDrafts(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	teacherID := "teacher-1"
	active := models.TimetableEntry{
		ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1",
		TeacherID: &teacherID, TimeSlotID: "slot-1", Status: models.EntryStatusActive,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("school-1", "class-1").
		WillReturnRows(entryRows())
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT .+ FROM timetable_entries WHERE school_id = .+ AND class_id = .+ AND status = .+").
		WithArgs("school-1", "class-1", models.EntryStatusActive).
		WillReturnRows(entryRows(active))

	promoted, conflicts, err := repo.PublishDraft(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.Nil(t, conflicts)
	require.Len(t, promoted, 1)
	assert.Equal(t, models.EntryStatusActive, promoted[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-edu/timetable-api/internal/models"
)

func TestTimeSlotRepositoryCreateTemplateClearsPreviousDefault(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE slot_templates SET is_default = FALSE").
		WithArgs("school-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO slot_templates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	template := &models.TimeSlotTemplate{
		SchoolID:  "school-1",
		Name:      "Standard Week",
		IsDefault: true,
		IsActive:  true,
	}
	require.NoError(t, repo.CreateTemplate(context.Background(), template))
	assert.NotEmpty(t, template.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSlotRepositoryCreateTemplateNonDefaultSkipsClear(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO slot_templates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	template := &models.TimeSlotTemplate{SchoolID: "school-1", Name: "Exam Week", IsActive: true}
	require.NoError(t, repo.CreateTemplate(context.Background(), template))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSlotRepositoryUpdateTemplateMissing(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE slot_templates SET name =").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateTemplate(context.Background(), &models.TimeSlotTemplate{
		ID:       "template-404",
		SchoolID: "school-1",
		Name:     "Renamed",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSlotRepositoryListSlots(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "school_id", "template_id", "day_of_week", "start_time", "end_time", "name", "is_break", "created_at", "updated_at"}).
		AddRow("slot-1", "school-1", "template-1", 1, "07:30", "08:15", "Period 1", false, time.Now(), time.Now()).
		AddRow("slot-2", "school-1", "template-1", 1, "08:15", "09:00", "Period 2", false, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM time_slots WHERE school_id = .+ AND template_id = .+ ORDER BY day_of_week").
		WithArgs("school-1", "template-1").
		WillReturnRows(rows)

	slots, err := repo.ListSlots(context.Background(), "school-1", "template-1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "07:30", slots[0].StartTime)
	assert.Equal(t, "Period 2", slots[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSlotRepositoryDeleteSlotMissing(t *testing.T) {
	db, mock, cleanup := newTimetableMock(t)
	defer cleanup()
	repo := NewTimeSlotRepository(db)

	mock.ExpectExec("DELETE FROM time_slots WHERE id =").
		WithArgs("slot-404", "school-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteSlot(context.Background(), "school-1", "slot-404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/pkg/config"
)

func strPtr(s string) *string { return &s }

func mondayMorningSlot() models.TimeSlot {
	return models.TimeSlot{
		ID:         "slot-1",
		SchoolID:   "school-1",
		TemplateID: "tpl-1",
		DayOfWeek:  1,
		StartTime:  "08:00",
		EndTime:    "08:50",
		Name:       "Period 1",
	}
}

func baseProposal() ProposedAssignment {
	return ProposedAssignment{
		SchoolID:   "school-1",
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-1"),
		TimeSlotID: "slot-1",
	}
}

func qualifiedSnapshot() ValidationSnapshot {
	return ValidationSnapshot{
		Slot: mondayMorningSlot(),
		Qualifications: []models.TeacherQualification{
			{SchoolID: "school-1", TeacherID: "teacher-1", SubjectID: "subject-1"},
		},
		Availability: []models.TeacherAvailability{
			{SchoolID: "school-1", TeacherID: "teacher-1", DayOfWeek: 1, StartTime: "08:00", EndTime: "09:00"},
		},
	}
}

func TestConflictValidatorRejectsUnqualifiedTeacher(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Qualifications = nil

	out := validator.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonNotQualified, out.Reason)
	require.NotNil(t, out.Conflict)
	assert.Equal(t, "teacher-1", out.Conflict.TeacherID)
}

func TestConflictValidatorAcceptsContainedSlot(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	out := validator.Validate(baseProposal(), qualifiedSnapshot())
	require.True(t, out.Accepted)
	assert.Empty(t, out.Warnings)
}

func TestConflictValidatorRejectsSlotOutsideWindows(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Availability = []models.TeacherAvailability{
		{SchoolID: "school-1", TeacherID: "teacher-1", DayOfWeek: 1, StartTime: "08:30", EndTime: "10:00"},
		{SchoolID: "school-1", TeacherID: "teacher-1", DayOfWeek: 2, StartTime: "08:00", EndTime: "09:00"},
	}

	out := validator.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonTeacherUnavailable, out.Reason)
}

func TestConflictValidatorAvailabilityPolicy(t *testing.T) {
	snap := qualifiedSnapshot()
	snap.Availability = nil

	strict := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})
	out := strict.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonTeacherUnavailable, out.Reason)

	lenient := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: false})
	out = lenient.Validate(baseProposal(), snap)
	assert.True(t, out.Accepted)
}

func TestConflictValidatorRejectsClassOverlap(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Existing = []models.TimetableEntry{
		{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-2", TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
	}

	out := validator.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonClassOverlap, out.Reason)
	assert.Equal(t, "entry-1", out.Conflict.EntryID)
}

func TestConflictValidatorRejectsTeacherDoubleBooking(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Existing = []models.TimetableEntry{
		{ID: "entry-9", SchoolID: "school-1", ClassID: "class-2", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
	}

	out := validator.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonTeacherDoubleBooked, out.Reason)
	assert.Equal(t, "class-2", out.Conflict.ClassID)
}

func TestConflictValidatorIgnoresReplacedEntry(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Existing = []models.TimetableEntry{
		{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
	}

	proposed := baseProposal()
	proposed.ReplacesEntryID = "entry-1"

	out := validator.Validate(proposed, snap)
	assert.True(t, out.Accepted)
}

func TestConflictValidatorIgnoresOtherSchools(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Existing = []models.TimetableEntry{
		{ID: "entry-7", SchoolID: "school-2", ClassID: "class-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
	}

	out := validator.Validate(baseProposal(), snap)
	assert.True(t, out.Accepted)
}

func TestConflictValidatorUnassignedSlotSkipsTeacherChecks(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	proposed := baseProposal()
	proposed.TeacherID = nil

	out := validator.Validate(proposed, ValidationSnapshot{Slot: mondayMorningSlot()})
	assert.True(t, out.Accepted)
}

func TestConflictValidatorWeeklyBudget(t *testing.T) {
	snap := qualifiedSnapshot()
	snap.Assignment = &models.TeacherClassAssignment{
		SchoolID:    "school-1",
		TeacherID:   "teacher-1",
		ClassID:     "class-1",
		SubjectID:   "subject-1",
		WeeklyHours: 2,
	}
	snap.ScheduledHours = 2

	soft := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})
	out := soft.Validate(baseProposal(), snap)
	require.True(t, out.Accepted)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "weekly hours")

	strict := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true, StrictWeeklyBudget: true})
	out = strict.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonBudgetExceeded, out.Reason)
}

func TestConflictValidatorPrecedence(t *testing.T) {
	// An assignment violating every rule at once must surface the
	// qualification failure first so messages stay reproducible.
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := ValidationSnapshot{
		Slot: mondayMorningSlot(),
		Existing: []models.TimetableEntry{
			{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
			{ID: "entry-2", SchoolID: "school-1", ClassID: "class-2", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
		},
	}

	out := validator.Validate(baseProposal(), snap)
	require.False(t, out.Accepted)
	assert.Equal(t, models.ReasonNotQualified, out.Reason)
}

func TestConflictValidatorDeterminism(t *testing.T) {
	validator := NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: true})

	snap := qualifiedSnapshot()
	snap.Existing = []models.TimetableEntry{
		{ID: "entry-9", SchoolID: "school-1", ClassID: "class-2", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
	}

	first := validator.Validate(baseProposal(), snap)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, validator.Validate(baseProposal(), snap))
	}
}

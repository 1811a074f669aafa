package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/pkg/config"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

type timetableRepoStub struct {
	classEntries   []models.TimetableEntry
	teacherEntries []models.TimetableEntry
	insertErrs     []error
	inserted       []*models.TimetableEntry
	replaceErrs    []error
	replaced       [][]models.TimetableEntry
	discardCount   int64
	promoted       []models.TimetableEntry
	conflicts      []models.TimetableEntry
	publishErrs    []error
	publishCalls   int
	details        []models.TimetableEntryDetail
	entryByID      map[string]*models.TimetableEntry
	deleted        []string
}

func (s *timetableRepoStub) InsertDraft(ctx context.Context, entry *models.TimetableEntry) error {
	if len(s.insertErrs) > 0 {
		err := s.insertErrs[0]
		s.insertErrs = s.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	entry.ID = "entry-new"
	entry.Status = models.EntryStatusDraft
	s.inserted = append(s.inserted, entry)
	return nil
}

func (s *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	if entry, ok := s.entryByID[id]; ok {
		cp := *entry
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) ListByClass(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntry, error) {
	var out []models.TimetableEntry
	for _, e := range s.classEntries {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *timetableRepoStub) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntry, error) {
	return s.teacherEntries, nil
}

func (s *timetableRepoStub) ListDetailByClass(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntryDetail, error) {
	return s.details, nil
}

func (s *timetableRepoStub) ListActiveDetailByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntryDetail, error) {
	return s.details, nil
}

func (s *timetableRepoStub) Delete(ctx context.Context, schoolID, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *timetableRepoStub) DiscardDraft(ctx context.Context, schoolID, classID string) (int64, error) {
	return s.discardCount, nil
}

func (s *timetableRepoStub) PublishDraft(ctx context.Context, schoolID, classID string) ([]models.TimetableEntry, []models.TimetableEntry, error) {
	s.publishCalls++
	if len(s.publishErrs) > 0 {
		err := s.publishErrs[0]
		s.publishErrs = s.publishErrs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	return s.promoted, s.conflicts, nil
}

func (s *timetableRepoStub) ReplaceDraft(ctx context.Context, schoolID, classID string, entries []models.TimetableEntry) ([]models.TimetableEntry, error) {
	if len(s.replaceErrs) > 0 {
		err := s.replaceErrs[0]
		s.replaceErrs = s.replaceErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s.replaced = append(s.replaced, entries)
	return entries, nil
}

type slotReaderStub struct {
	slots map[string]*models.TimeSlot
}

func (s *slotReaderStub) FindSlotByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	if slot, ok := s.slots[id]; ok {
		cp := *slot
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type classReaderStub struct {
	classes map[string]*models.Class
}

func (s *classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := s.classes[id]; ok {
		cp := *class
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type subjectReaderStub struct {
	subjects map[string]*models.Subject
}

func (s *subjectReaderStub) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if subject, ok := s.subjects[id]; ok {
		cp := *subject
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type teacherReaderStub struct {
	teachers map[string]*models.Teacher
}

func (s *teacherReaderStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := s.teachers[id]; ok {
		cp := *teacher
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type qualificationReaderStub struct {
	items []models.TeacherQualification
}

func (s *qualificationReaderStub) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherQualification, error) {
	return s.items, nil
}

type availabilityReaderStub struct {
	items []models.TeacherAvailability
}

func (s *availabilityReaderStub) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherAvailability, error) {
	return s.items, nil
}

type assignmentReaderStub struct {
	assignment *models.TeacherClassAssignment
}

func (s *assignmentReaderStub) Find(ctx context.Context, schoolID, teacherID, classID, subjectID string) (*models.TeacherClassAssignment, error) {
	if s.assignment == nil {
		return nil, sql.ErrNoRows
	}
	cp := *s.assignment
	return &cp, nil
}

type cacheStub struct {
	deletedPatterns []string
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.deletedPatterns = append(s.deletedPatterns, pattern)
	return nil
}

type auditRecorderStub struct {
	records []models.AuditLog
}

func (s *auditRecorderStub) Record(ctx context.Context, entry models.AuditLog) {
	s.records = append(s.records, entry)
}


func newTimetableFixture(repo *timetableRepoStub) (*TimetableService, *auditRecorderStub, *cacheStub) {
	audit := &auditRecorderStub{}
	cache := &cacheStub{}
	svc := NewTimetableService(TimetableServiceDeps{
		Entries: repo,
		Slots: &slotReaderStub{slots: map[string]*models.TimeSlot{
			"slot-1": {ID: "slot-1", SchoolID: "school-1", TemplateID: "template-1", DayOfWeek: 1, StartTime: "08:00", EndTime: "08:45", Name: "Period 1"},
			"slot-2": {ID: "slot-2", SchoolID: "school-1", TemplateID: "template-1", DayOfWeek: 1, StartTime: "08:45", EndTime: "09:30", Name: "Period 2"},
			"slot-3": {ID: "slot-3", SchoolID: "school-1", TemplateID: "template-1", DayOfWeek: 1, StartTime: "09:30", EndTime: "10:15", Name: "Period 3"},
		}},
		Classes: &classReaderStub{classes: map[string]*models.Class{
			"class-1": {ID: "class-1", SchoolID: "school-1", Name: "7A", TemplateID: "template-1"},
		}},
		Subjects: &subjectReaderStub{subjects: map[string]*models.Subject{
			"subject-1": {ID: "subject-1", SchoolID: "school-1", Name: "Mathematics"},
		}},
		Teachers: &teacherReaderStub{teachers: map[string]*models.Teacher{
			"teacher-1": {ID: "teacher-1", SchoolID: "school-1", FullName: "Ana Silva", Active: true},
			"teacher-2": {ID: "teacher-2", SchoolID: "school-1", FullName: "Bram de Vries", Active: true},
		}},
		Qualifications: &qualificationReaderStub{items: []models.TeacherQualification{
			{SchoolID: "school-1", TeacherID: "teacher-1", SubjectID: "subject-1"},
		}},
		Availability: &availabilityReaderStub{},
		Assignments:  &assignmentReaderStub{},
		Checker:      NewConflictValidator(config.SchedulingConfig{RequireExplicitAvailability: false}),
		Cache:        cache,
		CacheConfig:  config.CacheConfig{Enabled: true, TTL: time.Minute},
		Audit:        audit,
	})
	return svc, audit, cache
}

func TestTimetableServiceCreateDraftEntry(t *testing.T) {
	repo := &timetableRepoStub{}
	svc, audit, cache := newTimetableFixture(repo)

	result, err := svc.CreateDraftEntry(context.Background(), "school-1", CreateTimetableEntryRequest{
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-1"),
		TimeSlotID: "slot-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, models.EntryStatusDraft, result.Entry.Status)
	assert.Empty(t, result.Warnings)
	assert.Len(t, repo.inserted, 1)
	assert.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditActionDraftCreate, audit.records[0].Action)
	assert.Contains(t, cache.deletedPatterns, "timetable:school-1:*")
}

func TestTimetableServiceCreateDraftEntryRejectsUnqualified(t *testing.T) {
	repo := &timetableRepoStub{}
	svc, _, _ := newTimetableFixture(repo)

	_, err := svc.CreateDraftEntry(context.Background(), "school-1", CreateTimetableEntryRequest{
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-2"),
		TimeSlotID: "slot-1",
	})
	var conflictErr *models.TimetableConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, models.ReasonNotQualified, conflictErr.Reason)
	assert.Empty(t, repo.inserted)
}

func TestTimetableServiceCreateDraftEntryConflict(t *testing.T) {
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
		},
	}
	svc, _, _ := newTimetableFixture(repo)

	_, err := svc.CreateDraftEntry(context.Background(), "school-1", CreateTimetableEntryRequest{
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-1"),
		TimeSlotID: "slot-1",
	})
	var conflictErr *models.TimetableConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, models.ReasonClassOverlap, conflictErr.Reason)
	assert.Empty(t, repo.inserted)
}

func TestTimetableServiceCreateDraftEntryRetriesOnceAfterLostRace(t *testing.T) {
	repo := &timetableRepoStub{
		insertErrs: []error{&pq.Error{Code: "23505"}},
	}
	svc, _, _ := newTimetableFixture(repo)

	result, err := svc.CreateDraftEntry(context.Background(), "school-1", CreateTimetableEntryRequest{
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-1"),
		TimeSlotID: "slot-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Len(t, repo.inserted, 1)
}

func TestTimetableServiceCreateDraftEntryGivesUpAfterTwoLostRaces(t *testing.T) {
	repo := &timetableRepoStub{
		insertErrs: []error{&pq.Error{Code: "23505"}, &pq.Error{Code: "23505"}},
	}
	svc, _, _ := newTimetableFixture(repo)

	_, err := svc.CreateDraftEntry(context.Background(), "school-1", CreateTimetableEntryRequest{
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-1"),
		TimeSlotID: "slot-1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStorageConflict.Code, appErr.Code)
	assert.Empty(t, repo.inserted)
}

func TestTimetableServiceReplaceDraftCatchesBatchCollision(t *testing.T) {
	repo := &timetableRepoStub{}
	svc, _, _ := newTimetableFixture(repo)

	_, err := svc.ReplaceDraft(context.Background(), "school-1", "class-1", ReplaceDraftRequest{
		Entries: []CreateTimetableEntryRequest{
			{ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1"},
			{ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1"},
		},
	})
	var conflictErr *models.TimetableConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, models.ReasonClassOverlap, conflictErr.Reason)
	assert.Empty(t, repo.replaced)
}

func TestTimetableServiceReplaceDraftStoresBatch(t *testing.T) {
	repo := &timetableRepoStub{}
	svc, audit, _ := newTimetableFixture(repo)

	result, err := svc.ReplaceDraft(context.Background(), "school-1", "class-1", ReplaceDraftRequest{
		Entries: []CreateTimetableEntryRequest{
			{ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1"},
			{ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-2"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	require.Len(t, repo.replaced, 1)
	assert.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditActionDraftReplace, audit.records[0].Action)
}

func TestTimetableServiceReplaceDraftAcceptsRestagedActiveEntry(t *testing.T) {
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "active-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
		},
	}
	svc, _, _ := newTimetableFixture(repo)

	result, err := svc.ReplaceDraft(context.Background(), "school-1", "class-1", ReplaceDraftRequest{
		Entries: []CreateTimetableEntryRequest{
			{ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", ReplacesEntryID: "active-1"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)
	assert.Empty(t, result.Warnings)
	require.Len(t, repo.replaced, 1)
}

func TestTimetableServiceBudgetIgnoresActivesShadowedByDraft(t *testing.T) {
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "active-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
			{ID: "active-2", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-2", Status: models.EntryStatusActive},
			{ID: "draft-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
		},
	}
	svc, _, _ := newTimetableFixture(repo)
	svc.assignments = &assignmentReaderStub{assignment: &models.TeacherClassAssignment{
		SchoolID:    "school-1",
		TeacherID:   "teacher-1",
		ClassID:     "class-1",
		SubjectID:   "subject-1",
		WeeklyHours: 2,
	}}

	result, err := svc.CreateDraftEntry(context.Background(), "school-1", CreateTimetableEntryRequest{
		ClassID:    "class-1",
		SubjectID:  "subject-1",
		TeacherID:  strPtr("teacher-1"),
		TimeSlotID: "slot-3",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Len(t, repo.inserted, 1)
}

func TestTimetableServiceDiscardDraftNothingStaged(t *testing.T) {
	repo := &timetableRepoStub{discardCount: 0}
	svc, _, _ := newTimetableFixture(repo)

	_, err := svc.DiscardDraft(context.Background(), "school-1", "class-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNothingToDiscard.Code, appErr.Code)
}

func TestTimetableServiceDiscardDraft(t *testing.T) {
	repo := &timetableRepoStub{discardCount: 5}
	svc, audit, _ := newTimetableFixture(repo)

	count, err := svc.DiscardDraft(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditActionDraftDiscard, audit.records[0].Action)
}

func TestTimetableServicePublish(t *testing.T) {
	promoted := []models.TimetableEntry{
		{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusActive},
	}
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
		},
		promoted: promoted,
	}
	svc, audit, _ := newTimetableFixture(repo)

	result, err := svc.Publish(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.False(t, result.NoDraft)
	assert.Len(t, result.Promoted, 1)
	assert.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditActionPublish, audit.records[0].Action)
}

func TestTimetableServicePublishNoDraftIsNoop(t *testing.T) {
	active := []models.TimetableEntry{
		{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusActive},
	}
	repo := &timetableRepoStub{classEntries: active, promoted: active}
	svc, audit, _ := newTimetableFixture(repo)

	result, err := svc.Publish(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.True(t, result.NoDraft)
	assert.Len(t, result.Promoted, 1)
	assert.Empty(t, audit.records)
}

func TestTimetableServicePublishRetriesOnceAfterLostRace(t *testing.T) {
	promoted := []models.TimetableEntry{
		{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusActive},
	}
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
		},
		promoted:    promoted,
		publishErrs: []error{&pq.Error{Code: "23505"}},
	}
	svc, audit, _ := newTimetableFixture(repo)

	result, err := svc.Publish(context.Background(), "school-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.publishCalls)
	assert.Len(t, result.Promoted, 1)
	assert.Len(t, audit.records, 1)
}

func TestTimetableServicePublishGivesUpAfterTwoLostRaces(t *testing.T) {
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
		},
		publishErrs: []error{&pq.Error{Code: "23505"}, &pq.Error{Code: "23505"}},
	}
	svc, audit, _ := newTimetableFixture(repo)

	_, err := svc.Publish(context.Background(), "school-1", "class-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStorageConflict.Code, appErr.Code)
	assert.Empty(t, audit.records)
}

func TestTimetableServicePublishSurfacesCrossClassCollisions(t *testing.T) {
	repo := &timetableRepoStub{
		classEntries: []models.TimetableEntry{
			{ID: "entry-1", SchoolID: "school-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusDraft},
		},
		conflicts: []models.TimetableEntry{
			{ID: "entry-9", SchoolID: "school-1", ClassID: "class-2", SubjectID: "subject-2", TeacherID: strPtr("teacher-1"), TimeSlotID: "slot-1", Status: models.EntryStatusActive},
		},
	}
	svc, _, _ := newTimetableFixture(repo)

	_, err := svc.Publish(context.Background(), "school-1", "class-1")
	var conflictErr *models.TimetableConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, models.ReasonTeacherDoubleBooked, conflictErr.Reason)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "class-2", conflictErr.Conflicts[0].ClassID)
}

func TestTimetableServiceDeleteEntryScopedToSchool(t *testing.T) {
	repo := &timetableRepoStub{
		entryByID: map[string]*models.TimetableEntry{
			"entry-1": {ID: "entry-1", SchoolID: "school-2", ClassID: "class-9", SubjectID: "subject-9", TimeSlotID: "slot-9", Status: models.EntryStatusDraft},
		},
	}
	svc, _, _ := newTimetableFixture(repo)

	err := svc.DeleteEntry(context.Background(), "school-1", "entry-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

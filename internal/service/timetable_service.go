package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/internal/repository"
	"github.com/nimbus-edu/timetable-api/pkg/config"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

type timetableRepo interface {
	InsertDraft(ctx context.Context, entry *models.TimetableEntry) error
	FindByID(ctx context.Context, id string) (*models.TimetableEntry, error)
	ListByClass(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntry, error)
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntry, error)
	ListDetailByClass(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntryDetail, error)
	ListActiveDetailByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntryDetail, error)
	Delete(ctx context.Context, schoolID, id string) error
	DiscardDraft(ctx context.Context, schoolID, classID string) (int64, error)
	PublishDraft(ctx context.Context, schoolID, classID string) ([]models.TimetableEntry, []models.TimetableEntry, error)
	ReplaceDraft(ctx context.Context, schoolID, classID string, entries []models.TimetableEntry) ([]models.TimetableEntry, error)
}

type slotReader interface {
	FindSlotByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type qualificationReader interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherQualification, error)
}

type availabilityReader interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherAvailability, error)
}

type assignmentReader interface {
	Find(ctx context.Context, schoolID, teacherID, classID, subjectID string) (*models.TeacherClassAssignment, error)
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

type validationObserver interface {
	ObserveValidation(reason string, accepted bool)
}

// CreateTimetableEntryRequest is the payload for staging one draft entry.
// TeacherID is optional: an unassigned slot holds the subject only.
type CreateTimetableEntryRequest struct {
	ClassID         string  `json:"class_id" validate:"required"`
	SubjectID       string  `json:"subject_id" validate:"required"`
	TeacherID       *string `json:"teacher_id,omitempty"`
	TimeSlotID      string  `json:"time_slot_id" validate:"required"`
	ReplacesEntryID string  `json:"replaces_entry_id,omitempty"`
}

// ReplaceDraftRequest swaps a class's whole draft set in one shot.
type ReplaceDraftRequest struct {
	Entries []CreateTimetableEntryRequest `json:"entries" validate:"required,dive"`
}

// DraftEntryResult carries the stored entry plus non-blocking warnings.
type DraftEntryResult struct {
	Entry    *models.TimetableEntry `json:"entry"`
	Warnings []string               `json:"warnings,omitempty"`
}

// ReplaceDraftResult carries the stored batch plus accumulated warnings.
type ReplaceDraftResult struct {
	Entries  []models.TimetableEntry `json:"entries"`
	Warnings []string                `json:"warnings,omitempty"`
}

// PublishResult is the outcome of promoting a class's draft.
type PublishResult struct {
	Promoted []models.TimetableEntry `json:"promoted"`
	NoDraft  bool                    `json:"no_draft"`
}

// TimetableService drives the draft lifecycle: staging entries through the
// conflict validator, atomic publish, and discard. Validation is advisory;
// the database's unique indexes are authoritative, and a lost race triggers
// exactly one re-validation before the write is abandoned.
type TimetableService struct {
	entries        timetableRepo
	slots          slotReader
	classes        classReader
	subjects       subjectReader
	teachers       teacherReader
	qualifications qualificationReader
	availability   availabilityReader
	assignments    assignmentReader
	checker        *ConflictValidator
	cache          timetableCache
	cacheCfg       config.CacheConfig
	audit          auditRecorder
	metrics        validationObserver
	validator      *validator.Validate
	logger         *zap.Logger
}

// TimetableServiceDeps bundles the collaborators for construction.
type TimetableServiceDeps struct {
	Entries        timetableRepo
	Slots          slotReader
	Classes        classReader
	Subjects       subjectReader
	Teachers       teacherReader
	Qualifications qualificationReader
	Availability   availabilityReader
	Assignments    assignmentReader
	Checker        *ConflictValidator
	Cache          timetableCache
	CacheConfig    config.CacheConfig
	Audit          auditRecorder
	Metrics        validationObserver
	Validator      *validator.Validate
	Logger         *zap.Logger
}

// NewTimetableService creates a service instance.
func NewTimetableService(deps TimetableServiceDeps) *TimetableService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TimetableService{
		entries:        deps.Entries,
		slots:          deps.Slots,
		classes:        deps.Classes,
		subjects:       deps.Subjects,
		teachers:       deps.Teachers,
		qualifications: deps.Qualifications,
		availability:   deps.Availability,
		assignments:    deps.Assignments,
		checker:        deps.Checker,
		cache:          deps.Cache,
		cacheCfg:       deps.CacheConfig,
		audit:          deps.Audit,
		metrics:        deps.Metrics,
		validator:      deps.Validator,
		logger:         deps.Logger,
	}
}

// CreateDraftEntry validates and stages a single draft entry. When the
// insert loses a uniqueness race the schedule state is reloaded and the
// proposal re-validated once; a second loss surfaces as a storage conflict.
func (s *TimetableService) CreateDraftEntry(ctx context.Context, schoolID string, req CreateTimetableEntryRequest) (*DraftEntryResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft entry payload")
	}

	proposed := ProposedAssignment{
		SchoolID:        schoolID,
		ClassID:         req.ClassID,
		SubjectID:       req.SubjectID,
		TeacherID:       req.TeacherID,
		TimeSlotID:      req.TimeSlotID,
		ReplacesEntryID: req.ReplacesEntryID,
	}

	slot, err := s.resolveReferences(ctx, proposed)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		snap, err := s.loadSnapshot(ctx, proposed, *slot)
		if err != nil {
			return nil, err
		}
		outcome := s.checker.Validate(proposed, snap)
		s.observe(outcome)
		if !outcome.Accepted {
			return nil, conflictError(outcome)
		}

		entry := &models.TimetableEntry{
			SchoolID:   schoolID,
			ClassID:    req.ClassID,
			SubjectID:  req.SubjectID,
			TeacherID:  req.TeacherID,
			TimeSlotID: req.TimeSlotID,
		}
		err = s.entries.InsertDraft(ctx, entry)
		if err == nil {
			s.invalidateTimetable(ctx, schoolID)
			s.recordAudit(ctx, schoolID, models.AuditActionDraftCreate, "timetable_entry", entry.ID, entry)
			return &DraftEntryResult{Entry: entry, Warnings: outcome.Warnings}, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store draft entry")
		}
		s.logger.Warn("draft insert lost uniqueness race, re-validating",
			zap.String("school_id", schoolID),
			zap.String("class_id", req.ClassID),
			zap.String("time_slot_id", req.TimeSlotID))
	}

	return nil, appErrors.Clone(appErrors.ErrStorageConflict, "draft entry lost a concurrent write race twice")
}

// ReplaceDraft validates the whole batch against current state, including
// collisions between batch members, then swaps the class's draft set in one
// transaction.
func (s *TimetableService) ReplaceDraft(ctx context.Context, schoolID, classID string, req ReplaceDraftRequest) (*ReplaceDraftResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft batch payload")
	}
	if _, err := s.requireClass(ctx, schoolID, classID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		batch, warnings, err := s.validateBatch(ctx, schoolID, classID, req.Entries)
		if err != nil {
			return nil, err
		}

		inserted, err := s.entries.ReplaceDraft(ctx, schoolID, classID, batch)
		if err == nil {
			s.invalidateTimetable(ctx, schoolID)
			s.recordAudit(ctx, schoolID, models.AuditActionDraftReplace, "timetable_draft", classID, map[string]int{"entries": len(inserted)})
			return &ReplaceDraftResult{Entries: inserted, Warnings: warnings}, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace draft entries")
		}
		s.logger.Warn("draft replace lost uniqueness race, re-validating",
			zap.String("school_id", schoolID),
			zap.String("class_id", classID))
	}

	return nil, appErrors.Clone(appErrors.ErrStorageConflict, "draft batch lost a concurrent write race twice")
}

// DiscardDraft drops the class's staged entries. Discarding when nothing is
// staged is reported, not silently ignored.
func (s *TimetableService) DiscardDraft(ctx context.Context, schoolID, classID string) (int64, error) {
	if _, err := s.requireClass(ctx, schoolID, classID); err != nil {
		return 0, err
	}
	count, err := s.entries.DiscardDraft(ctx, schoolID, classID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard draft entries")
	}
	if count == 0 {
		return 0, appErrors.ErrNothingToDiscard
	}
	s.invalidateTimetable(ctx, schoolID)
	s.recordAudit(ctx, schoolID, models.AuditActionDraftDiscard, "timetable_draft", classID, map[string]int64{"discarded": count})
	return count, nil
}

// Publish promotes the class's draft to the active timetable atomically.
// Cross-class teacher collisions found during the transactional re-check
// abort the publish and surface as a conflict error listing every collision.
// A lost uniqueness race against a concurrent publish is retried once; the
// retried transaction's re-check then reports the collision instead. A second
// loss surfaces as a storage conflict. Publishing with no staged entries is a
// no-op returning the active set.
func (s *TimetableService) Publish(ctx context.Context, schoolID, classID string) (*PublishResult, error) {
	if _, err := s.requireClass(ctx, schoolID, classID); err != nil {
		return nil, err
	}

	drafts, err := s.entries.ListByClass(ctx, schoolID, classID, models.EntryStatusDraft)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect draft entries")
	}
	hadDraft := len(drafts) > 0

	for attempt := 0; attempt < 2; attempt++ {
		promoted, colliding, err := s.entries.PublishDraft(ctx, schoolID, classID)
		if err != nil {
			if !repository.IsUniqueViolation(err) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish draft")
			}
			s.logger.Warn("publish lost uniqueness race, retrying",
				zap.String("school_id", schoolID),
				zap.String("class_id", classID))
			continue
		}
		if len(colliding) > 0 {
			conflicts := make([]models.TimetableConflict, 0, len(colliding))
			for _, e := range colliding {
				teacherID := ""
				if e.TeacherID != nil {
					teacherID = *e.TeacherID
				}
				conflicts = append(conflicts, models.TimetableConflict{
					Reason:     models.ReasonTeacherDoubleBooked,
					Detail:     fmt.Sprintf("teacher %s holds an active entry at slot %s in class %s", teacherID, e.TimeSlotID, e.ClassID),
					EntryID:    e.ID,
					ClassID:    e.ClassID,
					TeacherID:  teacherID,
					TimeSlotID: e.TimeSlotID,
				})
			}
			return nil, &models.TimetableConflictError{
				Reason:    models.ReasonTeacherDoubleBooked,
				Message:   "publish aborted: draft collides with other classes' active timetables",
				Conflict:  conflicts[0],
				Conflicts: conflicts,
			}
		}

		if hadDraft {
			s.invalidateTimetable(ctx, schoolID)
			s.recordAudit(ctx, schoolID, models.AuditActionPublish, "timetable", classID, map[string]int{"entries": len(promoted)})
		}
		return &PublishResult{Promoted: promoted, NoDraft: !hadDraft}, nil
	}

	return nil, appErrors.Clone(appErrors.ErrStorageConflict, "publish lost a concurrent write race twice")
}

// ClassTimetable returns the class grid for the requested status. Active
// reads are served from cache when enabled; drafts always hit storage.
func (s *TimetableService) ClassTimetable(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntryDetail, error) {
	if status != "" && !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown timetable status")
	}
	if _, err := s.requireClass(ctx, schoolID, classID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("timetable:%s:class:%s:%s", schoolID, classID, status)
	if s.cacheable(status) {
		var cached []models.TimetableEntryDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	details, err := s.entries.ListDetailByClass(ctx, schoolID, classID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class timetable")
	}
	if s.cacheable(status) {
		if err := s.cache.Set(ctx, key, details, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("failed to cache class timetable", zap.String("key", key), zap.Error(err))
		}
	}
	return details, nil
}

// TeacherTimetable returns the teacher's published schedule across classes.
func (s *TimetableService) TeacherTimetable(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntryDetail, error) {
	if _, err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("timetable:%s:teacher:%s", schoolID, teacherID)
	if s.cacheable(models.EntryStatusActive) {
		var cached []models.TimetableEntryDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	details, err := s.entries.ListActiveDetailByTeacher(ctx, schoolID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher timetable")
	}
	if s.cacheable(models.EntryStatusActive) {
		if err := s.cache.Set(ctx, key, details, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("failed to cache teacher timetable", zap.String("key", key), zap.Error(err))
		}
	}
	return details, nil
}

// DeleteEntry removes one entry regardless of status.
func (s *TimetableService) DeleteEntry(ctx context.Context, schoolID, entryID string) error {
	entry, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entry")
	}
	if entry.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
	}
	if err := s.entries.Delete(ctx, schoolID, entryID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable entry")
	}
	s.invalidateTimetable(ctx, schoolID)
	s.recordAudit(ctx, schoolID, models.AuditActionEntryDelete, "timetable_entry", entryID, entry)
	return nil
}

// validateBatch runs the validator over each batch member in order, feeding
// accepted members back into the snapshot so collisions inside the batch are
// caught the same way as collisions with stored state. The class's current
// drafts are excluded: the batch replaces them.
func (s *TimetableService) validateBatch(ctx context.Context, schoolID, classID string, items []CreateTimetableEntryRequest) ([]models.TimetableEntry, []string, error) {
	existing, err := s.batchBaseline(ctx, schoolID, classID, items)
	if err != nil {
		return nil, nil, err
	}

	batch := make([]models.TimetableEntry, 0, len(items))
	var warnings []string
	for i, item := range items {
		proposed := ProposedAssignment{
			SchoolID:        schoolID,
			ClassID:         classID,
			SubjectID:       item.SubjectID,
			TeacherID:       item.TeacherID,
			TimeSlotID:      item.TimeSlotID,
			ReplacesEntryID: item.ReplacesEntryID,
		}
		slot, err := s.resolveReferences(ctx, proposed)
		if err != nil {
			return nil, nil, err
		}

		snap := ValidationSnapshot{
			Slot:     *slot,
			Existing: existing,
		}
		if item.TeacherID != nil {
			if snap.Qualifications, err = s.qualifications.ListByTeacher(ctx, schoolID, *item.TeacherID); err != nil {
				return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qualifications")
			}
			if snap.Availability, err = s.availability.ListByTeacher(ctx, schoolID, *item.TeacherID); err != nil {
				return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
			}
			assignment, err := s.assignments.Find(ctx, schoolID, *item.TeacherID, classID, item.SubjectID)
			if err != nil && err != sql.ErrNoRows {
				return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class assignment")
			}
			snap.Assignment = assignment
			snap.ScheduledHours = scheduledTupleHours(existing, classID, item.SubjectID, *item.TeacherID, item.ReplacesEntryID)
		}

		outcome := s.checker.Validate(proposed, snap)
		s.observe(outcome)
		if !outcome.Accepted {
			err := conflictError(outcome)
			err.Message = fmt.Sprintf("batch entry %d rejected: %s", i, outcome.Detail)
			return nil, nil, err
		}
		warnings = append(warnings, outcome.Warnings...)

		staged := models.TimetableEntry{
			ID:         fmt.Sprintf("batch-%d", i),
			SchoolID:   schoolID,
			ClassID:    classID,
			SubjectID:  item.SubjectID,
			TeacherID:  item.TeacherID,
			TimeSlotID: item.TimeSlotID,
			Status:     models.EntryStatusDraft,
		}
		existing = append(existing, staged)
		staged.ID = ""
		batch = append(batch, staged)
	}
	return batch, warnings, nil
}

// batchBaseline collects the stored entries a replacement batch can collide
// with: the class's active set plus every referenced teacher's bookings in
// other classes. The class's own drafts are dropped since they are replaced.
func (s *TimetableService) batchBaseline(ctx context.Context, schoolID, classID string, items []CreateTimetableEntryRequest) ([]models.TimetableEntry, error) {
	existing, err := s.entries.ListByClass(ctx, schoolID, classID, models.EntryStatusActive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class entries")
	}

	seen := map[string]bool{}
	for _, item := range items {
		if item.TeacherID == nil || seen[*item.TeacherID] {
			continue
		}
		seen[*item.TeacherID] = true
		booked, err := s.entries.ListByTeacher(ctx, schoolID, *item.TeacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher entries")
		}
		for _, e := range booked {
			if e.ClassID == classID {
				continue
			}
			existing = append(existing, e)
		}
	}
	return existing, nil
}

// loadSnapshot gathers the state one single-entry decision needs.
func (s *TimetableService) loadSnapshot(ctx context.Context, proposed ProposedAssignment, slot models.TimeSlot) (ValidationSnapshot, error) {
	snap := ValidationSnapshot{Slot: slot}

	classEntries, err := s.entries.ListByClass(ctx, proposed.SchoolID, proposed.ClassID, "")
	if err != nil {
		return snap, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class entries")
	}
	snap.Existing = classEntries

	if proposed.TeacherID == nil {
		return snap, nil
	}
	teacherID := *proposed.TeacherID

	booked, err := s.entries.ListByTeacher(ctx, proposed.SchoolID, teacherID)
	if err != nil {
		return snap, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher entries")
	}
	for _, e := range booked {
		if e.ClassID == proposed.ClassID {
			continue
		}
		snap.Existing = append(snap.Existing, e)
	}

	if snap.Qualifications, err = s.qualifications.ListByTeacher(ctx, proposed.SchoolID, teacherID); err != nil {
		return snap, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qualifications")
	}
	if snap.Availability, err = s.availability.ListByTeacher(ctx, proposed.SchoolID, teacherID); err != nil {
		return snap, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}

	assignment, err := s.assignments.Find(ctx, proposed.SchoolID, teacherID, proposed.ClassID, proposed.SubjectID)
	if err != nil && err != sql.ErrNoRows {
		return snap, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class assignment")
	}
	snap.Assignment = assignment

	if assignment != nil {
		snap.ScheduledHours = scheduledTupleHours(snap.Existing, proposed.ClassID, proposed.SubjectID, teacherID, proposed.ReplacesEntryID)
	}
	return snap, nil
}

// resolveReferences loads the slot and verifies every referenced resource
// belongs to the caller's school. Cross-tenant ids read as not found.
func (s *TimetableService) resolveReferences(ctx context.Context, proposed ProposedAssignment) (*models.TimeSlot, error) {
	slot, err := s.slots.FindSlotByID(ctx, proposed.TimeSlotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	if slot.SchoolID != proposed.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
	}
	if slot.IsBreak {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot schedule lessons into a break slot")
	}

	class, err := s.requireClass(ctx, proposed.SchoolID, proposed.ClassID)
	if err != nil {
		return nil, err
	}
	if class.TemplateID != slot.TemplateID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time slot belongs to a different template than the class")
	}

	subject, err := s.subjects.FindByID(ctx, proposed.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.SchoolID != proposed.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}

	if proposed.TeacherID != nil {
		teacher, err := s.requireTeacher(ctx, proposed.SchoolID, *proposed.TeacherID)
		if err != nil {
			return nil, err
		}
		if !teacher.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is inactive")
		}
	}
	return slot, nil
}

func (s *TimetableService) requireClass(ctx context.Context, schoolID, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return class, nil
}

func (s *TimetableService) requireTeacher(ctx context.Context, schoolID, teacherID string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return teacher, nil
}

func (s *TimetableService) cacheable(status models.EntryStatus) bool {
	return s.cache != nil && s.cacheCfg.Enabled && status == models.EntryStatusActive
}

func (s *TimetableService) invalidateTimetable(ctx context.Context, schoolID string) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("timetable:%s:*", schoolID)); err != nil {
		s.logger.Warn("failed to invalidate timetable cache", zap.String("school_id", schoolID), zap.Error(err))
	}
}

func (s *TimetableService) recordAudit(ctx context.Context, schoolID, action, resource, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	var values []byte
	if payload != nil {
		values, _ = json.Marshal(payload)
	}
	id := resourceID
	s.audit.Record(ctx, models.AuditLog{
		SchoolID:   schoolID,
		Action:     action,
		Resource:   resource,
		ResourceID: &id,
		NewValues:  values,
	})
}

func (s *TimetableService) observe(outcome ValidationOutcome) {
	if s.metrics == nil {
		return
	}
	reason := "accepted"
	if !outcome.Accepted {
		reason = string(outcome.Reason)
	}
	s.metrics.ObserveValidation(reason, outcome.Accepted)
}

// scheduledTupleHours counts entries already holding the weekly-budget tuple.
// A class with staged drafts is measured by its draft set alone: publishing
// replaces the active rows, so counting both would charge the budget twice.
// The entry a proposal declares it replaces never counts.
func scheduledTupleHours(entries []models.TimetableEntry, classID, subjectID, teacherID, replacesEntryID string) int {
	status := models.EntryStatusActive
	for _, e := range entries {
		if e.ClassID == classID && e.Status == models.EntryStatusDraft {
			status = models.EntryStatusDraft
			break
		}
	}
	count := 0
	for _, e := range entries {
		if e.ClassID != classID || e.SubjectID != subjectID || e.Status != status {
			continue
		}
		if e.TeacherID == nil || *e.TeacherID != teacherID {
			continue
		}
		if replacesEntryID != "" && e.ID == replacesEntryID {
			continue
		}
		count++
	}
	return count
}

// conflictError shapes a validator rejection into the typed conflict error.
func conflictError(outcome ValidationOutcome) *models.TimetableConflictError {
	err := &models.TimetableConflictError{
		Reason:  outcome.Reason,
		Message: outcome.Detail,
	}
	if outcome.Conflict != nil {
		err.Conflict = *outcome.Conflict
		err.Conflicts = []models.TimetableConflict{*outcome.Conflict}
	}
	return err
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nimbus-edu/timetable-api/internal/models"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

type timeSlotRepo interface {
	ListTemplates(ctx context.Context, schoolID string) ([]models.TimeSlotTemplate, error)
	FindTemplateByID(ctx context.Context, id string) (*models.TimeSlotTemplate, error)
	CreateTemplate(ctx context.Context, template *models.TimeSlotTemplate) error
	UpdateTemplate(ctx context.Context, template *models.TimeSlotTemplate) error
	DeleteTemplate(ctx context.Context, schoolID, id string) error
	ListSlots(ctx context.Context, schoolID, templateID string) ([]models.TimeSlot, error)
	FindSlotByID(ctx context.Context, id string) (*models.TimeSlot, error)
	CreateSlot(ctx context.Context, slot *models.TimeSlot) error
	UpdateSlot(ctx context.Context, slot *models.TimeSlot) error
	DeleteSlot(ctx context.Context, schoolID, id string) error
}

type slotReferenceCounter interface {
	CountBySlot(ctx context.Context, schoolID, timeSlotID string) (int, error)
}

type templateBindingCounter interface {
	CountByTemplate(ctx context.Context, schoolID, templateID string) (int, error)
}

// hhmm matches zero-padded 24h clock strings so lexical order is
// chronological order.
var hhmm = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// CreateTemplateRequest describes a new slot template.
type CreateTemplateRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=100"`
	IsDefault bool   `json:"is_default"`
	IsActive  bool   `json:"is_active"`
}

// UpdateTemplateRequest modifies template metadata.
type UpdateTemplateRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=100"`
	IsDefault bool   `json:"is_default"`
	IsActive  bool   `json:"is_active"`
}

// CreateTimeSlotRequest describes a new slot inside a template.
type CreateTimeSlotRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=100"`
	IsBreak   bool   `json:"is_break"`
}

// UpdateTimeSlotRequest modifies a slot's window and labels.
type UpdateTimeSlotRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=100"`
	IsBreak   bool   `json:"is_break"`
}

// TimeSlotService manages slot templates and their time slots. Slots that
// timetable entries reference cannot be removed, and templates bound to
// classes cannot be removed either.
type TimeSlotService struct {
	slots     timeSlotRepo
	entries   slotReferenceCounter
	classes   templateBindingCounter
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeSlotService creates a service instance.
func NewTimeSlotService(
	slots timeSlotRepo,
	entries slotReferenceCounter,
	classes templateBindingCounter,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimeSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{
		slots:     slots,
		entries:   entries,
		classes:   classes,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// ListTemplates returns the school's templates.
func (s *TimeSlotService) ListTemplates(ctx context.Context, schoolID string) ([]models.TimeSlotTemplate, error) {
	templates, err := s.slots.ListTemplates(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slot templates")
	}
	return templates, nil
}

// CreateTemplate stores a new template. Flagging it default demotes the
// school's previous default atomically.
func (s *TimeSlotService) CreateTemplate(ctx context.Context, schoolID string, req CreateTemplateRequest) (*models.TimeSlotTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	template := &models.TimeSlotTemplate{
		SchoolID:  schoolID,
		Name:      req.Name,
		IsDefault: req.IsDefault,
		IsActive:  req.IsActive,
	}
	if err := s.slots.CreateTemplate(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot template")
	}
	s.recordAudit(ctx, schoolID, template.ID, template)
	return template, nil
}

// UpdateTemplate modifies template metadata.
func (s *TimeSlotService) UpdateTemplate(ctx context.Context, schoolID, templateID string, req UpdateTemplateRequest) (*models.TimeSlotTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	template, err := s.requireTemplate(ctx, schoolID, templateID)
	if err != nil {
		return nil, err
	}
	template.Name = req.Name
	template.IsDefault = req.IsDefault
	template.IsActive = req.IsActive
	if err := s.slots.UpdateTemplate(ctx, template); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot template")
	}
	s.recordAudit(ctx, schoolID, template.ID, template)
	return template, nil
}

// DeleteTemplate removes a template no classes are bound to.
func (s *TimeSlotService) DeleteTemplate(ctx context.Context, schoolID, templateID string) error {
	if _, err := s.requireTemplate(ctx, schoolID, templateID); err != nil {
		return err
	}
	bound, err := s.classes.CountByTemplate(ctx, schoolID, templateID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count template bindings")
	}
	if bound > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("template is bound to %d classes", bound))
	}
	if err := s.slots.DeleteTemplate(ctx, schoolID, templateID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "slot template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slot template")
	}
	s.recordAudit(ctx, schoolID, templateID, nil)
	return nil
}

// ListSlots returns a template's slots ordered by day and start time.
func (s *TimeSlotService) ListSlots(ctx context.Context, schoolID, templateID string) ([]models.TimeSlot, error) {
	if _, err := s.requireTemplate(ctx, schoolID, templateID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListSlots(ctx, schoolID, templateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	return slots, nil
}

// CreateSlot adds a slot to a template after window validation.
func (s *TimeSlotService) CreateSlot(ctx context.Context, schoolID, templateID string, req CreateTimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if _, err := s.requireTemplate(ctx, schoolID, templateID); err != nil {
		return nil, err
	}
	slot := &models.TimeSlot{
		SchoolID:   schoolID,
		TemplateID: templateID,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Name:       req.Name,
		IsBreak:    req.IsBreak,
	}
	if err := s.slots.CreateSlot(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time slot")
	}
	s.recordAudit(ctx, schoolID, slot.ID, slot)
	return slot, nil
}

// UpdateSlot modifies a slot's window and labels.
func (s *TimeSlotService) UpdateSlot(ctx context.Context, schoolID, slotID string, req UpdateTimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	slot, err := s.requireSlot(ctx, schoolID, slotID)
	if err != nil {
		return nil, err
	}
	slot.DayOfWeek = req.DayOfWeek
	slot.StartTime = req.StartTime
	slot.EndTime = req.EndTime
	slot.Name = req.Name
	slot.IsBreak = req.IsBreak
	if err := s.slots.UpdateSlot(ctx, slot); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update time slot")
	}
	s.recordAudit(ctx, schoolID, slot.ID, slot)
	return slot, nil
}

// DeleteSlot removes a slot no timetable entries reference.
func (s *TimeSlotService) DeleteSlot(ctx context.Context, schoolID, slotID string) error {
	if _, err := s.requireSlot(ctx, schoolID, slotID); err != nil {
		return err
	}
	referenced, err := s.entries.CountBySlot(ctx, schoolID, slotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count slot references")
	}
	if referenced > 0 {
		return appErrors.Clone(appErrors.ErrSlotReferenced, fmt.Sprintf("time slot is referenced by %d timetable entries", referenced))
	}
	if err := s.slots.DeleteSlot(ctx, schoolID, slotID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete time slot")
	}
	s.recordAudit(ctx, schoolID, slotID, nil)
	return nil
}

func (s *TimeSlotService) requireTemplate(ctx context.Context, schoolID, templateID string) (*models.TimeSlotTemplate, error) {
	template, err := s.slots.FindTemplateByID(ctx, templateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot template")
	}
	if template.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot template not found")
	}
	return template, nil
}

func (s *TimeSlotService) requireSlot(ctx context.Context, schoolID, slotID string) (*models.TimeSlot, error) {
	slot, err := s.slots.FindSlotByID(ctx, slotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	if slot.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
	}
	return slot, nil
}

func (s *TimeSlotService) recordAudit(ctx context.Context, schoolID, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	id := resourceID
	entry := models.AuditLog{
		SchoolID:   schoolID,
		Action:     models.AuditActionTemplateChange,
		Resource:   "slot_template",
		ResourceID: &id,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.NewValues = raw
		}
	}
	s.audit.Record(ctx, entry)
}

// validateWindow checks HH:MM shape and chronological order.
func validateWindow(start, end string) error {
	if !hhmm.MatchString(start) || !hhmm.MatchString(end) {
		return appErrors.Clone(appErrors.ErrValidation, "times must be zero-padded HH:MM strings")
	}
	if start >= end {
		return appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	return nil
}

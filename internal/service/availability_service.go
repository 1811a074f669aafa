package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nimbus-edu/timetable-api/internal/models"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

type availabilityRepo interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherAvailability, error)
	Create(ctx context.Context, window *models.TeacherAvailability) error
	Delete(ctx context.Context, schoolID, teacherID, windowID string) error
}

// CreateAvailabilityRequest describes a new availability window.
type CreateAvailabilityRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// AvailabilityService manages teacher availability windows. Windows may
// overlap freely; only their shape is validated.
type AvailabilityService struct {
	windows   availabilityRepo
	teachers  teacherReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService creates a service instance.
func NewAvailabilityService(windows availabilityRepo, teachers teacherReader, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{windows: windows, teachers: teachers, validator: validate, logger: logger}
}

// ListByTeacher returns every window recorded for the teacher.
func (s *AvailabilityService) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherAvailability, error) {
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}
	windows, err := s.windows.ListByTeacher(ctx, schoolID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability windows")
	}
	return windows, nil
}

// Create records a new window for the teacher.
func (s *AvailabilityService) Create(ctx context.Context, schoolID, teacherID string, req CreateAvailabilityRequest) (*models.TeacherAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}
	window := &models.TeacherAvailability{
		SchoolID:  schoolID,
		TeacherID: teacherID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if err := s.windows.Create(ctx, window); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create availability window")
	}
	return window, nil
}

// Delete removes a window owned by the teacher.
func (s *AvailabilityService) Delete(ctx context.Context, schoolID, teacherID, windowID string) error {
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return err
	}
	if err := s.windows.Delete(ctx, schoolID, teacherID, windowID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability window")
	}
	return nil
}

func (s *AvailabilityService) requireTeacher(ctx context.Context, schoolID, teacherID string) error {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}

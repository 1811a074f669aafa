package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/pkg/config"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

type qualificationRepo interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherQualification, error)
	Exists(ctx context.Context, schoolID, teacherID, subjectID string) (bool, error)
	Create(ctx context.Context, qualification *models.TeacherQualification) error
	Delete(ctx context.Context, schoolID, teacherID, subjectID string) error
	ListQualifiedTeachers(ctx context.Context, schoolID, subjectID string) ([]models.QualifiedTeacher, error)
}

type classAssignmentRepo interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherClassAssignment, error)
	Exists(ctx context.Context, schoolID, teacherID, classID, subjectID string) (bool, error)
	Create(ctx context.Context, assignment *models.TeacherClassAssignment) error
	Delete(ctx context.Context, schoolID, teacherID, assignmentID string) error
}

// CreateQualificationRequest records that a teacher may teach a subject.
type CreateQualificationRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
}

// CreateClassAssignmentRequest binds a teacher to a class subject with a
// weekly-hour budget.
type CreateClassAssignmentRequest struct {
	ClassID     string `json:"class_id" validate:"required"`
	SubjectID   string `json:"subject_id" validate:"required"`
	WeeklyHours int    `json:"weekly_hours" validate:"required,min=1,max=40"`
}

// QualificationService manages teacher-subject eligibility and the class
// assignments that carry weekly-hour budgets. Qualified-teacher lookups are
// cached; any mutation invalidates the school's lookup keys.
type QualificationService struct {
	qualifications qualificationRepo
	assignments    classAssignmentRepo
	teachers       teacherReader
	subjects       subjectReader
	classes        classReader
	cache          timetableCache
	cacheCfg       config.CacheConfig
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewQualificationService creates a service instance.
func NewQualificationService(
	qualifications qualificationRepo,
	assignments classAssignmentRepo,
	teachers teacherReader,
	subjects subjectReader,
	classes classReader,
	cache timetableCache,
	cacheCfg config.CacheConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *QualificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualificationService{
		qualifications: qualifications,
		assignments:    assignments,
		teachers:       teachers,
		subjects:       subjects,
		classes:        classes,
		cache:          cache,
		cacheCfg:       cacheCfg,
		validator:      validate,
		logger:         logger,
	}
}

// ListByTeacher returns the subjects a teacher may teach.
func (s *QualificationService) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.TeacherQualification, error) {
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}
	qualifications, err := s.qualifications.ListByTeacher(ctx, schoolID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list qualifications")
	}
	return qualifications, nil
}

// Grant records a qualification. Granting twice is a conflict.
func (s *QualificationService) Grant(ctx context.Context, schoolID, teacherID string, req CreateQualificationRequest) (*models.TeacherQualification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid qualification payload")
	}
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}
	if err := s.requireSubject(ctx, schoolID, req.SubjectID); err != nil {
		return nil, err
	}
	exists, err := s.qualifications.Exists(ctx, schoolID, teacherID, req.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check qualification")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "qualification already recorded")
	}
	qualification := &models.TeacherQualification{
		SchoolID:  schoolID,
		TeacherID: teacherID,
		SubjectID: req.SubjectID,
	}
	if err := s.qualifications.Create(ctx, qualification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create qualification")
	}
	s.invalidateLookups(ctx, schoolID)
	return qualification, nil
}

// Revoke removes a qualification. Existing timetable entries are untouched;
// they were admitted against the state at write time.
func (s *QualificationService) Revoke(ctx context.Context, schoolID, teacherID, subjectID string) error {
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return err
	}
	if err := s.qualifications.Delete(ctx, schoolID, teacherID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "qualification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete qualification")
	}
	s.invalidateLookups(ctx, schoolID)
	return nil
}

// QualifiedTeachers returns the active teachers eligible for a subject.
func (s *QualificationService) QualifiedTeachers(ctx context.Context, schoolID, subjectID string) ([]models.QualifiedTeacher, error) {
	if err := s.requireSubject(ctx, schoolID, subjectID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("qualified:%s:subject:%s", schoolID, subjectID)
	if s.cache != nil && s.cacheCfg.Enabled {
		var cached []models.QualifiedTeacher
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	teachers, err := s.qualifications.ListQualifiedTeachers(ctx, schoolID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list qualified teachers")
	}
	if s.cache != nil && s.cacheCfg.Enabled {
		if err := s.cache.Set(ctx, key, teachers, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("failed to cache qualified teachers", zap.String("key", key), zap.Error(err))
		}
	}
	return teachers, nil
}

// ListAssignments returns the teacher's class assignments.
func (s *QualificationService) ListAssignments(ctx context.Context, schoolID, teacherID string) ([]models.TeacherClassAssignment, error) {
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByTeacher(ctx, schoolID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class assignments")
	}
	return assignments, nil
}

// Assign binds a teacher to a class subject with a weekly budget. The
// teacher must already hold the subject qualification.
func (s *QualificationService) Assign(ctx context.Context, schoolID, teacherID string, req CreateClassAssignmentRequest) (*models.TeacherClassAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return nil, err
	}
	if err := s.requireSubject(ctx, schoolID, req.SubjectID); err != nil {
		return nil, err
	}
	if err := s.requireClass(ctx, schoolID, req.ClassID); err != nil {
		return nil, err
	}

	qualified, err := s.qualifications.Exists(ctx, schoolID, teacherID, req.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check qualification")
	}
	if !qualified {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher holds no qualification for the subject")
	}

	exists, err := s.assignments.Exists(ctx, schoolID, teacherID, req.ClassID, req.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class assignment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already recorded")
	}

	assignment := &models.TeacherClassAssignment{
		SchoolID:    schoolID,
		TeacherID:   teacherID,
		ClassID:     req.ClassID,
		SubjectID:   req.SubjectID,
		WeeklyHours: req.WeeklyHours,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class assignment")
	}
	return assignment, nil
}

// Unassign removes a class assignment.
func (s *QualificationService) Unassign(ctx context.Context, schoolID, teacherID, assignmentID string) error {
	if err := s.requireTeacher(ctx, schoolID, teacherID); err != nil {
		return err
	}
	if err := s.assignments.Delete(ctx, schoolID, teacherID, assignmentID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class assignment")
	}
	return nil
}

func (s *QualificationService) requireTeacher(ctx context.Context, schoolID, teacherID string) error {
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

func (s *QualificationService) requireSubject(ctx context.Context, schoolID, subjectID string) error {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	return nil
}

func (s *QualificationService) requireClass(ctx context.Context, schoolID, classID string) error {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.SchoolID != schoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return nil
}

func (s *QualificationService) invalidateLookups(ctx context.Context, schoolID string) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("qualified:%s:*", schoolID)); err != nil {
		s.logger.Warn("failed to invalidate qualified teacher cache", zap.String("school_id", schoolID), zap.Error(err))
	}
}

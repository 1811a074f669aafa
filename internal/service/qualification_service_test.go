package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/pkg/config"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

type qualificationStoreStub struct {
	granted map[string]bool
	created []models.TeacherQualification
	listed  []models.QualifiedTeacher
}

func qualificationKey(teacherID, subjectID string) string {
	return teacherID + "/" + subjectID
}

func (s *qualificationStoreStub) ListByTeacher(_ context.Context, _, _ string) ([]models.TeacherQualification, error) {
	return nil, nil
}

func (s *qualificationStoreStub) Exists(_ context.Context, _, teacherID, subjectID string) (bool, error) {
	return s.granted[qualificationKey(teacherID, subjectID)], nil
}

func (s *qualificationStoreStub) Create(_ context.Context, qualification *models.TeacherQualification) error {
	s.granted[qualificationKey(qualification.TeacherID, qualification.SubjectID)] = true
	s.created = append(s.created, *qualification)
	return nil
}

func (s *qualificationStoreStub) Delete(_ context.Context, _, teacherID, subjectID string) error {
	key := qualificationKey(teacherID, subjectID)
	if !s.granted[key] {
		return sql.ErrNoRows
	}
	delete(s.granted, key)
	return nil
}

func (s *qualificationStoreStub) ListQualifiedTeachers(_ context.Context, _, _ string) ([]models.QualifiedTeacher, error) {
	return s.listed, nil
}

type assignmentStoreStub struct {
	existing map[string]bool
	created  []models.TeacherClassAssignment
}

func (s *assignmentStoreStub) ListByTeacher(_ context.Context, _, _ string) ([]models.TeacherClassAssignment, error) {
	return nil, nil
}

func (s *assignmentStoreStub) Exists(_ context.Context, _, teacherID, classID, subjectID string) (bool, error) {
	return s.existing[teacherID+"/"+classID+"/"+subjectID], nil
}

func (s *assignmentStoreStub) Create(_ context.Context, assignment *models.TeacherClassAssignment) error {
	s.created = append(s.created, *assignment)
	return nil
}

func (s *assignmentStoreStub) Delete(_ context.Context, _, _, assignmentID string) error {
	if assignmentID == "assignment-404" {
		return sql.ErrNoRows
	}
	return nil
}

func newQualificationFixture() (*QualificationService, *qualificationStoreStub, *assignmentStoreStub, *cacheStub) {
	qualifications := &qualificationStoreStub{
		granted: map[string]bool{qualificationKey("teacher-1", "subject-1"): true},
		listed:  []models.QualifiedTeacher{{TeacherID: "teacher-1", FullName: "Ms Winters"}},
	}
	assignments := &assignmentStoreStub{existing: map[string]bool{}}
	teachers := &teacherReaderStub{teachers: map[string]*models.Teacher{
		"teacher-1": {ID: "teacher-1", SchoolID: "school-1", FullName: "Ms Winters", Active: true},
	}}
	subjects := &subjectReaderStub{subjects: map[string]*models.Subject{
		"subject-1": {ID: "subject-1", SchoolID: "school-1", Name: "Mathematics"},
		"subject-2": {ID: "subject-2", SchoolID: "school-1", Name: "Physics"},
	}}
	classes := &classReaderStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", SchoolID: "school-1", Name: "10A", TemplateID: "template-1"},
	}}
	cache := &cacheStub{}
	svc := NewQualificationService(qualifications, assignments, teachers, subjects, classes, cache, config.CacheConfig{Enabled: true}, nil, nil)
	return svc, qualifications, assignments, cache
}

func TestQualificationServiceGrant(t *testing.T) {
	svc, store, _, cache := newQualificationFixture()

	qualification, err := svc.Grant(context.Background(), "school-1", "teacher-1", CreateQualificationRequest{SubjectID: "subject-2"})
	require.NoError(t, err)
	assert.Equal(t, "subject-2", qualification.SubjectID)
	require.Len(t, store.created, 1)
	assert.Contains(t, cache.deletedPatterns, "qualified:school-1:*")
}

func TestQualificationServiceGrantDuplicate(t *testing.T) {
	svc, _, _, _ := newQualificationFixture()

	_, err := svc.Grant(context.Background(), "school-1", "teacher-1", CreateQualificationRequest{SubjectID: "subject-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestQualificationServiceRevokeMissing(t *testing.T) {
	svc, _, _, _ := newQualificationFixture()

	err := svc.Revoke(context.Background(), "school-1", "teacher-1", "subject-2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestQualificationServiceAssignRequiresQualification(t *testing.T) {
	svc, _, assignments, _ := newQualificationFixture()

	_, err := svc.Assign(context.Background(), "school-1", "teacher-1", CreateClassAssignmentRequest{
		ClassID:     "class-1",
		SubjectID:   "subject-2",
		WeeklyHours: 4,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, assignments.created)
}

func TestQualificationServiceAssign(t *testing.T) {
	svc, _, assignments, _ := newQualificationFixture()

	assignment, err := svc.Assign(context.Background(), "school-1", "teacher-1", CreateClassAssignmentRequest{
		ClassID:     "class-1",
		SubjectID:   "subject-1",
		WeeklyHours: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, assignment.WeeklyHours)
	require.Len(t, assignments.created, 1)
}

func TestQualificationServiceQualifiedTeachersCached(t *testing.T) {
	svc, store, _, _ := newQualificationFixture()

	teachers, err := svc.QualifiedTeachers(context.Background(), "school-1", "subject-1")
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, "teacher-1", teachers[0].TeacherID)
	assert.Equal(t, store.listed, teachers)
}

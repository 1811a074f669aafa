package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbus-edu/timetable-api/internal/service"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/response"
)

// QualificationHandler manages teacher-subject eligibility and class
// assignments.
type QualificationHandler struct {
	service *service.QualificationService
}

// NewQualificationHandler creates a new handler.
func NewQualificationHandler(svc *service.QualificationService) *QualificationHandler {
	return &QualificationHandler{service: svc}
}

// List godoc
// @Summary List a teacher's qualifications
// @Tags Qualifications
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/qualifications [get]
func (h *QualificationHandler) List(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	qualifications, err := h.service.ListByTeacher(c.Request.Context(), schoolID, c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, qualifications, nil)
}

// Grant godoc
// @Summary Grant a subject qualification
// @Tags Qualifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Param payload body service.CreateQualificationRequest true "Qualification payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teachers/{teacherId}/qualifications [post]
func (h *QualificationHandler) Grant(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.CreateQualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid qualification payload"))
		return
	}
	qualification, err := h.service.Grant(c.Request.Context(), schoolID, c.Param("teacherId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, qualification)
}

// Revoke godoc
// @Summary Revoke a subject qualification
// @Tags Qualifications
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Param subjectId path string true "Subject id"
// @Success 204 {object} nil
// @Failure 404 {object} response.Envelope
// @Router /teachers/{teacherId}/qualifications/{subjectId} [delete]
func (h *QualificationHandler) Revoke(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if err := h.service.Revoke(c.Request.Context(), schoolID, c.Param("teacherId"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// QualifiedTeachers godoc
// @Summary List teachers qualified for a subject
// @Tags Qualifications
// @Produce json
// @Security BearerAuth
// @Param subjectId path string true "Subject id"
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectId}/qualified-teachers [get]
func (h *QualificationHandler) QualifiedTeachers(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	teachers, err := h.service.QualifiedTeachers(c.Request.Context(), schoolID, c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// ListAssignments godoc
// @Summary List a teacher's class assignments
// @Tags Qualifications
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/assignments [get]
func (h *QualificationHandler) ListAssignments(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	assignments, err := h.service.ListAssignments(c.Request.Context(), schoolID, c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Assign godoc
// @Summary Assign a teacher to a class subject
// @Tags Qualifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Param payload body service.CreateClassAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teachers/{teacherId}/assignments [post]
func (h *QualificationHandler) Assign(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.CreateClassAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), schoolID, c.Param("teacherId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Unassign godoc
// @Summary Remove a class assignment
// @Tags Qualifications
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Param id path string true "Assignment id"
// @Success 204 {object} nil
// @Failure 404 {object} response.Envelope
// @Router /teachers/{teacherId}/assignments/{id} [delete]
func (h *QualificationHandler) Unassign(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if err := h.service.Unassign(c.Request.Context(), schoolID, c.Param("teacherId"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

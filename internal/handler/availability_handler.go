package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/internal/service"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/response"
)

// AvailabilityHandler manages teacher availability windows. Teachers may
// only edit their own windows; admins may edit anyone's.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler creates a new handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// List godoc
// @Summary List a teacher's availability windows
// @Tags Availability
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	windows, err := h.service.ListByTeacher(c.Request.Context(), schoolID, c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// Create godoc
// @Summary Add an availability window
// @Tags Availability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Param payload body service.CreateAvailabilityRequest true "Window payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teachers/{teacherId}/availability [post]
func (h *AvailabilityHandler) Create(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if !h.mayEdit(c) {
		return
	}
	var req service.CreateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid window payload"))
		return
	}
	window, err := h.service.Create(c.Request.Context(), schoolID, c.Param("teacherId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// Delete godoc
// @Summary Remove an availability window
// @Tags Availability
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Param id path string true "Window id"
// @Success 204 {object} nil
// @Failure 404 {object} response.Envelope
// @Router /teachers/{teacherId}/availability/{id} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if !h.mayEdit(c) {
		return
	}
	if err := h.service.Delete(c.Request.Context(), schoolID, c.Param("teacherId"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// mayEdit enforces that teachers only mutate their own windows. The claim's
// subject is the user id, which doubles as the teacher id for teacher
// accounts.
func (h *AvailabilityHandler) mayEdit(c *gin.Context) bool {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return false
	}
	if claims.Role == models.RoleTeacher && claims.UserID != c.Param("teacherId") {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teachers may only manage their own availability"))
		return false
	}
	return true
}

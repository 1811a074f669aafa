package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbus-edu/timetable-api/internal/service"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/response"
)

// TimeSlotHandler exposes slot template and time slot management.
type TimeSlotHandler struct {
	service *service.TimeSlotService
}

// NewTimeSlotHandler creates a new handler.
func NewTimeSlotHandler(svc *service.TimeSlotService) *TimeSlotHandler {
	return &TimeSlotHandler{service: svc}
}

// ListTemplates godoc
// @Summary List slot templates
// @Tags TimeSlots
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /slot-templates [get]
func (h *TimeSlotHandler) ListTemplates(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	templates, err := h.service.ListTemplates(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// CreateTemplate godoc
// @Summary Create a slot template
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /slot-templates [post]
func (h *TimeSlotHandler) CreateTemplate(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	template, err := h.service.CreateTemplate(c.Request.Context(), schoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// UpdateTemplate godoc
// @Summary Update a slot template
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template id"
// @Param payload body service.UpdateTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slot-templates/{id} [put]
func (h *TimeSlotHandler) UpdateTemplate(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	template, err := h.service.UpdateTemplate(c.Request.Context(), schoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// DeleteTemplate godoc
// @Summary Delete a slot template
// @Tags TimeSlots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template id"
// @Success 204 {object} nil
// @Failure 409 {object} response.Envelope
// @Router /slot-templates/{id} [delete]
func (h *TimeSlotHandler) DeleteTemplate(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTemplate(c.Request.Context(), schoolID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSlots godoc
// @Summary List a template's time slots
// @Tags TimeSlots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template id"
// @Success 200 {object} response.Envelope
// @Router /slot-templates/{id}/slots [get]
func (h *TimeSlotHandler) ListSlots(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	slots, err := h.service.ListSlots(c.Request.Context(), schoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// CreateSlot godoc
// @Summary Add a time slot to a template
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template id"
// @Param payload body service.CreateTimeSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /slot-templates/{id}/slots [post]
func (h *TimeSlotHandler) CreateSlot(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.CreateTimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.service.CreateSlot(c.Request.Context(), schoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// UpdateSlot godoc
// @Summary Update a time slot
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Slot id"
// @Param payload body service.UpdateTimeSlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /time-slots/{id} [put]
func (h *TimeSlotHandler) UpdateSlot(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.UpdateTimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.service.UpdateSlot(c.Request.Context(), schoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// DeleteSlot godoc
// @Summary Delete a time slot
// @Description Fails while timetable entries reference the slot
// @Tags TimeSlots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Slot id"
// @Success 204 {object} nil
// @Failure 409 {object} response.Envelope
// @Router /time-slots/{id} [delete]
func (h *TimeSlotHandler) DeleteSlot(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if err := h.service.DeleteSlot(c.Request.Context(), schoolID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

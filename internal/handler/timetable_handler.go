package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/internal/service"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/response"
)

// TimetableHandler exposes the draft workflow and timetable reads.
type TimetableHandler struct {
	service *service.TimetableService
	export  *service.ExportService
}

// NewTimetableHandler creates a new handler.
func NewTimetableHandler(svc *service.TimetableService, export *service.ExportService) *TimetableHandler {
	return &TimetableHandler{service: svc, export: export}
}

// CreateDraftEntry godoc
// @Summary Stage a draft timetable entry
// @Description Validates the assignment and stores it with draft status
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTimetableEntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries [post]
func (h *TimetableHandler) CreateDraftEntry(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.CreateTimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}
	result, err := h.service.CreateDraftEntry(c.Request.Context(), schoolID, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	meta := map[string]interface{}{}
	if len(result.Warnings) > 0 {
		meta["warnings"] = result.Warnings
	}
	response.JSON(c, http.StatusCreated, result.Entry, nil, meta)
}

// ReplaceDraft godoc
// @Summary Replace a class's draft timetable
// @Description Validates the whole batch and swaps the draft set atomically
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param classId path string true "Class id"
// @Param payload body service.ReplaceDraftRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/classes/{classId}/draft [put]
func (h *TimetableHandler) ReplaceDraft(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	var req service.ReplaceDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	result, err := h.service.ReplaceDraft(c.Request.Context(), schoolID, c.Param("classId"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	meta := map[string]interface{}{}
	if len(result.Warnings) > 0 {
		meta["warnings"] = result.Warnings
	}
	response.JSON(c, http.StatusOK, result.Entries, nil, meta)
}

// DiscardDraft godoc
// @Summary Discard a class's draft timetable
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param classId path string true "Class id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/classes/{classId}/draft [delete]
func (h *TimetableHandler) DiscardDraft(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	count, err := h.service.DiscardDraft(c.Request.Context(), schoolID, c.Param("classId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"discarded": count}, nil)
}

// Publish godoc
// @Summary Publish a class's draft timetable
// @Description Atomically replaces the active timetable with the draft set
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param classId path string true "Class id"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/classes/{classId}/publish [post]
func (h *TimetableHandler) Publish(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	result, err := h.service.Publish(c.Request.Context(), schoolID, c.Param("classId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	meta := map[string]interface{}{"no_draft": result.NoDraft}
	response.JSON(c, http.StatusOK, result.Promoted, nil, meta)
}

// ClassTimetable godoc
// @Summary Read a class's timetable grid
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param classId path string true "Class id"
// @Param status query string false "draft or active"
// @Success 200 {object} response.Envelope
// @Router /timetable/classes/{classId} [get]
func (h *TimetableHandler) ClassTimetable(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	status := models.EntryStatus(c.Query("status"))
	details, err := h.service.ClassTimetable(c.Request.Context(), schoolID, c.Param("classId"), status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// TeacherTimetable godoc
// @Summary Read a teacher's published timetable
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher id"
// @Success 200 {object} response.Envelope
// @Router /timetable/teachers/{teacherId} [get]
func (h *TimetableHandler) TeacherTimetable(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	details, err := h.service.TeacherTimetable(c.Request.Context(), schoolID, c.Param("teacherId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// DeleteEntry godoc
// @Summary Delete a timetable entry
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param id path string true "Entry id"
// @Success 204 {object} nil
// @Failure 404 {object} response.Envelope
// @Router /timetable/entries/{id} [delete]
func (h *TimetableHandler) DeleteEntry(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	if err := h.service.DeleteEntry(c.Request.Context(), schoolID, c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a class's published timetable
// @Description Streams the timetable as a CSV or PDF download
// @Tags Timetable
// @Produce octet-stream
// @Security BearerAuth
// @Param classId path string true "Class id"
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /timetable/classes/{classId}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	schoolID, ok := schoolScope(c)
	if !ok {
		return
	}
	result, err := h.export.ExportClassTimetable(c.Request.Context(), schoolID, c.Param("classId"), c.DefaultQuery("format", "csv"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if result.DownloadToken != "" {
		c.Header("X-Download-Token", result.DownloadToken)
		c.Header("X-Download-Expires", result.ExpiresAt.UTC().Format(http.TimeFormat))
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// DownloadExport godoc
// @Summary Fetch a previously exported timetable
// @Description Serves a stored export through its signed token
// @Tags Timetable
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /timetable/exports/{token} [get]
func (h *TimetableHandler) DownloadExport(c *gin.Context) {
	result, err := h.export.OpenExport(c.Param("token"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

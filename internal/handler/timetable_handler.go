package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/middleware"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableView, error)
	Get(ctx context.Context, runID string) (*dto.TimetableView, error)
	ForClass(ctx context.Context, runID, classID string) (*dto.ClassTimetable, error)
}

type timetableRenderer interface {
	Render(ctx context.Context, runID string, format models.ExportFormat) ([]byte, error)
}

// TimetableHandler exposes timetable generation and lookup endpoints.
type TimetableHandler struct {
	service  timetableService
	renderer timetableRenderer
}

// NewTimetableHandler constructs a timetable handler.
func NewTimetableHandler(svc timetableService, renderer timetableRenderer) *TimetableHandler {
	return &TimetableHandler{service: svc, renderer: renderer}
}

// Generate godoc
// @Summary Generate a weekly timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Run overrides"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
	}
	view, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a stored timetable run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "unplaced", len(view.Unplaced))
	response.JSON(c, http.StatusOK, view, middleware.ExtractMeta(c))
}

// ForClass godoc
// @Summary Get one class timetable of a run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/classes/{classId} [get]
func (h *TimetableHandler) ForClass(c *gin.Context) {
	class, err := h.service.ForClass(c.Request.Context(), c.Param("id"), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class)
}

// Export godoc
// @Summary Download a run as pdf, csv or xlsx
// @Tags Timetables
// @Produce octet-stream
// @Param id path string true "Run ID"
// @Param format query string false "pdf, csv or xlsx" default(pdf)
// @Success 200 {file} binary
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	if h.renderer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export renderer not configured"))
		return
	}
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatPDF))))
	if !format.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be pdf, csv or xlsx"))
		return
	}
	runID := c.Param("id")
	payload, err := h.renderer.Render(c.Request.Context(), runID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, service.ExportFilename(runID, format), format.ContentType(), payload)
}

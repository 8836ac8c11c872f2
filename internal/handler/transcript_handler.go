package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/response"
)

// TranscriptHandler exposes transcript generation, reads and exports.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Generate godoc
// @Summary Generate or refresh a transcript
// @Tags Transcripts
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTranscriptRequest true "Student and term"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /transcripts [post]
func (h *TranscriptHandler) Generate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.GenerateTranscriptRequest
	if !bindJSON(c, &req) {
		return
	}
	transcript, err := h.transcripts.Generate(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// List godoc
// @Summary Transcripts of a student
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{studentId}/transcripts [get]
func (h *TranscriptHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	transcripts, err := h.transcripts.List(c.Request.Context(), actor, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcripts, nil)
}

// Get godoc
// @Summary Transcript of a student for one term
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student profile ID"
// @Param semester path string true "FALL, SPRING or SUMMER"
// @Param year path int true "Year"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{studentId}/transcripts/{semester}/{year} [get]
func (h *TranscriptHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	semester, year, ok := termParams(c)
	if !ok {
		return
	}
	transcript, err := h.transcripts.Get(c.Request.Context(), actor, c.Param("studentId"), semester, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// Export godoc
// @Summary Download a transcript as CSV or PDF
// @Tags Transcripts
// @Produce octet-stream
// @Param studentId path string true "Student profile ID"
// @Param semester path string true "FALL, SPRING or SUMMER"
// @Param year path int true "Year"
// @Param format query string false "csv or pdf" default(pdf)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /students/{studentId}/transcripts/{semester}/{year}/export [get]
func (h *TranscriptHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	semester, year, ok := termParams(c)
	if !ok {
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatPDF)))
	file, err := h.transcripts.Export(c.Request.Context(), actor, c.Param("studentId"), semester, year, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

func termParams(c *gin.Context) (models.Semester, int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		response.Error(c, appErrors.Validation("invalid year", map[string]string{"year": "must be a number"}))
		return "", 0, false
	}
	return models.Semester(strings.ToUpper(c.Param("semester"))), year, true
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
	"github.com/noah-isme/fasch-registrar-api/pkg/response"
)

type gradeService interface {
	Record(ctx context.Context, actor service.Actor, enrollmentID string, req dto.GradeEntryRequest) (*models.GradeDetail, error)
	RecordBulk(ctx context.Context, actor service.Actor, sectionID string, req dto.BulkGradeRequest) (*dto.BulkResult, error)
	Recalculate(ctx context.Context, gradeIDs []string) (*service.RecalculateResult, error)
	ForEnrollment(ctx context.Context, actor service.Actor, enrollmentID string) (*models.GradeDetail, error)
	ListSection(ctx context.Context, actor service.Actor, sectionID string) ([]models.GradeDetail, error)
	ListMine(ctx context.Context, actor service.Actor) ([]models.GradeDetail, error)
	History(ctx context.Context, actor service.Actor, enrollmentID string) ([]models.GradeHistory, error)
	Statistics(ctx context.Context, actor service.Actor, sectionID string) (*models.CourseStatistics, error)
}

// GradeHandler exposes grade entry and read endpoints.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Record godoc
// @Summary Record grade components for an enrollment
// @Description Omitted components keep their stored value. Scores must be between 0 and 100.
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.GradeEntryRequest true "Grade components"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/grade [put]
func (h *GradeHandler) Record(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.GradeEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	grade, err := h.grades.Record(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Get godoc
// @Summary Grade of an enrollment
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/grade [get]
func (h *GradeHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	grade, err := h.grades.ForEnrollment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// History godoc
// @Summary Component change history of an enrollment grade
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/grade/history [get]
func (h *GradeHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	history, err := h.grades.History(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Mine godoc
// @Summary Grades of the current student
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/me [get]
func (h *GradeHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	grades, err := h.grades.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// ListSection godoc
// @Summary Grades of a section
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/grades [get]
func (h *GradeHandler) ListSection(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	grades, err := h.grades.ListSection(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// RecordBulk godoc
// @Summary Record grades for several enrollments of a section
// @Description Entries are processed one by one; failures are reported per enrollment.
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body dto.BulkGradeRequest true "Grade entries"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/grades [post]
func (h *GradeHandler) RecordBulk(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkGradeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.grades.RecordBulk(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Statistics godoc
// @Summary Course statistics of a section
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/statistics [get]
func (h *GradeHandler) Statistics(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	stats, err := h.grades.Statistics(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Recalculate godoc
// @Summary Recompute cached finals for explicit grade ids
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body dto.RecalculateGradesRequest true "Grade ids"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/recalculate [post]
func (h *GradeHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateGradesRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.grades.Recalculate(c.Request.Context(), req.GradeIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
	"github.com/noah-isme/fasch-registrar-api/pkg/response"
)

// CandidatureHandler exposes the admissions intake. Applicants are anonymous;
// review endpoints are staff only.
type CandidatureHandler struct {
	candidatures *service.CandidatureService
}

// NewCandidatureHandler constructs CandidatureHandler.
func NewCandidatureHandler(candidatures *service.CandidatureService) *CandidatureHandler {
	return &CandidatureHandler{candidatures: candidatures}
}

// Create godoc
// @Summary Start an application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.CandidatureRequest true "Application"
// @Success 201 {object} response.Envelope
// @Router /candidatures [post]
func (h *CandidatureHandler) Create(c *gin.Context) {
	var req dto.CandidatureRequest
	if !bindJSON(c, &req) {
		return
	}
	candidature, err := h.candidatures.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, candidature)
}

// Update godoc
// @Summary Edit a draft application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Candidature ID"
// @Param payload body dto.CandidatureRequest true "Application"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /candidatures/{id} [put]
func (h *CandidatureHandler) Update(c *gin.Context) {
	var req dto.CandidatureRequest
	if !bindJSON(c, &req) {
		return
	}
	candidature, err := h.candidatures.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidature, nil)
}

// Submit godoc
// @Summary Submit an application for review
// @Tags Admissions
// @Produce json
// @Param id path string true "Candidature ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /candidatures/{id}/submit [post]
func (h *CandidatureHandler) Submit(c *gin.Context) {
	candidature, err := h.candidatures.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidature, nil)
}

// Get godoc
// @Summary Get an application
// @Tags Admissions
// @Produce json
// @Param id path string true "Candidature ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /candidatures/{id} [get]
func (h *CandidatureHandler) Get(c *gin.Context) {
	candidature, err := h.candidatures.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidature, nil)
}

// List godoc
// @Summary List applications
// @Tags Admissions
// @Produce json
// @Param status query string false "Status"
// @Param departmentId query string false "Department"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /candidatures [get]
func (h *CandidatureHandler) List(c *gin.Context) {
	filter := models.CandidatureFilter{
		Status:       models.CandidatureStatus(queryUpper(c, "status")),
		DepartmentID: c.Query("departmentId"),
		Search:       c.Query("search"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "limit", 20),
	}
	items, pagination, err := h.candidatures.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Review godoc
// @Summary Move an application through review
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Candidature ID"
// @Param payload body dto.ReviewCandidatureRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /candidatures/{id}/review [post]
func (h *CandidatureHandler) Review(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviewCandidatureRequest
	if !bindJSON(c, &req) {
		return
	}
	candidature, err := h.candidatures.Review(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidature, nil)
}

package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/middleware"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

type gradeServiceMock struct {
	entry     dto.GradeEntryRequest
	recordErr error
	ids       []string
}

func (m *gradeServiceMock) Record(_ context.Context, _ service.Actor, enrollmentID string, req dto.GradeEntryRequest) (*models.GradeDetail, error) {
	m.entry = req
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	return &models.GradeDetail{Grade: models.Grade{EnrollmentID: enrollmentID}}, nil
}

func (m *gradeServiceMock) RecordBulk(context.Context, service.Actor, string, dto.BulkGradeRequest) (*dto.BulkResult, error) {
	return &dto.BulkResult{}, nil
}

func (m *gradeServiceMock) Recalculate(_ context.Context, ids []string) (*service.RecalculateResult, error) {
	m.ids = ids
	return &service.RecalculateResult{Updated: len(ids)}, nil
}

func (m *gradeServiceMock) ForEnrollment(context.Context, service.Actor, string) (*models.GradeDetail, error) {
	return &models.GradeDetail{}, nil
}

func (m *gradeServiceMock) ListSection(context.Context, service.Actor, string) ([]models.GradeDetail, error) {
	return nil, appErrors.ErrForbidden
}

func (m *gradeServiceMock) ListMine(context.Context, service.Actor) ([]models.GradeDetail, error) {
	return []models.GradeDetail{}, nil
}

func (m *gradeServiceMock) History(context.Context, service.Actor, string) ([]models.GradeHistory, error) {
	return []models.GradeHistory{}, nil
}

func (m *gradeServiceMock) Statistics(context.Context, service.Actor, string) (*models.CourseStatistics, error) {
	return &models.CourseStatistics{}, nil
}

func asProfessor(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "prof-user", Role: models.RoleProfessor})
}

func TestGradeHandlerRecordPassesOptionalComponents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)

	c, w := newGinContext(http.MethodPut, "/enrollments/enr-1/grade", []byte(`{"midterm_exam":80,"project":null}`))
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	asProfessor(c)

	h.Record(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.entry.MidtermExam)
	assert.Equal(t, 80.0, *mock.entry.MidtermExam)
	assert.Nil(t, mock.entry.Project)
	assert.Nil(t, mock.entry.FinalExam)
}

func TestGradeHandlerRecordValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(&gradeServiceMock{recordErr: appErrors.Validation("invalid grade", map[string]string{"midterm_exam": "must be between 0 and 100"})})

	c, w := newGinContext(http.MethodPut, "/enrollments/enr-1/grade", []byte(`{"midterm_exam":120}`))
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	asProfessor(c)

	h.Record(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestGradeHandlerListSectionForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(&gradeServiceMock{})

	c, w := newGinContext(http.MethodGet, "/sections/s-1/grades", nil)
	asProfessor(c)

	h.ListSection(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGradeHandlerRecalculate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)

	c, w := newGinContext(http.MethodPost, "/grades/recalculate", []byte(`{"grade_ids":["a","b"]}`))
	h.Recalculate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, mock.ids)
}

package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

type memoryGradeStore struct {
	mu          sync.Mutex
	enrollments map[string]*models.EnrollmentDetail
	grades      map[string]*models.Grade
	history     []models.GradeHistory
}

func newMemoryGradeStore() *memoryGradeStore {
	return &memoryGradeStore{
		enrollments: map[string]*models.EnrollmentDetail{},
		grades:      map[string]*models.Grade{},
	}
}

func (m *memoryGradeStore) addEnrollment(id, sectionID string, status models.EnrollmentStatus) {
	m.enrollments[id] = &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID: id, StudentID: studentUUID(1), SectionID: sectionID, Status: status,
		},
		StudentUserID: "stu-user",
		StudentEmail:  "student@fasch.edu",
		CourseCode:    "PSY101",
	}
}

func (m *memoryGradeStore) FindDetail(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *e
	return &clone, nil
}

func (m *memoryGradeStore) Upsert(_ context.Context, enrollmentID string, mutate repository.GradeMutator) (*models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	grade := &models.Grade{ID: uuid.NewString(), EnrollmentID: enrollmentID}
	if existing, ok := m.grades[enrollmentID]; ok {
		clone := *existing
		grade = &clone
	}
	history, err := mutate(grade, e.Status)
	if err != nil {
		return nil, err
	}
	m.grades[enrollmentID] = grade
	for _, h := range history {
		h.GradeID = grade.ID
		m.history = append(m.history, h)
	}
	return grade, nil
}

func (m *memoryGradeStore) Recalculate(_ context.Context, gradeID string, derive func(grade *models.Grade)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grades {
		if g.ID != gradeID {
			continue
		}
		before := *g
		derive(g)
		return !sameFinal(before.FinalGrade, g.FinalGrade) || before.LetterGrade != g.LetterGrade, nil
	}
	return false, sql.ErrNoRows
}

func (m *memoryGradeStore) ListIDs(_ context.Context, sectionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for enrollmentID, g := range m.grades {
		if sectionID == "" || m.enrollments[enrollmentID].SectionID == sectionID {
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}

func (m *memoryGradeStore) detail(enrollmentID string) *models.GradeDetail {
	g := m.grades[enrollmentID]
	e := m.enrollments[enrollmentID]
	return &models.GradeDetail{
		Grade:            *g,
		StudentID:        e.StudentID,
		StudentUserID:    e.StudentUserID,
		StudentEmail:     e.StudentEmail,
		SectionID:        e.SectionID,
		CourseCode:       e.CourseCode,
		EnrollmentStatus: e.Status,
	}
}

func (m *memoryGradeStore) FindDetailByEnrollment(_ context.Context, enrollmentID string) (*models.GradeDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grades[enrollmentID]; !ok {
		return nil, sql.ErrNoRows
	}
	return m.detail(enrollmentID), nil
}

func (m *memoryGradeStore) ListBySection(_ context.Context, sectionID string) ([]models.GradeDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GradeDetail
	for id := range m.grades {
		if m.enrollments[id].SectionID == sectionID {
			out = append(out, *m.detail(id))
		}
	}
	return out, nil
}

func (m *memoryGradeStore) ListByStudent(_ context.Context, studentID string) ([]models.GradeDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GradeDetail
	for id := range m.grades {
		if m.enrollments[id].StudentID == studentID {
			out = append(out, *m.detail(id))
		}
	}
	return out, nil
}

func (m *memoryGradeStore) SectionFinals(_ context.Context, sectionID string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var finals []float64
	for id, g := range m.grades {
		if m.enrollments[id].SectionID == sectionID && g.FinalGrade != nil {
			finals = append(finals, *g.FinalGrade)
		}
	}
	return finals, nil
}

func (m *memoryGradeStore) History(_ context.Context, gradeID string) ([]models.GradeHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GradeHistory
	for _, h := range m.history {
		if h.GradeID == gradeID {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeSections map[string]models.CourseSection

func (f fakeSections) FindSectionByID(_ context.Context, id string) (*models.CourseSection, error) {
	s, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

type fakeProfessors map[string]string

func (f fakeProfessors) FindProfessorByUserID(_ context.Context, userID string) (*models.ProfessorProfile, error) {
	id, ok := f[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ProfessorProfile{ID: id, UserID: userID}, nil
}

var professorActor = Actor{UserID: "prof-user", Role: models.RoleProfessor}

func newGradeFixture(t *testing.T) (*GradeService, *memoryGradeStore, *recordingNotifier, *fakePublisher) {
	t.Helper()
	store := newMemoryGradeStore()
	store.addEnrollment("enr-1", sectionUUID(1), models.EnrollmentStatusEnrolled)
	store.addEnrollment("enr-2", sectionUUID(1), models.EnrollmentStatusDropped)
	store.addEnrollment("enr-3", sectionUUID(2), models.EnrollmentStatusEnrolled)

	profID := "prof-profile"
	other := "other-profile"
	sections := fakeSections{
		sectionUUID(1): {ID: sectionUUID(1), ProfessorID: &profID},
		sectionUUID(2): {ID: sectionUUID(2), ProfessorID: &other},
	}
	notifications := &recordingNotifier{}
	publisher := &fakePublisher{}
	svc := NewGradeService(GradeDependencies{
		Repo:        store,
		Enrollments: store,
		Sections:    sections,
		Students:    fakeStudentProfiles{"stu-user": studentUUID(1)},
		Professors:  fakeProfessors{"prof-user": profID},
		Notifier:    notifications,
		Publisher:   publisher,
		Metrics:     NewMetricsService(),
	})
	return svc, store, notifications, publisher
}

func TestGradeServiceRecordComputesFinal(t *testing.T) {
	svc, store, notifications, publisher := newGradeFixture(t)

	detail, err := svc.Record(context.Background(), professorActor, "enr-1", dto.GradeEntryRequest{
		MidtermExam: score(80),
		FinalExam:   score(90),
		Reason:      "first sheet",
	})
	require.NoError(t, err)
	require.NotNil(t, detail.FinalGrade)
	assert.Equal(t, 85.83, *detail.FinalGrade)
	assert.Equal(t, "B", detail.LetterGrade)
	require.NotNil(t, detail.GradedBy)
	assert.Equal(t, "prof-user", *detail.GradedBy)

	assert.Len(t, store.history, 2)
	assert.Equal(t, []string{"grade.updated"}, publisher.events)
	require.Len(t, notifications.deliveries, 1)
	assert.Equal(t, models.NotificationGradePublished, notifications.deliveries[0].Type)
	assert.Equal(t, "stu-user", notifications.deliveries[0].UserID)
}

func TestGradeServiceRecordKeepsOmittedComponents(t *testing.T) {
	svc, store, notifications, _ := newGradeFixture(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{MidtermExam: score(80), FinalExam: score(90)})
	require.NoError(t, err)
	detail, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{FinalExam: score(70)})
	require.NoError(t, err)

	require.NotNil(t, detail.MidtermExam)
	assert.Equal(t, 80.0, *detail.MidtermExam)
	assert.Equal(t, 74.17, *detail.FinalGrade)
	assert.Equal(t, "C", detail.LetterGrade)
	assert.Len(t, store.history, 3)

	require.Len(t, notifications.deliveries, 2)
	assert.Equal(t, models.NotificationGradeUpdated, notifications.deliveries[1].Type)
}

func TestGradeServiceNotifiesEveryComponentChange(t *testing.T) {
	svc, _, notifications, _ := newGradeFixture(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{MidtermExam: score(80)})
	require.NoError(t, err)

	// adding a component that leaves the final at 80 still notifies
	_, err = svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{FinalExam: score(80)})
	require.NoError(t, err)
	require.Len(t, notifications.deliveries, 2)
	second := notifications.deliveries[1]
	assert.Equal(t, models.NotificationGradeUpdated, second.Type)
	assert.Contains(t, second.Message, "• Final exam: 80.00 (new)")
	assert.NotContains(t, second.Message, "Final grade")
	assert.NotContains(t, second.Message, "Midterm exam")

	_, err = svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{MidtermExam: score(70)})
	require.NoError(t, err)
	require.Len(t, notifications.deliveries, 3)
	third := notifications.deliveries[2].Message
	assert.Contains(t, third, "• Midterm exam: 80.00 → 70.00")
	assert.Contains(t, third, "• Final grade: 80.00 → 75.83")
	assert.Contains(t, third, "• Letter grade: B → C")
	assert.NotContains(t, third, "Final exam")

	// resubmitting identical scores changes nothing
	_, err = svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{MidtermExam: score(70)})
	require.NoError(t, err)
	assert.Len(t, notifications.deliveries, 3)
}

func TestGradeServiceClearComponents(t *testing.T) {
	svc, _, _, _ := newGradeFixture(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{MidtermExam: score(50)})
	require.NoError(t, err)
	detail, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{ClearComponents: []string{models.ComponentMidterm}})
	require.NoError(t, err)
	assert.Nil(t, detail.MidtermExam)
	assert.Nil(t, detail.FinalGrade)
	assert.Empty(t, detail.LetterGrade)
}

func TestGradeServiceRejectsOutOfRangeScores(t *testing.T) {
	svc, store, _, _ := newGradeFixture(t)

	_, err := svc.Record(context.Background(), staffActor, "enr-1", dto.GradeEntryRequest{Project: score(101)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.grades)
}

func TestGradeServiceRejectsDroppedEnrollment(t *testing.T) {
	svc, _, _, _ := newGradeFixture(t)

	_, err := svc.Record(context.Background(), staffActor, "enr-2", dto.GradeEntryRequest{FinalExam: score(80)})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrGradeNotAllowed)
}

func TestGradeServiceProfessorScope(t *testing.T) {
	svc, _, _, _ := newGradeFixture(t)

	_, err := svc.Record(context.Background(), professorActor, "enr-3", dto.GradeEntryRequest{FinalExam: score(80)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Record(context.Background(), Actor{UserID: "stu-user", Role: models.RoleStudent}, "enr-1", dto.GradeEntryRequest{FinalExam: score(80)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestGradeServiceRecordBulkReportsPartialFailure(t *testing.T) {
	svc, _, _, _ := newGradeFixture(t)

	result, err := svc.RecordBulk(context.Background(), staffActor, sectionUUID(1), dto.BulkGradeRequest{
		Entries: []dto.BulkGradeEntry{
			{EnrollmentID: uuid.NewString(), GradeEntryRequest: dto.GradeEntryRequest{FinalExam: score(80)}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	assert.Len(t, result.Failed, 1)
}

func TestGradeServiceStatistics(t *testing.T) {
	svc, store, _, _ := newGradeFixture(t)
	store.addEnrollment("enr-4", sectionUUID(1), models.EnrollmentStatusEnrolled)
	ctx := context.Background()

	_, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{FinalExam: score(95)})
	require.NoError(t, err)
	_, err = svc.Record(ctx, staffActor, "enr-4", dto.GradeEntryRequest{FinalExam: score(40)})
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx, professorActor, sectionUUID(1))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 67.5, *stats.Average)
	assert.Equal(t, 1, stats.Distribution["A"])
	assert.Equal(t, 1, stats.Distribution["F"])
	assert.Equal(t, 50.0, *stats.SuccessRate)
}

func TestGradeServiceRecalculate(t *testing.T) {
	svc, store, _, _ := newGradeFixture(t)
	_, err := svc.Record(context.Background(), staffActor, "enr-1", dto.GradeEntryRequest{FinalExam: score(88)})
	require.NoError(t, err)

	stale := store.grades["enr-1"]
	stale.LetterGrade = "F"

	result, err := svc.RecalculateSection(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, "B", store.grades["enr-1"].LetterGrade)

	result, err = svc.Recalculate(context.Background(), []string{stale.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Len(t, result.Failed, 1)
}

func TestGradeServiceStudentSeesOnlyOwnGrades(t *testing.T) {
	svc, _, _, _ := newGradeFixture(t)
	ctx := context.Background()
	_, err := svc.Record(ctx, staffActor, "enr-1", dto.GradeEntryRequest{FinalExam: score(88)})
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, Actor{UserID: "stu-user", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = svc.ForEnrollment(ctx, Actor{UserID: "someone-else", Role: models.RoleStudent}, "enr-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	history, err := svc.History(ctx, staffActor, "enr-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

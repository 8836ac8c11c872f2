package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

type memoryCandidatures map[string]models.Candidature

func (m memoryCandidatures) Create(_ context.Context, c *models.Candidature) error {
	m[c.ID] = *c
	return nil
}

func (m memoryCandidatures) Update(_ context.Context, c *models.Candidature) error {
	if _, ok := m[c.ID]; !ok {
		return sql.ErrNoRows
	}
	m[c.ID] = *c
	return nil
}

func (m memoryCandidatures) FindByID(_ context.Context, id string) (*models.Candidature, error) {
	c, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m memoryCandidatures) List(context.Context, models.CandidatureFilter) ([]models.Candidature, int, error) {
	var out []models.Candidature
	for _, c := range m {
		out = append(out, c)
	}
	return out, len(out), nil
}

func candidatureRequest(terms bool) dto.CandidatureRequest {
	return dto.CandidatureRequest{
		FirstName:        "Nadège",
		LastName:         "Pierre",
		Email:            "Nadege@Example.com",
		Phone:            "+50937123456",
		MotivationLetter: `<p>Je souhaite étudier la psychologie.</p><script>alert(1)</script>`,
		AcceptedTerms:    terms,
	}
}

func TestCandidatureLifecycle(t *testing.T) {
	store := memoryCandidatures{}
	notifications := &recordingNotifier{}
	publisher := &fakePublisher{}
	svc := NewCandidatureService(store, notifications, publisher, nil, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, candidatureRequest(true))
	require.NoError(t, err)
	assert.Equal(t, models.CandidatureDraft, c.Status)
	assert.Equal(t, "nadege@example.com", c.Email)
	assert.NotContains(t, c.MotivationLetter, "<script>")
	assert.Contains(t, c.MotivationLetter, "<p>")

	c, err = svc.Submit(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CandidatureSubmitted, c.Status)
	assert.NotNil(t, c.SubmittedAt)
	assert.Equal(t, []string{"candidature.submitted"}, publisher.events)

	_, err = svc.Update(ctx, c.ID, candidatureRequest(true))
	assert.ErrorIs(t, err, appErrors.ErrCandidatureLocked)

	_, err = svc.Review(ctx, staffActor, c.ID, dto.ReviewCandidatureRequest{Status: models.CandidatureAccepted})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	c, err = svc.Review(ctx, staffActor, c.ID, dto.ReviewCandidatureRequest{Status: models.CandidatureInReview})
	require.NoError(t, err)
	c, err = svc.Review(ctx, staffActor, c.ID, dto.ReviewCandidatureRequest{Status: models.CandidatureAccepted, Note: "Dossier complet"})
	require.NoError(t, err)
	assert.Equal(t, models.CandidatureAccepted, c.Status)
	assert.Equal(t, "Dossier complet", c.ReviewNote)
	require.NotNil(t, c.ReviewedBy)

	_, err = svc.Review(ctx, staffActor, c.ID, dto.ReviewCandidatureRequest{Status: models.CandidatureRefused})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	require.Len(t, notifications.deliveries, 2)
	assert.Equal(t, "nadege@example.com", notifications.deliveries[1].Email)
	assert.Empty(t, notifications.deliveries[1].UserID)
}

func TestCandidatureSubmitRequiresTerms(t *testing.T) {
	store := memoryCandidatures{}
	svc := NewCandidatureService(store, nil, nil, nil, nil)

	c, err := svc.Create(context.Background(), candidatureRequest(false))
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), c.ID)
	assert.ErrorIs(t, err, appErrors.ErrTermsNotAccepted)
	assert.Equal(t, models.CandidatureDraft, store[c.ID].Status)
}

func TestCandidatureRejectsForeignPhone(t *testing.T) {
	svc := NewCandidatureService(memoryCandidatures{}, nil, nil, nil, nil)
	req := candidatureRequest(true)
	req.Phone = "+33612345678"

	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "phone")
}

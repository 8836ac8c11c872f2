package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/events"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

type candidatureStore interface {
	Create(ctx context.Context, c *models.Candidature) error
	Update(ctx context.Context, c *models.Candidature) error
	FindByID(ctx context.Context, id string) (*models.Candidature, error)
	List(ctx context.Context, filter models.CandidatureFilter) ([]models.Candidature, int, error)
}

var reviewTransitions = map[models.CandidatureStatus][]models.CandidatureStatus{
	models.CandidatureSubmitted: {models.CandidatureInReview},
	models.CandidatureInReview:  {models.CandidatureAccepted, models.CandidatureRefused},
}

// CandidatureService runs admission applications from draft to decision.
type CandidatureService struct {
	repo      candidatureStore
	notifier  notifier
	publisher events.Publisher
	letters   *bluemonday.Policy
	plain     *bluemonday.Policy
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCandidatureService constructs CandidatureService.
func NewCandidatureService(repo candidatureStore, notifier notifier, publisher events.Publisher, validate *validator.Validate, logger *zap.Logger) *CandidatureService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CandidatureService{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		letters:   bluemonday.UGCPolicy(),
		plain:     bluemonday.StrictPolicy(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Create stores a new draft.
func (s *CandidatureService) Create(ctx context.Context, req dto.CandidatureRequest) (*models.Candidature, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid candidature payload")
	}
	c := &models.Candidature{ID: uuid.NewString(), Status: models.CandidatureDraft}
	s.apply(c, req)
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, mapWriteError(err, "failed to create candidature")
	}
	return c, nil
}

func (s *CandidatureService) apply(c *models.Candidature, req dto.CandidatureRequest) {
	c.FirstName = s.plain.Sanitize(strings.TrimSpace(req.FirstName))
	c.LastName = s.plain.Sanitize(strings.TrimSpace(req.LastName))
	c.Email = strings.ToLower(strings.TrimSpace(req.Email))
	c.Phone = strings.TrimSpace(req.Phone)
	c.DepartmentID = req.DepartmentID
	c.MotivationLetter = s.letters.Sanitize(req.MotivationLetter)
	c.AcceptedTerms = req.AcceptedTerms
}

// Get returns a candidature.
func (s *CandidatureService) Get(ctx context.Context, id string) (*models.Candidature, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "candidature not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidature")
	}
	return c, nil
}

// List returns paginated candidatures for reviewers.
func (s *CandidatureService) List(ctx context.Context, filter models.CandidatureFilter) ([]models.Candidature, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list candidatures")
	}
	return items, paginate(filter.Page, filter.PageSize, total), nil
}

// Update edits a draft. Submitted candidatures are locked.
func (s *CandidatureService) Update(ctx context.Context, id string, req dto.CandidatureRequest) (*models.Candidature, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid candidature payload")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CandidatureDraft {
		return nil, appErrors.Clone(appErrors.ErrCandidatureLocked, "")
	}
	s.apply(c, req)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapWriteError(err, "failed to update candidature")
	}
	return c, nil
}

// Submit sends a draft for review. The terms must have been accepted.
func (s *CandidatureService) Submit(ctx context.Context, id string) (*models.Candidature, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CandidatureDraft {
		return nil, appErrors.Clone(appErrors.ErrCandidatureLocked, "candidature was already submitted")
	}
	if !c.AcceptedTerms {
		return nil, appErrors.Clone(appErrors.ErrTermsNotAccepted, "")
	}
	now := s.now().UTC()
	c.Status = models.CandidatureSubmitted
	c.SubmittedAt = &now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapWriteError(err, "failed to submit candidature")
	}

	if err := s.publisher.Publish(ctx, events.CandidatureSubmitted, map[string]string{"candidature_id": c.ID}); err != nil {
		s.logger.Warn("failed to publish candidature event", zap.String("candidature_id", c.ID), zap.Error(err))
	}
	s.mail(ctx, c, "Application received", "Your application was received and will be reviewed shortly.")
	return c, nil
}

// Review moves a submitted candidature to IN_REVIEW, then to a decision.
func (s *CandidatureService) Review(ctx context.Context, actor Actor, id string, req dto.ReviewCandidatureRequest) (*models.Candidature, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid review payload")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowedReview(c.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("candidature cannot move from %s to %s", c.Status, req.Status))
	}
	c.Status = req.Status
	c.ReviewedBy = actor.idPtr()
	if note := strings.TrimSpace(req.Note); note != "" {
		c.ReviewNote = s.plain.Sanitize(note)
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapWriteError(err, "failed to review candidature")
	}

	switch c.Status {
	case models.CandidatureAccepted:
		s.mail(ctx, c, "Application accepted", "Congratulations, your application was accepted.")
	case models.CandidatureRefused:
		s.mail(ctx, c, "Application decision", "We regret to inform you that your application was not accepted.")
	}
	return c, nil
}

func allowedReview(from, to models.CandidatureStatus) bool {
	for _, next := range reviewTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *CandidatureService) mail(ctx context.Context, c *models.Candidature, title, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Delivery{
		Email:   c.Email,
		Name:    strings.TrimSpace(c.FirstName + " " + c.LastName),
		Title:   title,
		Message: message,
	})
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/jobs"
	"github.com/noah-isme/fasch-registrar-api/pkg/mailer"
)

// EmailJobType is the queue job type carrying a mailer.Message.
const EmailJobType = "email"

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// Delivery is one notification addressed to a user.
type Delivery struct {
	UserID  string
	Email   string
	Name    string
	Type    models.NotificationType
	Title   string
	Message string
	Link    string
}

// NotificationService stores in-app notifications and hands emails to the
// background queue. Dispatch never fails the caller.
type NotificationService struct {
	repo    notificationStore
	queue   jobEnqueuer
	sender  mailer.Sender
	policy  *bluemonday.Policy
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the notification service. queue may be nil
// to disable email.
func NewNotificationService(repo notificationStore, queue jobEnqueuer, sender mailer.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:    repo,
		queue:   queue,
		sender:  sender,
		policy:  bluemonday.StrictPolicy(),
		metrics: metrics,
		logger:  logger,
	}
}

// Notify persists the in-app notification and queues its email copy. Errors
// are logged only.
func (s *NotificationService) Notify(ctx context.Context, d Delivery) {
	if s == nil {
		return
	}
	title := s.policy.Sanitize(d.Title)
	message := s.policy.Sanitize(d.Message)

	if s.repo != nil && d.UserID != "" {
		err := s.repo.Create(ctx, &models.Notification{
			UserID:  d.UserID,
			Type:    d.Type,
			Title:   title,
			Message: message,
			Link:    d.Link,
		})
		s.metrics.RecordNotification("in_app", err)
		if err != nil {
			s.logger.Warn("failed to store notification", zap.String("user_id", d.UserID), zap.String("type", string(d.Type)), zap.Error(err))
		}
	}

	if s.queue == nil || d.Email == "" {
		return
	}
	msg := mailer.Message{
		To:      d.Email,
		ToName:  d.Name,
		Subject: html.UnescapeString(title),
		Text:    html.UnescapeString(message),
		HTML:    fmt.Sprintf("<p>%s</p>", message),
	}
	if err := s.queue.Enqueue(jobs.Job{Type: EmailJobType, Payload: msg}); err != nil {
		s.metrics.RecordNotification("email", err)
		s.logger.Warn("failed to queue notification email", zap.String("user_id", d.UserID), zap.Error(err))
	}
}

// HandleEmailJob is the queue handler delivering one email.
func (s *NotificationService) HandleEmailJob(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("unexpected email payload %T", job.Payload)
	}
	if s.sender == nil {
		return errors.New("no mail sender configured")
	}
	err := s.sender.Send(ctx, msg)
	s.metrics.RecordNotification("email", err)
	return err
}

// List returns the notifications of userID.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.ListByUser(ctx, userID, unreadOnly, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the unread counter of userID.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one notification of userID as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

// MarkAllRead flags every notification of userID as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notifications")
	}
	return n, nil
}

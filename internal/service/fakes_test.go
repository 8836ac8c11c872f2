package service

import (
	"context"
	"sync"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/pkg/jobs"
	"github.com/noah-isme/fasch-registrar-api/pkg/mailer"
)

type fakeNotificationStore struct {
	mu      sync.Mutex
	items   []models.Notification
	failErr error
}

func (f *fakeNotificationStore) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.items = append(f.items, *n)
	return nil
}

func (f *fakeNotificationStore) ListByUser(_ context.Context, userID string, unreadOnly bool, _, _ int) ([]models.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (f *fakeNotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	items, _, _ := f.ListByUser(ctx, userID, true, 1, 100)
	return len(items), nil
}

func (f *fakeNotificationStore) MarkRead(context.Context, string, string) error { return nil }

func (f *fakeNotificationStore) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeNotificationStore) snapshot() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.items...)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeSender struct {
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return f.err
}

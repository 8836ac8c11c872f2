package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesRegisteredType(t *testing.T) {
	q := NewQueue("mail", QueueConfig{Workers: 2, BufferSize: 4})
	var wg sync.WaitGroup
	wg.Add(2)
	var seen int32
	q.Register("email", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&seen, 1)
		wg.Done()
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "email", Payload: "a"}))
	require.NoError(t, q.Enqueue(Job{Type: "email", Payload: "b"}))

	waitTimeout(t, &wg)
	assert.Equal(t, int32(2), atomic.LoadInt32(&seen))
}

func TestQueueRejectsUnknownTypeAndStopped(t *testing.T) {
	q := NewQueue("mail", QueueConfig{})
	q.Register("email", func(context.Context, Job) error { return nil })

	err := q.Enqueue(Job{Type: "email"})
	require.Error(t, err)

	q.Start(context.Background())
	defer q.Stop()
	err = q.Enqueue(Job{Type: "sms"})
	require.Error(t, err)
}

func TestQueueRetriesThenDiscards(t *testing.T) {
	var discarded Job
	done := make(chan struct{})
	q := NewQueue("mail", QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnDiscard: func(job Job, err error) {
			discarded = job
			close(done)
		},
	})
	var attempts int32
	q.Register("email", func(context.Context, Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("smtp unavailable")
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "email"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never discarded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, 3, discarded.Attempt)
	assert.NotEmpty(t, discarded.ID)
}

func TestQueueFullFailsFast(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("mail", QueueConfig{Workers: 1, BufferSize: 1})
	started := make(chan struct{}, 1)
	q.Register("email", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	require.NoError(t, q.Enqueue(Job{Type: "email"}))
	<-started
	require.NoError(t, q.Enqueue(Job{Type: "email"}))

	err := q.Enqueue(Job{Type: "email"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}

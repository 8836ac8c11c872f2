package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.err
}

func TestNATSPublisherEnvelope(t *testing.T) {
	conn := &fakeConn{}
	pub := NewNATSPublisher(conn, "registrar").(*NATSPublisher)
	fixed := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	err := pub.Publish(context.Background(), EnrollmentCreated, map[string]string{"enrollment_id": "e-1"})
	require.NoError(t, err)
	assert.Equal(t, "registrar.enrollment.created", conn.subject)

	var event Event
	require.NoError(t, json.Unmarshal(conn.data, &event))
	assert.Equal(t, EnrollmentCreated, event.Type)
	assert.Equal(t, fixed, event.OccurredAt)
	assert.NotEmpty(t, event.ID)
	assert.JSONEq(t, `{"enrollment_id":"e-1"}`, string(event.Data))
}

func TestNATSPublisherError(t *testing.T) {
	pub := NewNATSPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "")
	err := pub.Publish(context.Background(), GradeUpdated, struct{}{})
	assert.ErrorContains(t, err, "publish grade.updated")
}

func TestNilConnIsNop(t *testing.T) {
	var conn *nats.Conn
	assert.IsType(t, NopPublisher{}, NewNATSPublisher(conn, "registrar"))
	assert.IsType(t, NopPublisher{}, NewNATSPublisher(nil, "registrar"))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), GradeUpdated, nil))
}

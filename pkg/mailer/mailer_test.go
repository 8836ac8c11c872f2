package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/fasch-registrar-api/pkg/config"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func mailConfig(driver string) config.MailConfig {
	return config.MailConfig{
		Driver:        driver,
		FromAddress:   "noreply@fasch.edu",
		FromName:      "FASCH",
		SubjectPrefix: "[FASCH] ",
	}
}

func TestNewSelectsTransport(t *testing.T) {
	assert.IsType(t, &LogSender{}, New(mailConfig(config.MailDriverLog), nil))
	assert.IsType(t, &SMTPSender{}, New(mailConfig(config.MailDriverSMTP), nil))
	assert.IsType(t, &SendGridSender{}, New(mailConfig(config.MailDriverSendGrid), nil))
}

func TestSMTPSenderWritesHeaders(t *testing.T) {
	dialer := &recordingDialer{}
	sender := NewSMTPSenderWithDialer(mailConfig(config.MailDriverSMTP), dialer)

	err := sender.Send(context.Background(), Message{To: "student@fasch.edu", Subject: "Grade published", Text: "PSY101: A"})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"[FASCH] Grade published"}, dialer.sent[0].GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = dialer.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "PSY101: A")
}

func TestSMTPSenderPropagatesFailure(t *testing.T) {
	sender := NewSMTPSenderWithDialer(mailConfig(config.MailDriverSMTP), &recordingDialer{err: errors.New("relay down")})
	err := sender.Send(context.Background(), Message{To: "student@fasch.edu", Subject: "x"})
	assert.ErrorContains(t, err, "relay down")
}

func TestSenderRejectsMissingRecipient(t *testing.T) {
	sender := NewLogSender(mailConfig(config.MailDriverLog), zap.NewNop())
	assert.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipient)
}

func TestSendGridSenderBuildsRequest(t *testing.T) {
	sender := NewSendGridSender(mailConfig(config.MailDriverSendGrid))
	var captured rest.Request
	sender.api = func(req rest.Request) (*rest.Response, error) {
		captured = req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	err := sender.Send(context.Background(), Message{To: "prof@fasch.edu", ToName: "Prof", Subject: "Roster", Text: "ok"})
	require.NoError(t, err)
	assert.Equal(t, rest.Method(http.MethodPost), captured.Method)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(captured.Body, &body))
	personalizations := body["personalizations"].([]interface{})
	assert.Equal(t, "[FASCH] Roster", personalizations[0].(map[string]interface{})["subject"])
}

func TestSendGridSenderFailsOnErrorStatus(t *testing.T) {
	sender := NewSendGridSender(mailConfig(config.MailDriverSendGrid))
	sender.api = func(rest.Request) (*rest.Response, error) {
		return &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"}, nil
	}
	err := sender.Send(context.Background(), Message{To: "prof@fasch.edu", Subject: "x"})
	assert.ErrorContains(t, err, "status 401")
}

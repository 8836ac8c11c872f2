package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/fasch-registrar-api/pkg/config"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// ErrNoRecipient is returned for messages without a destination address.
var ErrNoRecipient = errors.New("mail message has no recipient")

// Message is a single outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	return nil
}

// Sender delivers messages through a concrete transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New selects the transport configured by cfg.Driver.
func New(cfg config.MailConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.MailDriverSMTP:
		return NewSMTPSender(cfg)
	case config.MailDriverSendGrid:
		return NewSendGridSender(cfg)
	default:
		return NewLogSender(cfg, logger)
	}
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	prefix string
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(cfg config.MailConfig, logger *zap.Logger) *LogSender {
	return &LogSender{prefix: cfg.SubjectPrefix, logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("mail message",
		zap.String("to", msg.To),
		zap.String("subject", s.prefix+msg.Subject),
		zap.Int("text_length", len(msg.Text)),
	)
	return nil
}

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	from     string
	fromName string
	prefix   string
	dialer   Dialer
}

// NewSMTPSender constructs an SMTP sender from configuration.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return NewSMTPSenderWithDialer(cfg, gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword))
}

// NewSMTPSenderWithDialer allows a custom dialer.
func NewSMTPSenderWithDialer(cfg config.MailConfig, dialer Dialer) *SMTPSender {
	return &SMTPSender{from: cfg.FromAddress, fromName: cfg.FromName, prefix: cfg.SubjectPrefix, dialer: dialer}
}

// Send dials the relay and sends msg.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", s.prefix+msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	key    string
	from   *sgmail.Email
	prefix string
	api    func(rest.Request) (*rest.Response, error)
}

// NewSendGridSender constructs a SendGrid sender.
func NewSendGridSender(cfg config.MailConfig) *SendGridSender {
	return &SendGridSender{
		key:    cfg.SendGridAPIKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		prefix: cfg.SubjectPrefix,
		api:    sendgrid.API,
	}
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.prefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

// Send posts msg to the SendGrid API.
func (s *SendGridSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.api(req)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", msg.To, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send to %s: status %d: %s", msg.To, res.StatusCode, res.Body)
	}
	return nil
}

package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/hmis-api/internal/config"
)

var ErrDisabled = errors.New("email delivery is disabled")

type Service interface {
	// SendCustom delivers one plain-text message and returns its Message-ID.
	SendCustom(ctx context.Context, to string, subject string, content string) (string, error)
}

type smtpService struct {
	from string
	dial func() (gomail.SendCloser, error)
}

// NewSMTPService sends through the configured SMTP relay, or refuses every
// message when SMTP is disabled.
func NewSMTPService(cfg config.SMTPConfig) Service {
	if !cfg.Enabled {
		return disabled{}
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &smtpService{from: cfg.From, dial: d.Dial}
}

func newWithDialer(from string, dial func() (gomail.SendCloser, error)) *smtpService {
	return &smtpService{from: from, dial: dial}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@hmis>", uuid.NewString())
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", content)

	sc, err := s.dial()
	if err != nil {
		return "", fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	defer sc.Close()

	if err := gomail.Send(sc, m); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return messageID, nil
}

type disabled struct{}

func (disabled) SendCustom(context.Context, string, string, string) (string, error) {
	return "", ErrDisabled
}

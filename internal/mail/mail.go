package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
	UseTLS      bool   `json:"use_tls" yaml:"use_tls"`
}

const retryDelay = 2 * time.Second

// SMTPSender delivers mail through an SMTP relay. Port 465 uses implicit TLS,
// 587 uses STARTTLS; anything else is sent in plain text.
type SMTPSender struct {
	cfg  Config
	send func(e *email.Email) error
}

func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	s := &SMTPSender{cfg: cfg}
	s.send = s.deliver
	return s, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	e := email.NewEmail()
	e.From = s.from()
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	err := s.send(e)
	if err != nil && shouldRetry(err) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		err = s.send(e)
	}
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) from() string {
	if s.cfg.FromName == "" {
		return s.cfg.FromAddress
	}
	return fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
}

func (s *SMTPSender) deliver(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}

	switch {
	case s.cfg.Port == 465:
		return e.SendWithTLS(addr, auth, tlsConfig)
	case s.cfg.Port == 587 || s.cfg.UseTLS:
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	default:
		return e.Send(addr, auth)
	}
}

func shouldRetry(err error) bool {
	msg := err.Error()
	for _, transient := range []string{"connection refused", "connection reset", "broken pipe", "timeout"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "mail", "to", to, "subject", subject, "body", body)
	return nil
}

func ConfirmationMessage(username, code string) (subject, body string) {
	subject = "Код подтверждения для YaMDb"
	body = fmt.Sprintf("Здравствуйте, %s!\n\nВаш код подтверждения: %s\n", username, code)
	return subject, body
}

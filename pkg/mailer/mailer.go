package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/pkg/config"
)

// Sender delivers outbound mail. Delivery is fire-and-forget: callers
// never depend on a confirmation.
type Sender interface {
	Send(subject string, recipients []string, body string) error
}

// SMTPSender sends plain-text mail over SMTP.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	enabled  bool
	logger   *zap.Logger
}

// NewSMTPSender builds a sender from mail configuration.
func NewSMTPSender(cfg config.MailConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		enabled:  cfg.Enabled,
		logger:   logger,
	}
}

// Send delivers a message to the given recipients. When mail is disabled
// the message is logged and dropped, which keeps development setups quiet.
func (s *SMTPSender) Send(subject string, recipients []string, body string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("mail requires at least one recipient")
	}
	if !s.enabled {
		s.logger.Debug("mail disabled, dropping message",
			zap.String("subject", subject),
			zap.Strings("recipients", recipients),
		)
		return nil
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := smtp.SendMail(addr, auth, s.from, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

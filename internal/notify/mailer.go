// Package notify formats and delivers transactional email.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"cardora-service/config"

	"go.uber.org/zap"
)

// Message is one outbound email
type Message struct {
	Kind    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// NewMailer picks SMTP delivery when a host is configured, log delivery otherwise
func NewMailer(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.SMTPHost == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg}
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	m.logger.Info("Mail (log delivery)",
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// SMTPMailer sends over SMTP with PLAIN auth
type SMTPMailer struct {
	cfg  config.MailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}

	if err := send(addr, auth, m.cfg.From, []string{msg.To}, buildMIME(m.cfg.From, msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMIME(from string, msg *Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

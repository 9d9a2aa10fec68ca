// Package mailer sends the outreach emails drafted for a project. The
// Email record is only written after Send returns nil, so the emailsSent
// counters track delivered mail.
package mailer

import (
	"fmt"
	"net/smtp"
	"os"

	"github.com/Golfwang123/CivicVoicev1/internal/logger"
	"go.uber.org/zap"
)

type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	SenderName string
}

type Dispatcher interface {
	Send(msg Message) error
}

// SMTPDispatcher delivers through a plain SMTP relay configured from the
// environment.
type SMTPDispatcher struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewSMTPDispatcher reads SMTP_* settings. Returns nil when SMTP_HOST is
// unset so the caller can fall back to the log dispatcher.
func NewSMTPDispatcher() *SMTPDispatcher {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}

	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}

	return &SMTPDispatcher{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
}

func (d *SMTPDispatcher) Send(msg Message) error {
	from := msg.From
	if from == "" {
		from = d.From
	}
	if from == "" {
		return fmt.Errorf("no sender address configured")
	}

	fromHeader := from
	if msg.SenderName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", msg.SenderName, from)
	}

	data := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		fromHeader, msg.To, msg.Subject, msg.Body))

	var auth smtp.Auth
	if d.Username != "" {
		auth = smtp.PlainAuth("", d.Username, d.Password, d.Host)
	}

	addr := d.Host + ":" + d.Port
	if err := smtp.SendMail(addr, auth, from, []string{msg.To}, data); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// LogDispatcher records outgoing mail in the log instead of delivering
// it. Used in development when no SMTP relay is configured.
type LogDispatcher struct{}

func (LogDispatcher) Send(msg Message) error {
	logger.Info("email dispatched (log only)",
		zap.String("to", msg.To),
		zap.String("from", msg.From),
		zap.String("subject", msg.Subject),
	)
	return nil
}

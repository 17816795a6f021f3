package notification

import (
	"fmt"
	"net/smtp"
	"sync"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// EmailSender handles sending emails via SMTP. Sends run in the background so a slow mail server
// never holds up the caller.
type EmailSender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
	wg     sync.WaitGroup
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.Config, logger *logrus.Logger) *EmailSender {
	return &EmailSender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Enqueue sends the message in a background goroutine; failures are logged
func (s *EmailSender) Enqueue(to, name string, msg Message) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Send(to, name, msg); err != nil {
			s.logger.Errorf("Failed to send email to %s: %v", to, err)
		}
	}()
}

// Send delivers one message synchronously
func (s *EmailSender) Send(to, name string, msg Message) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = msg.Subject

	// Format email body
	body := fmt.Sprintf("Dear %s,\n\n", name)
	body += msg.Body + "\n"
	body += "\nBest regards,\nLoans Desk"
	e.Text = []byte(body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.send(e, addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// Wait blocks until queued emails have been handed to the mail server
func (s *EmailSender) Wait() {
	s.wg.Wait()
}

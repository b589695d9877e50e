package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig describes the outgoing mail server. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// InsecureSkipVerify disables certificate checks for development relays.
	InsecureSkipVerify bool
}

// Sender implements accounts.Mailer with gomail.
type Sender struct {
	from      string
	templates *Templates
	deliver   func(*gomail.Message) error
}

// NewSender validates cfg and parses the embedded templates. It fails when
// Host, Port or From is missing or a template does not parse; it does not
// dial the relay. Port 465 uses implicit TLS, other ports STARTTLS when the
// server offers it. A Sender is safe for concurrent use; each send opens its
// own connection.
func NewSender(cfg SMTPConfig) (*Sender, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.Port == 465
	if cfg.InsecureSkipVerify {
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true}
	}

	return &Sender{
		from:      cfg.From,
		templates: templates,
		deliver:   func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}, nil
}

// SendUserVerification mails the account activation link. It returns the
// render error, ctx.Err() when ctx is already done, or the SMTP failure
// wrapped with the template and recipient.
func (s *Sender) SendUserVerification(ctx context.Context, to, username, link string) error {
	return s.send(ctx, to, TemplateUserVerification, Data{Username: username, Link: link})
}

// SendPasswordReset mails the reset link. Errors are as for
// SendUserVerification.
func (s *Sender) SendPasswordReset(ctx context.Context, to, username, link string) error {
	return s.send(ctx, to, TemplatePasswordReset, Data{Username: username, Link: link})
}

func (s *Sender) send(ctx context.Context, to, template string, data Data) error {
	msg, err := s.compose(to, template, data)
	if err != nil {
		return err
	}
	// gomail has no context support; a cancelled request skips the dial.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.deliver(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", template, to, err)
	}
	return nil
}

func (s *Sender) compose(to, template string, data Data) (*gomail.Message, error) {
	r, err := s.templates.Render(template, data)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", r.Subject)
	m.SetBody("text/plain", r.Text)
	m.AddAlternative("text/html", r.HTML)
	return m, nil
}

package notify

import (
	"context"
	"fmt"

	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/wneessen/go-mail"
)

// Message is one rendered HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers messages. Available reports whether the channel is usable
// at all; when it is false the dispatcher simulates delivery instead.
type Mailer interface {
	Available() bool
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an authenticated SMTP relay. A go-mail client
// holds one connection, so every send dials with its own client.
type SMTPMailer struct {
	host string
	opts []mail.Option
	from string
	name string
}

// NewSMTPMailer builds a mailer from cfg. It returns nil, nil when no
// credentials are configured so callers can pass the result straight to
// NewDispatcher.
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	m := &SMTPMailer{
		host: cfg.Host,
		opts: []mail.Option{
			mail.WithPort(cfg.Port),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
			mail.WithTLSPolicy(mail.TLSOpportunistic),
			mail.WithTimeout(cfg.Timeout),
		},
		from: cfg.User,
		name: cfg.FromName,
	}
	// reject bad settings at startup rather than on the first send
	if _, err := m.client(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	c, err := mail.NewClient(m.host, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("mail client: %w", err)
	}
	return c, nil
}

func (m *SMTPMailer) Available() bool { return m != nil }

// Verify dials the relay once. Startup uses it to log whether mail will be
// delivered; a failure does not disable the channel, later sends that fail
// are reported as simulated.
func (m *SMTPMailer) Verify(ctx context.Context) error {
	c, err := m.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return err
	}
	return c.Close()
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	em := mail.NewMsg()
	if err := em.FromFormat(m.name, m.from); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := em.To(msg.To...); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	em.Subject(msg.Subject)
	em.SetBodyString(mail.TypeTextHTML, msg.HTML)

	c, err := m.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, em); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// ABOUTME: SMTP delivery of organization invitation emails using go-mail.
// ABOUTME: Dial-per-send; invite volume is low and retries come from the job queue.
package mail

import (
	"context"
	"fmt"
	"html"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection parameters sourced from env vars.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	TLS      bool
}

// Sender delivers invitation emails over SMTP.
type Sender struct {
	cfg SMTPConfig
}

// NewSender creates a Sender with the given SMTP configuration.
func NewSender(cfg SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

// SendInvite sends an organization invitation to recipient. acceptURL is the
// full link including the invitation token; orgName and inviterEmail appear
// verbatim in the message body.
func (s *Sender) SendInvite(ctx context.Context, recipient, orgName, inviterEmail, acceptURL string) error {
	// Strip CR/LF from interpolated values to prevent header injection.
	clean := strings.NewReplacer("\r", "", "\n", "")
	orgName = clean.Replace(orgName)

	subject := fmt.Sprintf("You've been invited to %s", orgName)

	textBody := fmt.Sprintf(
		"%s invited you to join the organization %q.\n\nAccept the invitation:\n%s\n\nIf you weren't expecting this, you can ignore this email.\n",
		inviterEmail, orgName, acceptURL)
	htmlBody := fmt.Sprintf(
		"<p>%s invited you to join the organization <strong>%s</strong>.</p><p><a href=%q>Accept the invitation</a></p><p>If you weren't expecting this, you can ignore this email.</p>",
		html.EscapeString(inviterEmail), html.EscapeString(orgName), acceptURL)

	m := gomail.NewMsg()
	if err := m.FromFormat("Test Manager", s.cfg.From); err != nil {
		return fmt.Errorf("send invite: set from: %w", err)
	}
	if err := m.To(recipient); err != nil {
		return fmt.Errorf("send invite: set recipient: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextPlain, textBody)
	m.AddAlternativeString(gomail.TypeTextHTML, htmlBody)

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password))
	}
	if s.cfg.TLS {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSOpportunistic))
	}

	c, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("send invite: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	return nil
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPConfig configures the SMTP email channel.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	SenderEmail string
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPProvider delivers email jobs over SMTP with mandatory STARTTLS.
// The recipient is read from variables.email.
type SMTPProvider struct {
	sender mailSender
	from   string
}

func NewSMTPProvider(cfg SMTPConfig) (*SMTPProvider, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(defaultSMTPTimeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return newSMTPProviderWithSender(client, cfg.SenderEmail)
}

func newSMTPProviderWithSender(sender mailSender, from string) (*SMTPProvider, error) {
	if sender == nil {
		return nil, fmt.Errorf("smtp sender is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &SMTPProvider{
		sender: sender,
		from:   strings.TrimSpace(from),
	}, nil
}

func (p *SMTPProvider) Send(ctx context.Context, job domain.NotificationJob) (*ProviderResponse, error) {
	if p == nil || p.sender == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	to := job.Variable("email")
	if to == "" {
		return nil, Permanent("recipient missing: variables.email")
	}

	msg := mail.NewMsg()
	if err := msg.From(p.from); err != nil {
		return nil, &ProviderError{Message: "invalid sender address", Transient: false, Cause: err}
	}
	if err := msg.To(to); err != nil {
		return nil, &ProviderError{Message: "invalid recipient address", Transient: false, Cause: err}
	}
	msg.Subject(emailSubject(job))
	msg.SetBodyString(mail.TypeTextPlain, emailBody(job))
	msg.SetMessageID()

	if err := p.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, classifySMTPError(err)
	}

	return &ProviderResponse{MessageID: job.RequestID}, nil
}

func classifySMTPError(err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && !sendErr.IsTemp() && sendErr.Reason == mail.ErrSMTPRcptTo {
		return &ProviderError{Message: "smtp server rejected recipient", Transient: false, Cause: err}
	}

	return &ProviderError{
		Message:   "smtp send failed",
		Transient: true,
		Cause:     err,
	}
}

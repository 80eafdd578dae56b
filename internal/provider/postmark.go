package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/mrz1836/postmark"
)

type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkProvider delivers email jobs through Postmark's transactional API.
type PostmarkProvider struct {
	client postmarkSender
	from   string
}

func NewPostmarkProvider(serverToken, accountToken, senderEmail string) (*PostmarkProvider, error) {
	if serverToken == "" || accountToken == "" {
		return nil, fmt.Errorf("postmark server and account tokens are required")
	}
	return newPostmarkProviderWithClient(postmark.NewClient(serverToken, accountToken), senderEmail)
}

func newPostmarkProviderWithClient(client postmarkSender, senderEmail string) (*PostmarkProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("postmark client is required")
	}
	if strings.TrimSpace(senderEmail) == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &PostmarkProvider{
		client: client,
		from:   strings.TrimSpace(senderEmail),
	}, nil
}

func (p *PostmarkProvider) Send(ctx context.Context, job domain.NotificationJob) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	to := job.Variable("email")
	if to == "" {
		return nil, Permanent("recipient missing: variables.email")
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       to,
		Subject:  emailSubject(job),
		TextBody: emailBody(job),
		Tag:      job.TemplateCode,
	})
	if err != nil {
		return nil, &ProviderError{
			Message:   "postmark request failed",
			Transient: true,
			Cause:     err,
		}
	}
	// Postmark reports request-level rejections (inactive recipient, invalid
	// address) in the body; resending the same payload cannot succeed.
	if resp.ErrorCode > 0 {
		return nil, &ProviderError{
			Message:   fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message),
			Transient: false,
		}
	}

	return &ProviderResponse{MessageID: resp.MessageID}, nil
}

package provider

import (
	"context"

	"github.com/kursadbilgin/notification-relay/internal/domain"
)

// Provider is the outbound delivery channel port.
type Provider interface {
	Send(ctx context.Context, job domain.NotificationJob) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for logs and auditing.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-relay/internal/domain"
)

const defaultPushTimeout = 10 * time.Second

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushRequest struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
	Data         map[string]any   `json:"data"`
}

type pushResult struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

type pushResponse struct {
	Success int          `json:"success"`
	Failure int          `json:"failure"`
	Results []pushResult `json:"results"`
}

// Result errors FCM documents as retryable; every other result error is permanent.
var transientPushErrors = map[string]struct{}{
	"Unavailable":               {},
	"InternalServerError":       {},
	"DeviceMessageRateExceeded": {},
}

// FCMPushProvider sends push jobs to an FCM-compatible HTTP endpoint. The
// device token is read from variables.token.
type FCMPushProvider struct {
	client    *resty.Client
	endpoint  string
	serverKey string
}

func NewFCMPushProvider(endpoint, serverKey string) (*FCMPushProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultPushTimeout)
	client.SetRetryCount(0)

	return NewFCMPushProviderWithClient(endpoint, serverKey, client)
}

func NewFCMPushProviderWithClient(endpoint, serverKey string, client *resty.Client) (*FCMPushProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("push endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid push endpoint: %w", err)
	}
	if strings.TrimSpace(serverKey) == "" {
		return nil, fmt.Errorf("push server key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPushTimeout)
	}
	client.SetRetryCount(0)

	return &FCMPushProvider{
		client:    client,
		endpoint:  trimmedEndpoint,
		serverKey: strings.TrimSpace(serverKey),
	}, nil
}

func (p *FCMPushProvider) Send(ctx context.Context, job domain.NotificationJob) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	token := job.Variable("token")
	if token == "" {
		return nil, Permanent("missing device token: variables.token")
	}

	reqBody := pushRequest{
		To: token,
		Notification: pushNotification{
			Title: pushTitle(job),
			Body:  pushBody(job),
		},
		Data: pushData(job),
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+p.serverKey).
		SetBody(reqBody).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "push request failed",
			Transient: true,
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "push provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    providerErrorMessage(statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	var parsed pushResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		// Non-JSON 2xx bodies are accepted as delivered.
		return &ProviderResponse{StatusCode: statusCode, Body: responseBody}, nil
	}

	if parsed.Failure > 0 {
		resultErr := "unknown"
		if len(parsed.Results) > 0 && parsed.Results[0].Error != "" {
			resultErr = parsed.Results[0].Error
		}
		_, transient := transientPushErrors[resultErr]
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("push rejected: %s", resultErr),
			Transient:  transient,
		}
	}

	messageID := ""
	if len(parsed.Results) > 0 {
		messageID = parsed.Results[0].MessageID
	}

	return &ProviderResponse{
		StatusCode: statusCode,
		Body:       responseBody,
		MessageID:  messageID,
	}, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

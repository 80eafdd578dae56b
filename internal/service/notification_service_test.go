package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"github.com/kursadbilgin/notification-relay/internal/provider"
	"github.com/kursadbilgin/notification-relay/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNotificationService(t *testing.T, publisher *fakePublisher, providers map[domain.NotificationType]provider.Provider) (*NotificationService, *fakeStatusStore) {
	t.Helper()

	statuses := newFakeStatusStore()
	svc, err := NewNotificationService(statuses, publisher, providers, zap.NewNop())
	require.NoError(t, err)
	return svc, statuses
}

func TestNotificationServiceEnqueue(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	svc, _ := newTestNotificationService(t, publisher, nil)

	job := domain.NotificationJob{
		RequestID:        " r1 ",
		NotificationType: domain.NotificationTypePush,
		UserID:           "u1",
		TemplateCode:     "welcome",
		Variables:        map[string]any{"token": "t1"},
		Priority:         12,
	}
	require.NoError(t, svc.Enqueue(context.Background(), job))

	published := publisher.messages()
	require.Len(t, published, 1)
	assert.Equal(t, "push", published[0].RoutingKey)
	assert.Equal(t, 0, published[0].Msg.Attempt)
	assert.Equal(t, "r1", published[0].Msg.MessageID)
	assert.Equal(t, uint8(10), published[0].Msg.Priority)

	var decoded domain.NotificationJob
	require.NoError(t, json.Unmarshal(published[0].Msg.Body, &decoded))
	assert.Equal(t, "r1", decoded.RequestID)
	assert.Equal(t, "welcome", decoded.TemplateCode)
}

func TestNotificationServiceEnqueueValidation(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	svc, _ := newTestNotificationService(t, publisher, nil)

	err := svc.Enqueue(context.Background(), domain.NotificationJob{NotificationType: domain.NotificationTypeEmail})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.Enqueue(context.Background(), domain.NotificationJob{RequestID: "r1", NotificationType: "sms"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, publisher.messages())
}

func TestNotificationServiceEnqueuePublishFailure(t *testing.T) {
	t.Parallel()

	brokerErr := errors.New("broker unreachable")
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, routingKey string, msg queue.Publishing) error {
			return brokerErr
		},
	}
	svc, _ := newTestNotificationService(t, publisher, nil)

	err := svc.Enqueue(context.Background(), domain.NotificationJob{RequestID: "r1", NotificationType: domain.NotificationTypeEmail})
	assert.ErrorIs(t, err, brokerErr)
}

func TestNotificationServiceGetStatus(t *testing.T) {
	t.Parallel()

	svc, statuses := newTestNotificationService(t, &fakePublisher{}, nil)
	statuses.statuses["r1"] = domain.StatusDelivered

	status, err := svc.GetStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, status)

	_, err = svc.GetStatus(context.Background(), "unknown-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationServiceListAttempts(t *testing.T) {
	t.Parallel()

	svc, _ := newTestNotificationService(t, &fakePublisher{}, nil)
	assert.False(t, svc.HasAttemptLog())

	_, err := svc.ListAttempts(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	svc.SetAttemptRepository(&fakeAttemptRepo{
		listFn: func(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error) {
			if requestID != "r1" {
				return nil, nil
			}
			return []domain.DeliveryAttempt{{RequestID: "r1", AttemptNumber: 0, Outcome: domain.AttemptFailed}}, nil
		},
	})
	assert.True(t, svc.HasAttemptLog())

	attempts, err := svc.ListAttempts(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	_, err = svc.ListAttempts(context.Background(), "r2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationServiceSendTest(t *testing.T) {
	t.Parallel()

	email := &fakeProvider{}
	svc, _ := newTestNotificationService(t, &fakePublisher{}, map[domain.NotificationType]provider.Provider{
		domain.NotificationTypeEmail: email,
	})

	resp, err := svc.SendTest(context.Background(), domain.NotificationTypeEmail, domain.NotificationJob{
		Variables: map[string]any{"email": "a@b.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "m-test-email", resp.MessageID)

	_, err = svc.SendTest(context.Background(), domain.NotificationTypePush, domain.NotificationJob{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	email.sendFn = func(ctx context.Context, job domain.NotificationJob) (*provider.ProviderResponse, error) {
		return nil, provider.Permanent("recipient missing")
	}
	_, err = svc.SendTest(context.Background(), domain.NotificationTypeEmail, domain.NotificationJob{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "recipient missing")
}

func TestNotificationServiceSendTestRecordsMetrics(t *testing.T) {
	t.Parallel()

	email := &fakeProvider{}
	svc, _ := newTestNotificationService(t, &fakePublisher{}, map[domain.NotificationType]provider.Provider{
		domain.NotificationTypeEmail: email,
	})
	metrics := observability.NewMetrics()
	svc.SetMetrics(metrics)

	_, err := svc.SendTest(context.Background(), domain.NotificationTypeEmail, domain.NotificationJob{})
	require.NoError(t, err)

	email.sendFn = func(ctx context.Context, job domain.NotificationJob) (*provider.ProviderResponse, error) {
		return nil, provider.Permanent("recipient missing")
	}
	_, err = svc.SendTest(context.Background(), domain.NotificationTypeEmail, domain.NotificationJob{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `notification_relay_test_sends_total{channel="email",outcome="sent"} 1`)
	assert.Contains(t, string(body), `notification_relay_test_sends_total{channel="email",outcome="failed"} 1`)
}

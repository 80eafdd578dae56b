package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/provider"
	"github.com/kursadbilgin/notification-relay/internal/queue"
)

type fakeStatusStore struct {
	mu       sync.Mutex
	statuses map[string]domain.DeliveryStatus
	history  []domain.DeliveryStatus
	getErr   error
	setErr   error
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: map[string]domain.DeliveryStatus{}}
}

func (f *fakeStatusStore) Get(ctx context.Context, requestID string) (domain.DeliveryStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return "", f.getErr
	}
	status, ok := f.statuses[requestID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return status, nil
}

func (f *fakeStatusStore) Set(ctx context.Context, requestID string, status domain.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}
	f.statuses[requestID] = status
	f.history = append(f.history, status)
	return nil
}

func (f *fakeStatusStore) status(requestID string) domain.DeliveryStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[requestID]
}

type publishedMessage struct {
	RoutingKey string
	Msg        queue.Publishing
	CtxErr     error
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	publishFn func(ctx context.Context, routingKey string, msg queue.Publishing) error
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, msg queue.Publishing) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, routingKey, msg); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{RoutingKey: routingKey, Msg: msg, CtxErr: ctx.Err()})
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	sendFn func(ctx context.Context, job domain.NotificationJob) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, job domain.NotificationJob) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.sendFn == nil {
		return &provider.ProviderResponse{MessageID: "m-" + job.RequestID}, nil
	}
	return f.sendFn(ctx, job)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel domain.NotificationType) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel domain.NotificationType) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel domain.NotificationType) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, channel)
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	recorded []domain.DeliveryAttempt
	recordFn func(ctx context.Context, a *domain.DeliveryAttempt) error
	listFn   func(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error)
}

func (f *fakeAttemptRepo) Record(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.recordFn != nil {
		if err := f.recordFn(ctx, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, *a)
	return nil
}

func (f *fakeAttemptRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error) {
	if f.listFn != nil {
		return f.listFn(ctx, requestID)
	}
	return nil, nil
}

type fakeConsumer struct {
	mu        sync.Mutex
	queues    []string
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	f.mu.Lock()
	f.queues = append(f.queues, queueName)
	f.mu.Unlock()

	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

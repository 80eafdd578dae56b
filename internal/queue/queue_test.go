package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type fakeAcknowledger struct {
	acks   int
	ackErr error
}

func (f *fakeAcknowledger) Ack(multiple bool) error {
	f.acks++
	return f.ackErr
}

func TestTopologyValidate(t *testing.T) {
	valid := Topology{
		Exchange: "notifications.direct",
		Bindings: []Binding{
			{Queue: "email.queue", RoutingKey: "email", Priority: true},
			{Queue: "failed.queue", RoutingKey: "failed"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	if err := (Topology{}).Validate(); err == nil {
		t.Fatal("expected error for missing exchange")
	}

	missingKey := Topology{Exchange: "x", Bindings: []Binding{{Queue: "email.queue"}}}
	if err := missingKey.Validate(); err == nil {
		t.Fatal("expected error for missing routing key")
	}
}

func TestNotificationTopology(t *testing.T) {
	topology := NotificationTopology("notifications.direct", "email.queue", "push.queue", "failed.queue", "failed")
	if err := topology.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if len(topology.Bindings) != 3 {
		t.Fatalf("bindings = %d, want 3", len(topology.Bindings))
	}

	byKey := map[string]Binding{}
	for _, b := range topology.Bindings {
		byKey[b.RoutingKey] = b
	}
	if b := byKey["email"]; b.Queue != "email.queue" || !b.Priority {
		t.Fatalf("email binding = %+v", b)
	}
	if b := byKey["push"]; b.Queue != "push.queue" || !b.Priority {
		t.Fatalf("push binding = %+v", b)
	}
	if b := byKey["failed"]; b.Queue != "failed.queue" || b.Priority {
		t.Fatalf("dead-letter binding = %+v", b)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		want     uint8
	}{
		{name: "default", priority: 5, want: 5},
		{name: "negative", priority: -3, want: 0},
		{name: "above max", priority: 42, want: queueMaxPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityValue(tt.priority)
			if got != tt.want {
				t.Fatalf("PriorityValue(%d) = %d, want %d", tt.priority, got, tt.want)
			}
		})
	}
}

func TestAttemptFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{name: "nil headers", headers: nil, want: 0},
		{name: "missing header", headers: amqp.Table{"other": int32(3)}, want: 0},
		{name: "int32", headers: amqp.Table{HeaderRetries: int32(2)}, want: 2},
		{name: "int64", headers: amqp.Table{HeaderRetries: int64(4)}, want: 4},
		{name: "int", headers: amqp.Table{HeaderRetries: 1}, want: 1},
		{name: "float", headers: amqp.Table{HeaderRetries: float64(3)}, want: 3},
		{name: "numeric string", headers: amqp.Table{HeaderRetries: " 5 "}, want: 5},
		{name: "garbage string", headers: amqp.Table{HeaderRetries: "many"}, want: 0},
		{name: "negative", headers: amqp.Table{HeaderRetries: int32(-1)}, want: 0},
		{name: "unsupported type", headers: amqp.Table{HeaderRetries: true}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AttemptFromHeaders(tt.headers); got != tt.want {
				t.Fatalf("AttemptFromHeaders() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPublishingHeaders(t *testing.T) {
	headers := Publishing{Attempt: 3}.headers()
	if got := AttemptFromHeaders(headers); got != 3 {
		t.Fatalf("x-retries = %d, want 3", got)
	}
	if _, ok := headers[HeaderLastError]; ok {
		t.Fatal("x-last-error should be omitted when empty")
	}

	headers = Publishing{Attempt: 1, LastError: "smtp down"}.headers()
	if headers[HeaderLastError] != "smtp down" {
		t.Fatalf("x-last-error = %v, want smtp down", headers[HeaderLastError])
	}
}

func TestMessageFromDelivery(t *testing.T) {
	msg := messageFromDelivery(amqp.Delivery{
		Body:       []byte(`{"request_id":"r1"}`),
		Headers:    amqp.Table{HeaderRetries: int32(2)},
		MessageId:  "m1",
		RoutingKey: "email",
		Priority:   5,
	})

	if msg.Attempt != 2 || msg.MessageID != "m1" || msg.RoutingKey != "email" || msg.Priority != 5 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHandleDeliveryAcksOnceRegardlessOfResult(t *testing.T) {
	consumer := NewRabbitMQConsumer(nil, 1, zap.NewNop())

	handlers := map[string]MessageHandler{
		"success": func(ctx context.Context, msg Message) error { return nil },
		"error":   func(ctx context.Context, msg Message) error { return errors.New("publish failed") },
		"panic":   func(ctx context.Context, msg Message) error { panic("boom") },
	}

	for name, handler := range handlers {
		handler := handler
		t.Run(name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			consumer.handleDelivery(context.Background(), ack, Message{MessageID: "m1"}, handler)
			if ack.acks != 1 {
				t.Fatalf("acks = %d, want 1", ack.acks)
			}
		})
	}
}

func TestConsumeRequiresArguments(t *testing.T) {
	var nilConsumer *RabbitMQConsumer
	if err := nilConsumer.Consume(context.Background(), "email.queue", func(context.Context, Message) error { return nil }); err == nil {
		t.Fatal("expected error for uninitialized consumer")
	}

	consumer := &RabbitMQConsumer{client: &RabbitMQ{}, prefetch: 1, logger: zap.NewNop()}
	if err := consumer.Consume(context.Background(), "", func(context.Context, Message) error { return nil }); err == nil {
		t.Fatal("expected error for empty queue")
	}
	if err := consumer.Consume(context.Background(), "email.queue", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

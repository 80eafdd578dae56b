package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, msg Publishing) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if strings.TrimSpace(routingKey) == "" {
		return fmt.Errorf("routing key is required")
	}
	if len(msg.Body) == 0 {
		return fmt.Errorf("message body is required")
	}

	messageID := msg.MessageID
	if strings.TrimSpace(messageID) == "" {
		messageID = uuid.NewString()
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    messageID,
		Priority:     msg.Priority,
		Headers:      msg.headers(),
		Body:         msg.Body,
	}

	if err := ch.PublishWithContext(ctx, p.client.Exchange(), routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message with routing key %q: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

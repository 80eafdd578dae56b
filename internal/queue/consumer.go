package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// acknowledger is the subset of amqp.Delivery used after a handler returns.
type acknowledger interface {
	Ack(multiple bool) error
}

var _ acknowledger = amqp.Delivery{}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	// Up to prefetch deliveries are handled concurrently so a handler waiting
	// out a retry backoff does not hold up the rest of the queue.
	var inflight errgroup.Group
	inflight.SetLimit(c.prefetch)
	defer inflight.Wait() //nolint:errcheck // handlers never return errors to the group

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			inflight.Go(func() error {
				c.handleDelivery(ctx, d, messageFromDelivery(d), handler)
				return nil
			})
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d acknowledger, msg Message, handler MessageHandler) {
	if err := safeHandle(ctx, msg, handler); err != nil {
		c.logger.Error("message handler failed",
			zap.String("messageId", msg.MessageID),
			zap.String("routingKey", msg.RoutingKey),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack delivery",
			zap.String("messageId", msg.MessageID),
			zap.Error(err),
		)
	}
}

func safeHandle(ctx context.Context, msg Message, handler MessageHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("message handler panicked: %v", r)
		}
	}()
	return handler(ctx, msg)
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

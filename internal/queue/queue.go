package queue

import (
	"context"
	"fmt"
	"strings"
)

// Publisher publishes messages through the notification exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg Publishing) error
	Close() error
}

// MessageHandler handles a consumed queue message. The consumer acknowledges
// the delivery once the handler returns, whatever the result.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer consumes messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority = 10
)

// Binding binds a durable queue to the exchange under a routing key.
type Binding struct {
	Queue      string
	RoutingKey string
	// Priority declares x-max-priority on the queue.
	Priority bool
}

// Topology is declared on every channel the client opens.
type Topology struct {
	Exchange string
	Bindings []Binding
}

func (t Topology) Validate() error {
	if strings.TrimSpace(t.Exchange) == "" {
		return fmt.Errorf("exchange name is required")
	}
	for _, b := range t.Bindings {
		if strings.TrimSpace(b.Queue) == "" {
			return fmt.Errorf("queue name is required")
		}
		if strings.TrimSpace(b.RoutingKey) == "" {
			return fmt.Errorf("routing key is required for queue %q", b.Queue)
		}
	}
	return nil
}

// PriorityValue clamps a job priority into the range RabbitMQ accepts for work queues.
func PriorityValue(priority int) uint8 {
	switch {
	case priority < 0:
		return 0
	case priority > queueMaxPriority:
		return queueMaxPriority
	default:
		return uint8(priority)
	}
}

// NotificationTopology declares one priority work queue per channel, each
// bound under the channel name, plus the dead-letter queue.
func NotificationTopology(exchange, emailQueue, pushQueue, deadLetterQueue, deadLetterKey string) Topology {
	return Topology{
		Exchange: exchange,
		Bindings: []Binding{
			{Queue: emailQueue, RoutingKey: "email", Priority: true},
			{Queue: pushQueue, RoutingKey: "push", Priority: true},
			{Queue: deadLetterQueue, RoutingKey: deadLetterKey},
		},
	}
}

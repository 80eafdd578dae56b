package queue

import (
	"math"
	"strconv"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// HeaderRetries carries the attempt count of a job.
	HeaderRetries = "x-retries"
	// HeaderLastError carries the last delivery error of a dead-lettered job.
	HeaderLastError = "x-last-error"
)

// Message is a consumed delivery with its attempt metadata decoded.
type Message struct {
	Body       []byte
	Attempt    int
	MessageID  string
	RoutingKey string
	Priority   uint8
}

// Publishing is an outbound message. Attempt is written to the x-retries header.
type Publishing struct {
	Body      []byte
	Attempt   int
	MessageID string
	Priority  uint8
	LastError string
}

func (p Publishing) headers() amqp.Table {
	headers := amqp.Table{HeaderRetries: int32(p.Attempt)}
	if msg := strings.TrimSpace(p.LastError); msg != "" {
		headers[HeaderLastError] = msg
	}
	return headers
}

func messageFromDelivery(d amqp.Delivery) Message {
	return Message{
		Body:       d.Body,
		Attempt:    AttemptFromHeaders(d.Headers),
		MessageID:  d.MessageId,
		RoutingKey: d.RoutingKey,
		Priority:   d.Priority,
	}
}

// AttemptFromHeaders reads x-retries, defaulting to 0 for absent or
// unparseable values.
func AttemptFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 0
	}

	var attempt int64
	switch v := headers[HeaderRetries].(type) {
	case int:
		attempt = int64(v)
	case int8:
		attempt = int64(v)
	case int16:
		attempt = int64(v)
	case int32:
		attempt = int64(v)
	case int64:
		attempt = v
	case uint8:
		attempt = int64(v)
	case uint16:
		attempt = int64(v)
	case uint32:
		attempt = int64(v)
	case float32:
		attempt = int64(v)
	case float64:
		attempt = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		attempt = parsed
	default:
		return 0
	}

	if attempt < 0 {
		return 0
	}
	if attempt > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(attempt)
}

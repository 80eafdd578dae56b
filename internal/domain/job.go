package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NotificationType selects the delivery channel for a job.
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypePush  NotificationType = "push"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeEmail, NotificationTypePush:
		return true
	}
	return false
}

func ParseNotificationType(s string) (NotificationType, error) {
	nt := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("%w: invalid notification_type %q", ErrValidation, s)
	}
	return nt, nil
}

const DefaultPriority = 5

// NotificationJob is the queue payload for a single logical notification.
// The attempt counter travels in message headers, never in this body.
type NotificationJob struct {
	RequestID        string           `json:"request_id" validate:"required,max=255"`
	NotificationType NotificationType `json:"notification_type" validate:"required,oneof=email push"`
	UserID           string           `json:"user_id" validate:"required"`
	TemplateCode     string           `json:"template_code" validate:"required"`
	Variables        map[string]any   `json:"variables"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Priority         int              `json:"priority" validate:"min=0,max=10"`
	RenderedBody     string           `json:"rendered_body,omitempty"`
}

// ParseNotificationJob decodes a queue body. Priority defaults to DefaultPriority
// when the field is absent.
func ParseNotificationJob(body []byte) (NotificationJob, error) {
	job := NotificationJob{Priority: DefaultPriority}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&job); err != nil {
		return NotificationJob{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if strings.TrimSpace(job.RequestID) == "" {
		return job, fmt.Errorf("%w: request_id is required", ErrMalformedJob)
	}

	return job, nil
}

// Variable returns a trimmed string variable, or "" when absent or not a string.
func (j NotificationJob) Variable(key string) string {
	return stringValue(j.Variables, key)
}

// MetadataString returns a trimmed string metadata value, or "" when absent.
func (j NotificationJob) MetadataString(key string) string {
	return stringValue(j.Metadata, key)
}

func stringValue(values map[string]any, key string) string {
	if values == nil {
		return ""
	}
	v, ok := values[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

package domain

import (
	"errors"
	"testing"
)

func TestParseNotificationType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    NotificationType
		wantErr bool
	}{
		{name: "email", input: "email", want: NotificationTypeEmail},
		{name: "push mixed case with spaces", input: " PUSH ", want: NotificationTypePush},
		{name: "sms is not supported", input: "sms", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNotificationType(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseNotificationType() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNotificationType() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseNotificationType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseNotificationJob(t *testing.T) {
	t.Parallel()

	job, err := ParseNotificationJob([]byte(`{"request_id":"r1","notification_type":"email","variables":{"email":" a@b.com "}}`))
	if err != nil {
		t.Fatalf("ParseNotificationJob() unexpected error = %v", err)
	}
	if job.RequestID != "r1" {
		t.Fatalf("RequestID = %q, want r1", job.RequestID)
	}
	if job.NotificationType != NotificationTypeEmail {
		t.Fatalf("NotificationType = %q, want email", job.NotificationType)
	}
	if job.Priority != DefaultPriority {
		t.Fatalf("Priority = %d, want %d", job.Priority, DefaultPriority)
	}
	if got := job.Variable("email"); got != "a@b.com" {
		t.Fatalf("Variable(email) = %q, want a@b.com", got)
	}

	job, err = ParseNotificationJob([]byte(`{"request_id":"r2","priority":9}`))
	if err != nil {
		t.Fatalf("ParseNotificationJob() unexpected error = %v", err)
	}
	if job.Priority != 9 {
		t.Fatalf("Priority = %d, want 9", job.Priority)
	}
}

func TestParseNotificationJobRejectsMalformed(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"invalid json":       `{"request_id":`,
		"missing request id": `{"notification_type":"email"}`,
		"blank request id":   `{"request_id":"   "}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseNotificationJob([]byte(body))
			if !errors.Is(err, ErrMalformedJob) {
				t.Fatalf("ParseNotificationJob() error = %v, want ErrMalformedJob", err)
			}
		})
	}
}

func TestDeliveryStatusIsTerminal(t *testing.T) {
	t.Parallel()

	if !StatusDelivered.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatal("delivered and failed must be terminal")
	}
	if StatusRetrying.IsTerminal() {
		t.Fatal("retrying must not be terminal")
	}
}

package repository

import (
	"time"

	"github.com/kursadbilgin/notification-relay/internal/domain"
)

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string                  `gorm:"type:uuid;primaryKey"`
	RequestID     string                  `gorm:"type:varchar(255);not null;index:idx_delivery_attempts_request_id"`
	Channel       domain.NotificationType `gorm:"type:varchar(10);not null"`
	AttemptNumber int                     `gorm:"not null"`
	Outcome       domain.AttemptOutcome   `gorm:"type:varchar(20);not null"`
	Error         *string                 `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		RequestID:     a.RequestID,
		Channel:       a.Channel,
		AttemptNumber: a.AttemptNumber,
		Outcome:       a.Outcome,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		RequestID:     m.RequestID,
		Channel:       m.Channel,
		AttemptNumber: m.AttemptNumber,
		Outcome:       m.Outcome,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

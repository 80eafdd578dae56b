package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-relay/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository stores the delivery audit trail. It is optional; the
// pipeline runs without it when no database is configured.
type AttemptRepository interface {
	Record(ctx context.Context, a *domain.DeliveryAttempt) error
	ListByRequestID(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Record(ctx context.Context, a *domain.DeliveryAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", domain.ErrValidation)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record attempt for %s: %w", a.RequestID, err)
	}
	*a = *attemptModelToDomain(model)
	return nil
}

func (r *GormAttemptRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("attempt_number ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for %s: %w", requestID, err)
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

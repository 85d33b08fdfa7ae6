package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// AttemptRepository is append-only: attempts are never updated or deleted.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DeliveryAttempt) error
	SuccessfulIdentifiers(ctx context.Context, mechanism domain.Mechanism) ([]string, error)
	GetByRecipient(ctx context.Context, recipientIdentifier string) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

// SuccessfulIdentifiers returns the distinct recipients that have at least
// one successful attempt through mechanism.
func (r *GormAttemptRepo) SuccessfulIdentifiers(ctx context.Context, mechanism domain.Mechanism) ([]string, error) {
	var identifiers []string
	err := r.db.WithContext(ctx).
		Model(&DeliveryAttemptModel{}).
		Distinct().
		Where("mechanism = ? AND was_successful = ?", mechanism, true).
		Order("recipient_identifier ASC").
		Pluck("recipient_identifier", &identifiers).Error
	if err != nil {
		return nil, err
	}
	return identifiers, nil
}

func (r *GormAttemptRepo) GetByRecipient(ctx context.Context, recipientIdentifier string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("recipient_identifier = ?", recipientIdentifier).
		Order("attempted_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

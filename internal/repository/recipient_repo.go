package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

const recipientInsertBatchSize = 300

type RecipientRepository interface {
	FindExcluding(ctx context.Context, excluded map[string]struct{}) ([]domain.Recipient, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Recipient, error)
	CreateBatchIgnoringConflicts(ctx context.Context, recipients []domain.Recipient) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type GormRecipientRepo struct {
	db *gorm.DB
}

func NewGormRecipientRepo(db *gorm.DB) *GormRecipientRepo {
	return &GormRecipientRepo{db: db}
}

// FindExcluding returns every recipient whose identifier is not in excluded,
// ordered by identifier. The exclusion set is applied in memory so an empty
// set never produces an empty NOT IN clause.
func (r *GormRecipientRepo) FindExcluding(ctx context.Context, excluded map[string]struct{}) ([]domain.Recipient, error) {
	var models []RecipientModel
	err := r.db.WithContext(ctx).
		Order("identifier ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	recipients := make([]domain.Recipient, 0, len(models))
	for i := range models {
		if _, skip := excluded[models[i].Identifier]; skip {
			continue
		}
		recipients = append(recipients, *recipientModelToDomain(&models[i]))
	}

	return recipients, nil
}

func (r *GormRecipientRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.Recipient, error) {
	var model RecipientModel
	err := r.db.WithContext(ctx).First(&model, "identifier = ?", identifier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recipientModelToDomain(&model), nil
}

// CreateBatchIgnoringConflicts inserts recipients in batches and silently
// skips rows that collide with an existing identifier or email. It returns
// the number of rows actually inserted.
func (r *GormRecipientRepo) CreateBatchIgnoringConflicts(ctx context.Context, recipients []domain.Recipient) (int64, error) {
	models := make([]RecipientModel, 0, len(recipients))
	for i := range recipients {
		models = append(models, *recipientModelFromDomain(&recipients[i]))
	}

	if len(models) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&models, recipientInsertBatchSize)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (r *GormRecipientRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&RecipientModel{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

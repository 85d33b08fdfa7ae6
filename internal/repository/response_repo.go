package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

type ResponseRepository interface {
	ValidIdentifiers(ctx context.Context) ([]string, error)
	CreateIgnoringConflicts(ctx context.Context, responses []domain.SurveyResponse) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type GormResponseRepo struct {
	db *gorm.DB
}

func NewGormResponseRepo(db *gorm.DB) *GormResponseRepo {
	return &GormResponseRepo{db: db}
}

// ValidIdentifiers returns the distinct identifiers carried by responses
// whose identifier passed the checksum.
func (r *GormResponseRepo) ValidIdentifiers(ctx context.Context) ([]string, error) {
	var identifiers []string
	err := r.db.WithContext(ctx).
		Model(&SurveyResponseModel{}).
		Distinct().
		Where("is_valid = ?", true).
		Order("recipient_identifier ASC").
		Pluck("recipient_identifier", &identifiers).Error
	if err != nil {
		return nil, err
	}
	return identifiers, nil
}

// CreateIgnoringConflicts inserts responses, skipping any whose recipient
// identifier is already stored.
func (r *GormResponseRepo) CreateIgnoringConflicts(ctx context.Context, responses []domain.SurveyResponse) (int64, error) {
	models := make([]SurveyResponseModel, 0, len(responses))
	for i := range responses {
		models = append(models, *responseModelFromDomain(&responses[i]))
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

func (r *GormResponseRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&SurveyResponseModel{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

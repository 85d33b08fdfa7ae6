package repository

import (
	"time"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// RecipientModel is the persistence model for the recipients table.
type RecipientModel struct {
	Identifier string               `gorm:"type:varchar(16);primaryKey"`
	Kind       domain.RecipientKind `gorm:"type:varchar(20);not null"`
	Email      *string              `gorm:"type:varchar(255)"`
	Phone      *string              `gorm:"type:varchar(64)"`
	CreatedAt  time.Time
}

func (RecipientModel) TableName() string {
	return "recipients"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID                  string           `gorm:"type:varchar(36);primaryKey"`
	Timestamp           time.Time        `gorm:"column:attempted_at;not null"`
	Mechanism           domain.Mechanism `gorm:"type:varchar(20);not null"`
	RecipientIdentifier string           `gorm:"type:varchar(16);not null"`
	WasSuccessful       bool             `gorm:"not null"`
	Notes               string           `gorm:"type:text"`
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// SurveyResponseModel is the persistence model for survey_responses.
type SurveyResponseModel struct {
	ID                  string `gorm:"type:varchar(36);primaryKey"`
	RecipientIdentifier string `gorm:"type:varchar(64);not null"`
	IsValid             bool   `gorm:"not null"`
	Source              string `gorm:"type:varchar(255)"`
	SourceLine          int
	CreatedAt           time.Time
}

func (SurveyResponseModel) TableName() string {
	return "survey_responses"
}

func recipientModelFromDomain(r *domain.Recipient) *RecipientModel {
	if r == nil {
		return nil
	}

	return &RecipientModel{
		Identifier: r.Identifier,
		Kind:       r.Kind,
		Email:      r.Email,
		Phone:      r.Phone,
		CreatedAt:  r.CreatedAt,
	}
}

func recipientModelToDomain(m *RecipientModel) *domain.Recipient {
	if m == nil {
		return nil
	}

	return &domain.Recipient{
		Identifier: m.Identifier,
		Kind:       m.Kind,
		Email:      m.Email,
		Phone:      m.Phone,
		CreatedAt:  m.CreatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:                  a.ID,
		Timestamp:           a.Timestamp,
		Mechanism:           a.Mechanism,
		RecipientIdentifier: a.RecipientIdentifier,
		WasSuccessful:       a.WasSuccessful,
		Notes:               a.Notes,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:                  m.ID,
		Timestamp:           m.Timestamp,
		Mechanism:           m.Mechanism,
		RecipientIdentifier: m.RecipientIdentifier,
		WasSuccessful:       m.WasSuccessful,
		Notes:               m.Notes,
	}
}

func responseModelFromDomain(r *domain.SurveyResponse) *SurveyResponseModel {
	if r == nil {
		return nil
	}

	return &SurveyResponseModel{
		ID:                  r.ID,
		RecipientIdentifier: r.RecipientIdentifier,
		IsValid:             r.IsValid,
		Source:              r.Source,
		SourceLine:          r.SourceLine,
		CreatedAt:           r.CreatedAt,
	}
}

func responseModelToDomain(m *SurveyResponseModel) *domain.SurveyResponse {
	if m == nil {
		return nil
	}

	return &domain.SurveyResponse{
		ID:                  m.ID,
		RecipientIdentifier: m.RecipientIdentifier,
		IsValid:             m.IsValid,
		Source:              m.Source,
		SourceLine:          m.SourceLine,
		CreatedAt:           m.CreatedAt,
	}
}

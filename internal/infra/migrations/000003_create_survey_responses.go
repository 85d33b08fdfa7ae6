package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/kursadbilgin/survey-engine/internal/repository"
)

func createSurveyResponsesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_survey_responses",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SurveyResponseModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_responses_recipient_identifier ON survey_responses (recipient_identifier)`,
				`CREATE INDEX IF NOT EXISTS idx_responses_is_valid ON survey_responses (is_valid)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SurveyResponseModel{})
		},
	}
}

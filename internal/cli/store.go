package cli

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/kursadbilgin/survey-engine/internal/config"
	"github.com/kursadbilgin/survey-engine/internal/infra/migrations"
	"github.com/kursadbilgin/survey-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/survey-engine/internal/infra/sqlite"
	"github.com/kursadbilgin/survey-engine/internal/repository"
)

type store struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	recipients *repository.GormRecipientRepo
	attempts   *repository.GormAttemptRepo
	responses  *repository.GormResponseRepo
}

// openStore connects to the configured database and brings its schema up to
// date.
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.DatabaseDriver {
	case config.DatabaseDriverPostgres:
		db, err = postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	case config.DatabaseDriverSQLite:
		db, err = sqlite.NewSQLite(ctx, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	return &store{
		db:         db,
		sqlDB:      sqlDB,
		recipients: repository.NewGormRecipientRepo(db),
		attempts:   repository.NewGormAttemptRepo(db),
		responses:  repository.NewGormResponseRepo(db),
	}, nil
}

func (s *store) Close() error {
	return s.sqlDB.Close()
}

package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kursadbilgin/survey-engine/internal/infra/sqlite"
)

func TestMigrateCreatesTablesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	db, err := sqlite.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "survey.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	for _, table := range []string{"recipients", "delivery_attempts", "survey_responses"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("table %s missing after Migrate()", table)
		}
	}
}

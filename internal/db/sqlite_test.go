package db

import (
	"path/filepath"
	"testing"

	"github.com/pysugar/photopick/internal/db/models"
)

func TestInitDBCreatesSchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photopick.db")

	database, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	for _, model := range []interface{}{&models.StoredToken{}, &models.Submission{}, &models.SourceFolder{}} {
		if !database.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	if !database.Migrator().HasIndex(&models.Submission{}, "idx_submission_id") {
		t.Fatal("expected unique submission id index")
	}

	// Running migrations again is a no-op.
	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

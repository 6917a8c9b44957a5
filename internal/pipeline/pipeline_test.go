package pipeline

import (
	"io"
	"testing"

	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// quietLogger keeps worker chatter out of test output.
func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{
		Level:  "error",
		Format: "json",
		Output: io.Discard,
	})
}

package testutil

import (
	"testing"

	"docsync/internal/database"
	"docsync/internal/docsync"
)

// NewTestDatabase creates a new in-memory SQLite database with migrations applied.
// A nil clock uses the real time. The database is closed when the test completes.
func NewTestDatabase(t *testing.T, clock docsync.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock, NewStubIDGenerator())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return db
}

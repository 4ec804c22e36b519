package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"docsync/internal/database/migrations"
	"docsync/internal/docsync"
)

// SQLiteDatabase implements the docsync stores and the durable queue on SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock docsync.Clock
	idgen docsync.IDGenerator
}

// NewSQLiteDatabase opens a SQLite database. path can be a file path or
// ":memory:". A nil clock or idgen falls back to the real implementations.
func NewSQLiteDatabase(path string, clock docsync.Clock, idgen docsync.IDGenerator) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	d := NewSQLiteDatabaseFromDB(db, clock, idgen)
	d.path = path
	return d, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock docsync.Clock, idgen docsync.IDGenerator) *SQLiteDatabase {
	if clock == nil {
		clock = docsync.RealClock{}
	}
	if idgen == nil {
		idgen = docsync.UUIDGenerator{}
	}
	return &SQLiteDatabase{db: db, clock: clock, idgen: idgen}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	if path == ":memory:" {
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		return db, nil
	}

	// DSN parameters apply to every pooled connection, unlike a one-off PRAGMA.
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// classify maps driver errors onto the sync error kinds so workers can decide
// between requeue and suspend.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", docsync.ErrRequeue, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull,
			sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrReadonly:
			return fmt.Errorf("%w: %w", docsync.ErrStorageUnavailable, err)
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %w", docsync.ErrStorageUnavailable, err)
	}
	return err
}

// Path returns the file path of the database, or "" for wrapped connections.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies all pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies that the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrationStatus reports the current and latest schema versions.
func (s *SQLiteDatabase) MigrationStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// Ping checks that the database is reachable.
func (s *SQLiteDatabase) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Schema returns the CREATE statements of the application tables, tables first.
func (s *SQLiteDatabase) Schema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY CASE type WHEN 'table' THEN 1 ELSE 2 END, name`)
	if err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	return b.String(), nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ docsync.Queue         = (*SQLiteDatabase)(nil)
	_ docsync.ContentStore  = (*SQLiteDatabase)(nil)
	_ docsync.RedirectStore = (*SQLiteDatabase)(nil)
	_ docsync.StateStore    = (*SQLiteDatabase)(nil)
	_ docsync.RunStore      = (*SQLiteDatabase)(nil)
	_ docsync.MediaIndex    = (*SQLiteDatabase)(nil)
)

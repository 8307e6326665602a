package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrations are applied in order and recorded in schema_migrations.
var migrations = []string{"001_initial"}

// DB wraps the sqlite connection backing SQLiteStore.
type DB struct {
	*sql.DB
}

// OpenDB opens the sqlite database at path and applies migrations.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &DB{db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, version := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}
		migrationSQL, err := migrationFS.ReadFile("migrations/" + version + ".sql")
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", version, err)
		}
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", version, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
	}
	return nil
}

// SQLiteStore keeps one snapshot row per terminal.
type SQLiteStore struct {
	db         *DB
	terminalID string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore returns a store for terminalID backed by db.
func NewSQLiteStore(db *DB, terminalID string) *SQLiteStore {
	return &SQLiteStore{db: db, terminalID: terminalID}
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (RecoverySnapshot, bool, error) {
	var (
		snap  RecoverySnapshot
		force int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at_ms, last_known_context, force_reconnect
		 FROM recovery_snapshots WHERE terminal_id = ?`, s.terminalID,
	).Scan(&snap.SavedAtMs, &snap.LastKnownContext, &force)
	if errors.Is(err, sql.ErrNoRows) {
		return RecoverySnapshot{}, false, nil
	}
	if err != nil {
		return RecoverySnapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	snap.ForceReconnectRequested = force != 0
	return snap, true, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, snap RecoverySnapshot) error {
	force := 0
	if snap.ForceReconnectRequested {
		force = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recovery_snapshots (terminal_id, saved_at_ms, last_known_context, force_reconnect, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(terminal_id) DO UPDATE SET
		   saved_at_ms = excluded.saved_at_ms,
		   last_known_context = excluded.last_known_context,
		   force_reconnect = excluded.force_reconnect,
		   updated_at = CURRENT_TIMESTAMP`,
		s.terminalID, snap.SavedAtMs, snap.LastKnownContext, force,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

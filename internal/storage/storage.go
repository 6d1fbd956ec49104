// Package storage persists the local state of the client: the campaigns
// last fetched from the backend, the selected campaign, the auth session and
// platform schemas edited in dev mode. Every write is last-write-wins.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store bundles the stores sharing one database connection.
type Store struct {
	dbConn    *sqlx.DB
	Campaigns *CampaignStore
	Auth      *AuthStore
	Schemas   *SchemaStore
}

// Open opens or creates the database at path and applies all pending migrations.
func Open(path string) (*Store, error) {
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// NewStore returns a Store on top of an already migrated connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		dbConn:    db,
		Campaigns: &CampaignStore{dbConn: db},
		Auth:      &AuthStore{dbConn: db, now: time.Now},
		Schemas:   &SchemaStore{dbConn: db},
	}
}

// Close terminates the database connection.
func (s *Store) Close() error {
	if err := s.dbConn.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// New connects to the sqlite database file name and applies all pending
// migrations.
func New(name string) (*sqlx.DB, error) {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", name))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting dialect for migrations: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return db, nil
}

func getSetting(ctx context.Context, db *sqlx.DB, key string) (string, bool, error) {
	var value string
	err := db.GetContext(ctx, &value, `SELECT value FROM setting WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, true, nil
}

func putSetting(ctx context.Context, db *sqlx.DB, key, value string) error {
	query := `INSERT INTO setting (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func deleteSetting(ctx context.Context, db *sqlx.DB, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM setting WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

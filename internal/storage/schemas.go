package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jakopako/leadsync/internal/types"
	"github.com/jmoiron/sqlx"
)

// SchemaStore keeps platform schema documents edited in dev mode. They
// override the built-in extraction rules of their platform.
type SchemaStore struct {
	dbConn *sqlx.DB
}

// Get returns the stored document of platform p or nil.
func (ss *SchemaStore) Get(ctx context.Context, p types.Platform) ([]byte, error) {
	var doc string
	err := ss.dbConn.GetContext(ctx, &doc, `SELECT document FROM platform_schema WHERE platform = ?`, string(p))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting schema of %s: %w", p, err)
	}
	return []byte(doc), nil
}

func (ss *SchemaStore) Put(ctx context.Context, p types.Platform, doc []byte) error {
	query := `INSERT INTO platform_schema (platform, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(platform) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`
	if _, err := ss.dbConn.ExecContext(ctx, query, string(p), string(doc)); err != nil {
		return fmt.Errorf("storing schema of %s: %w", p, err)
	}
	return nil
}

func (ss *SchemaStore) Delete(ctx context.Context, p types.Platform) error {
	if _, err := ss.dbConn.ExecContext(ctx, `DELETE FROM platform_schema WHERE platform = ?`, string(p)); err != nil {
		return fmt.Errorf("deleting schema of %s: %w", p, err)
	}
	return nil
}

// All returns every stored document keyed by platform.
func (ss *SchemaStore) All(ctx context.Context) (map[types.Platform][]byte, error) {
	var rows []struct {
		Platform string `db:"platform"`
		Document string `db:"document"`
	}
	if err := ss.dbConn.SelectContext(ctx, &rows, `SELECT platform, document FROM platform_schema ORDER BY platform`); err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	docs := make(map[types.Platform][]byte, len(rows))
	for _, r := range rows {
		docs[types.Platform(r.Platform)] = []byte(r.Document)
	}
	return docs, nil
}

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wrisc/scfpipe/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store loads pipeline output into Postgres: assembled documents as JSONB
// rows keyed by control ID, link tables as two-column rows. Each load
// replaces the previous run's data for the same run scope.
type Store struct {
	db     DBTX
	logger *slog.Logger
}

// NewStore creates a store over an open connection or pool.
func NewStore(db DBTX, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scf_documents (
	control_id text PRIMARY KEY,
	run_id     uuid NOT NULL,
	document   jsonb NOT NULL,
	loaded_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scf_links (
	relationship text NOT NULL,
	source_id    text NOT NULL,
	target_id    text NOT NULL,
	is_framework boolean NOT NULL,
	run_id       uuid NOT NULL
);

CREATE INDEX IF NOT EXISTS scf_links_relationship_idx ON scf_links (relationship, source_id);
`

// EnsureSchema creates the document and link tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadDocuments bulk-loads assembled control documents via the COPY
// protocol, replacing any previously loaded set.
func (s *Store) LoadDocuments(ctx context.Context, runID string, docs []core.Document) (int64, error) {
	if _, err := s.db.Exec(ctx, "TRUNCATE scf_documents"); err != nil {
		return 0, fmt.Errorf("truncate documents: %w", err)
	}

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc["control_id"].(string)
		if id == "" {
			return 0, fmt.Errorf("document without control_id")
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("marshal document %s: %w", id, err)
		}
		rows = append(rows, []any{id, runID, body})
	}

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"scf_documents"},
		[]string{"control_id", "run_id", "document"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return n, fmt.Errorf("copy documents: %w", err)
	}
	s.logger.Info("documents loaded", "count", n, "run_id", runID)
	return n, nil
}

// LoadLinks bulk-loads every link table, replacing any previously loaded
// set. Rows preserve per-relationship register order.
func (s *Store) LoadLinks(ctx context.Context, runID string, links *core.LinkSet) (int64, error) {
	if _, err := s.db.Exec(ctx, "TRUNCATE scf_links"); err != nil {
		return 0, fmt.Errorf("truncate links: %w", err)
	}

	var rows [][]any
	for _, relType := range links.Types() {
		lt, _ := links.Get(relType)
		for _, l := range lt.Links {
			rows = append(rows, []any{relType, l.SourceID, l.TargetID, lt.Framework, runID})
		}
	}

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"scf_links"},
		[]string{"relationship", "source_id", "target_id", "is_framework", "run_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return n, fmt.Errorf("copy links: %w", err)
	}
	s.logger.Info("links loaded", "count", n, "run_id", runID)
	return n, nil
}

// Count returns the number of loaded documents, for post-load verification.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM scf_documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/placeharvest/internal/core/ports"
)

// Repository stores campaigns and tasks in an embedded DuckDB file.
type Repository struct {
	db *sql.DB

	// DuckDB aborts concurrent transactions that touch the same row
	// (campaign counters), so writes go through one at a time.
	writeMu sync.Mutex
}

var (
	_ ports.CampaignRepository       = (*Repository)(nil)
	_ ports.TaskRepository           = (*Repository)(nil)
	_ ports.EnrichmentTaskRepository = (*Repository)(nil)
)

// NewRepository opens (or creates) the database at path. An empty path
// opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if path == "" {
		// every connection to "" is a separate database
		db.SetMaxOpenConns(1)
	}

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id VARCHAR PRIMARY KEY,
	title VARCHAR NOT NULL,
	status VARCHAR NOT NULL,
	config VARCHAR NOT NULL,
	total_tasks INTEGER NOT NULL DEFAULT 0,
	completed_tasks INTEGER NOT NULL DEFAULT 0,
	failed_tasks INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_tasks (
	id VARCHAR PRIMARY KEY,
	campaign_id VARCHAR NOT NULL,
	search_seed VARCHAR NOT NULL,
	geoname VARCHAR NOT NULL,
	status VARCHAR NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error VARCHAR,
	places_extracted INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS website_enrichment_tasks (
	id VARCHAR PRIMARY KEY,
	place_id VARCHAR NOT NULL,
	website_url VARCHAR NOT NULL,
	status VARCHAR NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error VARCHAR,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);
`

// No secondary indexes: DuckDB rewrites indexed rows on update, which breaks
// upserts that change an indexed column inside one transaction.
func (r *Repository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// inTx runs fn in a write transaction.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

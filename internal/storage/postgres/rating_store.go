// Package postgres persists per-item rating results in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// DefaultTable receives rating rows when no table is configured.
const DefaultTable = "item_ratings"

// maxRowsPerInsert keeps a single statement well below the 65535 bind
// parameter limit.
const maxRowsPerInsert = 500

const columnsPerRow = 10

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RatingStoreConfig controls the Postgres connection pool used for rating rows.
type RatingStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RatingStore upserts one row per enriched item, keyed by run, worker and index.
type RatingStore struct {
	pool  execCloser
	table string
}

var _ enrich.Recorder = (*RatingStore)(nil)

// NewRatingStore connects a pool using cfg.
func NewRatingStore(ctx context.Context, cfg RatingStoreConfig) (*RatingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RatingStore{pool: pool, table: table}, nil
}

// NewRatingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRatingStoreWithPool(pool execCloser, table string) (*RatingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RatingStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RatingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the rating table when it does not exist.
func (s *RatingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       uuid NOT NULL,
	worker_id    integer NOT NULL,
	item_index   integer NOT NULL,
	search_term  text NOT NULL,
	rating       double precision,
	rating_link  text,
	outcome      text NOT NULL,
	resolved_via text,
	attempts     integer NOT NULL,
	recorded_at  timestamptz NOT NULL,
	PRIMARY KEY (run_id, worker_id, item_index)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordResults upserts records in batches. A rerun of the same run id
// overwrites earlier rows for the same item.
func (s *RatingStore) RecordResults(ctx context.Context, records []enrich.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("rating store is not configured")
	}
	for start := 0; start < len(records); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(records))
		query, args := s.insertStatement(records[start:end])
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert ratings [%d,%d): %w", start, end, err)
		}
	}
	return nil
}

func (s *RatingStore) insertStatement(records []enrich.Record) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, `INSERT INTO %s (
	run_id, worker_id, item_index, search_term, rating, rating_link,
	outcome, resolved_via, attempts, recorded_at
) VALUES `, s.table)
	args := make([]any, 0, len(records)*columnsPerRow)
	for i, rec := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 0; c < columnsPerRow; c++ {
			if c > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", i*columnsPerRow+c+1)
		}
		b.WriteString(")")
		args = append(args,
			rec.RunID.String(),
			rec.WorkerID,
			rec.Index,
			rec.Term,
			rec.Rating,
			nullable(rec.Link),
			string(rec.State),
			nullable(string(rec.Via)),
			rec.Attempts,
			rec.RecordedAt,
		)
	}
	b.WriteString(`
ON CONFLICT (run_id, worker_id, item_index) DO UPDATE SET
	search_term = EXCLUDED.search_term,
	rating = EXCLUDED.rating,
	rating_link = EXCLUDED.rating_link,
	outcome = EXCLUDED.outcome,
	resolved_via = EXCLUDED.resolved_via,
	attempts = EXCLUDED.attempts,
	recorded_at = EXCLUDED.recorded_at`)
	return b.String(), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

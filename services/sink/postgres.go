package sink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	source TEXT NOT NULL,
	url TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	data JSONB NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (source, url)
);

CREATE INDEX IF NOT EXISTS idx_listings_thread_id ON listings(source, thread_id);
CREATE INDEX IF NOT EXISTS idx_listings_crawled_at ON listings(crawled_at);
`

const postgresUpsert = `
INSERT INTO listings (source, url, thread_id, data, crawled_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (source, url) DO UPDATE
SET thread_id = EXCLUDED.thread_id, data = EXCLUDED.data, crawled_at = EXCLUDED.crawled_at;
`

// PostgresSink upserts records into a listings table keyed by source and URL
type PostgresSink struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresSink connects to dsn and ensures the schema exists
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, crawlerrors.NewStorage("postgres", "failed to create postgres pool", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, crawlerrors.NewStorage("postgres", "failed to connect postgres", err)
	}

	s := &PostgresSink{pool: pool, log: logger.ForSink("postgres")}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the listings table if needed
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return crawlerrors.NewStorage("postgres", "failed to ensure schema", err)
	}
	return nil
}

// Write upserts records in a single batch
func (s *PostgresSink) Write(ctx context.Context, source crawler.Source, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows, err := toRows(source, records)
	if err != nil {
		return crawlerrors.NewStorage("postgres", "failed to encode records", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(postgresUpsert, r.source, r.url, r.threadID, r.data)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return crawlerrors.NewStorage("postgres", "batch upsert failed at "+rows[i].url, err)
		}
	}

	s.log.Info().Str("source", string(source)).Int("records", len(rows)).Msg("Upserted records")
	return nil
}

// Count returns the number of stored rows for source
func (s *PostgresSink) Count(ctx context.Context, source crawler.Source) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE source = $1`, string(source)).Scan(&n)
	return n, err
}

func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	source TEXT NOT NULL,
	url TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	data TEXT NOT NULL,
	crawled_at DATETIME NOT NULL,
	PRIMARY KEY (source, url)
);

CREATE INDEX IF NOT EXISTS idx_listings_thread_id ON listings(source, thread_id);
`

const sqliteUpsert = `
INSERT INTO listings (source, url, thread_id, data, crawled_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (source, url) DO UPDATE
SET thread_id = excluded.thread_id, data = excluded.data, crawled_at = excluded.crawled_at`

// SQLiteSink upserts records into a local SQLite file
type SQLiteSink struct {
	db  *sql.DB
	log *logger.Logger
}

// NewSQLiteSink opens or creates the database at path
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, crawlerrors.NewStorage("sqlite", "failed to create database directory", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, crawlerrors.NewStorage("sqlite", "failed to open database", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, crawlerrors.NewStorage("sqlite", "failed to enable WAL mode", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, crawlerrors.NewStorage("sqlite", "failed to create tables", err)
	}

	return &SQLiteSink{db: db, log: logger.ForSink("sqlite")}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

// Write upserts records in one transaction
func (s *SQLiteSink) Write(ctx context.Context, source crawler.Source, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows, err := toRows(source, records)
	if err != nil {
		return crawlerrors.NewStorage("sqlite", "failed to encode records", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return crawlerrors.NewStorage("sqlite", "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return crawlerrors.NewStorage("sqlite", "failed to prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.source, r.url, r.threadID, string(r.data), now); err != nil {
			return crawlerrors.NewStorage("sqlite", "upsert failed at "+r.url, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return crawlerrors.NewStorage("sqlite", "failed to commit", err)
	}

	s.log.Info().Str("source", string(source)).Int("records", len(rows)).Msg("Upserted records")
	return nil
}

// Count returns the number of stored rows for source
func (s *SQLiteSink) Count(ctx context.Context, source crawler.Source) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE source = ?`, string(source)).Scan(&n)
	return n, err
}

// Load returns the stored JSON of one listing
func (s *SQLiteSink) Load(ctx context.Context, source crawler.Source, url string) (string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM listings WHERE source = ? AND url = ?`, string(source), url).Scan(&data)
	return data, err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

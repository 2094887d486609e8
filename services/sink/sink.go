package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/internal/crawler"
)

// Sink stores the records of one crawl run
type Sink interface {
	// Name returns the sink's name for logging
	Name() string

	// Write stores records scraped from source
	Write(ctx context.Context, source crawler.Source, records []crawler.Record) error

	// Close releases the sink's resources
	Close() error
}

// New creates every sink listed in cfg.OutputSinks. Sinks created before a
// failure are closed.
func New(ctx context.Context, cfg *config.Config) ([]Sink, error) {
	var sinks []Sink
	for _, name := range cfg.OutputSinks {
		var (
			s   Sink
			err error
		)
		switch name {
		case config.SinkCSV:
			s = NewCSVSink(cfg.CSVDir)
		case config.SinkPostgres:
			s, err = NewPostgresSink(ctx, cfg.PostgresDSN)
		case config.SinkSQLite:
			s, err = NewSQLiteSink(ctx, cfg.SQLitePath)
		default:
			err = fmt.Errorf("unknown sink %q", name)
		}
		if err != nil {
			CloseAll(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// CloseAll closes every sink, returning the first error
func CloseAll(sinks []Sink) error {
	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// row is the storage form shared by the SQL sinks
type row struct {
	source   string
	threadID string
	url      string
	data     []byte
}

func toRows(source crawler.Source, records []crawler.Record) ([]row, error) {
	rows := make([]row, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", r.URL(), err)
		}
		rows = append(rows, row{
			source:   string(source),
			threadID: r.ID(),
			url:      r.URL(),
			data:     data,
		})
	}
	return rows, nil
}

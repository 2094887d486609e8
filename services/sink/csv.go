package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
)

// CSVSink writes each source's records to <dir>/<source>.csv, replacing
// the previous run's file
type CSVSink struct {
	dir string
	log *logger.Logger
}

// NewCSVSink creates a CSV sink writing into dir
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir, log: logger.ForSink("csv")}
}

func (s *CSVSink) Name() string { return "csv" }

// Path returns the file a source is written to
func (s *CSVSink) Path(source crawler.Source) string {
	return filepath.Join(s.dir, string(source)+".csv")
}

// Write saves records as CSV. The header is the union of every record's
// columns in first-seen order; a record without a column gets "N/A".
func (s *CSVSink) Write(_ context.Context, source crawler.Source, records []crawler.Record) error {
	if len(records) == 0 {
		s.log.Warn().Str("source", string(source)).Msg("No records to write")
		return nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return crawlerrors.NewStorage("csv", "could not create output dir", err)
	}

	header, rows := tabulate(records)

	path := s.Path(source)
	tmp, err := os.CreateTemp(s.dir, string(source)+"-*.csv.tmp")
	if err != nil {
		return crawlerrors.NewStorage("csv", "could not create file", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	writer.Write(header)
	writer.WriteAll(rows)

	if err := writer.Error(); err != nil {
		tmp.Close()
		return crawlerrors.NewStorage("csv", "csv write error", err)
	}
	if err := tmp.Close(); err != nil {
		return crawlerrors.NewStorage("csv", "could not close file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return crawlerrors.NewStorage("csv", "could not replace "+path, err)
	}

	s.log.Info().Int("records", len(records)).Str("path", path).Msg("Saved records")
	return nil
}

func (s *CSVSink) Close() error { return nil }

func tabulate(records []crawler.Record) ([]string, [][]string) {
	var header []string
	index := make(map[string]int)
	values := make([]map[string]string, len(records))

	for i, r := range records {
		values[i] = make(map[string]string)
		for _, f := range r.Fields() {
			if _, ok := index[f.Name]; !ok {
				index[f.Name] = len(header)
				header = append(header, f.Name)
			}
			values[i][f.Name] = f.Value
		}
	}

	rows := make([][]string, len(records))
	for i := range records {
		row := make([]string, len(header))
		for j, name := range header {
			v, ok := values[i][name]
			if !ok {
				v = crawler.NotAvailable
			}
			row[j] = v
		}
		rows[i] = row
	}
	return header, rows
}

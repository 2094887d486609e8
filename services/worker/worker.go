package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/services/metrics"
	"sjsage522/listingworker/services/publisher"
	"sjsage522/listingworker/services/sink"
)

// DefaultCrawlInterval is used when Options.CrawlInterval is not positive
const DefaultCrawlInterval = time.Hour

// Options controls how a crawl run walks a source
type Options struct {
	CrawlInterval     time.Duration
	MaxPages          int
	MaxRetries        int
	RetryBackoff      time.Duration
	DetailConcurrency int
}

// RunResult summarizes one source's crawl run
type RunResult struct {
	Source   string        `json:"source"`
	Pages    int           `json:"pages"`
	Listings int           `json:"listings"`
	Records  int           `json:"records"`
	Failures int           `json:"failures"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      error         `json:"-"`
}

// Worker handles the crawling, storing and publishing process
type Worker struct {
	crawlers  []crawler.Crawler
	publisher publisher.Publisher
	sinks     []sink.Sink
	metrics   *metrics.Metrics
	opts      Options
	log       *logger.Logger

	mu      sync.Mutex
	lastRun map[string]RunResult
}

// NewWorker creates a new worker. pub and m may be nil.
func NewWorker(
	crawlers []crawler.Crawler,
	pub publisher.Publisher,
	sinks []sink.Sink,
	m *metrics.Metrics,
	opts Options,
) *Worker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.DetailConcurrency < 1 {
		opts.DetailConcurrency = 1
	}
	if opts.CrawlInterval <= 0 {
		opts.CrawlInterval = DefaultCrawlInterval
	}
	return &Worker{
		crawlers:  crawlers,
		publisher: pub,
		sinks:     sinks,
		metrics:   m,
		opts:      opts,
		log:       logger.ForWorker(),
		lastRun:   make(map[string]RunResult),
	}
}

// Start runs crawl passes every CrawlInterval until ctx is done
func (w *Worker) Start(ctx context.Context) error {
	for {
		start := time.Now()
		w.RunOnce(ctx)
		w.log.Info().Dur("elapsed", time.Since(start)).Msg("Crawl pass finished")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.opts.CrawlInterval):
		}
	}
}

// RunOnce runs all the crawlers in parallel and then trims the streams
func (w *Worker) RunOnce(ctx context.Context) []RunResult {
	results := make([]RunResult, len(w.crawlers))

	var wg sync.WaitGroup
	for i, c := range w.crawlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = w.crawlSource(ctx, c)
		}()
	}
	wg.Wait()

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(ctx); err != nil {
			logger.LogError("StreamTrimming", err, "Failed to trim streams")
		}
	}
	return results
}

// Health reports the last run of every source
func (w *Worker) Health() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	runs := make(map[string]interface{}, len(w.lastRun))
	for source, r := range w.lastRun {
		entry := map[string]interface{}{
			"started":  r.Started.Format(time.RFC3339),
			"elapsed":  r.Elapsed.String(),
			"pages":    r.Pages,
			"records":  r.Records,
			"failures": r.Failures,
		}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		}
		runs[source] = entry
	}
	return map[string]interface{}{"runs": runs}
}

// crawlSource walks every listing page of one source, fetches the details
// and hands the records to the sinks and the publisher. A page failure ends
// the run for this source only.
func (w *Worker) crawlSource(ctx context.Context, c crawler.Crawler) (result RunResult) {
	source := string(c.Source())
	log := logger.ForCrawler(c.GetName())
	result = RunResult{Source: source, Started: time.Now()}

	defer func() {
		result.Elapsed = time.Since(result.Started)
		w.metrics.ObserveRun(source, result.Elapsed, result.Err == nil)
		w.mu.Lock()
		w.lastRun[source] = result
		w.mu.Unlock()
	}()

	sess := crawler.NewCrawlSession(c.GetProvider())

	var pages int
	err := w.retry(ctx, func() error {
		var err error
		pages, err = c.PageCount(ctx, sess)
		return err
	})
	if err != nil {
		w.metrics.IncPageFailure(source)
		log.Error().Err(err).Msg("Failed to read page count")
		result.Err = err
		return result
	}
	if w.opts.MaxPages > 0 && pages > w.opts.MaxPages {
		pages = w.opts.MaxPages
	}
	result.Pages = pages
	log.Info().Int("pages", pages).Msg("Crawling source")

	var listings []crawler.ListingSummary
	seen := make(map[string]struct{})
	for page := 1; page <= pages; page++ {
		var found []crawler.ListingSummary
		err := w.retry(ctx, func() error {
			var err error
			found, err = c.ListingURLs(ctx, sess, page)
			return err
		})
		if err != nil {
			w.metrics.IncPageFailure(source)
			log.Error().Err(err).Int("page", page).Msg("Failed to fetch listing page, aborting source")
			result.Err = err
			return result
		}
		w.metrics.IncPage(source)

		for _, l := range found {
			if _, dup := seen[l.URL]; dup {
				continue
			}
			seen[l.URL] = struct{}{}
			listings = append(listings, l)
		}
	}
	result.Listings = len(listings)

	records, failures := w.fetchListings(ctx, c, listings)
	result.Records = len(records)
	result.Failures = failures

	if len(records) > 0 {
		if data, err := json.Marshal(records[0]); err == nil {
			log.Debug().RawJSON("record", data).Msg("First record")
		}
	}

	w.store(ctx, c.Source(), records)
	w.publish(ctx, source, records)

	log.Info().
		Int("listings", result.Listings).
		Int("records", result.Records).
		Int("failures", result.Failures).
		Msg("Source crawled")
	return result
}

// fetchListings fetches details with at most DetailConcurrency requests in
// flight. Records keep discovery order; failed listings are logged, counted
// and left out.
func (w *Worker) fetchListings(ctx context.Context, c crawler.Crawler, listings []crawler.ListingSummary) ([]crawler.Record, int) {
	source := string(c.Source())
	log := logger.ForCrawler(c.GetName())
	slots := make([]crawler.Record, len(listings))
	var failures atomic.Int64

	var g errgroup.Group
	g.SetLimit(w.opts.DetailConcurrency)

	for i, l := range listings {
		if ctx.Err() != nil {
			failures.Add(int64(len(listings) - i))
			break
		}
		g.Go(func() error {
			var record crawler.Record
			err := w.retry(ctx, func() error {
				var err error
				record, err = c.FetchListing(ctx, l)
				return err
			})
			if err != nil {
				failures.Add(1)
				w.metrics.IncListingFailure(source, string(crawlerrors.TypeOf(err)))
				log.Warn().Err(err).Str("url", l.URL).Msg("Skipping listing")
				return nil
			}
			w.metrics.IncListing(source)
			slots[i] = record
			return nil
		})
	}
	g.Wait()

	records := make([]crawler.Record, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			records = append(records, r)
		}
	}
	return records, int(failures.Load())
}

func (w *Worker) store(ctx context.Context, source crawler.Source, records []crawler.Record) {
	for _, s := range w.sinks {
		if err := s.Write(ctx, source, records); err != nil {
			w.metrics.IncSinkFailure(s.Name())
			logger.LogError(s.Name(), err, "Failed to write %d %s records", len(records), source)
		}
	}
}

func (w *Worker) publish(ctx context.Context, source string, records []crawler.Record) {
	if w.publisher == nil {
		return
	}

	published := 0
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			logger.LogError(source, err, "Failed to encode record %s", r.URL())
			continue
		}
		if err := w.publisher.Publish(ctx, source, data); err != nil {
			logger.LogError(source, err, "Failed to publish record %s", r.URL())
			continue
		}
		published++
	}
	w.metrics.AddPublished(source, published)
}

func (w *Worker) retry(ctx context.Context, fn func() error) error {
	return helpers.Retry(ctx, w.opts.MaxRetries, w.opts.RetryBackoff, fn)
}

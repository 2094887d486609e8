package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the worker. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	Registry *prometheus.Registry

	ListingsExtracted *prometheus.CounterVec
	ListingFailures   *prometheus.CounterVec
	PagesFetched      *prometheus.CounterVec
	PageFailures      *prometheus.CounterVec
	RecordsPublished  *prometheus.CounterVec
	SinkFailures      *prometheus.CounterVec
	CrawlDuration     *prometheus.HistogramVec
	LastSuccess       *prometheus.GaugeVec
}

// NewMetrics registers the worker's metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ListingsExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingworker_listings_extracted_total",
			Help: "The total number of listing records extracted",
		}, []string{"source"}),
		ListingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingworker_listing_failures_total",
			Help: "The total number of listings skipped after an error",
		}, []string{"source", "type"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingworker_pages_fetched_total",
			Help: "The total number of listing pages fetched",
		}, []string{"source"}),
		PageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingworker_page_failures_total",
			Help: "The total number of listing pages that aborted a run",
		}, []string{"source"}),
		RecordsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingworker_records_published_total",
			Help: "The total number of records published to the stream",
		}, []string{"source"}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingworker_sink_failures_total",
			Help: "The total number of failed sink writes",
		}, []string{"sink"}),
		CrawlDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listingworker_crawl_duration_seconds",
			Help:    "Duration of one source's crawl run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"source"}),
		LastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "listingworker_last_success_timestamp_seconds",
			Help: "Unix time of the last completed crawl run",
		}, []string{"source"}),
	}
}

func (m *Metrics) IncListing(source string) {
	if m == nil {
		return
	}
	m.ListingsExtracted.WithLabelValues(source).Inc()
}

func (m *Metrics) IncListingFailure(source, errType string) {
	if m == nil {
		return
	}
	if errType == "" {
		errType = "unknown"
	}
	m.ListingFailures.WithLabelValues(source, errType).Inc()
}

func (m *Metrics) IncPage(source string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(source).Inc()
}

func (m *Metrics) IncPageFailure(source string) {
	if m == nil {
		return
	}
	m.PageFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) AddPublished(source string, n int) {
	if m == nil {
		return
	}
	m.RecordsPublished.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncSinkFailure(sink string) {
	if m == nil {
		return
	}
	m.SinkFailures.WithLabelValues(sink).Inc()
}

// ObserveRun records a finished run of source
func (m *Metrics) ObserveRun(source string, elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.CrawlDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if ok {
		m.LastSuccess.WithLabelValues(source).SetToCurrentTime()
	}
}

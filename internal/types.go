package internal

import (
	"context"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/services/cache"
	"sjsage522/listingworker/services/metrics"
	"sjsage522/listingworker/services/publisher"
	"sjsage522/listingworker/services/sink"
)

// Dependencies holds all service dependencies
type Dependencies struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Sinks     []sink.Sink
	Metrics   *metrics.Metrics
	Renderer  *crawler.ChromeRenderer
}

// NewDependencies connects every service the configuration enables
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{
		Cache:   cache.New(cfg.MemcacheAddr),
		Metrics: metrics.NewMetrics(),
	}
	if cfg.MemcacheAddr != "" {
		logger.Info("Using Memcache at %s", cfg.MemcacheAddr)
	} else {
		logger.Info("Using in-memory cache")
	}

	if cfg.RedisAddr != "" {
		pub := publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStreamPrefix, cfg.RedisStreamMaxLength)
		if err := pub.Ping(ctx); err != nil {
			pub.Close()
			return nil, crawlerrors.NewConfiguration("redis unreachable at "+cfg.RedisAddr, err)
		}
		deps.Publisher = pub
		logger.Info("Connected to Redis at %s (DB: %d, Prefix: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStreamPrefix)
	}

	sinks, err := sink.New(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Sinks = sinks

	if cfg.HasSource(config.SourceChotot) {
		deps.Renderer = crawler.NewChromeRenderer("Chotot", cfg.UserAgent, cfg.ChromeHeadless, cfg.PageLoadWait, cfg.RequestTimeout)
	}
	return deps, nil
}

// CrawlerRenderer returns the renderer as a crawler.Renderer, nil when no
// browser was started
func (d *Dependencies) CrawlerRenderer() crawler.Renderer {
	if d.Renderer == nil {
		return nil
	}
	return d.Renderer
}

// Close releases every service
func (d *Dependencies) Close() {
	if d.Renderer != nil {
		d.Renderer.Close()
	}
	if err := sink.CloseAll(d.Sinks); err != nil {
		logger.LogError("Sinks", err, "Failed to close sinks")
	}
	if d.Publisher != nil {
		d.Publisher.Close()
	}
}

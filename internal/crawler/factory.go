package crawler

import (
	"time"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/services/cache"
)

// CreateCrawlers creates the crawlers for every source enabled in cfg.
// renderer is only used by sources that need client-side rendering and may
// be nil when none are enabled.
func CreateCrawlers(cfg *config.Config, cacheSvc cache.CacheService, renderer Renderer) []Crawler {
	dates := NewDateNormalizer(cfg.Location())
	var crawlers []Crawler

	if cfg.HasSource(config.SourceNhattao) {
		crawlers = append(crawlers, NewNhattaoCrawler(cfg, cacheSvc, dates))
	}

	if cfg.HasSource(config.SourceChotot) {
		if renderer == nil {
			logger.Warn("Skipping %s: no renderer configured", config.SourceChotot)
		} else {
			crawlers = append(crawlers, NewChototCrawler(cfg, cacheSvc, renderer, dates))
		}
	}

	log := logger.ForWorker()
	log.Info().Int("count", len(crawlers)).Msg("Created crawlers")
	for i, c := range crawlers {
		log.Debug().Int("index", i).Str("crawler", c.GetName()).Str("provider", c.GetProvider()).Msg("Crawler ready")
	}
	return crawlers
}

// NewNhattaoCrawler creates the nhattao crawler from configuration
func NewNhattaoCrawler(cfg *config.Config, cacheSvc cache.CacheService, dates DateNormalizer) *NhattaoCrawler {
	const provider = "Nhattao"
	return &NhattaoCrawler{
		BaseCrawler: BaseCrawler{
			Name:      "NhattaoCrawler",
			Provider:  provider,
			Origin:    cfg.NhattaoOrigin,
			CacheKey:  "nhattao_rate_limited",
			CacheSvc:  cacheSvc,
			BlockTime: blockTime(cfg),
			Dates:     dates,
			log:       logger.ForCrawler("NhattaoCrawler"),
		},
		URL:         cfg.NhattaoURL,
		Fetcher:     helpers.NewFetcher(provider, cfg.UserAgent, cfg.RequestTimeout),
		Selectors:   DefaultNhattaoSelectors,
		SearchIDTTL: cfg.SearchIDTTL,
	}
}

// NewChototCrawler creates the chotot crawler from configuration
func NewChototCrawler(cfg *config.Config, cacheSvc cache.CacheService, renderer Renderer, dates DateNormalizer) *ChototCrawler {
	return &ChototCrawler{
		BaseCrawler: BaseCrawler{
			Name:      "ChototCrawler",
			Provider:  "Chotot",
			Origin:    cfg.ChototOrigin,
			CacheKey:  "chotot_rate_limited",
			CacheSvc:  cacheSvc,
			BlockTime: blockTime(cfg),
			Dates:     dates,
			log:       logger.ForCrawler("ChototCrawler"),
		},
		URL:       cfg.ChototURL,
		Renderer:  renderer,
		Selectors: DefaultChototSelectors,
	}
}

func blockTime(cfg *config.Config) time.Duration {
	if cfg.RateLimitBlock <= 0 {
		return 5 * time.Minute
	}
	return cfg.RateLimitBlock
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on minimal images
)

// Source names accepted in SOURCES and --source
const (
	SourceNhattao = "nhattao"
	SourceChotot  = "chotot"
)

// Sink names accepted in OUTPUT_SINKS
const (
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

// DefaultUserAgent is the browser-like user agent sent with every request
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_14_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/77.0.3865.90 Safari/537.36"

// Config represents the application configuration
type Config struct {
	// Sources to crawl
	Sources []string

	// Nhattao
	NhattaoURL    string
	NhattaoOrigin string

	// Chotot
	ChototURL      string
	ChototOrigin   string
	PageLoadWait   time.Duration
	ChromeHeadless bool

	// Transport
	UserAgent         string
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	DetailConcurrency int
	MaxPages          int
	Timezone          string

	// Crawl loop
	CrawlInterval time.Duration

	// Memcache configuration
	MemcacheAddr   string
	RateLimitBlock time.Duration
	SearchIDTTL    time.Duration

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStreamPrefix    string
	RedisStreamMaxLength int

	// Output
	OutputSinks []string
	CSVDir      string
	PostgresDSN string
	SQLitePath  string

	// Metrics endpoint, empty disables it
	MetricsAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Sources:        getList("SOURCES", "nhattao,chotot"),
		NhattaoURL:     getEnv("NHATTAO_URL", "https://nhattao.com/f/dien-thoai-di-dong.3/"),
		NhattaoOrigin:  getEnv("NHATTAO_ORIGIN", "https://nhattao.com/"),
		ChototURL:      getEnv("CHOTOT_URL", "https://nha.chotot.com/toan-quoc/mua-ban-nha-dat"),
		ChototOrigin:   getEnv("CHOTOT_ORIGIN", "https://nha.chotot.com"),
		PageLoadWait:   time.Duration(getInt("PAGE_LOAD_WAIT_MS", 3000)) * time.Millisecond,
		ChromeHeadless: getBool("CHROME_HEADLESS", true),

		UserAgent:         getEnv("USER_AGENT", DefaultUserAgent),
		RequestTimeout:    time.Duration(getInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxRetries:        getInt("MAX_RETRIES", 3),
		RetryBackoff:      time.Duration(getInt("RETRY_BACKOFF_MS", 500)) * time.Millisecond,
		DetailConcurrency: getInt("DETAIL_CONCURRENCY", 4),
		MaxPages:          getInt("MAX_PAGES", 0),
		Timezone:          getEnv("TIMEZONE", "Asia/Ho_Chi_Minh"),

		CrawlInterval: time.Duration(getInt("CRAWL_INTERVAL_SECONDS", 3600)) * time.Second,

		MemcacheAddr:   getEnv("MEMCACHE_ADDR", ""),
		RateLimitBlock: time.Duration(getInt("RATE_LIMIT_BLOCK_SECONDS", 300)) * time.Second,
		SearchIDTTL:    time.Duration(getInt("SEARCH_ID_TTL_SECONDS", 1800)) * time.Second,

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getInt("REDIS_DB", 0),
		RedisStreamPrefix:    getEnv("REDIS_STREAM_PREFIX", "listings"),
		RedisStreamMaxLength: getInt("REDIS_STREAM_MAX_LENGTH", 10000),

		OutputSinks: getList("OUTPUT_SINKS", "csv"),
		CSVDir:      getEnv("CSV_DIR", "output"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "output/listings.db"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		Environment: getEnv("LISTING_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the worker cannot run with
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("no sources configured")
	}
	for _, s := range c.Sources {
		if s != SourceNhattao && s != SourceChotot {
			return fmt.Errorf("unknown source %q", s)
		}
	}
	for _, s := range c.OutputSinks {
		switch s {
		case SinkCSV:
		case SinkPostgres:
			if c.PostgresDSN == "" {
				return fmt.Errorf("sink %q requires POSTGRES_DSN", s)
			}
		case SinkSQLite:
			if c.SQLitePath == "" {
				return fmt.Errorf("sink %q requires SQLITE_PATH", s)
			}
		default:
			return fmt.Errorf("unknown sink %q", s)
		}
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.DetailConcurrency < 1 {
		return fmt.Errorf("DETAIL_CONCURRENCY must be at least 1, got %d", c.DetailConcurrency)
	}
	if c.CrawlInterval <= 0 {
		return fmt.Errorf("CRAWL_INTERVAL_SECONDS must be positive, got %v", c.CrawlInterval)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("MAX_PAGES must not be negative, got %d", c.MaxPages)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured timezone, falling back to local time
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// HasSource reports whether the named source is enabled
func (c *Config) HasSource(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

// getList splits a comma separated variable, dropping blanks
func getList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

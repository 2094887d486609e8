package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/internal"
	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/services/metrics"
	"sjsage522/listingworker/services/worker"
)

type runFlags struct {
	sources  []string
	sinks    []string
	maxPages int
	once     bool
	summary  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "listingworker",
		Short: "Crawl classified listings from nhattao.com and nha.chotot.com",
		Long: `listingworker walks the listing pages of the configured sources, extracts
every listing into a flat record and writes the records to the configured
sinks and Redis streams.

Configuration is read from the environment (and a .env file when present).
Flags override the matching environment values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.sources, "source", nil, "sources to crawl (nhattao, chotot)")
	cmd.Flags().StringSliceVar(&flags.sinks, "sink", nil, "output sinks (csv, postgres, sqlite)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", -1, "stop after this many listing pages per source, 0 for all")
	cmd.Flags().BoolVar(&flags.once, "once", false, "run a single crawl pass and exit")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "print the run results as JSON (with --once)")

	return cmd
}

func run(cmd *cobra.Command, flags *runFlags) error {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	cfg := config.LoadConfig()
	if cmd.Flags().Changed("source") {
		cfg.Sources = flags.sources
	}
	if cmd.Flags().Changed("sink") {
		cfg.OutputSinks = flags.sinks
	}
	if flags.maxPages >= 0 {
		cfg.MaxPages = flags.maxPages
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().
		Str("environment", cfg.Environment).
		Strs("sources", cfg.Sources).
		Strs("sinks", cfg.OutputSinks).
		Dur("crawl_interval", cfg.CrawlInterval).
		Msg("Starting application")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := internal.NewDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer deps.Close()

	crawlers := crawler.CreateCrawlers(cfg, deps.Cache, deps.CrawlerRenderer())
	if len(crawlers) == 0 {
		return fmt.Errorf("no crawlers were created")
	}

	w := worker.NewWorker(crawlers, deps.Publisher, deps.Sinks, deps.Metrics, worker.Options{
		CrawlInterval:     cfg.CrawlInterval,
		MaxPages:          cfg.MaxPages,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		DetailConcurrency: cfg.DetailConcurrency,
	})

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, deps.Metrics, w.Health)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.LogError("MetricsServer", err, "Metrics server stopped")
			}
		}()
	}

	if flags.once {
		results := w.RunOnce(ctx)
		if flags.summary {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		}
		for _, r := range results {
			if r.Err != nil {
				return fmt.Errorf("%s: %w", r.Source, r.Err)
			}
		}
		return nil
	}

	log.Info().Int("crawler_count", len(crawlers)).Msg("Starting listing worker")
	err = w.Start(ctx)

	log.Info().Msg("Shutting down gracefully...")
	return err
}

package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
)

// ChromeRenderer renders client-side pages in a shared headless Chrome
type ChromeRenderer struct {
	Provider string
	Settle   time.Duration
	Timeout  time.Duration

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	start         func(ctx context.Context) error

	log *logger.Logger
}

// NewChromeRenderer creates a renderer. Chrome is started on the first Render.
func NewChromeRenderer(provider, userAgent string, headless bool, settle, timeout time.Duration) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeRenderer{
		Provider:    provider,
		Settle:      settle,
		Timeout:     timeout,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		start:       func(ctx context.Context) error { return chromedp.Run(ctx) },
		log:         logger.ForCrawler(provider).WithField("renderer", "chrome"),
	}
}

// Render navigates to rawURL, waits Settle for client rendering and returns
// the document's outer HTML
func (r *ChromeRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", crawlerrors.NewNetwork(r.Provider, "failed to start chrome", err)
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.Settle+r.Timeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(r.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", crawlerrors.NewNetwork(r.Provider, "failed to render "+rawURL, err)
	}

	r.log.Debug().
		Str("url", rawURL).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(html)).
		Msg("Rendered page")
	return html, nil
}

// browser returns the shared browser context, starting Chrome when none is
// running. A failed start is discarded so the next call tries again.
func (r *ChromeRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	ctx, cancel := chromedp.NewContext(r.allocCtx)
	if err := r.start(ctx); err != nil {
		cancel()
		r.log.Warn().Err(err).Msg("Chrome failed to start")
		return nil, err
	}
	r.browserCtx, r.browserCancel = ctx, cancel
	return ctx, nil
}

// Close shuts the browser down
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCtx, r.browserCancel = nil, nil
	}
	r.allocCancel()
	return nil
}

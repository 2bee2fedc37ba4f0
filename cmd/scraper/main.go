package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okoval/grocery-price-scraper/internal/browser"
	"github.com/okoval/grocery-price-scraper/internal/config"
	"github.com/okoval/grocery-price-scraper/internal/models"
	"github.com/okoval/grocery-price-scraper/internal/ratelimit"
	"github.com/okoval/grocery-price-scraper/internal/scraper"
	"github.com/okoval/grocery-price-scraper/internal/session"
	"github.com/okoval/grocery-price-scraper/pkg/logger"
)

// main defers nothing itself; run owns the browser and page lifetime
// so their deferred Close calls fire before the process exits.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		site        = flag.String("site", "", "Site profile to scrape (fora, novus); overrides SCRAPER_SITE")
		maxPages    = flag.Int("pages", 0, "Number of category pages to walk; overrides SCRAPER_MAX_PAGES")
		sessionDir  = flag.String("out", "", "Directory for session artifacts; overrides SCRAPER_SESSION_DIR")
		headless    = flag.Bool("headless", true, "Run browser in headless mode")
		metricsAddr = flag.String("metrics-addr", "", "Optional address to serve Prometheus metrics on (e.g. :9090)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if *site != "" {
		cfg.Scraper.Site = *site
	}
	if *maxPages > 0 {
		cfg.Scraper.MaxPages = *maxPages
	}
	if *sessionDir != "" {
		cfg.Scraper.SessionDir = *sessionDir
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	profile, err := scraper.ProfileFor(cfg.Scraper.Site)
	if err != nil {
		logger.Error("unknown site", "site", cfg.Scraper.Site, "error", err)
		return 1
	}
	profile.Price.Min = cfg.Scraper.PriceMin
	profile.Price.Max = cfg.Scraper.PriceMax

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	metrics := scraper.NewMetrics()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	b, err := browser.New(&browser.Options{
		Headless:       *headless && cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      browser.DefaultOptions().UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
		ExtraHeaders:   browser.DefaultOptions().ExtraHeaders,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		return 1
	}
	defer b.Close()

	page, err := b.NewPage()
	if err != nil {
		logger.Error("failed to open page", "error", err)
		return 1
	}
	defer page.Close()

	pageScraper, err := scraper.NewPageScraper(page, profile)
	if err != nil {
		logger.Error("failed to build page scraper", "error", err)
		return 1
	}

	limiter := ratelimit.NewBackoffRateLimiter(cfg.Scraper.DelayMin, cfg.Scraper.DelayMax)
	driver := scraper.NewDriver(pageScraper, profile, limiter, metrics)

	writer, err := session.NewWriter(cfg.Scraper.SessionDir)
	if err != nil {
		logger.Error("failed to prepare session directory", "error", err)
		return 1
	}

	run := models.NewRunContext(profile.Name, profile.Category, profile.Currency,
		cfg.Scraper.MaxPages, time.Now())

	logger.Info("starting scrape",
		"site", profile.Name,
		"category", profile.Category,
		"session_id", run.SessionID,
		"max_pages", run.MaxPages)

	result, runErr := driver.Run(ctx, run)

	// Partial results are still worth keeping on cancellation.
	path, err := writer.Write(result)
	if err != nil {
		logger.Error("failed to write session artifact", "error", err)
		return 1
	}

	logger.Info("session written",
		"path", path,
		"items", len(result.Items),
		"fails", len(result.Fails))

	if isFatalRunError(runErr) {
		logger.Error("scrape ended with error", "error", runErr)
		return 1
	}
	return 0
}

// isFatalRunError reports whether the run outcome should fail the
// process. Cancellation is an operator stopping the run, not a
// failure.
func isFatalRunError(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

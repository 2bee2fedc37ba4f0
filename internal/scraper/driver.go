package scraper

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okoval/grocery-price-scraper/internal/extract"
	"github.com/okoval/grocery-price-scraper/internal/models"
	"github.com/okoval/grocery-price-scraper/internal/ratelimit"
)

// seenCacheSize bounds the per-run dedup cache. Category runs are a
// few thousand items at most, so evictions are not expected in practice.
const seenCacheSize = 8192

// PageFetcher extracts raw items from one category page URL.
type PageFetcher interface {
	ScrapePage(ctx context.Context, pageURL string) ([]models.RawItem, error)
}

// Driver walks the numbered pages of one category and aggregates the
// results into a session. A failed page is recorded and skipped; only
// context cancellation ends the run early.
type Driver struct {
	fetcher PageFetcher
	profile Profile
	limiter *ratelimit.BackoffRateLimiter
	metrics *Metrics
	logger  *slog.Logger
}

// NewDriver wires a page fetcher to the pagination loop. metrics may
// be nil when no collection endpoint is running.
func NewDriver(fetcher PageFetcher, profile Profile, limiter *ratelimit.BackoffRateLimiter, metrics *Metrics) *Driver {
	return &Driver{
		fetcher: fetcher,
		profile: profile,
		limiter: limiter,
		metrics: metrics,
		logger:  slog.Default().With("component", "driver", "site", profile.Name),
	}
}

// Run scrapes pages 1..run.MaxPages and returns the aggregated session.
// The session is returned even on early cancellation so partial results
// can still be written.
func (d *Driver) Run(ctx context.Context, run models.RunContext) (*models.ScrapeSession, error) {
	session := models.NewSession(run)

	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return session, err
	}

	for page := 1; page <= run.MaxPages; page++ {
		if page > 1 && d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return session, err
			}
		}
		if err := ctx.Err(); err != nil {
			return session, err
		}

		pageURL := PageURL(d.profile.CategoryURL, page)
		started := time.Now()

		raw, err := d.fetcher.ScrapePage(ctx, pageURL)
		d.metrics.ObservePageDuration(time.Since(started))

		if err != nil {
			d.logger.Warn("page failed", "page", page, "url", pageURL, "error", err)
			session.Fails = append(session.Fails, models.PageFailure{
				Page:  page,
				URL:   pageURL,
				Error: err.Error(),
			})
			d.metrics.IncPage("failed")
			if d.limiter != nil {
				d.limiter.RecordError()
			}
			continue
		}

		added := d.collect(session, run, raw, seen)

		d.logger.Info("page scraped",
			"page", page,
			"url", pageURL,
			"extracted", len(raw),
			"added", added)
		d.metrics.IncPage("ok")
		d.metrics.IncItems(added)
		if d.limiter != nil {
			d.limiter.RecordSuccess()
		}
	}

	d.logger.Info("run finished",
		"session_id", run.SessionID,
		"items", len(session.Items),
		"fails", len(session.Fails))

	return session, nil
}

// collect normalizes raw items and appends the unseen ones. A listing
// whose price text cannot be normalized is kept with a nil price; the
// URL is the identity key, not the price.
func (d *Driver) collect(session *models.ScrapeSession, run models.RunContext, raw []models.RawItem, seen *lru.Cache[string, struct{}]) int {
	added := 0
	for _, item := range raw {
		if _, dup := seen.Get(item.URL); dup {
			d.metrics.IncDuplicate()
			continue
		}
		seen.Add(item.URL, struct{}{})

		price := extract.NormalizePrice(item.PriceText, d.profile.Price)
		if price == nil && item.PriceText != "" {
			d.metrics.IncPriceRejected()
		}

		session.Items = append(session.Items, run.Listing(item, price))
		added++
	}
	return added
}

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okoval/grocery-price-scraper/internal/models"
)

// UpsertResult describes what the ingest of one listing changed.
type UpsertResult struct {
	IsNew        bool
	PriceChanged bool
	OldPrice     *float64
}

// ListingRepository persists normalized listings, their price history,
// and per-run session records.
type ListingRepository struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// UpsertWithTx writes one listing inside an ingest transaction and
// reports whether it is new or changed price. The URL is the listing
// identity; two listings with the same URL are the same product.
func (r *ListingRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, listing models.NormalizedListing) (UpsertResult, error) {
	var result UpsertResult

	var oldPrice *float64
	err := tx.QueryRow(ctx,
		`SELECT price FROM listings WHERE url = $1`, listing.URL).Scan(&oldPrice)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		result.IsNew = true
	case err != nil:
		return result, fmt.Errorf("failed to look up listing: %w", err)
	default:
		result.OldPrice = oldPrice
		result.PriceChanged = priceDiffers(oldPrice, listing.Price)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO listings (
			url, site_name, category, product_name,
			price, currency, image_url, session_id, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			price        = EXCLUDED.price,
			currency     = EXCLUDED.currency,
			image_url    = EXCLUDED.image_url,
			session_id   = EXCLUDED.session_id,
			scraped_at   = EXCLUDED.scraped_at,
			updated_at   = CURRENT_TIMESTAMP`,
		listing.URL, listing.SiteName, listing.Category, listing.ProductName,
		listing.Price, listing.Currency, listing.ImageURL, listing.SessionID, listing.ScrapedAt,
	)
	if err != nil {
		return result, fmt.Errorf("failed to upsert listing: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO price_history (url, site_name, price, session_id, scraped_at)
		VALUES ($1, $2, $3, $4, $5)`,
		listing.URL, listing.SiteName, listing.Price, listing.SessionID, listing.ScrapedAt,
	)
	if err != nil {
		return result, fmt.Errorf("failed to insert price history: %w", err)
	}

	return result, nil
}

// priceDiffers treats nil as a distinct state: a price appearing or
// disappearing counts as a change, two nils do not.
func priceDiffers(prev, curr *float64) bool {
	if prev == nil && curr == nil {
		return false
	}
	if prev == nil || curr == nil {
		return true
	}
	return *prev != *curr
}

// RecordSession stores the summary row for one completed scrape run.
func (r *ListingRepository) RecordSession(ctx context.Context, tx pgx.Tx, session *models.ScrapeSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO scrape_sessions (
			session_id, site_name, category, scraped_at,
			max_pages, item_count, fail_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			item_count = EXCLUDED.item_count,
			fail_count = EXCLUDED.fail_count`,
		session.SessionID, session.Site, session.Category, session.ScrapedAt,
		session.MaxPages, len(session.Items), len(session.Fails),
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// SiteStats summarizes the stored listings for one site.
type SiteStats struct {
	SiteName      string     `json:"site_name"`
	ListingCount  int64      `json:"listing_count"`
	PricedCount   int64      `json:"priced_count"`
	AvgPrice      *float64   `json:"avg_price"`
	LastScrapedAt *time.Time `json:"last_scraped_at"`
}

// GetSiteStats aggregates listing counts and average price per site.
func (r *ListingRepository) GetSiteStats(ctx context.Context) ([]SiteStats, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT
			site_name,
			COUNT(*),
			COUNT(price),
			AVG(price),
			MAX(scraped_at)
		FROM listings
		GROUP BY site_name
		ORDER BY site_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query site stats: %w", err)
	}
	defer rows.Close()

	var stats []SiteStats
	for rows.Next() {
		var s SiteStats
		if err := rows.Scan(&s.SiteName, &s.ListingCount, &s.PricedCount, &s.AvgPrice, &s.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// SessionSummary is one row of the recent-session listing.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	SiteName  string    `json:"site_name"`
	Category  string    `json:"category"`
	ScrapedAt time.Time `json:"scraped_at"`
	MaxPages  int       `json:"max_pages"`
	ItemCount int       `json:"item_count"`
	FailCount int       `json:"fail_count"`
}

// GetRecentSessions returns the latest session summaries, newest first.
func (r *ListingRepository) GetRecentSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT session_id, site_name, category, scraped_at,
			max_pages, item_count, fail_count
		FROM scrape_sessions
		ORDER BY scraped_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.SiteName, &s.Category, &s.ScrapedAt,
			&s.MaxPages, &s.ItemCount, &s.FailCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return sessions, nil
}

// GetAllListings returns every stored listing, newest first. Used by
// the export tool.
func (r *ListingRepository) GetAllListings(ctx context.Context) ([]models.NormalizedListing, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT site_name, category, product_name, price,
			currency, image_url, url, scraped_at, session_id
		FROM listings
		ORDER BY scraped_at DESC, url`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []models.NormalizedListing
	for rows.Next() {
		var l models.NormalizedListing
		if err := rows.Scan(&l.SiteName, &l.Category, &l.ProductName, &l.Price,
			&l.Currency, &l.ImageURL, &l.URL, &l.ScrapedAt, &l.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return listings, nil
}

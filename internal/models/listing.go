package models

import (
	"time"
)

// RawItem is the untyped result of extracting one product card.
// URL is the only mandatory field; a card without a resolvable
// absolute URL never becomes a RawItem.
type RawItem struct {
	URL         string
	ProductName string
	PriceText   string
	ImageURL    string
}

// NormalizedListing is the durable record shape consumed downstream.
// Price is nil when the raw text was missing, unparseable, or outside
// the plausible bounds for the site.
type NormalizedListing struct {
	SiteName    string    `json:"site_name"`
	Category    string    `json:"category"`
	ProductName string    `json:"product_name,omitempty"`
	Price       *float64  `json:"price"`
	Currency    string    `json:"currency"`
	ImageURL    string    `json:"image_url,omitempty"`
	URL         string    `json:"url"`
	ScrapedAt   time.Time `json:"scraped_at"`
	SessionID   string    `json:"session_id"`
}

// PageFailure records one failed category page. Page is 1-based.
type PageFailure struct {
	Page  int    `json:"page"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ScrapeSession aggregates everything collected in one run.
// It is mutated only by the pagination driver and written once at run end.
type ScrapeSession struct {
	Site      string              `json:"site"`
	Category  string              `json:"category"`
	SessionID string              `json:"session_id"`
	ScrapedAt time.Time           `json:"scraped_at"`
	MaxPages  int                 `json:"max_pages"`
	Items     []NormalizedListing `json:"items"`
	Fails     []PageFailure       `json:"fails"`
}

// RunContext carries the constants shared by every page of one run.
type RunContext struct {
	Site      string
	Category  string
	Currency  string
	SessionID string
	ScrapedAt time.Time
	MaxPages  int
}

// NewRunContext fixes the session identity at run start. The session id
// is derived from the start timestamp so artifacts sort chronologically.
func NewRunContext(site, category, currency string, maxPages int, start time.Time) RunContext {
	start = start.UTC()
	return RunContext{
		Site:      site,
		Category:  category,
		Currency:  currency,
		SessionID: start.Format("20060102T150405Z"),
		ScrapedAt: start,
		MaxPages:  maxPages,
	}
}

// NewSession creates an empty session for a run. Items and Fails are
// non-nil so the JSON artifact carries [] rather than null.
func NewSession(run RunContext) *ScrapeSession {
	return &ScrapeSession{
		Site:      run.Site,
		Category:  run.Category,
		SessionID: run.SessionID,
		ScrapedAt: run.ScrapedAt,
		MaxPages:  run.MaxPages,
		Items:     make([]NormalizedListing, 0),
		Fails:     make([]PageFailure, 0),
	}
}

// Listing builds the durable record for one raw item using the
// session-wide constants from the run context.
func (rc RunContext) Listing(raw RawItem, price *float64) NormalizedListing {
	return NormalizedListing{
		SiteName:    rc.Site,
		Category:    rc.Category,
		ProductName: raw.ProductName,
		Price:       price,
		Currency:    rc.Currency,
		ImageURL:    raw.ImageURL,
		URL:         raw.URL,
		ScrapedAt:   rc.ScrapedAt,
		SessionID:   rc.SessionID,
	}
}

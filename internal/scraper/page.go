package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/okoval/grocery-price-scraper/internal/extract"
	"github.com/okoval/grocery-price-scraper/internal/models"
)

// Page is the minimal browsing surface the scraper needs. The
// production implementation wraps a real browser page; tests supply
// a fake serving canned HTML.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitForSelector(selector string, timeout time.Duration) error
	Content() (string, error)
}

// PageScraper turns one rendered category page into raw items.
// It holds no cross-page state; aggregation belongs to the driver.
type PageScraper struct {
	page    Page
	profile Profile
	base    *url.URL
	logger  *slog.Logger

	navTimeout  time.Duration
	waitTimeout time.Duration
	renderGrace time.Duration
}

// NewPageScraper binds a browsing page to a site profile.
func NewPageScraper(page Page, profile Profile) (*PageScraper, error) {
	base, err := BaseURL(profile.CategoryURL)
	if err != nil {
		return nil, err
	}

	return &PageScraper{
		page:        page,
		profile:     profile,
		base:        base,
		logger:      slog.Default().With("component", "page-scraper", "site", profile.Name),
		navTimeout:  30 * time.Second,
		waitTimeout: 4 * time.Second,
		renderGrace: 2 * time.Second,
	}, nil
}

// ScrapePage navigates to pageURL, waits for the product grid to
// render, and extracts every product card. Cards without a resolvable
// link are skipped; an empty page returns ErrEmptyPage so the caller
// can record the page as failed without aborting the run.
func (s *PageScraper) ScrapePage(ctx context.Context, pageURL string) ([]models.RawItem, error) {
	if err := s.page.Navigate(ctx, pageURL, s.navTimeout); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, pageURL, err)
	}

	s.awaitRender()

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page content: %w", err)
	}

	cards := extract.LocateCards(doc, s.profile.CardSelectors)
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, pageURL)
	}

	items := make([]models.RawItem, 0, len(cards))
	skipped := 0
	for _, card := range cards {
		item, ok := extract.ExtractItem(card, s.base, s.profile.Fields)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}

	s.logger.Debug("page extracted",
		"url", pageURL,
		"cards", len(cards),
		"items", len(items),
		"skipped", skipped)

	return items, nil
}

// awaitRender waits for any of the profile's render signals. When none
// appears within the per-selector timeout the page is given a fixed
// grace period instead; category grids on these sites render
// client-side and sometimes under unexpected markup.
func (s *PageScraper) awaitRender() {
	for _, selector := range s.profile.WaitSelectors {
		if err := s.page.WaitForSelector(selector, s.waitTimeout); err == nil {
			return
		}
	}

	s.logger.Debug("no render signal matched, applying grace period",
		"grace", s.renderGrace)
	time.Sleep(s.renderGrace)
}

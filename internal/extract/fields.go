package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/okoval/grocery-price-scraper/internal/models"
)

// FieldRules holds the per-field selector fallback chains for one site.
// Each chain is tried in priority order and the first selector that
// yields a value wins; partial values are never merged across patterns.
type FieldRules struct {
	Title []string
	Link  []string
	Price []string
	Image []string

	// ImageAttrs are tried in order on a matched image element.
	// Typically "src" first, then the site's lazy-load attribute.
	ImageAttrs []string
}

// DefaultImageAttrs covers the common explicit and lazy-load sources.
var DefaultImageAttrs = []string{"src", "data-src", "data-lazy-src"}

// ExtractItem pulls the raw fields from one product card. The second
// return value is false when the card has no resolvable absolute link,
// in which case the card is skipped entirely (URL is the mandatory key).
func ExtractItem(card *goquery.Selection, base *url.URL, rules FieldRules) (models.RawItem, bool) {
	link, ok := firstLink(card, base, rules.Link)
	if !ok {
		return models.RawItem{}, false
	}

	item := models.RawItem{
		URL:         link,
		ProductName: firstText(card, rules.Title),
		PriceText:   firstText(card, rules.Price),
		ImageURL:    firstImage(card, base, rules),
	}

	return item, true
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(card.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

func firstLink(card *goquery.Selection, base *url.URL, selectors []string) (string, bool) {
	if len(selectors) == 0 {
		selectors = []string{"a[href]"}
	}
	for _, selector := range selectors {
		href, exists := card.Find(selector).First().Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			continue
		}
		if abs := resolveURL(base, href); abs != "" {
			return abs, true
		}
	}
	return "", false
}

func firstImage(card *goquery.Selection, base *url.URL, rules FieldRules) string {
	attrs := rules.ImageAttrs
	if len(attrs) == 0 {
		attrs = DefaultImageAttrs
	}
	for _, selector := range rules.Image {
		img := card.Find(selector).First()
		if img.Length() == 0 {
			continue
		}
		for _, attr := range attrs {
			src, exists := img.Attr(attr)
			if !exists || strings.TrimSpace(src) == "" {
				continue
			}
			if abs := resolveURL(base, src); abs != "" {
				return abs
			}
		}
	}
	return ""
}

// resolveURL resolves ref against the page base and returns "" when the
// result is not an absolute http(s) URL.
func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

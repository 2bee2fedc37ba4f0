package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/okoval/grocery-price-scraper/internal/extract"
)

// Profile bundles everything site-specific: the category entry URL,
// the selectors that signal a rendered product grid, and the
// extraction rules for cards and fields. Everything else in the
// engine is site-agnostic.
type Profile struct {
	Name        string
	Currency    string
	CategoryURL string
	Category    string

	// WaitSelectors are tried as render signals after navigation.
	// The page is still parsed when none appears; SPAs sometimes
	// render the grid under markup none of these cover.
	WaitSelectors []string

	// CardSelectors locate product cards; overlapping patterns are
	// unioned and deduplicated downstream.
	CardSelectors []string

	Fields extract.FieldRules
	Price  extract.PriceRules
}

// Profiles holds the built-in site configurations, keyed by site name.
var Profiles = map[string]Profile{
	"fora": {
		Name:        "fora",
		Currency:    "UAH",
		CategoryURL: "https://fora.ua/category/moloko-2656",
		Category:    "dairy",
		WaitSelectors: []string{
			"div[class*='product-card']",
			"div[class*='ProductCard']",
			"[data-marker='catalog-product']",
		},
		CardSelectors: []string{
			"div[class*='product-card']",
			"div[class*='ProductCard']",
			"[data-marker='catalog-product']",
			"article[class*='product']",
		},
		Fields: extract.FieldRules{
			Title: []string{
				"[class*='product-card__title']",
				"[class*='title']",
				"a[href*='/product/']",
			},
			Link: []string{
				"a[href*='/product/']",
				"a[href]",
			},
			Price: []string{
				"[class*='current-price']",
				"[class*='price']",
			},
			Image: []string{"img"},
		},
		Price: extract.DefaultPriceRules(),
	},
	"novus": {
		Name:        "novus",
		Currency:    "UAH",
		CategoryURL: "https://novus.zakaz.ua/uk/categories/dairy-and-eggs-novus/",
		Category:    "dairy",
		WaitSelectors: []string{
			"[data-testid='product_tile']",
			"div[class*='ProductTile']",
			"li[class*='product-tile']",
		},
		CardSelectors: []string{
			"[data-testid='product_tile']",
			"div[class*='ProductTile']",
			"li[class*='product-tile']",
			"div[class*='product-card']",
		},
		Fields: extract.FieldRules{
			Title: []string{
				"[data-testid='product_tile_title']",
				"[class*='title']",
			},
			Link: []string{
				"a[href*='/products/']",
				"a[href]",
			},
			Price: []string{
				"[data-testid='product_tile_price']",
				"[class*='Price']",
				"[class*='price']",
			},
			Image: []string{"img"},
		},
		Price: extract.DefaultPriceRules(),
	},
}

// ProfileFor looks up a built-in site profile by name.
func ProfileFor(site string) (Profile, error) {
	profile, ok := Profiles[strings.ToLower(site)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownSite, site)
	}
	return profile, nil
}

// PageURL builds the URL for a 1-based page number. The first page is
// the bare category URL; later pages carry an explicit page parameter.
func PageURL(categoryURL string, page int) string {
	if page <= 1 {
		return categoryURL
	}
	if strings.Contains(categoryURL, "?") {
		return fmt.Sprintf("%s&page=%d", categoryURL, page)
	}
	return fmt.Sprintf("%s?page=%d", categoryURL, page)
}

// BaseURL extracts the scheme+host base used to resolve relative links.
func BaseURL(categoryURL string) (*url.URL, error) {
	parsed, err := url.Parse(categoryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid category url %q: %w", categoryURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("category url %q is not absolute", categoryURL)
	}
	return parsed, nil
}

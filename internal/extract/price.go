package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// PriceRules configures price normalization for one site and category.
// Symbols are stripped case-insensitively before parsing. Min and Max
// bound the plausible price range; values outside it are rejected as
// unit-price artifacts ("per 100g" tables) or concatenation garbage.
// The bounds are a heuristic guard, tuned per site, not a domain rule.
type PriceRules struct {
	Symbols []string
	Min     float64
	Max     float64
}

// DefaultPriceRules matches hryvnia price tags on Ukrainian grocery sites.
func DefaultPriceRules() PriceRules {
	return PriceRules{
		Symbols: []string{"₴", "грн", "uah", "/шт", "шт"},
		Min:     0.5,
		Max:     10000,
	}
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// NormalizePrice converts free-form localized price text into a bounded
// float. It returns nil for empty input, text with no numeric token,
// or a value outside the plausible bounds; it never guesses a number.
func NormalizePrice(text string, rules PriceRules) *float64 {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lowered := strings.ToLower(text)
	for _, symbol := range rules.Symbols {
		lowered = strings.ReplaceAll(lowered, strings.ToLower(symbol), "")
	}

	// Decimal comma is the norm on the target sites.
	lowered = strings.ReplaceAll(lowered, ",", ".")

	var compact strings.Builder
	for _, r := range lowered {
		switch r {
		case ' ', '\t', '\n', '\u00a0':
		default:
			compact.WriteRune(r)
		}
	}

	token := numberRe.FindString(compact.String())
	if token == "" {
		return nil
	}

	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil
	}
	if value < rules.Min || value > rules.Max {
		return nil
	}

	return &value
}

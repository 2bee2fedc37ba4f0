package extract

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// LocateCards scans a parsed category page for product-card elements.
// Every selector pattern is applied independently and the matches are
// unioned, deduplicated by element node identity (not content) so an
// element matched by two patterns is counted once. First-seen order is
// preserved. An empty result is not an error; the caller decides how
// to proceed.
//
// No single site uses consistent markup across page templates, so the
// redundant overlapping patterns maximize recall.
func LocateCards(doc *goquery.Document, selectors []string) []*goquery.Selection {
	seen := make(map[*html.Node]struct{})
	var cards []*goquery.Selection

	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			node := s.Get(0)
			if _, ok := seen[node]; ok {
				return
			}
			seen[node] = struct{}{}
			cards = append(cards, s)
		})
	}

	return cards
}

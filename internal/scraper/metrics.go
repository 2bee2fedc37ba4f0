package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one scrape run.
type Metrics struct {
	Registry            *prometheus.Registry
	PagesTotal          *prometheus.CounterVec
	PageDuration        prometheus.Histogram
	ItemsTotal          prometheus.Counter
	DuplicatesTotal     prometheus.Counter
	PricesRejectedTotal prometheus.Counter
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total category pages processed, by outcome.",
		},
		[]string{"outcome"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_page_duration_seconds",
			Help:    "Time spent navigating and extracting one category page.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_total",
			Help: "Total listings added to the session.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_duplicates_total",
			Help: "Total cards dropped because their URL was already seen.",
		},
	)
	pricesRejected := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_prices_rejected_total",
			Help: "Total price texts rejected as unparseable or implausible.",
		},
	)

	registry.MustRegister(pages, pageDuration, items, duplicates, pricesRejected)

	return &Metrics{
		Registry:            registry,
		PagesTotal:          pages,
		PageDuration:        pageDuration,
		ItemsTotal:          items,
		DuplicatesTotal:     duplicates,
		PricesRejectedTotal: pricesRejected,
	}
}

// IncPage increments the page counter with an outcome label.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObservePageDuration records how long one page took end to end.
func (m *Metrics) ObservePageDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}

// IncItems adds to the session item counter.
func (m *Metrics) IncItems(n int) {
	if m == nil {
		return
	}
	m.ItemsTotal.Add(float64(n))
}

// IncDuplicate increments the dropped-duplicate counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// IncPriceRejected increments the rejected-price counter.
func (m *Metrics) IncPriceRejected() {
	if m == nil {
		return
	}
	m.PricesRejectedTotal.Inc()
}

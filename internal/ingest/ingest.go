package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/okoval/grocery-price-scraper/internal/database"
	"github.com/okoval/grocery-price-scraper/internal/models"
)

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// ListingStore is the repository surface the ingestor needs.
type ListingStore interface {
	UpsertWithTx(ctx context.Context, tx pgx.Tx, listing models.NormalizedListing) (database.UpsertResult, error)
	RecordSession(ctx context.Context, tx pgx.Tx, session *models.ScrapeSession) error
}

// EventPublisher queues domain events inside the same transaction as
// the listing writes.
type EventPublisher interface {
	ListingDiscoveredTx(ctx context.Context, tx pgx.Tx, listing models.NormalizedListing) error
	PriceChangedTx(ctx context.Context, tx pgx.Tx, listing models.NormalizedListing, oldPrice *float64) error
	SessionCompletedTx(ctx context.Context, tx pgx.Tx, session *models.ScrapeSession) error
}

// Summary reports what ingesting one session changed.
type Summary struct {
	Total     int
	New       int
	Changed   int
	Unchanged int
}

// Ingestor loads scrape session artifacts into the listings database.
// Each session is one transaction: either every listing, the session
// row, and all queued events land, or none do.
type Ingestor struct {
	db        TxRunner
	listings  ListingStore
	publisher EventPublisher
	logger    *slog.Logger
}

func NewIngestor(db TxRunner, listings ListingStore, publisher EventPublisher) *Ingestor {
	return &Ingestor{
		db:        db,
		listings:  listings,
		publisher: publisher,
		logger:    slog.Default().With("component", "ingestor"),
	}
}

// IngestSession writes one session's listings and emits the
// corresponding events.
func (i *Ingestor) IngestSession(ctx context.Context, session *models.ScrapeSession) (Summary, error) {
	var summary Summary
	summary.Total = len(session.Items)

	err := i.db.Transaction(ctx, func(tx pgx.Tx) error {
		for _, listing := range session.Items {
			result, err := i.listings.UpsertWithTx(ctx, tx, listing)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", listing.URL, err)
			}

			switch {
			case result.IsNew:
				summary.New++
				if err := i.publisher.ListingDiscoveredTx(ctx, tx, listing); err != nil {
					return err
				}
			case result.PriceChanged:
				summary.Changed++
				if err := i.publisher.PriceChangedTx(ctx, tx, listing, result.OldPrice); err != nil {
					return err
				}
			default:
				summary.Unchanged++
			}
		}

		if err := i.listings.RecordSession(ctx, tx, session); err != nil {
			return err
		}
		return i.publisher.SessionCompletedTx(ctx, tx, session)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("ingest session %s: %w", session.SessionID, err)
	}

	i.logger.Info("session ingested",
		"session_id", session.SessionID,
		"site", session.Site,
		"total", summary.Total,
		"new", summary.New,
		"changed", summary.Changed)

	return summary, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/okoval/grocery-price-scraper/internal/database"
	"github.com/okoval/grocery-price-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

// The wire names are owned by the outbox package so the relay can
// validate them; aliased here with the publisher's type.
const (
	// EventTypeListingDiscovered is published when a product URL is seen
	// for the first time.
	EventTypeListingDiscovered EventType = database.EventTypeListingDiscovered
	// EventTypePriceChanged is published when a stored listing's price
	// differs from the newly scraped one.
	EventTypePriceChanged EventType = database.EventTypePriceChanged
	// EventTypeSessionCompleted is published once per ingested session.
	EventTypeSessionCompleted EventType = database.EventTypeSessionCompleted
)

// ListingDiscoveredPayload is the payload for LISTING_DISCOVERED.
type ListingDiscoveredPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	URL         string    `json:"url"`
	SiteName    string    `json:"site_name"`
	Category    string    `json:"category"`
	ProductName string    `json:"product_name,omitempty"`
	Price       *float64  `json:"price"`
	Currency    string    `json:"currency"`
	SessionID   string    `json:"session_id"`
	Source      string    `json:"source"`
}

// PriceChangedPayload is the payload for PRICE_CHANGED.
type PriceChangedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	URL         string    `json:"url"`
	SiteName    string    `json:"site_name"`
	ProductName string    `json:"product_name,omitempty"`
	OldPrice    *float64  `json:"old_price"`
	NewPrice    *float64  `json:"new_price"`
	Currency    string    `json:"currency"`
	SessionID   string    `json:"session_id"`
	Source      string    `json:"source"`
}

// SessionCompletedPayload is the payload for SESSION_COMPLETED.
type SessionCompletedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	SiteName  string    `json:"site_name"`
	Category  string    `json:"category"`
	ItemCount int       `json:"item_count"`
	FailCount int       `json:"fail_count"`
	Source    string    `json:"source"`
}

// OutboxInserter is the slice of the outbox repository the publisher
// needs; tests supply a recording fake.
type OutboxInserter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes domain events through the transactional outbox, so
// an event is queued if and only if the ingest transaction commits.
type Publisher struct {
	outbox OutboxInserter
	stream string
	logger *slog.Logger
}

func NewPublisher(outbox OutboxInserter, stream string) *Publisher {
	return &Publisher{
		outbox: outbox,
		stream: stream,
		logger: slog.Default().With("component", "event_publisher"),
	}
}

// ListingDiscoveredTx queues a LISTING_DISCOVERED event inside tx.
func (p *Publisher) ListingDiscoveredTx(ctx context.Context, tx pgx.Tx, listing models.NormalizedListing) error {
	payload := ListingDiscoveredPayload{
		EventID:     uuid.New().String(),
		EventType:   string(EventTypeListingDiscovered),
		Timestamp:   time.Now(),
		URL:         listing.URL,
		SiteName:    listing.SiteName,
		Category:    listing.Category,
		ProductName: listing.ProductName,
		Price:       listing.Price,
		Currency:    listing.Currency,
		SessionID:   listing.SessionID,
		Source:      "scraper",
	}

	return p.insert(ctx, tx, "listing", listing.URL, EventTypeListingDiscovered, payload)
}

// PriceChangedTx queues a PRICE_CHANGED event inside tx.
func (p *Publisher) PriceChangedTx(ctx context.Context, tx pgx.Tx, listing models.NormalizedListing, oldPrice *float64) error {
	payload := PriceChangedPayload{
		EventID:     uuid.New().String(),
		EventType:   string(EventTypePriceChanged),
		Timestamp:   time.Now(),
		URL:         listing.URL,
		SiteName:    listing.SiteName,
		ProductName: listing.ProductName,
		OldPrice:    oldPrice,
		NewPrice:    listing.Price,
		Currency:    listing.Currency,
		SessionID:   listing.SessionID,
		Source:      "scraper",
	}

	return p.insert(ctx, tx, "listing", listing.URL, EventTypePriceChanged, payload)
}

// SessionCompletedTx queues a SESSION_COMPLETED event inside tx.
func (p *Publisher) SessionCompletedTx(ctx context.Context, tx pgx.Tx, session *models.ScrapeSession) error {
	payload := SessionCompletedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeSessionCompleted),
		Timestamp: time.Now(),
		SessionID: session.SessionID,
		SiteName:  session.Site,
		Category:  session.Category,
		ItemCount: len(session.Items),
		FailCount: len(session.Fails),
		Source:    "scraper",
	}

	return p.insert(ctx, tx, "session", session.SessionID, EventTypeSessionCompleted, payload)
}

func (p *Publisher) insert(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID string, eventType EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  p.stream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Debug("event queued",
		"event_type", eventType,
		"aggregate_id", aggregateID,
		"target_stream", p.stream)

	return nil
}

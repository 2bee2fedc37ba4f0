package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoval/grocery-price-scraper/internal/database"
	"github.com/okoval/grocery-price-scraper/internal/models"
)

type fakeTxRunner struct {
	err error
}

func (f *fakeTxRunner) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeListingStore struct {
	results  map[string]database.UpsertResult
	upserted []string
	sessions []*models.ScrapeSession
	err      error
}

func (f *fakeListingStore) UpsertWithTx(_ context.Context, _ pgx.Tx, listing models.NormalizedListing) (database.UpsertResult, error) {
	if f.err != nil {
		return database.UpsertResult{}, f.err
	}
	f.upserted = append(f.upserted, listing.URL)
	return f.results[listing.URL], nil
}

func (f *fakeListingStore) RecordSession(_ context.Context, _ pgx.Tx, session *models.ScrapeSession) error {
	f.sessions = append(f.sessions, session)
	return nil
}

type fakePublisher struct {
	discovered []string
	changed    []string
	completed  []string
}

func (f *fakePublisher) ListingDiscoveredTx(_ context.Context, _ pgx.Tx, listing models.NormalizedListing) error {
	f.discovered = append(f.discovered, listing.URL)
	return nil
}

func (f *fakePublisher) PriceChangedTx(_ context.Context, _ pgx.Tx, listing models.NormalizedListing, _ *float64) error {
	f.changed = append(f.changed, listing.URL)
	return nil
}

func (f *fakePublisher) SessionCompletedTx(_ context.Context, _ pgx.Tx, session *models.ScrapeSession) error {
	f.completed = append(f.completed, session.SessionID)
	return nil
}

func buildSession(urls ...string) *models.ScrapeSession {
	run := models.NewRunContext("fora", "dairy", "UAH", 2,
		time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC))
	session := models.NewSession(run)
	for _, u := range urls {
		price := 45.90
		session.Items = append(session.Items, run.Listing(models.RawItem{URL: u}, &price))
	}
	return session
}

func TestIngestSessionClassifiesListings(t *testing.T) {
	oldPrice := 42.50
	store := &fakeListingStore{
		results: map[string]database.UpsertResult{
			"https://fora.ua/product/new":       {IsNew: true},
			"https://fora.ua/product/changed":   {PriceChanged: true, OldPrice: &oldPrice},
			"https://fora.ua/product/unchanged": {},
		},
	}
	publisher := &fakePublisher{}
	ingestor := NewIngestor(&fakeTxRunner{}, store, publisher)

	session := buildSession(
		"https://fora.ua/product/new",
		"https://fora.ua/product/changed",
		"https://fora.ua/product/unchanged",
	)

	summary, err := ingestor.IngestSession(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)

	assert.Equal(t, []string{"https://fora.ua/product/new"}, publisher.discovered)
	assert.Equal(t, []string{"https://fora.ua/product/changed"}, publisher.changed)
	assert.Equal(t, []string{session.SessionID}, publisher.completed)
	require.Len(t, store.sessions, 1)
}

func TestIngestSessionEmptySessionStillRecorded(t *testing.T) {
	store := &fakeListingStore{}
	publisher := &fakePublisher{}
	ingestor := NewIngestor(&fakeTxRunner{}, store, publisher)

	summary, err := ingestor.IngestSession(context.Background(), buildSession())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Len(t, store.sessions, 1)
	assert.Len(t, publisher.completed, 1)
}

func TestIngestSessionPropagatesUpsertError(t *testing.T) {
	store := &fakeListingStore{err: assert.AnError}
	ingestor := NewIngestor(&fakeTxRunner{}, store, &fakePublisher{})

	_, err := ingestor.IngestSession(context.Background(),
		buildSession("https://fora.ua/product/a"))

	assert.ErrorIs(t, err, assert.AnError)
}

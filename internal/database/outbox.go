package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Event types carried through the outbox. The relay refuses anything
// else; consumers on the price stream only understand these three.
const (
	EventTypeListingDiscovered = "LISTING_DISCOVERED"
	EventTypePriceChanged      = "PRICE_CHANGED"
	EventTypeSessionCompleted  = "SESSION_COMPLETED"
)

// KnownEventType reports whether eventType is part of the price stream
// contract.
func KnownEventType(eventType string) bool {
	switch eventType {
	case EventTypeListingDiscovered, EventTypePriceChanged, EventTypeSessionCompleted:
		return true
	}
	return false
}

// Outbox event lifecycle: pending -> processed, or pending -> failed
// (retried with backoff) -> dead_letter once retries are exhausted.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount bounds delivery attempts per event. Price events
	// are re-derivable from the listings table, so giving up after a
	// few attempts loses nothing permanent.
	MaxRetryCount = 5

	// maxBackoffSeconds caps the exponential retry backoff. Price
	// updates are periodic; there is no point retrying faster than
	// the relay polls or slower than a scrape cycle.
	maxBackoffSeconds = 300

	defaultTargetStream = "stream:price_events"
)

// OutboxEvent is one row of the transactional outbox. Listing events
// use the product URL as aggregate ID; session events use the session
// ID.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// OutboxRepository persists price events alongside the listing rows
// they describe, inside the same transaction.
type OutboxRepository struct {
	db            *DB
	defaultStream string
}

// NewOutboxRepository creates an outbox repository. Events inserted
// without an explicit target stream go to defaultStream (usually
// REDIS_STREAM from config).
func NewOutboxRepository(db *DB, defaultStream string) *OutboxRepository {
	if defaultStream == "" {
		defaultStream = defaultTargetStream
	}
	return &OutboxRepository{db: db, defaultStream: defaultStream}
}

// InsertWithTx queues an event inside tx, so the event exists if and
// only if the surrounding ingest transaction commits.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = r.defaultStream
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	query := `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := tx.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// GetPending returns events due for delivery, oldest first, so price
// changes for the same listing reach the stream in scrape order.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			error_message, created_at, processed_at, next_retry_at
		FROM outbox_event
		WHERE status IN ($1, $2)
			AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	rows, err := r.db.pool.Query(ctx, query,
		OutboxStatusPending, OutboxStatusFailed,
		time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID, &event.EventType,
			&event.Payload, &event.TargetStream, &event.Status, &event.RetryCount,
			&event.ErrorMessage, &event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

// MarkProcessed records a successful delivery.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_event
		SET status = $1, processed_at = $2
		WHERE id = $3`

	result, err := r.db.pool.Exec(ctx, query, OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkFailed records a delivery failure and schedules the retry. The
// retry count, next status and backoff are computed in one statement
// so concurrent relays cannot double-count an attempt. Backoff is
// exponential (2s, 4s, 8s, ...) capped at maxBackoffSeconds; the
// event moves to dead_letter once MaxRetryCount is reached.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, deliveryErr error) error {
	query := `
		UPDATE outbox_event
		SET retry_count = retry_count + 1,
			error_message = $2,
			status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE $5 END,
			next_retry_at = now() + make_interval(secs => LEAST(POWER(2, retry_count + 1), $6))
		WHERE id = $1
		RETURNING status, retry_count`

	var status string
	var retryCount int
	err := r.db.pool.QueryRow(ctx, query,
		id, deliveryErr.Error(), MaxRetryCount,
		OutboxStatusDeadLetter, OutboxStatusFailed, maxBackoffSeconds,
	).Scan(&status, &retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// MarkDeadLetter parks an event immediately, bypassing retries. Used
// for events that can never be delivered, such as an unknown type.
func (r *OutboxRepository) MarkDeadLetter(ctx context.Context, id uuid.UUID, deliveryErr error) error {
	query := `
		UPDATE outbox_event
		SET status = $1, error_message = $2
		WHERE id = $3`

	result, err := r.db.pool.Exec(ctx, query, OutboxStatusDeadLetter, deliveryErr.Error(), id)
	if err != nil {
		return fmt.Errorf("failed to dead-letter event: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// PendingCount returns the delivery backlog (pending plus retrying).
func (r *OutboxRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM outbox_event
		WHERE status IN ($1, $2)`

	err := r.db.pool.QueryRow(ctx, query, OutboxStatusPending, OutboxStatusFailed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}

	return count, nil
}

// DeadLetterCount returns the number of events given up on.
func (r *OutboxRepository) DeadLetterCount(ctx context.Context) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM outbox_event
		WHERE status = $1`

	err := r.db.pool.QueryRow(ctx, query, OutboxStatusDeadLetter).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get dead letter count: %w", err)
	}

	return count, nil
}

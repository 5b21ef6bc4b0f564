package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/duragraph/dataflow/internal/pkg/errors"
	"github.com/duragraph/dataflow/internal/pkg/eventbus"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore persists pipeline-definition domain events alongside the
// registry's CRUD rows, the same event-sourcing-lite pattern the reference
// service's graph repository uses.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new event store.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// SaveEvents appends events to the stream for (aggregateType, aggregateID),
// creating the stream on first use.
func (s *EventStore) SaveEvents(ctx context.Context, streamID, aggregateType, aggregateID string, events []eventbus.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var existingStreamID string
	err = tx.QueryRow(ctx, `
		INSERT INTO pipeline_event_streams (stream_id, aggregate_type, aggregate_id, version)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (aggregate_type, aggregate_id)
		DO UPDATE SET updated_at = NOW()
		RETURNING stream_id
	`, streamID, aggregateType, aggregateID).Scan(&existingStreamID)
	if err != nil {
		return errors.Internal("failed to create/update stream", err)
	}

	var currentVersion int
	err = tx.QueryRow(ctx, `
		SELECT version FROM pipeline_event_streams WHERE stream_id = $1
	`, existingStreamID).Scan(&currentVersion)
	if err != nil {
		return errors.Internal("failed to get current version", err)
	}

	for i, event := range events {
		version := currentVersion + i + 1

		payload, err := json.Marshal(event)
		if err != nil {
			return errors.Internal("failed to marshal event", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pipeline_events (stream_id, aggregate_type, aggregate_id, event_type, event_version, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, existingStreamID, aggregateType, aggregateID, event.EventType(), version, payload)
		if err != nil {
			return errors.Internal("failed to save event", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pipeline_event_streams SET version = $1, updated_at = NOW() WHERE stream_id = $2
	`, currentVersion+len(events), existingStreamID); err != nil {
		return errors.Internal("failed to advance stream version", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Internal("failed to commit transaction", err)
	}
	return nil
}

// LoadEvents loads every event recorded for an aggregate, in version order.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]map[string]interface{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, payload, occurred_at
		FROM pipeline_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY event_version ASC
	`, aggregateType, aggregateID)
	if err != nil {
		return nil, errors.Internal("failed to load events", err)
	}
	defer rows.Close()

	events := make([]map[string]interface{}, 0)
	for rows.Next() {
		var eventID, eventType string
		var payloadJSON []byte
		var occurredAt time.Time

		if err := rows.Scan(&eventID, &eventType, &payloadJSON, &occurredAt); err != nil {
			return nil, errors.Internal("failed to scan event", err)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(payloadJSON, &payload); err != nil {
			return nil, errors.Internal("failed to unmarshal event payload", err)
		}
		events = append(events, map[string]interface{}{
			"event_id":    eventID,
			"event_type":  eventType,
			"payload":     payload,
			"occurred_at": occurredAt,
		})
	}
	return events, nil
}

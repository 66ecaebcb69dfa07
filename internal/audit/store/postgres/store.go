package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"freightdesk/internal/audit"
	"freightdesk/internal/shipment/status"
	txcontext "freightdesk/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events land in the outbox table inside the caller's transaction and are
// shipped to Kafka by the relay, so an audit event is only ever published
// for a status change that actually committed.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for proper deserialization by consumers.
type outboxPayload struct {
	ID             string `json:"ID"`
	Category       string `json:"Category"`
	Timestamp      string `json:"Timestamp"`
	ShipmentID     string `json:"ShipmentID"`
	Action         string `json:"Action"`
	Actor          string `json:"Actor,omitempty"`
	PreviousStatus string `json:"PreviousStatus,omitempty"`
	NewStatus      string `json:"NewStatus,omitempty"`
	Trigger        string `json:"Trigger,omitempty"`
	Reason         string `json:"Reason,omitempty"`
	RequestID      string `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	payload := outboxPayload{
		ID:             eventID.String(),
		Category:       string(audit.AuditEvent(event.Action).Category()),
		Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
		ShipmentID:     event.ShipmentID,
		Action:         event.Action,
		Actor:          event.Actor,
		PreviousStatus: string(event.PreviousStatus),
		NewStatus:      string(event.NewStatus),
		Trigger:        string(event.Trigger),
		Reason:         event.Reason,
		RequestID:      event.RequestID,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "shipment"
	aggregateID := event.ShipmentID
	if aggregateID == "" {
		aggregateType = "audit"
		aggregateID = eventID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		eventID, aggregateType, aggregateID, event.Action, payloadBytes, event.Timestamp,
	); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ListByShipment returns the outbox events recorded for one shipment, oldest
// first. Used by operator tooling; the relay reads unpublished rows directly.
func (s *Store) ListByShipment(ctx context.Context, shipmentID string) ([]audit.Event, error) {
	query := `
		SELECT payload FROM outbox
		WHERE aggregate_type = 'shipment' AND aggregate_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox payload: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, p.Timestamp)
		events = append(events, audit.Event{
			Timestamp:      ts,
			ShipmentID:     p.ShipmentID,
			Action:         p.Action,
			Actor:          p.Actor,
			PreviousStatus: status.Status(p.PreviousStatus),
			NewStatus:      status.Status(p.NewStatus),
			Trigger:        status.Trigger(p.Trigger),
			Reason:         p.Reason,
			RequestID:      p.RequestID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return events, nil
}

package audit

import (
	"context"
	"time"
)

// Store is the append-only sink behind the publisher. The Postgres
// implementation writes to the transactional outbox; tests use the memory
// store.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByShipment(ctx context.Context, shipmentID string) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	return p.store.Append(ctx, base)
}

func (p *Publisher) List(ctx context.Context, shipmentID string) ([]Event, error) {
	return p.store.ListByShipment(ctx, shipmentID)
}

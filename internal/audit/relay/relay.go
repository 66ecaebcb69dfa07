package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Relay ships committed outbox rows to Kafka. Rows are produced oldest-first
// and marked published one by one, so a crash mid-batch re-sends at-least-once
// rather than losing events.
type Relay struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func New(db *sql.DB, client *kgo.Client, topic string, logger *slog.Logger) *Relay {
	return &Relay{
		db:       db,
		client:   client,
		topic:    topic,
		logger:   logger,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
}

// EnsureTopic creates the audit topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !strings.Contains(resp.Err.Error(), "TOPIC_ALREADY_EXISTS") {
			return fmt.Errorf("create topic %s: %w", topic, resp.Err)
		}
	}
	return nil
}

// Run polls the outbox until the context is cancelled. Per-row publish
// failures are logged and retried on the next tick; they never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, r.batch)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}

	type pending struct {
		id      string
		key     string
		payload []byte
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.key, &p.payload); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, p)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close outbox rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox rows: %w", err)
	}

	for _, p := range batch {
		record := &kgo.Record{
			Topic: r.topic,
			Key:   []byte(p.key),
			Value: p.payload,
		}
		if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			r.logger.Warn("produce audit event failed", "outbox_id", p.id, "error", err)
			continue
		}
		if _, err := r.db.ExecContext(ctx,
			`UPDATE outbox SET published_at = NOW() WHERE id = $1`, p.id,
		); err != nil {
			// The event will be re-produced next tick; consumers must be
			// tolerant of duplicates keyed by payload ID.
			r.logger.Warn("mark outbox row published failed", "outbox_id", p.id, "error", err)
		}
	}
	return nil
}

package reconcile

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"freightdesk/internal/platform/metrics"
	"freightdesk/internal/shipment/status/service"
)

// Actor recorded on audit rows produced by the batch job.
const Actor = "status-reconciler"

const (
	lockKey = "freightdesk:reconcile:lock"
	lockTTL = 10 * time.Minute
)

// Recalculator is the slice of the status service the job needs.
type Recalculator interface {
	Recalculate(ctx context.Context, shipmentID, actor string) (service.RecalcOutcome, error)
	ListReconcileCandidates(ctx context.Context, limit int) ([]string, error)
}

// Locker guards against concurrent batch runs across instances. Satisfied by
// the platform Redis client; nil means no cross-instance locking.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

// Summary is the outcome of one batch.
type Summary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

// Job re-invokes the orchestrator for shipments whose status validity depends
// on wall-clock time rather than discrete events. The evaluator's delayed and
// awaiting-clearance branches depend on "today", which changes without any
// write to the shipment; nothing else would ever re-trigger them.
type Job struct {
	svc     Recalculator
	locker  Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
	limit   int
	tracer  trace.Tracer
}

func New(svc Recalculator, locker Locker, logger *slog.Logger, m *metrics.Metrics, limit int) *Job {
	if limit <= 0 {
		limit = 1000
	}
	return &Job{
		svc:     svc,
		locker:  locker,
		logger:  logger,
		metrics: m,
		limit:   limit,
		tracer:  otel.Tracer("freightdesk/shipment/reconcile"),
	}
}

// Run executes one batch. Rows are processed strictly sequentially so the job
// never competes with itself for connections; a failure on one row is counted
// and does not abort the rest.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	ctx, span := j.tracer.Start(ctx, "status.reconcile")
	defer span.End()

	if j.locker != nil {
		ok, release, err := j.locker.Acquire(ctx, lockKey, lockTTL)
		if err != nil {
			return Summary{}, err
		}
		if !ok {
			j.logger.Info("reconcile skipped, another run holds the lock")
			return Summary{}, nil
		}
		defer release()
	}

	start := time.Now()
	ids, err := j.svc.ListReconcileCandidates(ctx, j.limit)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sum.Processed++
		out, err := j.svc.Recalculate(ctx, id, Actor)
		if err != nil {
			sum.Errors++
			j.logger.Warn("reconcile recalculation failed",
				"shipment_id", id,
				"error", err,
			)
			continue
		}
		if out.Changed {
			sum.Updated++
		}
	}

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("reconcile.processed", sum.Processed),
		attribute.Int("reconcile.updated", sum.Updated),
		attribute.Int("reconcile.errors", sum.Errors),
	)
	if j.metrics != nil {
		j.metrics.ObserveReconcile(sum.Processed, sum.Updated, sum.Errors, elapsed)
	}
	j.logger.Info("reconcile batch finished",
		"processed", sum.Processed,
		"updated", sum.Updated,
		"errors", sum.Errors,
		"duration_ms", elapsed.Milliseconds(),
	)
	return sum, nil
}

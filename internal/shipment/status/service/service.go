package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"freightdesk/internal/audit"
	"freightdesk/internal/platform/metrics"
	"freightdesk/internal/shipment/status"
	dErrors "freightdesk/pkg/domain-errors"
	"freightdesk/pkg/platform/sentinel"
)

// minOverrideReasonLen is the shortest accepted justification for a manual
// override. Operators must say why, not just that.
const minOverrideReasonLen = 10

// Store is the persistence surface the status engine needs. Implementations
// must honor a transaction carried in the context (see pkg/platform/tx) so
// that a status update and its audit row commit or roll back together.
type Store interface {
	// LoadSnapshot returns the fact snapshot for a shipment, with the legacy
	// receipt pair already normalized. sentinel.ErrNotFound when the shipment
	// is missing or soft-deleted.
	LoadSnapshot(ctx context.Context, shipmentID string) (status.Snapshot, error)
	GetRecord(ctx context.Context, shipmentID string) (status.Record, error)
	UpdateStatus(ctx context.Context, shipmentID string, st status.Status, reasonEN, reasonZH string, calculatedAt time.Time) error
	// RefreshReason updates reason and calculated-at without touching the
	// status. Used when a recalculation reconfirms the stored value.
	RefreshReason(ctx context.Context, shipmentID, reasonEN, reasonZH string, calculatedAt time.Time) error
	SetOverride(ctx context.Context, shipmentID string, st status.Status, ov status.Override) error
	ClearOverride(ctx context.Context, shipmentID string) error
	SetReceiptConfirmation(ctx context.Context, shipmentID string, hasIssues bool, notes, actor string, at time.Time) error
	AppendAudit(ctx context.Context, entry status.AuditEntry) error
	ListReconcileCandidates(ctx context.Context, today time.Time, limit int) ([]string, error)
}

// TxRunner provides the transactional boundary for status mutations. The
// context handed to fn carries the transaction so nested store and audit
// writes join it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Service is the single entry point for status mutations: recalculation,
// manual override, warehouse confirmation. Handlers and the reconcile job
// must go through it so evaluation and persistence cannot be separated.
type Service struct {
	store     Store
	txr       TxRunner
	evaluator *status.Evaluator
	clock     status.Clock
	audit     *audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func New(store Store, txr TxRunner, clock status.Clock, auditPub *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if store == nil {
		return nil, errors.New("status store is required")
	}
	if txr == nil {
		return nil, errors.New("transaction runner is required")
	}
	if auditPub == nil {
		return nil, errors.New("audit publisher is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if clock == nil {
		clock = status.SystemClock{}
	}
	return &Service{
		store:     store,
		txr:       txr,
		evaluator: status.NewEvaluator(clock),
		clock:     clock,
		audit:     auditPub,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("freightdesk/shipment/status"),
	}, nil
}

// RecalcOutcome reports what one orchestrated recalculation did.
type RecalcOutcome struct {
	Result   status.Result
	Previous status.Status
	// Changed is true when the stored status actually transitioned and an
	// audit row was appended.
	Changed bool
	// Skipped is true when an active manual override suppressed persistence.
	Skipped bool
}

// Preview evaluates the current facts without writing anything. Display-only
// "what would the status be" queries use this.
func (s *Service) Preview(ctx context.Context, shipmentID string) (status.Result, error) {
	snap, err := s.loadSnapshot(ctx, shipmentID)
	if err != nil {
		return status.Result{}, err
	}
	return s.evaluator.Evaluate(snap), nil
}

// Recalculate is the normal-path entry point: load facts, evaluate, persist.
// It is side-effect-complete so callers cannot forget to persist.
func (s *Service) Recalculate(ctx context.Context, shipmentID, actor string) (RecalcOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "status.recalculate",
		trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	snap, err := s.loadSnapshot(ctx, shipmentID)
	if err != nil {
		return RecalcOutcome{}, err
	}
	res := s.evaluator.Evaluate(snap)

	var out RecalcOutcome
	err = s.txr.RunInTx(ctx, func(ctx context.Context, store Store) error {
		rec, err := store.GetRecord(ctx, shipmentID)
		if err != nil {
			return err
		}
		out.Previous = rec.Status
		out.Result = res

		if rec.Override != nil {
			// Manual override holds the status until explicitly cleared; the
			// computed result is still returned for visibility.
			out.Skipped = true
			return nil
		}

		now := s.clock.Now()
		if rec.Status == res.Status {
			return store.RefreshReason(ctx, shipmentID, res.ReasonEN, res.ReasonZH, now)
		}

		if err := store.UpdateStatus(ctx, shipmentID, res.Status, res.ReasonEN, res.ReasonZH, now); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, status.AuditEntry{
			ShipmentID:     shipmentID,
			PreviousStatus: rec.Status,
			NewStatus:      res.Status,
			ReasonEN:       res.ReasonEN,
			ReasonZH:       res.ReasonZH,
			Trigger:        res.Trigger,
			Actor:          actor,
			At:             now,
			Snapshot:       res.Snapshot,
			SchemaVersion:  res.SchemaVersion,
		}); err != nil {
			return err
		}
		if err := s.audit.Emit(ctx, audit.Event{
			Timestamp:      now,
			ShipmentID:     shipmentID,
			Action:         string(audit.EventStatusChanged),
			Actor:          actor,
			PreviousStatus: rec.Status,
			NewStatus:      res.Status,
			Trigger:        res.Trigger,
			Reason:         res.ReasonEN,
		}); err != nil {
			return err
		}
		out.Changed = true
		return nil
	})
	if err != nil {
		return RecalcOutcome{}, s.translateNotFound(err, shipmentID)
	}

	s.observeRecalc(res.Trigger, out)
	return out, nil
}

// RecalculateBestEffort runs a recalculation triggered as a secondary effect
// of an unrelated write. Failures are logged and swallowed so a status-engine
// defect never blocks the primary write.
func (s *Service) RecalculateBestEffort(ctx context.Context, shipmentID, actor string) {
	if _, err := s.Recalculate(ctx, shipmentID, actor); err != nil {
		s.logger.Warn("best-effort status recalculation failed",
			"shipment_id", shipmentID,
			"actor", actor,
			"error", err,
		)
	}
}

// Override forces a status outside the evaluator with a mandatory
// justification. The stored status stays pinned until ClearOverride.
func (s *Service) Override(ctx context.Context, shipmentID string, requested status.Status, reason, actor string) error {
	ctx, span := s.tracer.Start(ctx, "status.override",
		trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	if !requested.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unrecognized status value: "+string(requested))
	}
	if len(strings.TrimSpace(reason)) < minOverrideReasonLen {
		return dErrors.New(dErrors.CodeValidation, "override reason must be at least 10 characters")
	}

	snap, err := s.loadSnapshot(ctx, shipmentID)
	if err != nil {
		return err
	}

	err = s.txr.RunInTx(ctx, func(ctx context.Context, store Store) error {
		rec, err := store.GetRecord(ctx, shipmentID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		ov := status.Override{By: actor, At: now, Reason: reason}
		if err := store.SetOverride(ctx, shipmentID, requested, ov); err != nil {
			return err
		}
		// Operator text is recorded verbatim for both languages; manual
		// reasons are never machine-translated.
		if err := store.AppendAudit(ctx, status.AuditEntry{
			ShipmentID:     shipmentID,
			PreviousStatus: rec.Status,
			NewStatus:      requested,
			ReasonEN:       reason,
			ReasonZH:       reason,
			Trigger:        status.TriggerManualOverride,
			Actor:          actor,
			At:             now,
			Snapshot:       snap,
			SchemaVersion:  status.SnapshotSchemaVersion,
		}); err != nil {
			return err
		}
		return s.audit.Emit(ctx, audit.Event{
			Timestamp:      now,
			ShipmentID:     shipmentID,
			Action:         string(audit.EventStatusOverridden),
			Actor:          actor,
			PreviousStatus: rec.Status,
			NewStatus:      requested,
			Trigger:        status.TriggerManualOverride,
			Reason:         reason,
		})
	})
	if err != nil {
		return s.translateNotFound(err, shipmentID)
	}

	if s.metrics != nil {
		s.metrics.Overrides.Inc()
	}
	return nil
}

// ClearOverride removes the override metadata and immediately hands control
// back to the evaluator. The resulting status may differ from the one in
// effect during the override; the override was a temporary exception, not a
// new ground truth.
func (s *Service) ClearOverride(ctx context.Context, shipmentID, actor string) (RecalcOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "status.clear_override",
		trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	err := s.txr.RunInTx(ctx, func(ctx context.Context, store Store) error {
		rec, err := store.GetRecord(ctx, shipmentID)
		if err != nil {
			return err
		}
		if rec.Override == nil {
			return dErrors.New(dErrors.CodeInvalidState, "no active override for shipment")
		}
		if err := store.ClearOverride(ctx, shipmentID); err != nil {
			return err
		}
		return s.audit.Emit(ctx, audit.Event{
			Timestamp:  s.clock.Now(),
			ShipmentID: shipmentID,
			Action:     string(audit.EventOverrideCleared),
			Actor:      actor,
			Trigger:    status.TriggerManualOverride,
			Reason:     "override cleared by " + actor,
		})
	})
	if err != nil {
		return RecalcOutcome{}, s.translateNotFound(err, shipmentID)
	}

	if s.metrics != nil {
		s.metrics.OverridesCleared.Inc()
	}
	return s.Recalculate(ctx, shipmentID, actor)
}

// ConfirmReceipt records the one-shot warehouse confirmation and then
// recalculates, which lands the shipment on received or quality_issue. A
// second confirmation attempt is rejected, not absorbed.
func (s *Service) ConfirmReceipt(ctx context.Context, shipmentID string, hasIssues bool, notes, actor string) (RecalcOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "status.confirm_receipt",
		trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	err := s.txr.RunInTx(ctx, func(ctx context.Context, store Store) error {
		rec, err := store.GetRecord(ctx, shipmentID)
		if err != nil {
			return err
		}
		if rec.ReceiptConfirmed {
			return dErrors.Wrap(sentinel.ErrAlreadyUsed, dErrors.CodeConflict, "warehouse receipt already confirmed")
		}
		now := s.clock.Now()
		if err := store.SetReceiptConfirmation(ctx, shipmentID, hasIssues, notes, actor, now); err != nil {
			return err
		}
		return s.audit.Emit(ctx, audit.Event{
			Timestamp:  now,
			ShipmentID: shipmentID,
			Action:     string(audit.EventReceiptConfirmed),
			Actor:      actor,
			Trigger:    status.TriggerWarehouseConfirm,
			Reason:     notes,
		})
	})
	if err != nil {
		return RecalcOutcome{}, s.translateNotFound(err, shipmentID)
	}

	if s.metrics != nil {
		s.metrics.ReceiptsConfirmed.Inc()
	}
	return s.Recalculate(ctx, shipmentID, actor)
}

// ListReconcileCandidates exposes the date-sensitive candidate query for the
// batch job.
func (s *Service) ListReconcileCandidates(ctx context.Context, limit int) ([]string, error) {
	return s.store.ListReconcileCandidates(ctx, s.clock.Now(), limit)
}

func (s *Service) loadSnapshot(ctx context.Context, shipmentID string) (status.Snapshot, error) {
	snap, err := s.store.LoadSnapshot(ctx, shipmentID)
	if err != nil {
		return status.Snapshot{}, s.translateNotFound(err, shipmentID)
	}
	return snap, nil
}

func (s *Service) translateNotFound(err error, shipmentID string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "shipment not found: "+shipmentID)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "status store failure")
}

func (s *Service) observeRecalc(trigger status.Trigger, out RecalcOutcome) {
	if s.metrics == nil {
		return
	}
	outcome := "unchanged"
	switch {
	case out.Skipped:
		outcome = "skipped_override"
	case out.Changed:
		outcome = "changed"
	}
	s.metrics.Recalculations.WithLabelValues(string(trigger), outcome).Inc()
	if out.Changed {
		s.metrics.StatusTransitions.WithLabelValues(string(out.Previous), string(out.Result.Status)).Inc()
	}
}

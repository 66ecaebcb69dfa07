package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"freightdesk/internal/shipment/status"
	"freightdesk/pkg/platform/sentinel"
	txcontext "freightdesk/pkg/platform/tx"
)

// PostgresStore persists shipment status state. Shipment dates are stored as
// text in the historical back-office format; the loader parses them and
// treats anything unparsable as absent.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// LoadSnapshot reads the fact set for one shipment. The legacy delivery
// confirmation pair is folded into the canonical receipt confirmation here so
// the evaluator never sees both representations. Transport assignment is
// derived from the outbound-delivery subsystem's table.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, shipmentID string) (status.Snapshot, error) {
	query := `
		SELECT
			COALESCE(s.bl_no, ''),
			COALESCE(s.eta, ''),
			COALESCE(s.agreed_shipping_date, ''),
			COALESCE(s.customs_clearance_date, ''),
			s.warehouse_receipt_confirmed,
			s.warehouse_receipt_has_issues,
			s.delivery_confirmed,
			s.delivery_has_issues,
			EXISTS (
				SELECT 1 FROM outbound_deliveries od WHERE od.shipment_id = s.id
			) AS transport_assigned
		FROM shipments s
		WHERE s.id = $1 AND s.deleted_at IS NULL
	`
	var (
		blNo, eta, agreed, cleared          string
		wrConfirmed, wrIssues, dlvConfirmed bool
		dlvIssues, transportAssigned        bool
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, shipmentID).Scan(
		&blNo, &eta, &agreed, &cleared,
		&wrConfirmed, &wrIssues, &dlvConfirmed, &dlvIssues,
		&transportAssigned,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Snapshot{}, sentinel.ErrNotFound
	}
	if err != nil {
		return status.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	snap := status.Snapshot{
		ShipmentID:           shipmentID,
		BillOfLadingNo:       blNo,
		ETA:                  status.ParseDate(eta),
		AgreedShippingDate:   status.ParseDate(agreed),
		CustomsClearanceDate: status.ParseDate(cleared),
		TransportAssigned:    transportAssigned,
	}
	return status.ConfirmedSnapshot(snap, normalizeReceipt(wrConfirmed, wrIssues, dlvConfirmed, dlvIssues)), nil
}

// normalizeReceipt folds the current and legacy confirmation pairs into one
// canonical value at the loading boundary.
func normalizeReceipt(wrConfirmed, wrIssues, dlvConfirmed, dlvIssues bool) status.ReceiptConfirmation {
	return status.ReceiptConfirmation{
		Confirmed: wrConfirmed || dlvConfirmed,
		HasIssues: (wrConfirmed && wrIssues) || (dlvConfirmed && dlvIssues),
	}
}

func (s *PostgresStore) GetRecord(ctx context.Context, shipmentID string) (status.Record, error) {
	query := `
		SELECT
			s.status,
			COALESCE(s.status_reason_en, ''),
			COALESCE(s.status_reason_zh, ''),
			s.status_calculated_at,
			s.status_override_by,
			s.status_override_at,
			s.status_override_reason,
			s.warehouse_receipt_confirmed OR s.delivery_confirmed,
			(s.warehouse_receipt_confirmed AND s.warehouse_receipt_has_issues)
				OR (s.delivery_confirmed AND s.delivery_has_issues)
		FROM shipments s
		WHERE s.id = $1 AND s.deleted_at IS NULL
	`
	var (
		rec          status.Record
		calculatedAt sql.NullTime
		ovBy         sql.NullString
		ovAt         sql.NullTime
		ovReason     sql.NullString
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, shipmentID).Scan(
		&rec.Status, &rec.ReasonEN, &rec.ReasonZH, &calculatedAt,
		&ovBy, &ovAt, &ovReason,
		&rec.ReceiptConfirmed, &rec.ReceiptHasIssues,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return status.Record{}, fmt.Errorf("get status record: %w", err)
	}
	rec.ShipmentID = shipmentID
	if calculatedAt.Valid {
		rec.CalculatedAt = &calculatedAt.Time
	}
	// Override fields are all present or all absent; presence of the
	// timestamp is the authoritative signal.
	if ovAt.Valid {
		rec.Override = &status.Override{
			By:     ovBy.String,
			At:     ovAt.Time,
			Reason: ovReason.String,
		}
	}
	return rec, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, shipmentID string, st status.Status, reasonEN, reasonZH string, calculatedAt time.Time) error {
	query := `
		UPDATE shipments
		SET status = $2,
			status_reason_en = $3,
			status_reason_zh = $4,
			status_calculated_at = $5,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.execOne(ctx, query, shipmentID, st, reasonEN, reasonZH, calculatedAt)
}

func (s *PostgresStore) RefreshReason(ctx context.Context, shipmentID, reasonEN, reasonZH string, calculatedAt time.Time) error {
	query := `
		UPDATE shipments
		SET status_reason_en = $2,
			status_reason_zh = $3,
			status_calculated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.execOne(ctx, query, shipmentID, reasonEN, reasonZH, calculatedAt)
}

func (s *PostgresStore) SetOverride(ctx context.Context, shipmentID string, st status.Status, ov status.Override) error {
	query := `
		UPDATE shipments
		SET status = $2,
			status_override_by = $3,
			status_override_at = $4,
			status_override_reason = $5,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.execOne(ctx, query, shipmentID, st, ov.By, ov.At, ov.Reason)
}

func (s *PostgresStore) ClearOverride(ctx context.Context, shipmentID string) error {
	query := `
		UPDATE shipments
		SET status_override_by = NULL,
			status_override_at = NULL,
			status_override_reason = NULL,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.execOne(ctx, query, shipmentID)
}

func (s *PostgresStore) SetReceiptConfirmation(ctx context.Context, shipmentID string, hasIssues bool, notes, actor string, at time.Time) error {
	query := `
		UPDATE shipments
		SET warehouse_receipt_confirmed = TRUE,
			warehouse_receipt_has_issues = $2,
			warehouse_receipt_notes = $3,
			warehouse_receipt_by = $4,
			warehouse_receipt_at = $5,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.execOne(ctx, query, shipmentID, hasIssues, notes, actor, at)
}

// auditSnapshot is the versioned, explicitly-typed form of the fact snapshot
// stored with each audit row so forensic replay stays stable across schema
// evolution.
type auditSnapshot struct {
	SchemaVersion        int    `json:"schema_version"`
	ShipmentID           string `json:"shipment_id"`
	BillOfLadingNo       string `json:"bl_no,omitempty"`
	ETA                  string `json:"eta,omitempty"`
	AgreedShippingDate   string `json:"agreed_shipping_date,omitempty"`
	CustomsClearanceDate string `json:"customs_clearance_date,omitempty"`
	TransportAssigned    bool   `json:"transport_assigned"`
	ReceiptConfirmed     bool   `json:"receipt_confirmed"`
	ReceiptHasIssues     bool   `json:"receipt_has_issues"`
}

func encodeSnapshot(snap status.Snapshot, version int) ([]byte, error) {
	out := auditSnapshot{
		SchemaVersion:     version,
		ShipmentID:        snap.ShipmentID,
		BillOfLadingNo:    snap.BillOfLadingNo,
		TransportAssigned: snap.TransportAssigned,
		ReceiptConfirmed:  snap.Receipt().Confirmed,
		ReceiptHasIssues:  snap.Receipt().HasIssues,
	}
	if snap.ETA != nil {
		out.ETA = status.FormatDate(*snap.ETA)
	}
	if snap.AgreedShippingDate != nil {
		out.AgreedShippingDate = status.FormatDate(*snap.AgreedShippingDate)
	}
	if snap.CustomsClearanceDate != nil {
		out.CustomsClearanceDate = status.FormatDate(*snap.CustomsClearanceDate)
	}
	return json.Marshal(out)
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry status.AuditEntry) error {
	snapshot, err := encodeSnapshot(entry.Snapshot, entry.SchemaVersion)
	if err != nil {
		return fmt.Errorf("encode audit snapshot: %w", err)
	}
	query := `
		INSERT INTO shipment_status_audit
			(id, shipment_id, previous_status, new_status, reason_en, reason_zh,
			 trigger_type, actor, snapshot, schema_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(), entry.ShipmentID, entry.PreviousStatus, entry.NewStatus,
		entry.ReasonEN, entry.ReasonZH, entry.Trigger, entry.Actor,
		snapshot, entry.SchemaVersion, entry.At,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListReconcileCandidates selects shipments whose date-dependent status might
// now differ: planning rows past their agreed shipping date, sailed rows whose
// ETA has arrived, and all delayed rows (a bill of lading may have appeared,
// which this query cannot pre-filter on). Overridden and soft-deleted rows are
// excluded. Ordering is most-recently-updated first; dates compare as text,
// which is correct for the YYYY-MM-DD storage format.
func (s *PostgresStore) ListReconcileCandidates(ctx context.Context, today time.Time, limit int) ([]string, error) {
	day := status.FormatDate(today)
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id").
		From("shipments").
		Where(sq.Eq{"deleted_at": nil}).
		Where(sq.Eq{"status_override_at": nil}).
		Where(sq.Or{
			sq.And{
				sq.Eq{"status": status.StatusPlanning},
				sq.NotEq{"agreed_shipping_date": nil},
				sq.Lt{"agreed_shipping_date": day},
			},
			sq.And{
				sq.Eq{"status": status.StatusSailed},
				sq.NotEq{"eta": nil},
				sq.LtOrEq{"eta": day},
			},
			sq.Eq{"status": status.StatusDelayed},
		}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reconcile candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec shipment update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

package status

import "time"

// Status is the derived lifecycle stage of a shipment. It is computed from
// stored facts by the evaluator; free-form manual selection is not allowed
// outside the override workflow.
type Status string

const (
	StatusPlanning          Status = "planning"
	StatusDelayed           Status = "delayed"
	StatusSailed            Status = "sailed"
	StatusAwaitingClearance Status = "awaiting_clearance"
	StatusPendingTransport  Status = "pending_transport"
	StatusLoadedToFinal     Status = "loaded_to_final"
	StatusReceived          Status = "received"
	StatusQualityIssue      Status = "quality_issue"
)

// All returns the recognized statuses in lifecycle order.
func All() []Status {
	return []Status{
		StatusPlanning,
		StatusDelayed,
		StatusSailed,
		StatusAwaitingClearance,
		StatusPendingTransport,
		StatusLoadedToFinal,
		StatusReceived,
		StatusQualityIssue,
	}
}

// Valid reports whether s is one of the eight recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanning, StatusDelayed, StatusSailed, StatusAwaitingClearance,
		StatusPendingTransport, StatusLoadedToFinal, StatusReceived, StatusQualityIssue:
		return true
	}
	return false
}

// Trigger records why a recalculation produced its result. Audit bookkeeping
// only; it never influences the computed status.
type Trigger string

const (
	TriggerInitial          Trigger = "initial"
	TriggerDataChange       Trigger = "data_change"
	TriggerDateCheck        Trigger = "date_check"
	TriggerWarehouseConfirm Trigger = "warehouse_confirm"
	TriggerManualOverride   Trigger = "manual_override"
)

// ReceiptConfirmation is the canonical form of the warehouse receipt facts.
// The loader folds the legacy confirmation pair into this one value so the
// evaluator never branches on historical representations.
type ReceiptConfirmation struct {
	Confirmed bool
	HasIssues bool
}

// Snapshot is the minimal point-in-time fact set the evaluator consumes. It is
// not a persisted entity; a verbatim copy travels with each audit entry.
//
// The receipt confirmation lives behind an unexported field: only
// ConfirmedSnapshot can set it, which keeps the received/quality_issue
// branch reachable solely through the loader's normalization of stored
// confirmation facts, not through ad-hoc snapshot construction.
type Snapshot struct {
	ShipmentID           string
	BillOfLadingNo       string
	ETA                  *time.Time
	AgreedShippingDate   *time.Time
	CustomsClearanceDate *time.Time
	TransportAssigned    bool

	receipt ReceiptConfirmation
}

// Receipt returns the normalized warehouse receipt facts.
func (s Snapshot) Receipt() ReceiptConfirmation { return s.receipt }

// ConfirmedSnapshot returns a copy of snap carrying the given receipt
// confirmation. Intended for the snapshot loader boundary.
func ConfirmedSnapshot(snap Snapshot, rc ReceiptConfirmation) Snapshot {
	snap.receipt = rc
	return snap
}

// dateLayout is the wire/storage format for shipment dates.
const dateLayout = "2006-01-02"

// ParseDate parses a stored YYYY-MM-DD value. Blank or malformed input is
// treated as absence, never as an error; partial dates must not be acted upon.
func ParseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}

// FormatDate renders a date in the storage format.
func FormatDate(t time.Time) string { return t.Format(dateLayout) }

// Result is the outcome of one evaluation. Created fresh on every call and
// never mutated; persisted as an audit row only when the status actually
// changed.
type Result struct {
	Status        Status
	ReasonEN      string
	ReasonZH      string
	Trigger       Trigger
	Snapshot      Snapshot
	SchemaVersion int
}

// Override is the manual-override metadata on a shipment's status record.
// The three fields are set together and cleared together.
type Override struct {
	By     string
	At     time.Time
	Reason string
}

// Record is the persisted status state read back from the shipment row.
type Record struct {
	ShipmentID       string
	Status           Status
	ReasonEN         string
	ReasonZH         string
	CalculatedAt     *time.Time
	Override         *Override
	ReceiptConfirmed bool
	ReceiptHasIssues bool
}

// AuditEntry is one append-only record of an actual status transition.
type AuditEntry struct {
	ShipmentID     string
	PreviousStatus Status
	NewStatus      Status
	ReasonEN       string
	ReasonZH       string
	Trigger        Trigger
	Actor          string
	At             time.Time
	Snapshot       Snapshot
	SchemaVersion  int
}

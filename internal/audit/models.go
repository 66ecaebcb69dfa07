package audit

import (
	"time"

	"freightdesk/internal/shipment/status"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and downstream routing.
type EventCategory string

const (
	// CategoryCompliance covers events with contractual/regulatory weight for
	// trade-finance review: status transitions, overrides, receipt
	// confirmations. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility, e.g. reconcile batch summaries. Can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp      time.Time
	ShipmentID     string
	Action         string
	Actor          string
	PreviousStatus status.Status
	NewStatus      status.Status
	Trigger        status.Trigger
	Reason         string
	RequestID      string
}

type AuditEvent string

const (
	EventStatusChanged     AuditEvent = "shipment_status_changed"
	EventStatusOverridden  AuditEvent = "shipment_status_overridden"
	EventOverrideCleared   AuditEvent = "shipment_override_cleared"
	EventReceiptConfirmed  AuditEvent = "warehouse_receipt_confirmed"
	EventReconcileFinished AuditEvent = "status_reconcile_finished"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventStatusChanged:     CategoryCompliance,
	EventStatusOverridden:  CategoryCompliance,
	EventOverrideCleared:   CategoryCompliance,
	EventReceiptConfirmed:  CategoryCompliance,
	EventReconcileFinished: CategoryOperations,
}

// Category resolves the retention/routing category for an event type.
// Unknown actions default to operations.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"freightdesk/internal/platform/middleware"
	"freightdesk/internal/shipment/status"
	"freightdesk/internal/shipment/status/reconcile"
	"freightdesk/internal/shipment/status/service"
	"freightdesk/internal/transport/http/shared"
	dErrors "freightdesk/pkg/domain-errors"
)

// actorHeader carries the caller identity for audit attribution. The core
// performs no authentication itself; upstream gateways are expected to set it.
const actorHeader = "X-Actor"

// Service defines the interface for status engine operations.
type Service interface {
	Preview(ctx context.Context, shipmentID string) (status.Result, error)
	Recalculate(ctx context.Context, shipmentID, actor string) (service.RecalcOutcome, error)
	Override(ctx context.Context, shipmentID string, requested status.Status, reason, actor string) error
	ClearOverride(ctx context.Context, shipmentID, actor string) (service.RecalcOutcome, error)
	ConfirmReceipt(ctx context.Context, shipmentID string, hasIssues bool, notes, actor string) (service.RecalcOutcome, error)
}

// ReconcileRunner triggers one batch on demand.
type ReconcileRunner interface {
	Run(ctx context.Context) (reconcile.Summary, error)
}

// Handler is the thin HTTP layer over the status engine. It delegates to the
// service without embedding business logic.
type Handler struct {
	logger  *slog.Logger
	svc     Service
	batch   ReconcileRunner
}

func New(svc Service, batch ReconcileRunner, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, svc: svc, batch: batch}
}

// Register mounts the status routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/shipments/{shipmentID}/status", func(r chi.Router) {
		r.Post("/recalculate", h.handleRecalculate)
		r.Get("/preview", h.handlePreview)
		r.Put("/override", h.handleOverride)
		r.Delete("/override", h.handleClearOverride)
	})
	r.Post("/shipments/{shipmentID}/receipt-confirmation", h.handleConfirmReceipt)
	r.Post("/jobs/status-reconcile", h.handleReconcile)
	r.Get("/shipment-statuses", h.handleMetadata)
}

type resultResponse struct {
	Status   status.Status  `json:"status"`
	ReasonEN string         `json:"reason_en"`
	ReasonZH string         `json:"reason_zh"`
	Trigger  status.Trigger `json:"trigger"`
	Previous status.Status  `json:"previous_status,omitempty"`
	Changed  bool           `json:"changed"`
	Skipped  bool           `json:"skipped"`
}

func outcomeResponse(out service.RecalcOutcome) resultResponse {
	return resultResponse{
		Status:   out.Result.Status,
		ReasonEN: out.Result.ReasonEN,
		ReasonZH: out.Result.ReasonZH,
		Trigger:  out.Result.Trigger,
		Previous: out.Previous,
		Changed:  out.Changed,
		Skipped:  out.Skipped,
	}
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "shipmentID")

	out, err := h.svc.Recalculate(ctx, shipmentID, h.actor(r))
	if err != nil {
		h.logError(ctx, "recalculate failed", shipmentID, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, outcomeResponse(out))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "shipmentID")

	res, err := h.svc.Preview(ctx, shipmentID)
	if err != nil {
		h.logError(ctx, "preview failed", shipmentID, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resultResponse{
		Status:   res.Status,
		ReasonEN: res.ReasonEN,
		ReasonZH: res.ReasonZH,
		Trigger:  res.Trigger,
	})
}

type overrideRequest struct {
	Status status.Status `json:"status"`
	Reason string        `json:"reason"`
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "shipmentID")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.svc.Override(ctx, shipmentID, req.Status, req.Reason, h.actor(r)); err != nil {
		h.logError(ctx, "override failed", shipmentID, err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "shipmentID")

	out, err := h.svc.ClearOverride(ctx, shipmentID, h.actor(r))
	if err != nil {
		h.logError(ctx, "clear override failed", shipmentID, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, outcomeResponse(out))
}

type confirmRequest struct {
	HasIssues bool   `json:"has_issues"`
	Notes     string `json:"notes"`
}

func (h *Handler) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "shipmentID")

	var req confirmRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	out, err := h.svc.ConfirmReceipt(ctx, shipmentID, req.HasIssues, req.Notes, h.actor(r))
	if err != nil {
		h.logError(ctx, "receipt confirmation failed", shipmentID, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, outcomeResponse(out))
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := h.batch.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual reconcile failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, status.Metadata())
}

func (h *Handler) actor(r *http.Request) string {
	if actor := r.Header.Get(actorHeader); actor != "" {
		return actor
	}
	return "api"
}

func (h *Handler) logError(ctx context.Context, msg, shipmentID string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"shipment_id", shipmentID,
		"error", err.Error(),
	)
}

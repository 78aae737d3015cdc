package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/recircle/rewards/internal/ledger"
	"github.com/recircle/rewards/internal/middleware"
	"github.com/recircle/rewards/internal/reconcile"
	"github.com/recircle/rewards/internal/storage"
)

// Handler exposes the approval boundary over HTTP. Ledger failures come back
// as structured results with a non-complete status, never as HTTP errors;
// callers always get a decodable answer for an accepted approval.
type Handler struct {
	gw       *Gateway
	store    storage.AuditLog
	reporter *reconcile.Reporter
}

// NewHandler creates the HTTP handler over the gateway and audit log.
func NewHandler(gw *Gateway, store storage.AuditLog) *Handler {
	return &Handler{
		gw:       gw,
		store:    store,
		reporter: reconcile.NewReporter(store),
	}
}

// Approve handles POST /v1/approvals.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	slog.Info("Approval received",
		"receipt_id", req.ReceiptID,
		"caller_id", middleware.GetCallerID(r.Context()),
		"source", middleware.GetSource(r.Context()),
	)

	result, err := h.gw.Approve(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ledger.ErrBadKey):
		// Operator problem, not a caller problem. Retrying is safe once the
		// key material is fixed.
		http.Error(w, "distributor signing unavailable", http.StatusBadGateway)
		return
	case err != nil:
		slog.Error("Approval failed", "receipt_id", req.ReceiptID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetSettlement handles GET /v1/settlements/{receiptID}.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	receiptID := chi.URLParam(r, "receiptID")

	result, err := h.store.GetResult(r.Context(), receiptID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "settlement not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Settlement lookup failed", "receipt_id", receiptID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Reconciliation handles GET /v1/reconciliation.
func (h *Handler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Report(r.Context())
	if err != nil {
		slog.Error("Reconciliation report failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

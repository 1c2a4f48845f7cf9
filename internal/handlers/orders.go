package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tendertrack/internal/engine"
	"tendertrack/internal/mercapi"
)

// GetTenderOrdersHandler lists the stored orders of a tender.
func (h *Handler) GetTenderOrdersHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "tenderCode")
	if code == "" {
		http.Error(w, "Missing tenderCode", http.StatusBadRequest)
		return
	}

	orders, err := h.Store.GetOrdersByTenderCode(r.Context(), code)
	if err != nil {
		http.Error(w, "Failed to get orders", http.StatusInternalServerError)
		return
	}
	writeJSON(w, orders)
}

// GetOrderItemsHandler lists the line items of one stored order.
func (h *Handler) GetOrderItemsHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "orderCode")
	if code == "" {
		http.Error(w, "Missing orderCode", http.StatusBadRequest)
		return
	}

	items, err := h.Store.GetOrderItems(r.Context(), code)
	if err != nil {
		http.Error(w, "Failed to get order items", http.StatusInternalServerError)
		return
	}
	writeJSON(w, items)
}

// DetectOrdersHandler runs the targeted discovery for one tracked tender and
// returns the persisted orders synchronously. A scan can take minutes; the
// caller's context bounds it.
func (h *Handler) DetectOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "tenderCode")
	if code == "" {
		http.Error(w, "Missing tenderCode", http.StatusBadRequest)
		return
	}

	if _, err := h.Store.GetUserTender(r.Context(), code, userID); err != nil {
		http.Error(w, "Tender not found", http.StatusNotFound)
		return
	}

	orders, err := h.Engine.DiscoverOrders(r.Context(), code)
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, map[string]any{"orders": orders, "count": len(orders)})
}

// ScanHandler triggers the incremental scan across all tracked tenders. The
// daily cron job hits the same path.
func (h *Handler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Engine.ScanDailyNewOrders(r.Context())
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, map[string]any{"newOrders": orders, "count": len(orders)})
}

func writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrScanRunning):
		http.Error(w, "A scan is already in progress", http.StatusConflict)
	case errors.Is(err, mercapi.ErrServiceUnavailable):
		http.Error(w, "Procurement service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

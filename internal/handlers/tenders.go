package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"tendertrack/internal/mercapi"
	"tendertrack/models"
)

// RegisterTenderHandler handles POST /api/tenders/new: looks the code up in
// the external service and stores a tracking row for the user.
func (h *Handler) RegisterTenderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var input struct {
		Code string `json:"code"`
		// optional annotations kept locally, never overwritten by resync
		Line        *string    `json:"line"`
		TotalAmount *float64   `json:"totalAmount"`
		DueDate     *time.Time `json:"dueDate"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if input.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	remote, err := h.API.GetTender(r.Context(), input.Code)
	if errors.Is(err, mercapi.ErrNotFound) {
		http.Error(w, "Tender not found in procurement service", http.StatusNotFound)
		return
	}
	if errors.Is(err, mercapi.ErrServiceUnavailable) {
		http.Error(w, "Procurement service temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	tender := models.Tender{
		Code:            remote.Code,
		Name:            remote.Name,
		Status:          models.TenderStatusFromCode(remote.StatusCode),
		StatusCode:      remote.StatusCode,
		IssuingOrg:      remote.Buyer.Name,
		EstimatedAmount: remote.EstimatedAmount,
		Line:            input.Line,
		TotalAmount:     input.TotalAmount,
		DueDate:         input.DueDate,
		UserID:          userID,
	}
	if !remote.ClosingDate.IsZero() {
		t := remote.ClosingDate.Time
		tender.ClosingDate = &t
	}
	if remote.Buyer.InstitutionCode != "" {
		inst := remote.Buyer.InstitutionCode
		tender.InstitutionID = &inst
	}

	if err := h.Store.CreateTender(r.Context(), &tender); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			http.Error(w, "Tender already tracked", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create tender", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tender)
}

// GetUserTendersHandler returns the tenders tracked by a user.
func (h *Handler) GetUserTendersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tenders, err := h.Store.GetUserTenders(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to get user tenders", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tenders)
}

// DeleteTenderHandler stops tracking a tender for one user. Discovered
// orders are shared rows and are kept.
func (h *Handler) DeleteTenderHandler(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Store.DeleteTender(r.Context(), code, userID); err != nil {
		http.Error(w, "Failed to delete tender", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTenderBalanceHandler returns the remaining balance of a tracked tender.
func (h *Handler) GetTenderBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "tenderCode")
	if code == "" {
		http.Error(w, "Missing tenderCode", http.StatusBadRequest)
		return
	}

	balance, err := h.Engine.ComputeBalance(r.Context(), code, userID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Tender not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to compute balance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, balance)
}

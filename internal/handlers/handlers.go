package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tendertrack/models"
)

// Handler wires storage, the reconciliation engine and the external tender
// lookup into the HTTP routes.
type Handler struct {
	Store  StorageInterface
	Engine EngineInterface
	API    TenderFinder
}

func NewHandler(store StorageInterface, engine EngineInterface, api TenderFinder) *Handler {
	return &Handler{Store: store, Engine: engine, API: api}
}

// PingHandler answers "ok" for health checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// requireUserID reads the authenticated user id the route layer passes via
// query parameter.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "Missing user_id parameter", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

type PaginationParams struct {
	Limit  int
	Offset int
}

func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20, Offset: 0}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// GetNotificationsHandler returns notifications, newest first.
func (h *Handler) GetNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	notifications, err := h.Store.GetNotifications(r.Context(), params.Limit, params.Offset)
	if err != nil {
		http.Error(w, "Failed to get notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, notifications)
}

func (h *Handler) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationId")
	if id == "" {
		http.Error(w, "Missing notification id", http.StatusBadRequest)
		return
	}

	err := h.Store.MarkNotificationRead(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to mark notification read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"id": id, "read": true})
}

// RegisterPushTokenHandler stores the device token for a user, replacing any
// previous one.
func (h *Handler) RegisterPushTokenHandler(w http.ResponseWriter, r *http.Request) {
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
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if input.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	token := models.PushToken{UserID: userID, Token: input.Token, Platform: input.Platform}
	if err := h.Store.SavePushToken(r.Context(), &token); err != nil {
		http.Error(w, "Failed to register push token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, token)
}

func (h *Handler) UnregisterPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.Store.DeletePushToken(r.Context(), userID); err != nil {
		http.Error(w, "Failed to unregister push token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/okoval/grocery-price-scraper/internal/database"
)

// StatsStore is the read surface the monitoring API exposes.
type StatsStore interface {
	GetSiteStats(ctx context.Context) ([]database.SiteStats, error)
	GetRecentSessions(ctx context.Context, limit int) ([]database.SessionSummary, error)
}

// OutboxCounter reports relay backlog for the health endpoint.
type OutboxCounter interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	store  StatsStore
	outbox OutboxCounter
	logger *slog.Logger
}

func NewHandlers(store StatsStore, outbox OutboxCounter) *Handlers {
	return &Handlers{
		store:  store,
		outbox: outbox,
		logger: slog.Default().With("component", "api"),
	}
}

// GetHealth reports service liveness and the outbox backlog.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}

	if h.outbox != nil {
		pending, _ := h.outbox.GetPendingCount(r.Context())
		deadLetter, _ := h.outbox.GetDeadLetterCount(r.Context())
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
	}

	h.respondJSON(w, http.StatusOK, health)
}

// GetSiteStats returns per-site listing counts and average prices.
func (h *Handlers) GetSiteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetSiteStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get site stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get site stats")
		return
	}
	if stats == nil {
		stats = []database.SiteStats{}
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// GetSessions returns recent scrape sessions, newest first. The limit
// query parameter caps the result; default 20.
func (h *Handlers) GetSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessions, err := h.store.GetRecentSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get sessions", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get sessions")
		return
	}
	if sessions == nil {
		sessions = []database.SessionSummary{}
	}

	h.respondJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

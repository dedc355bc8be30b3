// Package httpapi serves a read-only status API for host deployments.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"howsair-beacon/internal/node"
	"howsair-beacon/internal/types"
)

const (
	defaultBroadcastLimit = 20
	maxBroadcastLimit     = 500
)

type StatusSource interface {
	Status() node.Status
}

type BroadcastStore interface {
	Ping(ctx context.Context) error
	Recent(ctx context.Context, limit int) ([]types.Telemetry, error)
}

type statusResponse struct {
	BeaconID    string    `json:"beacon_id"`
	AlertActive bool      `json:"alert_active"`
	Ticks       uint64    `json:"ticks"`
	Broadcasts  uint64    `json:"broadcasts"`
	Skipped     uint64    `json:"skipped"`
	Failed      uint64    `json:"failed"`
	Clamped     uint64    `json:"clamped"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type handlers struct {
	beaconID string
	status   StatusSource
	store    BroadcastStore
}

// NewMux registers /healthz and /status, plus /broadcasts when store is
// not nil.
func NewMux(beaconID string, status StatusSource, store BroadcastStore) *http.ServeMux {
	h := &handlers{beaconID: beaconID, status: status, store: store}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /status", h.handleStatus)
	if store != nil {
		mux.HandleFunc("GET /broadcasts", h.handleBroadcasts)
	}
	return mux
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			slog.Error("failed to check journal connectivity", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check journal connectivity")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.status.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		BeaconID:    h.beaconID,
		AlertActive: st.AlertActive,
		Ticks:       st.Stats.Ticks,
		Broadcasts:  st.Stats.Broadcasts,
		Skipped:     st.Stats.Skipped,
		Failed:      st.Stats.Failed,
		Clamped:     st.Stats.Clamped,
		UpdatedAt:   st.UpdatedAt,
	})
}

func (h *handlers) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	limit := defaultBroadcastLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxBroadcastLimit)
	}

	recent, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list broadcasts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list broadcasts")
		return
	}
	if recent == nil {
		recent = []types.Telemetry{}
	}
	writeJSON(w, http.StatusOK, recent)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/relaydesk/relaydesk/internal/relay"
)

// StatsProvider exposes the relay's monitoring snapshot.
type StatsProvider interface {
	Stats() relay.Stats
}

// StatusHandler serves the health and stats endpoints.
type StatusHandler struct {
	stats StatsProvider
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(stats StatsProvider) *StatusHandler {
	return &StatusHandler{stats: stats}
}

// Health reports liveness.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Stats returns the relay snapshot as JSON.
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.stats.Stats())
}

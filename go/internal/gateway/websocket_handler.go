package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// WebSocketHandler handles WebSocket upgrade requests for dashboard
// connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleDashboardConnection handles WebSocket connections at
// /ws/{network}. The first frame sent to the client is a StateUpdate event
// carrying the full dashboard snapshot; live events follow.
func (h *WebSocketHandler) HandleDashboardConnection(w http.ResponseWriter, r *http.Request) {
	network := strings.TrimPrefix(r.URL.Path, "/ws/")
	if network == "" || strings.Contains(network, "/") {
		http.Error(w, "network is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.NetworkState(r.Context(), network)
	if err != nil {
		http.Error(w, "unknown network", http.StatusNotFound)
		return
	}

	var init []byte
	if evt, err := timeboost.NewEvent(network, timeboost.EventTypeStateUpdate, state); err == nil {
		init, _ = json.Marshal(evt)
	}

	if err := h.connectionManager.UpgradeConnection(w, r, network, init); err != nil {
		log.Error().
			Err(err).
			Str("network", network).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/", h.HandleDashboardConnection)
	mux.HandleFunc("/ws-stats", h.HandleConnectionStats)
}

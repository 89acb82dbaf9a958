package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/monitor"
)

// StateProvider hands out dashboard snapshots for the networks this
// gateway serves.
type StateProvider interface {
	// NetworkState returns the current dashboard state for a network, or
	// an error if the network is not served.
	NetworkState(ctx context.Context, network string) (monitor.DashboardState, error)
	// Networks lists the served networks.
	Networks(ctx context.Context) []NetworkSummary
}

// NetworkSummary describes one served network for the network picker.
type NetworkSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ChainID     uint64 `json:"chain_id"`
	Explorer    string `json:"explorer"`
}

// StateHandler serves REST snapshots of the dashboard state.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetNetworks handles GET /api/networks.
func (h *StateHandler) HandleGetNetworks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	networks := h.stateProvider.Networks(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(networks); err != nil {
		log.Error().Err(err).Msg("failed to encode networks response")
	}
}

// HandleGetNetworkState handles GET /api/networks/{network}/state.
func (h *StateHandler) HandleGetNetworkState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	network := extractNetworkFromPath(r.URL.Path)
	if network == "" {
		http.Error(w, "Network is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.NetworkState(r.Context(), network)
	if err != nil {
		log.Error().Err(err).Str("network", network).Msg("failed to get network state")
		http.Error(w, "Unknown network", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode network state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/networks", h.HandleGetNetworks)

	mux.HandleFunc("/api/networks/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/state") {
			h.HandleGetNetworkState(w, r)
		} else {
			http.NotFound(w, r)
		}
	})
}

// extractNetworkFromPath extracts the network name from a path like
// /api/networks/{network}/state.
func extractNetworkFromPath(path string) string {
	const prefix = "/api/networks/"
	const suffix = "/state"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	network := path[len(prefix) : len(path)-len(suffix)]
	if strings.Contains(network, "/") {
		return ""
	}
	return network
}

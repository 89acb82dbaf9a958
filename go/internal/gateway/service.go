package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// Service is the dashboard gateway: it fans monitor events out to
// WebSocket clients and serves REST snapshots of the dashboard state.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// NewService creates a new dashboard gateway service.
func NewService(config ConnectionConfig, provider StateProvider) *Service {
	cm := NewConnectionManager(config)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, provider),
		stateHandler:      NewStateHandler(provider),
	}
}

// Start runs the broadcast loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting dashboard gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("dashboard gateway stopped")
}

// Publish implements timeboost.Sink; events are fanned out to every client
// watching the event's network.
func (s *Service) Publish(evt *timeboost.Event) {
	s.connectionManager.Publish(evt)
}

// RegisterRoutes registers the WebSocket and state HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("dashboard gateway routes registered")
}

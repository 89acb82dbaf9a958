package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// ConnectionManager manages the WebSocket connections of dashboard clients,
// pooled by the network they watch.
type ConnectionManager struct {
	networkConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *timeboost.Event
}

// Connection is one WebSocket client watching a network's dashboard.
type Connection struct {
	ID      string
	Network string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		networkConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *timeboost.Event, 1000),
	}
}

// Start begins processing broadcast events until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case evt := <-cm.broadcastCh:
			cm.handleBroadcast(evt)
		}
	}
}

// Publish queues an event for fan-out to every client watching the event's
// network. Never blocks; the event is dropped if the broadcast queue is
// full.
func (cm *ConnectionManager) Publish(evt *timeboost.Event) {
	select {
	case cm.broadcastCh <- evt:
	default:
		log.Warn().
			Str("network", evt.Network).
			Str("event_type", string(evt.Type)).
			Msg("broadcast channel full, dropping event")
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection
// pooled under the given network. init, if non-nil, is queued as the first
// frame so the client starts from a full snapshot.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, network string, init []byte) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Network:     network,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	if init != nil {
		connection.Send <- init
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("network", network).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.networkConnections[conn.Network] == nil {
		cm.networkConnections[conn.Network] = make(map[*Connection]bool)
	}
	cm.networkConnections[conn.Network][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("network", conn.Network).
		Int("total_connections", len(cm.networkConnections[conn.Network])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.networkConnections[conn.Network]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.networkConnections, conn.Network)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("network", conn.Network).
				Msg("connection unregistered")
		}
	}
}

// handleBroadcast marshals an event once and fans it out to the network's
// pool, evicting clients whose send buffers are full.
func (cm *ConnectionManager) handleBroadcast(evt *timeboost.Event) {
	cm.mu.RLock()
	connections, exists := cm.networkConnections[evt.Network]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("network", conn.Network).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(evt.Type)).
		Str("network", evt.Network).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionStats summarizes the active connection pools.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveNetworks     int            `json:"active_networks"`
	NetworkConnections map[string]int `json:"network_connections"`
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{NetworkConnections: make(map[string]int)}
	for network, connections := range cm.networkConnections {
		stats.TotalConnections += len(connections)
		stats.NetworkConnections[network] = len(connections)
	}
	stats.ActiveNetworks = len(cm.networkConnections)
	return stats
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump drains client frames to keep pong handling alive. Dashboard
// clients are read-only; inbound payloads are logged and ignored.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			RawJSON("message", message).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

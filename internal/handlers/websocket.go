package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for all stream messages.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StreamHandler pushes detected deltas and events to connected WebSocket
// clients. Events below the configured severity floor or outside the
// configured whitelist are not broadcast.
type StreamHandler struct {
	logger        arbor.ILogger
	clients       map[*websocket.Conn]bool
	clientMutex   map[*websocket.Conn]*sync.Mutex
	mu            sync.RWMutex
	minSeverity   int
	allowedEvents map[string]bool // Whitelist of event types to broadcast (empty = allow all)
}

// NewStreamHandler creates the stream handler and subscribes it to the
// delta and event bus topics.
func NewStreamHandler(bus interfaces.EventBus, config *common.WebSocketConfig, logger arbor.ILogger) *StreamHandler {
	h := &StreamHandler{
		logger:        logger,
		clients:       make(map[*websocket.Conn]bool),
		clientMutex:   make(map[*websocket.Conn]*sync.Mutex),
		allowedEvents: make(map[string]bool),
	}

	if config != nil {
		h.minSeverity = models.EventSeverityRank(models.EventSeverity(config.MinSeverity))
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
	}

	if bus != nil {
		if err := bus.Subscribe(interfaces.TopicEventDetected, h.handleEventMessage); err != nil {
			logger.Error().Err(err).Msg("Failed to subscribe to event topic")
		}
		if err := bus.Subscribe(interfaces.TopicDeltaDetected, h.handleDeltaMessage); err != nil {
			logger.Error().Err(err).Msg("Failed to subscribe to delta topic")
		}
	}

	return h
}

// HandleStream handles GET /api/stream WebSocket upgrades.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("Stream client connected (total: %d)", clientCount)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("Stream client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// ClientCount returns the number of connected stream clients.
func (h *StreamHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *StreamHandler) handleEventMessage(ctx context.Context, msg interfaces.BusMessage) error {
	event, ok := msg.Payload.(models.DetectedEvent)
	if !ok {
		return nil
	}

	if models.EventSeverityRank(event.Classification.Severity) < h.minSeverity {
		return nil
	}
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(event.Type)] {
		return nil
	}

	h.broadcast(WSMessage{Type: "event", Payload: event})
	return nil
}

func (h *StreamHandler) handleDeltaMessage(ctx context.Context, msg interfaces.BusMessage) error {
	delta, ok := msg.Payload.(models.Delta)
	if !ok {
		return nil
	}

	h.broadcast(WSMessage{Type: "delta", Payload: delta})
	return nil
}

func (h *StreamHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal stream message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send stream message to client")
		}
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the API only listens on the device
		return true
	},
}

// WebSocketHandler streams agent events to the UI
type WebSocketHandler struct {
	hub    *services.WebSocketHub
	logger *observability.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: observability.WithField("component", "websocket"),
	}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection.
// Topics listed in the "topics" query parameter are subscribed right away.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)

	for _, topic := range r.URL.Query()["topics"] {
		if services.IsKnownTopic(topic) {
			h.hub.Subscribe(client, topic)
		}
	}

	go client.WritePump()

	// blocks until the connection closes
	client.ReadPump(h.handleMessage)
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debugf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe, services.WSTypeUnsubscribe:
		topic := topicOf(msg.Payload)
		if !services.IsKnownTopic(topic) {
			client.Deliver(services.WSMessage{Type: services.WSTypeError, Payload: "unknown topic: " + topic})
			return
		}
		if msg.Type == services.WSTypeSubscribe {
			h.hub.Subscribe(client, topic)
		} else {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		client.Deliver(services.WSMessage{Type: services.WSTypePong})

	default:
		h.logger.Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}

func topicOf(payload interface{}) string {
	if topic, ok := payload.(string); ok {
		return topic
	}
	if m, ok := payload.(map[string]interface{}); ok {
		if topic, ok := m["topic"].(string); ok {
			return topic
		}
	}
	return ""
}

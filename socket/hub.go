package socket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"brkdash/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	HelloType          = "HELLO"           // Sent once to a client that just connected
	PresenceUpdateType = "PRESENCE_UPDATE" // Number of connected dashboards changed
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("socket hub closed")

// WSMessage is what dashboards receive. Type is derived from the event
// topic, e.g. "brk.backup.created" becomes "BACKUP_CREATED".
type WSMessage struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Presence struct {
	Clients int `json:"clients"`
}

// Hub fans configuration change events out to every connected dashboard.
type Hub struct {
	Clients    map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	ID   string
	Send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Broadcast:  make(chan WSMessage, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// TypeForTopic maps an event topic onto a websocket message type.
func TypeForTopic(topic string) string {
	t := strings.TrimPrefix(topic, "brk.")
	return strings.ToUpper(strings.ReplaceAll(t, ".", "_"))
}

// Publish queues event for every connected client. It satisfies
// events.Publisher so the hub can sit next to NATS in a fan-out.
func (h *Hub) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := WSMessage{Type: TypeForTopic(topic), Topic: topic, Payload: payload}
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.Broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Clients)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.Clients[client] = true
			h.mu.Unlock()

			hello, _ := json.Marshal(WSMessage{Type: HelloType, Payload: mustJSON(map[string]string{"clientId": client.ID})})
			client.Send <- hello
			h.broadcastPresenceUpdate()

		case client := <-h.Unregister:
			if h.remove(client) {
				h.broadcastPresenceUpdate()
			}

		case msg := <-h.Broadcast:
			// Marshal the message once to be sent to all clients.
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Clients))
			for client := range h.Clients {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			dropped := false
			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// The client is lagging; drop it rather than block every other dashboard.
					logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.ID)
					dropped = h.remove(client) || dropped
				}
			}
			if dropped {
				h.broadcastPresenceUpdate()
			}

		case <-h.done:
			h.mu.Lock()
			for client := range h.Clients {
				delete(h.Clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove forgets client and closes its send queue. It reports false when the
// client was already gone.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Clients[client]; !ok {
		return false
	}
	delete(h.Clients, client)
	close(client.Send)
	return true
}

func (h *Hub) broadcastPresenceUpdate() {
	h.mu.Lock()
	clientsToSend := make([]*Client, 0, len(h.Clients))
	for client := range h.Clients {
		clientsToSend = append(clientsToSend, client)
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, Payload: mustJSON(Presence{Clients: len(clientsToSend)})})
	for _, client := range clientsToSend {
		select {
		case client.Send <- payload:
		default:
			// Don't unregister here, just log. The pumps handle unresponsive clients.
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.ID)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

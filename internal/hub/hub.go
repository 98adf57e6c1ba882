// Package hub streams stored events to SSE clients. It is a live
// projection only; clients needing history replay the log through the
// query endpoints.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"netfabric/internal/codec"
	"netfabric/internal/eventlog"
)

// eventFrame is the wire shape of one event on the SSE feed. The CBOR
// payload is decoded so clients get plain JSON.
type eventFrame struct {
	Kind          string    `json:"kind"`
	AggregateID   string    `json:"aggregate_id"`
	Sequence      uint64    `json:"sequence"`
	ContentID     string    `json:"content_id"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Payload       any       `json:"payload,omitempty"`
}

// Client represents a connected SSE client
type Client struct {
	id     string
	events chan []byte
}

// Hub manages SSE client connections
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan eventlog.Event
}

// New creates a new Hub
func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan eventlog.Event, 256),
	}
}

// Feed returns a channel suitable for EventBus.Subscribe; everything
// published on it is broadcast to connected clients.
func (h *Hub) Feed() chan<- eventlog.Event {
	return h.broadcast
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("SSE client connected: %s (total: %d)", client.id, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.events)
			}
			h.mu.Unlock()
			log.Printf("SSE client disconnected: %s (total: %d)", client.id, h.ClientCount())

		case ev := <-h.broadcast:
			data, err := json.Marshal(frame(ev))
			if err != nil {
				log.Printf("Failed to marshal event %s: %v", ev.ID, err)
				continue
			}

			msg := fmt.Sprintf("data: %s\n\n", data)

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.events <- []byte(msg):
				default:
					// Client is slow, skip this message
					log.Printf("SSE client %s is slow, skipping event %s", client.id, ev.ID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func frame(ev eventlog.Event) eventFrame {
	f := eventFrame{
		Kind:          ev.Kind,
		AggregateID:   string(ev.AggregateID),
		Sequence:      ev.Sequence,
		ContentID:     ev.ContentID.String(),
		CorrelationID: string(ev.CorrelationID),
		CausationID:   string(ev.CausationID),
		RecordedAt:    ev.RecordedAt,
	}

	var payload map[string]any
	if err := codec.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("Failed to decode %s payload for SSE: %v", ev.Kind, err)
	} else {
		f.Payload = payload
	}
	return f
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check if client supports SSE
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Create client
	client := &Client{
		id:     fmt.Sprintf("%d", time.Now().UnixNano()),
		events: make(chan []byte, 64),
	}

	// Register client
	h.register <- client

	// Ensure cleanup on disconnect
	defer func() {
		h.unregister <- client
	}()

	// Send initial connection message
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	// Keep-alive ticker
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	// Event loop
	for {
		select {
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// Send keep-alive comment
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

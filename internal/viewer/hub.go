// Package viewer relays published segment and merge events to browser
// clients over websocket.
package viewer

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
)

// Event is the view of a segment event or merge notice sent to clients.
type Event struct {
	Topic                    string `json:"topic"`
	EventType                string `json:"eventType"`
	SessionID                string `json:"sessionId"`
	SegmentID                string `json:"segmentId,omitempty"`
	UtteranceIndex           int64  `json:"utteranceIndex"`
	MergedFromUtteranceIndex *int64 `json:"mergedFromUtteranceIndex,omitempty"`
	Text                     string `json:"text,omitempty"`
	Trigger                  string `json:"trigger,omitempty"`
	Timestamp                int64  `json:"timestamp"`
}

// Hub manages websocket connections. The client set is owned by Run.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	connected  atomic.Int64
	log        zerolog.Logger
}

// NewHub creates a hub. Call Run before serving clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        logging.WithComponent("viewer.hub"),
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.connected.Store(0)
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.connected.Store(int64(len(h.clients)))
			h.log.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.connected.Store(int64(len(h.clients)))
			h.log.Info().Int("clients", len(h.clients)).Msg("Client disconnected")

		case event := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					h.log.Warn().Err(err).Msg("Write failed, dropping client")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.connected.Store(int64(len(h.clients)))
		}
	}
}

// Publish queues an event for every connected client.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	select {
	case h.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.register <- conn

	go func() {
		defer func() {
			h.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// NewRouter serves the websocket endpoint and a health check.
func NewRouter(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", h.ServeWS)
	return r
}

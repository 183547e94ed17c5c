package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/notify"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

// Hub streams notifier events to websocket clients.
// A slow client loses events rather than holding up the others.
type Hub struct {
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

type subscriber struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. origin "*" accepts every origin; otherwise the
// Origin header must match it exactly.
func NewHub(origin string) *Hub {
	return &Hub{
		subs: make(map[string]*subscriber),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				got := r.Header.Get("Origin")
				return origin == "*" || got == "" || got == origin
			},
		},
	}
}

// Broadcast sends e to every connected client.
func (h *Hub) Broadcast(e notify.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode event for stream")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			log.Debug().Str("subscriber", sub.id).Msg("Stream client slow, dropping event")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, subscriberBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	log.Debug().Str("subscriber", sub.id).Msg("Stream client connected")

	defer func() {
		h.mu.Lock()
		delete(h.subs, sub.id)
		h.mu.Unlock()
		cancel()
		conn.Close()
		log.Debug().Str("subscriber", sub.id).Msg("Stream client disconnected")
	}()

	go h.write(sub)
	h.read(sub)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sub := range h.subs {
		sub.cancel()
		sub.conn.Close()
	}
}

func (h *Hub) write(sub *subscriber) {
	defer sub.cancel()

	for {
		select {
		case msg := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-sub.ctx.Done():
			return
		}
	}
}

// read handles client commands. Only {"action":"ping"} is understood.
func (h *Hub) read(sub *subscriber) {
	defer sub.cancel()

	for {
		_, msg, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("subscriber", sub.id).Msg("Stream read error")
			}
			return
		}

		var cmd struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}
		if cmd.Action == "ping" {
			select {
			case sub.send <- []byte(`{"type":"pong"}`):
			case <-sub.ctx.Done():
				return
			}
		}
	}
}

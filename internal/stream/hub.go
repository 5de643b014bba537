// Package stream pushes alerts and price updates to browser clients over
// WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nse-monitor/internal/notify"
)

const (
	EventConnected     = "connected"
	EventAlert         = "alert"
	EventPriceUpdate   = "price_update"
	EventRefreshPrices = "refresh_prices"

	sendBuffer   = 256
	pingInterval = 45 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
)

// Event is the envelope of every socket message.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// RefreshFunc fetches fresh prices for every tracked symbol.
type RefreshFunc func(ctx context.Context) map[string]float64

type client struct {
	conn       *websocket.Conn
	out        chan Event
	done       chan struct{}
	refreshing atomic.Bool
}

// Hub tracks connected clients and broadcasts events to them. Slow clients
// drop messages rather than block the broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	refresh RefreshFunc
}

// NewHub creates a hub accepting connections from allowedOrigins ("*" allows any).
func NewHub(allowedOrigins []string, logger zerolog.Logger) *Hub {
	h := &Hub{
		logger:  logger.With().Str("component", "stream").Logger(),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// OnRefresh sets the handler for client refresh_prices requests.
func (h *Hub) OnRefresh(fn RefreshFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refresh = fn
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every client.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- ev:
		default:
			h.logger.Debug().Str("event", ev.Event).Msg("Client buffer full, dropping event")
		}
	}
}

// PublishPrices broadcasts a price_update event.
func (h *Hub) PublishPrices(_ context.Context, prices map[string]float64) error {
	h.Broadcast(Event{Event: EventPriceUpdate, Data: prices})
	return nil
}

// Name implements notify.NotificationChannel.
func (h *Hub) Name() string {
	return "websocket"
}

// IsEnabled implements notify.NotificationChannel.
func (h *Hub) IsEnabled() bool {
	return true
}

// Send broadcasts the alert event.
func (h *Hub) Send(_ context.Context, n notify.Notification) error {
	h.Broadcast(Event{Event: EventAlert, Data: n.Alert})
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{conn: conn, out: make(chan Event, sendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Client connected")

	writerDone := make(chan struct{})
	go h.writeLoop(c, writerDone)

	c.out <- Event{Event: EventConnected, Data: map[string]string{"data": "Connected to NSE Stock Monitor"}}

	h.readLoop(r.Context(), c)

	close(c.done)
	<-writerDone
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Client disconnected")
}

func (h *Hub) writeLoop(c *client, done chan<- struct{}) {
	defer close(done)
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.conn.Close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Event == EventRefreshPrices {
			h.handleRefresh(ctx, c)
		}
	}
}

// handleRefresh answers only the requesting client. The fetch runs off the
// read loop so pongs keep extending the read deadline; one refresh per
// client is in flight at a time.
func (h *Hub) handleRefresh(ctx context.Context, c *client) {
	h.mu.RLock()
	refresh := h.refresh
	h.mu.RUnlock()
	if refresh == nil || !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)
		prices := refresh(ctx)
		select {
		case c.out <- Event{Event: EventPriceUpdate, Data: prices}:
		default:
		}
	}()
}

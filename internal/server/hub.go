package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexjbarnes/scout-sync/internal/scout"
	"github.com/alexjbarnes/scout-sync/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	// writeTimeout bounds a single frame write to a slow client.
	writeTimeout = 5 * time.Second

	// clientBuffer is the number of pending events per client. A client
	// that falls this far behind is disconnected.
	clientBuffer = 64

	shutdownReason = "shutdown"
)

// Event is one frame on the event stream.
type Event struct {
	Event   string `json:"event"`
	Message any    `json:"message"`
}

type hubClient struct {
	id     string
	send   chan Event
	cancel context.CancelFunc
}

// Hub fans events out to websocket clients. It remembers the latest
// message per event name and replays them to each new client, so a UI
// that connects late still sees the current state.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	last    map[string]any
	order   []string
	closed  bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		last:    make(map[string]any),
		logger:  logger,
	}
}

// Emit publishes an engine status change.
func (h *Hub) Emit(s scout.Status) {
	h.Publish(session.EventStatus, s.String())
}

// Publish records message as the latest value of event and sends it to
// every connected client. It never blocks on a client.
func (h *Hub) Publish(event string, message any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, seen := h.last[event]; !seen {
		h.order = append(h.order, event)
	}

	h.last[event] = message

	ev := Event{Event: event, Message: message}
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("event client too slow, disconnecting", slog.String("client", c.id))
			h.removeLocked(c)
		}
	}
}

// Snapshot returns the latest event of every name in first-publish
// order.
func (h *Hub) Snapshot() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() []Event {
	events := make([]Event, 0, len(h.order))
	for _, name := range h.order {
		events = append(events, Event{Event: name, Message: h.last[name]})
	}

	return events
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// HandleEvents upgrades the request to a websocket and streams events
// until the client goes away or the hub closes. Client frames are
// ignored.
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(conn.CloseRead(context.Background()))
	defer cancel()

	c := &hubClient{
		id:     uuid.NewString()[:8],
		send:   make(chan Event, clientBuffer),
		cancel: cancel,
	}

	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, shutdownReason)
		return
	}
	defer h.unregister(c)

	h.logger.Debug("event client connected", slog.String("client", c.id))

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, shutdownReason)
			h.logger.Debug("event client disconnected", slog.String("client", c.id))

			return

		case ev := <-c.send:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			writeCancel()

			if err != nil {
				h.logger.Debug("event write failed",
					slog.String("client", c.id),
					slog.String("error", err.Error()),
				)
				conn.CloseNow()

				return
			}
		}
	}
}

// register adds c and queues the replay under the same lock, so no
// event can slip between the replay and live delivery.
func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	for _, ev := range h.snapshotLocked() {
		c.send <- ev
	}

	h.clients[c] = struct{}{}
	h.wg.Add(1)

	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()

	h.wg.Done()
}

func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	c.cancel()
}

// Close disconnects every client and waits for their handlers to
// return. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true

	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("event hub closed")
}

// Package status broadcasts live assistant events to WebSocket clients.
//
// Each client gets a bounded outbox. A client that falls behind is
// disconnected rather than slowing the publisher, so publishing from the
// capture consumer never blocks.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Message types.
const (
	TypeSnapshot   = "snapshot"
	TypeMode       = "mode"
	TypeVAD        = "vad"
	TypeSegment    = "segment"
	TypeTranscript = "transcript"
	TypeCommand    = "command"
)

// Message is one JSON event on the feed.
type Message struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Mode    string    `json:"mode,omitempty"`
	Profile string    `json:"profile,omitempty"`
	State   string    `json:"state,omitempty"`

	// Countdown is the silence left before the open segment ends. It is
	// null while idle.
	Countdown *float64 `json:"countdown_s,omitempty"`
	Buffered  float64  `json:"buffered_s,omitempty"`

	Segment    string  `json:"segment,omitempty"`
	Text       string  `json:"text,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	RMS        float64 `json:"rms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

const (
	outboxSize   = 32
	writeTimeout = 5 * time.Second
)

// Hub fans messages out to connected clients. The zero value is not usable;
// call [NewHub].
type Hub struct {
	snapshot func() Message

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	out    chan Message
	cancel context.CancelFunc
}

// NewHub creates a Hub. snapshot, if non-nil, produces the first message
// every new client receives.
func NewHub(snapshot func() Message) *Hub {
	return &Hub{snapshot: snapshot, clients: make(map[*client]struct{})}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues m for every client, stamping Time if unset. Clients whose
// outbox is full are disconnected.
func (h *Hub) Publish(m Message) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- m:
		default:
			slog.Warn("status client too slow, disconnecting")
			delete(h.clients, c)
			c.cancel()
		}
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// leaves or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("status upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = conn.CloseRead(ctx)

	c := &client{out: make(chan Message, outboxSize), cancel: cancel}
	if h.snapshot != nil {
		snap := h.snapshot()
		snap.Type = TypeSnapshot
		if snap.Time.IsZero() {
			snap.Time = time.Now()
		}
		c.out <- snap
	}
	h.add(c)
	defer h.remove(c)

	for {
		select {
		case <-ctx.Done():
			if h.removed(c) {
				conn.Close(websocket.StatusPolicyViolation, "slow consumer")
			} else {
				conn.Close(websocket.StatusNormalClosure, "")
			}
			return
		case m := <-c.out:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, m)
			wcancel()
			if err != nil {
				slog.Debug("status write failed", "err", err)
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// removed reports whether Publish evicted c.
func (h *Hub) removed(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[c]
	return !ok
}

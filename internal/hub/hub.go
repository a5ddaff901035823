// Package hub fans server-side notifications out to every connected
// dashboard client over WebSocket.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

const writeTimeout = 15 * time.Second

// Conn is the subset of a WebSocket connection the hub writes to.
// coder/websocket's *websocket.Conn satisfies it.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
}

// Hub holds the set of authenticated client connections. A Hub is
// created per server instance and passed to whoever needs to broadcast;
// there is no package-level state.
type Hub struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
}

func New() *Hub {
	return &Hub{conns: make(map[Conn]struct{})}
}

// Register adds a connection. Registering an already registered
// connection is a no-op.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// Unregister removes a connection. Unknown connections are no-ops, so
// close paths may call it unconditionally.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast encodes one frame and writes it to every connection.
// Connections whose write fails or times out are dropped from the set;
// one slow client never blocks the rest past the write timeout and
// never fails ingestion.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		logging.Logger.Error("encoding broadcast failed", "type", msgType, "error", err)
		return
	}

	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			logging.Logger.Debug("dropping client after failed write", "type", msgType, "error", err)
			h.Unregister(c)
		}
	}
}

// The typed methods below satisfy the ingestion processor's Notifier.

func (h *Hub) SessionCreated(sess *protocol.Session) {
	h.Broadcast(protocol.MsgSessionCreated, sess)
}

func (h *Hub) SessionUpdated(sess *protocol.Session) {
	h.Broadcast(protocol.MsgSessionUpdated, sess)
}

func (h *Hub) TimelineEvent(ev *protocol.TimelineEvent) {
	h.Broadcast(protocol.MsgTimeline, ev)
}

func (h *Hub) Attention(att *protocol.Attention) {
	h.Broadcast(protocol.MsgAttention, att)
}

func (h *Hub) Idle(idle *protocol.Idle) {
	h.Broadcast(protocol.MsgIdle, idle)
}

func (h *Hub) ErrorNotice(notice *protocol.ErrorNotice) {
	h.Broadcast(protocol.MsgError, notice)
}

// Package transport routes dispatched messages to the live connection a
// session registered. The dispatch engine decides who receives what; the
// hub only knows which pipe, if any, a session currently has.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/harborview/mediahub/internal/sessions/events"
)

// ErrNoConnection reports a delivery to a session with no attached pipe.
var ErrNoConnection = errors.New("no_connection")

// Message is one typed payload bound for a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Conn is one live client pipe. Implementations wrap whatever carries the
// bytes (a websocket, a long poll queue, a test recorder).
type Conn interface {
	Send(ctx context.Context, msg Message) error
}

// Hub maps session ids to their connection. At most one connection per
// session; attaching replaces the previous one.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewHub(bus *events.Bus) *Hub {
	h := &Hub{conns: make(map[string]Conn)}
	// A session that ends takes its pipe with it.
	bus.Subscribe(func(_ context.Context, ev events.Event) {
		if se, ok := ev.(events.SessionEvent); ok {
			h.Detach(se.Session.ID)
		}
	}, events.KindSessionEnded)
	return h
}

// Attach binds a connection to a session, replacing any existing one.
func (h *Hub) Attach(sessionID string, conn Conn) {
	h.mu.Lock()
	h.conns[sessionID] = conn
	h.mu.Unlock()
}

// Detach removes a session's connection if present.
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	delete(h.conns, sessionID)
	h.mu.Unlock()
}

// Connected reports whether a session currently has a pipe.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[sessionID]
	return ok
}

// SendToSession implements the dispatch transport.
func (h *Hub) SendToSession(ctx context.Context, sessionID, messageType string, payload any) error {
	h.mu.RLock()
	conn, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return ErrNoConnection
	}
	return conn.Send(ctx, Message{Type: messageType, Data: payload})
}

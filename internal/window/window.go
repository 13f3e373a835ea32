package window

import (
	"log/slog"
	"sync"

	"github.com/roach88/webcanvas/internal/metrics"
	"github.com/roach88/webcanvas/internal/painter"
	"github.com/roach88/webcanvas/internal/protocol"
)

// Window is one painter channel: a set of viewer connections sharing a
// key. It implements painter.Channel.
//
// Thread-safety: all methods are safe for concurrent use.
type Window struct {
	mgr *Manager
	key string

	mu       sync.Mutex
	receiver painter.Receiver
	conns    map[uint32]*client
	shown    bool
}

var _ painter.Channel = (*Window)(nil)

// Key returns the window key.
func (w *Window) Key() string {
	return w.key
}

// URL returns the websocket address viewers connect to, or "" before the
// manager listens.
func (w *Window) URL() string {
	addr := w.mgr.Addr()
	if addr == "" {
		return ""
	}
	return "ws://" + addr + "/win/" + w.key + "/ws"
}

// Show starts the manager on where (the manager default when empty) and
// marks the window as displayed.
func (w *Window) Show(where string) error {
	if err := w.mgr.Start(where); err != nil {
		return err
	}

	w.mu.Lock()
	w.shown = true
	w.mu.Unlock()

	slog.Info("window shown", "window", w.key, "url", w.URL())
	return nil
}

// IsShown reports whether Show succeeded.
func (w *Window) IsShown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shown
}

// SetReceiver sets where inbound messages go.
func (w *Window) SetReceiver(r painter.Receiver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receiver = r
}

// Send queues payload for conn. It returns false, and counts a drop, when
// the connection is gone or its queue is full.
func (w *Window) Send(conn uint32, payload string) bool {
	c, ok := w.client(conn)
	if !ok {
		return false
	}
	if !c.enqueue(payload) {
		metrics.SendsDroppedTotal.Inc()
		return false
	}
	return true
}

// CanSend reports whether conn has room in its send queue.
func (w *Window) CanSend(conn uint32) bool {
	c, ok := w.client(conn)
	return ok && c.canSend()
}

// HasConnection reports whether conn is attached.
func (w *Window) HasConnection(conn uint32) bool {
	_, ok := w.client(conn)
	return ok
}

// NumConnections returns the number of attached viewers.
func (w *Window) NumConnections() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

// RelativeAddr returns the address of other relative to this window's
// websocket endpoint. Only windows of the same manager can be embedded.
func (w *Window) RelativeAddr(other painter.Channel) string {
	o, ok := other.(*Window)
	if !ok || o.mgr != w.mgr || o == w {
		return ""
	}
	return "../" + o.key + "/ws"
}

// Terminate shuts the whole manager down.
func (w *Window) Terminate() {
	w.mgr.Terminate()
}

// CloseConnections closes every viewer connection with a normal closure.
func (w *Window) CloseConnections() {
	w.mu.Lock()
	clients := make([]*client, 0, len(w.conns))
	for _, c := range w.conns {
		clients = append(clients, c)
	}
	w.mu.Unlock()

	for _, c := range clients {
		c.stopGraceful("window closed")
	}
}

func (w *Window) client(conn uint32) (*client, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.conns[conn]
	return c, ok
}

// serve runs one connection to completion on the handler goroutine.
func (w *Window) serve(c *client) {
	w.mu.Lock()
	w.conns[c.id] = c
	w.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	slog.Info("viewer attached", "window", w.key, "conn", c.id)

	w.deliver(c.id, string(protocol.TagConnReady))

	c.readLoop(func(msg string) {
		metrics.MessagesTotal.WithLabelValues(string(protocol.Inbound), string(protocol.TagOf(msg))).Inc()
		w.deliver(c.id, msg)
	})

	// unregister before CONN_CLOSED so the painter never sees it as live
	w.mu.Lock()
	delete(w.conns, c.id)
	w.mu.Unlock()

	c.stop()
	metrics.ConnectionsActive.Dec()
	slog.Info("viewer detached", "window", w.key, "conn", c.id)

	w.deliver(c.id, string(protocol.TagConnClosed))
}

func (w *Window) deliver(conn uint32, msg string) {
	w.mu.Lock()
	r := w.receiver
	w.mu.Unlock()

	if r == nil || !r.Deliver(conn, msg) {
		slog.Debug("inbound message not accepted", "window", w.key, "conn", conn, "tag", string(protocol.TagOf(msg)))
	}
}

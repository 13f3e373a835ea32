package testutil

import (
	"slices"
	"sync"

	"github.com/roach88/webcanvas/internal/painter"
	"github.com/roach88/webcanvas/internal/protocol"
)

// Sent is one payload pushed through a FakeChannel.
type Sent struct {
	Conn    uint32
	Payload string
}

// FakeChannel is an in-memory painter.Channel.
//
// Connections are opened and closed explicitly by the test, which also
// plays the viewers by calling Deliver. OnSend, when set, runs after every
// accepted payload and is the usual place to script viewer replies.
//
// Thread-safety: all methods are safe for concurrent use. OnSend runs
// without the internal lock held.
type FakeChannel struct {
	// Addr is the address RelativeAddr reports for this channel.
	// An empty Addr makes the channel non-embeddable.
	Addr string

	// OnSend observes every accepted payload.
	OnSend func(conn uint32, payload string)

	mu         sync.Mutex
	receiver   painter.Receiver
	shown      bool
	conns      []uint32
	blocked    map[uint32]bool
	sent       []Sent
	terminated bool
	closed     bool
}

// NewFakeChannel creates a channel that is already shown.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{shown: true, blocked: make(map[uint32]bool)}
}

// NewHiddenChannel creates a channel that was never shown.
func NewHiddenChannel() *FakeChannel {
	return &FakeChannel{blocked: make(map[uint32]bool)}
}

// Connect attaches viewer id and announces it to the receiver.
func (c *FakeChannel) Connect(id uint32) {
	c.mu.Lock()
	if !slices.Contains(c.conns, id) {
		c.conns = append(c.conns, id)
	}
	c.mu.Unlock()
	c.Deliver(id, string(protocol.TagConnReady))
}

// Disconnect detaches viewer id and announces it to the receiver.
func (c *FakeChannel) Disconnect(id uint32) {
	c.mu.Lock()
	c.conns = slices.DeleteFunc(c.conns, func(v uint32) bool { return v == id })
	delete(c.blocked, id)
	c.mu.Unlock()
	c.Deliver(id, string(protocol.TagConnClosed))
}

// Deliver hands msg from viewer id to the receiver.
func (c *FakeChannel) Deliver(id uint32, msg string) bool {
	c.mu.Lock()
	r := c.receiver
	c.mu.Unlock()
	if r == nil {
		return false
	}
	return r.Deliver(id, msg)
}

// Block makes CanSend report false for id until unblocked.
func (c *FakeChannel) Block(id uint32, blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[id] = blocked
}

// Sent returns every accepted payload in send order.
func (c *FakeChannel) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

// SentTo returns the payloads accepted for id in send order.
func (c *FakeChannel) SentTo(id uint32) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.sent {
		if s.Conn == id {
			out = append(out, s.Payload)
		}
	}
	return out
}

// Terminated reports whether Terminate was called.
func (c *FakeChannel) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Closed reports whether CloseConnections was called.
func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send implements painter.Channel.
func (c *FakeChannel) Send(conn uint32, payload string) bool {
	c.mu.Lock()
	if !slices.Contains(c.conns, conn) || c.blocked[conn] {
		c.mu.Unlock()
		return false
	}
	c.sent = append(c.sent, Sent{Conn: conn, Payload: payload})
	hook := c.OnSend
	c.mu.Unlock()

	if hook != nil {
		hook(conn, payload)
	}
	return true
}

// CanSend implements painter.Channel.
func (c *FakeChannel) CanSend(conn uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.conns, conn) && !c.blocked[conn]
}

// HasConnection implements painter.Channel.
func (c *FakeChannel) HasConnection(conn uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.conns, conn)
}

// NumConnections implements painter.Channel.
func (c *FakeChannel) NumConnections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Show implements painter.Channel.
func (c *FakeChannel) Show(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = true
	return nil
}

// IsShown implements painter.Channel.
func (c *FakeChannel) IsShown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shown
}

// RelativeAddr implements painter.Channel.
func (c *FakeChannel) RelativeAddr(other painter.Channel) string {
	o, ok := other.(*FakeChannel)
	if !ok || o.Addr == "" {
		return ""
	}
	return "../" + o.Addr + "/ws"
}

// SetReceiver implements painter.Channel.
func (c *FakeChannel) SetReceiver(r painter.Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiver = r
}

// Terminate implements painter.Channel.
func (c *FakeChannel) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
}

// CloseConnections implements painter.Channel.
func (c *FakeChannel) CloseConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.conns = nil
}

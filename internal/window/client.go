package window

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/webcanvas/internal/metrics"
	"github.com/roach88/webcanvas/internal/protocol"
)

// client is one websocket viewer connection.
//
// The write pump is the only writer of ws until it exits; the serving
// handler goroutine is the only reader.
type client struct {
	id   uint32
	ws   *websocket.Conn
	opts Options

	send     chan string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClient(id uint32, ws *websocket.Conn, opts Options) *client {
	c := &client{
		id:   id,
		ws:   ws,
		opts: opts,
		send: make(chan string, opts.SendQueue),
		done: make(chan struct{}),
	}
	c.configureRead()
	c.wg.Add(1)
	go c.writePump()
	return c
}

// enqueue hands payload to the write pump without blocking.
func (c *client) enqueue(payload string) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) canSend() bool {
	select {
	case <-c.done:
		return false
	default:
		return len(c.send) < cap(c.send)
	}
}

func (c *client) writePump() {
	ticker := c.opts.Clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case payload := <-c.send:
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				_ = c.ws.Close()
				return
			}
			metrics.MessagesTotal.WithLabelValues(string(protocol.Outbound), string(protocol.TagOf(payload))).Inc()

		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				// viewer most likely went away
				metrics.PingFailures.Inc()
				_ = c.ws.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// readLoop passes every inbound text frame to deliver until the
// connection fails or closes.
func (c *client) readLoop(deliver func(msg string)) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		deliver(string(data))
	}
}

func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	c.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (c *client) stopGraceful(reason string) {
	c.stopOnce.Do(func() {
		close(c.done)

		// the write pump must exit before the close frame is written
		c.wg.Wait()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		_ = c.ws.Close()
	})
}

func (c *client) configureRead() {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	c.updateReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

// Deadlines are network deadlines and always use wall time.
func (c *client) updateWriteDeadline() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
}

func (c *client) updateReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
}

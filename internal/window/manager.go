package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Defaults for Options fields left zero.
const (
	DefaultAddr            = "127.0.0.1:8765"
	DefaultSendQueue       = 16
	DefaultMaxMessageBytes = 16 << 20
	DefaultWriteWait       = 5 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultPongWait        = 60 * time.Second
	shutdownTimeout        = 5 * time.Second
)

// ErrTerminated is returned by Start after Terminate.
var ErrTerminated = errors.New("window manager terminated")

// Options configures a Manager.
type Options struct {
	// Addr is the listen address used by Show("").
	Addr string

	// SendQueue is the per-connection outbound capacity. CanSend reports
	// false once this many payloads wait to be written.
	SendQueue int

	// MaxMessageBytes bounds inbound frames.
	MaxMessageBytes int64

	WriteWait    time.Duration
	PingInterval time.Duration
	PongWait     time.Duration

	Clock clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.SendQueue <= 0 {
		o.SendQueue = DefaultSendQueue
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = 2 * o.PingInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Manager serves windows from one HTTP server.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	windows  map[string]*Window
	server   *http.Server
	listener net.Listener

	nextConn atomic.Uint32

	done     chan struct{}
	doneOnce sync.Once
}

// NewManager creates a manager. Nothing listens until Start or a window's
// Show.
func NewManager(opts Options) *Manager {
	m := &Manager{
		opts:    opts.withDefaults(),
		router:  mux.NewRouter(),
		windows: make(map[string]*Window),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers may be served from any local page
			},
		},
	}

	m.router.HandleFunc("/win/{key}/ws", m.handleWebSocket).Methods(http.MethodGet)
	m.router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	m.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return m
}

// NewWindow registers a new window under a fresh key.
func (m *Manager) NewWindow() *Window {
	w := &Window{
		mgr:   m,
		key:   uuid.Must(uuid.NewV7()).String(),
		conns: make(map[uint32]*client),
	}

	m.mu.Lock()
	m.windows[w.key] = w
	m.mu.Unlock()

	return w
}

// Handler returns the HTTP handler serving every window.
func (m *Manager) Handler() http.Handler {
	return m.router
}

// Start listens on addr (Options.Addr when empty) and serves in the
// background. Calling Start again while serving is a no-op.
func (m *Manager) Start(addr string) error {
	if addr == "" {
		addr = m.opts.Addr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return ErrTerminated
	default:
	}

	if m.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	m.listener = ln
	m.server = &http.Server{
		Handler:           m.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("window server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}(m.server)

	slog.Info("window server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the address the manager listens on, or "" before Start.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Terminate stops the server, closes every connection and closes Done.
// Safe to call more than once.
func (m *Manager) Terminate() {
	m.doneOnce.Do(func() {
		m.mu.Lock()
		srv := m.server
		windows := make([]*Window, 0, len(m.windows))
		for _, w := range m.windows {
			windows = append(windows, w)
		}
		close(m.done)
		m.mu.Unlock()

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("window server shutdown", "error", err)
			}
		}

		// hijacked websocket connections are not closed by Shutdown
		for _, w := range windows {
			w.CloseConnections()
		}

		slog.Info("window manager terminated")
	})
}

// Done is closed once the manager terminated.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) lookup(key string) (*Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	return w, ok
}

func (m *Manager) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if _, err := uuid.Parse(key); err != nil {
		http.Error(rw, "invalid window key", http.StatusBadRequest)
		return
	}

	w, ok := m.lookup(key)
	if !ok {
		http.Error(rw, "window not found", http.StatusNotFound)
		return
	}

	ws, err := m.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		slog.Warn("websocket upgrade failed", "window", key, "error", err)
		return
	}

	c := newClient(m.nextConn.Add(1), ws, m.opts)
	w.serve(c)
}

func handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = rw.Write([]byte("ok\n"))
}

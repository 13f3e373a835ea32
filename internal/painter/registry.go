package painter

// Connection is the painter's view of one live viewer.
//
// INVARIANT: AckedVersion <= SentVersion <= current document version,
// except transiently after RELOAD, which zeroes SentVersion to force a
// resend on the next push pass.
type Connection struct {
	ID uint32

	// DrawReady becomes true after the viewer reports its first render.
	// Commands are only dispatched to draw-ready viewers.
	DrawReady bool

	// PendingMenu holds the drawable id of an unanswered GETMENU.
	PendingMenu string

	// SentVersion is the last snapshot version pushed to this viewer.
	SentVersion uint64

	// AckedVersion is the last version this viewer confirmed rendering.
	// It never moves backwards.
	AckedVersion uint64
}

// Registry tracks live connections in connection order.
//
// Not safe for concurrent use; owned by the painter goroutine.
type Registry struct {
	conns []*Connection

	// hadConnection is sticky: once any viewer has connected it stays true.
	// It separates "never had viewers" from "all viewers left".
	hadConnection bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnConnect adds a record for id. Returns false if id is already
// registered, in which case the existing record is left untouched.
func (r *Registry) OnConnect(id uint32) bool {
	if _, ok := r.Find(id); ok {
		return false
	}
	r.conns = append(r.conns, &Connection{ID: id})
	r.hadConnection = true
	return true
}

// OnDisconnect removes the record for id, preserving the order of the rest.
func (r *Registry) OnDisconnect(id uint32) bool {
	for i, c := range r.conns {
		if c.ID == id {
			copy(r.conns[i:], r.conns[i+1:])
			r.conns[len(r.conns)-1] = nil
			r.conns = r.conns[:len(r.conns)-1]
			return true
		}
	}
	return false
}

// Find returns the record for id.
func (r *Registry) Find(id uint32) (*Connection, bool) {
	for _, c := range r.conns {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// All returns the live connections in connection order.
// The slice is a copy; the records are shared.
func (r *Registry) All() []*Connection {
	out := make([]*Connection, len(r.conns))
	copy(out, r.conns)
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// HadConnection reports whether any viewer ever connected.
func (r *Registry) HadConnection() bool {
	return r.hadConnection
}

// AllGone reports that viewers existed and none remain.
func (r *Registry) AllGone() bool {
	return r.hadConnection && len(r.conns) == 0
}

// MinAcked returns the smallest acknowledged version among live
// connections. ok is false when there are none.
func (r *Registry) MinAcked() (min uint64, ok bool) {
	for i, c := range r.conns {
		if i == 0 || c.AckedVersion < min {
			min = c.AckedVersion
		}
	}
	return min, len(r.conns) > 0
}

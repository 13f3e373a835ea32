package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/webcanvas/internal/painter"
	"github.com/roach88/webcanvas/internal/protocol"
)

// Session identifies one traced display session.
type Session struct {
	ID        string `json:"id"`
	Document  string `json:"document"`
	WindowKey string `json:"window_key"`
	StartedAt string `json:"started_at"`
}

// BeginSession inserts a session row and returns a Recorder appending to
// it. The session id is a fresh UUIDv7, so ids sort by start order.
func (s *Store) BeginSession(ctx context.Context, document, windowKey string) (*Recorder, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	sess := Session{
		ID:        id.String(),
		Document:  document,
		WindowKey: windowKey,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, document, window_key, started_at)
		VALUES (?, ?, ?, ?)
	`, sess.ID, sess.Document, sess.WindowKey, sess.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	return &Recorder{store: s, ctx: ctx, session: sess}, nil
}

// Recorder appends the trace of one session. It implements
// painter.Recorder.
//
// Thread-safety: safe for concurrent use; seq is assigned atomically and
// the store serializes writes on its single connection.
type Recorder struct {
	store   *Store
	ctx     context.Context
	session Session
	seq     atomic.Int64
}

var _ painter.Recorder = (*Recorder)(nil)

// Session returns the session this recorder appends to.
func (r *Recorder) Session() Session {
	return r.session
}

// RecordMessage appends one protocol message.
func (r *Recorder) RecordMessage(dir protocol.Direction, conn uint32, tag protocol.Tag, size int) error {
	_, err := r.store.db.ExecContext(r.ctx, `
		INSERT INTO messages (session_id, seq, conn, direction, tag, size)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.session.ID, r.seq.Add(1), conn, string(dir), tagLabel(tag), size)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// RecordCommand appends the outcome of one command.
func (r *Recorder) RecordCommand(id uint64, verb, arg string, outcome string) error {
	_, err := r.store.db.ExecContext(r.ctx, `
		INSERT INTO commands (session_id, seq, cmd_id, verb, arg, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.session.ID, r.seq.Add(1), int64(id), verb, arg, outcome)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

func tagLabel(tag protocol.Tag) string {
	if tag == protocol.TagUnknown {
		return "?"
	}
	return string(tag)
}

package store

import (
	"context"
	"fmt"
)

// MessageRecord is one traced protocol message.
type MessageRecord struct {
	Seq       int64  `json:"seq"`
	Conn      uint32 `json:"conn"`
	Direction string `json:"direction"`
	Tag       string `json:"tag"`
	Size      int    `json:"size"`
}

// CommandRecord is one traced command outcome.
type CommandRecord struct {
	Seq     int64  `json:"seq"`
	CmdID   uint64 `json:"cmd_id"`
	Verb    string `json:"verb"`
	Arg     string `json:"arg"`
	Outcome string `json:"outcome"`
}

// TagCount is the number of messages with one tag and direction.
type TagCount struct {
	Direction string `json:"direction"`
	Tag       string `json:"tag"`
	Count     int    `json:"count"`
}

// Sessions returns every session ordered by id (start order).
// Returns an empty slice (not nil) when there are none.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, window_key, started_at
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Document, &sess.WindowKey, &sess.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Messages returns the messages of a session ordered by seq.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, conn, direction, tag, size
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	records := []MessageRecord{}
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.Seq, &m.Conn, &m.Direction, &m.Tag, &m.Size); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return records, nil
}

// Commands returns the command outcomes of a session ordered by seq.
func (s *Store) Commands(ctx context.Context, sessionID string) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, cmd_id, verb, arg, outcome
		FROM commands
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var c CommandRecord
		var id int64
		if err := rows.Scan(&c.Seq, &id, &c.Verb, &c.Arg, &c.Outcome); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		c.CmdID = uint64(id)
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return records, nil
}

// TagCounts summarizes a session's messages per direction and tag,
// ordered by direction then tag.
func (s *Store) TagCounts(ctx context.Context, sessionID string) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, tag, COUNT(*)
		FROM messages
		WHERE session_id = ?
		GROUP BY direction, tag
		ORDER BY direction COLLATE BINARY ASC, tag COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query tag counts: %w", err)
	}
	defer rows.Close()

	counts := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Direction, &tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag counts: %w", err)
	}
	return counts, nil
}

package painter

import (
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/webcanvas/internal/protocol"
)

// Command verbs with a known reply grammar.
const (
	VerbSVG  = "SVG"
	VerbPNG  = "PNG"
	VerbJPEG = "JPEG"

	// VerbAddPanel is a prefix: the full verb is "ADDPANEL:<addr>".
	VerbAddPanel = "ADDPANEL:"

	// VerbJSON is handled locally and never queued: its argument names
	// a file receiving the next snapshot.
	VerbJSON = "JSON"
)

// IsImageVerb reports whether verb exports an image to the argument path.
func IsImageVerb(verb string) bool {
	return verb == VerbSVG || verb == VerbPNG || verb == VerbJPEG
}

// Command is one queued remote execution request.
type Command struct {
	ID   uint64
	Verb string
	Arg  string

	// Conn is the connection the command is bound to; 0 lets any
	// draw-ready viewer serve it.
	Conn uint32

	Running bool
	Ready   bool
	Result  bool

	done *completion
}

// CommandQueue is an ordered queue of commands with a single in-flight slot.
//
// INVARIANT: at most one command is Running, and it is always the head.
//
// Not safe for concurrent use; owned by the painter goroutine.
type CommandQueue struct {
	clock *Clock
	cmds  []Command
	saver FileSaver
}

// NewCommandQueue creates an empty queue stamping ids from clock.
// Image replies are persisted through saver.
func NewCommandQueue(clock *Clock, saver FileSaver) *CommandQueue {
	if clock == nil {
		clock = NewClock()
	}
	if saver == nil {
		saver = DiskSaver{}
	}
	return &CommandQueue{clock: clock, saver: saver}
}

// Submit appends a command and returns its id. Nothing is sent here; the
// next push pass dispatches it.
func (q *CommandQueue) Submit(verb, arg string, conn uint32, done *completion) uint64 {
	if done == nil {
		done = newCompletion(nil)
	}
	id := q.clock.Next()
	q.cmds = append(q.cmds, Command{
		ID:   id,
		Verb: verb,
		Arg:  arg,
		Conn: conn,
		done: done,
	})
	return id
}

// Len returns the number of queued commands, the running one included.
func (q *CommandQueue) Len() int {
	return len(q.cmds)
}

// Head returns a copy of the queue head.
func (q *CommandQueue) Head() (Command, bool) {
	if len(q.cmds) == 0 {
		return Command{}, false
	}
	return q.cmds[0], true
}

// Lookup returns a copy of the queued command with id.
func (q *CommandQueue) Lookup(id uint64) (Command, bool) {
	for _, c := range q.cmds {
		if c.ID == id {
			return c, true
		}
	}
	return Command{}, false
}

// RunningCount returns how many commands are in flight. Always 0 or 1.
func (q *CommandQueue) RunningCount() int {
	n := 0
	for _, c := range q.cmds {
		if c.Running {
			n++
		}
	}
	return n
}

// TryDispatchHead starts the head command on conn if it is idle and either
// unbound or bound to conn. On success the head is marked running, bound
// to conn, and the wire payload is returned.
func (q *CommandQueue) TryDispatchHead(conn uint32) (string, bool) {
	if len(q.cmds) == 0 {
		return "", false
	}
	head := &q.cmds[0]
	if head.Running {
		return "", false
	}
	if head.Conn != 0 && head.Conn != conn {
		return "", false
	}
	head.Running = true
	head.Conn = conn
	return protocol.FormatCommand(head.ID, head.Verb), true
}

// CompleteHead applies a REPLY body of the form <id>:<payload> to the
// running head command.
//
// The reply is rejected, and the queue left untouched, if no command is
// running or the id is not the head's. Otherwise the head is removed and
// its callback fires once with the result decoded from the verb's reply
// grammar. The returned Command is the finished record.
func (q *CommandQueue) CompleteHead(reply string) (Command, error) {
	if len(q.cmds) == 0 {
		return Command{}, newProtocolError(ErrCodeNoRunningCommand, "reply without any command")
	}
	head := q.cmds[0]
	if !head.Running {
		return Command{}, newProtocolError(ErrCodeNoRunningCommand, "head command %d is not running", head.ID)
	}

	sid, payload, _ := strings.Cut(reply, ":")
	if id, err := strconv.ParseUint(sid, 10, 64); err != nil || id != head.ID {
		return Command{}, &ProtocolError{
			Code:    ErrCodeReplyMismatch,
			Message: "reply id does not match running command",
			Details: map[string]string{
				"reply_id": sid,
				"head_id":  strconv.FormatUint(head.ID, 10),
			},
		}
	}

	q.pop()

	result, err := q.decodeReply(head, payload)

	head.Running = false
	head.Ready = true
	head.Result = result
	head.done.fire(result)

	return head, err
}

// decodeReply interprets payload according to the command verb.
func (q *CommandQueue) decodeReply(cmd Command, payload string) (bool, error) {
	switch {
	case IsImageVerb(cmd.Verb):
		if payload == "" {
			slog.Error("viewer failed to produce image", "verb", cmd.Verb, "arg", cmd.Arg)
			return false, nil
		}
		content, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return false, newProtocolError(ErrCodeMalformedBody, "decode %s reply: %v", cmd.Verb, err)
		}
		if err := q.saver.SaveFile(cmd.Arg, content); err != nil {
			slog.Error("save exported image", "verb", cmd.Verb, "arg", cmd.Arg, "error", err)
			return false, nil
		}
		slog.Info("image exported", "verb", cmd.Verb, "path", cmd.Arg, "bytes", len(content))
		return true, nil

	case strings.HasPrefix(cmd.Verb, VerbAddPanel):
		slog.Debug("panel attach reply", "verb", cmd.Verb, "reply", payload)
		return payload == "true", nil

	default:
		return false, newProtocolError(ErrCodeUnknownVerb, "no reply grammar for verb %q", cmd.Verb)
	}
}

// Cancel fails and removes the command with id. Returns false if it is
// no longer queued.
func (q *CommandQueue) Cancel(id uint64) bool {
	for i, c := range q.cmds {
		if c.ID == id {
			q.cmds = append(q.cmds[:i], q.cmds[i+1:]...)
			finishCancelled(c)
			return true
		}
	}
	return false
}

// CancelAll fails and removes every command bound to conn, or every
// command when conn is 0. Returns the number cancelled.
func (q *CommandQueue) CancelAll(conn uint32) int {
	var cancelled []Command
	kept := q.cmds[:0]
	for _, c := range q.cmds {
		if conn == 0 || c.Conn == conn {
			cancelled = append(cancelled, c)
		} else {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(q.cmds); i++ {
		q.cmds[i] = Command{}
	}
	q.cmds = kept

	for _, c := range cancelled {
		finishCancelled(c)
	}
	return len(cancelled)
}

func (q *CommandQueue) pop() {
	q.cmds[0] = Command{}
	q.cmds = q.cmds[1:]
	if len(q.cmds) == 0 {
		q.cmds = nil
	}
}

func finishCancelled(c Command) {
	c.Running = false
	c.Ready = true
	c.Result = false
	c.done.fire(false)
}

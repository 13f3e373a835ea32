package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/webcanvas/internal/painter"
	"github.com/roach88/webcanvas/internal/protocol"
	"github.com/roach88/webcanvas/internal/testutil"
)

// Harness executes one scenario against a painter, a FakeChannel and a
// FakeDocument.
//
// Not safe for concurrent use; everything runs on the caller's goroutine,
// which acts as the painter's owner.
type Harness struct {
	scenario *Scenario
	channel  *testutil.FakeChannel
	painter  *painter.Painter
	viewers  map[uint32]Viewer
	result   *Result
	closed   bool

	// finished freezes Outcomes once assertions ran, so the final Close
	// does not rewrite pending requests as failed.
	finished bool
}

// Run executes a scenario and returns the result.
//
// An error is returned only when the scenario cannot be executed at all;
// failed expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		viewers:  make(map[uint32]Viewer, len(scenario.Viewers)),
		result:   NewResult(),
	}
	for _, v := range scenario.Viewers {
		h.viewers[v.Conn] = v
	}

	if scenario.Hidden {
		h.channel = testutil.NewHiddenChannel()
	} else {
		h.channel = testutil.NewFakeChannel()
	}
	h.channel.OnSend = h.onSend

	h.painter = painter.New(h.channel, testutil.NewFakeDocument(),
		painter.WithFileSaver(h),
		painter.WithPollInterval(time.Millisecond),
		painter.WithUpdateTimeout(orDefault(scenario.UpdateTimeout)),
		painter.WithCommandTimeout(orDefault(scenario.CommandTimeout)),
	)

	ctx := context.Background()
	for i, step := range scenario.Steps {
		h.runStep(ctx, i, step)
		if !h.closed {
			if err := h.painter.RunFor(ctx, 0); err != nil {
				return nil, fmt.Errorf("steps[%d]: pump: %w", i, err)
			}
		}
	}

	h.result.Stats = h.painter.Stats()
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	h.finished = true
	h.painter.Close()
	return h.result, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func (h *Harness) runStep(ctx context.Context, i int, st Step) {
	switch {
	case st.Connect != 0:
		h.result.AddTrace(DirIn, st.Connect, string(protocol.TagConnReady))
		h.channel.Connect(st.Connect)

	case st.Disconnect != 0:
		h.result.AddTrace(DirIn, st.Disconnect, string(protocol.TagConnClosed))
		h.channel.Disconnect(st.Disconnect)

	case st.Deliver != nil:
		h.deliver(st.Deliver.Conn, st.Deliver.Msg)

	case st.Block != nil:
		h.channel.Block(st.Block.Conn, st.Block.Blocked)

	case st.Update != nil:
		u := st.Update
		got := h.painter.RequestUpdate(ctx, u.Version, u.Blocking, h.track(u.Name))
		h.checkReturn(i, "update", got, u.Expect)

	case st.Command != nil:
		c := st.Command
		got := h.painter.RequestCommand(ctx, c.Verb, c.Arg, c.Blocking, h.track(c.Name))
		h.checkReturn(i, "command", got, c.Expect)

	case st.Close:
		h.painter.Close()
		h.closed = true
	}
}

// track registers name as pending and returns the callback resolving it.
func (h *Harness) track(name string) painter.Completion {
	if name == "" {
		return nil
	}
	h.result.Outcomes[name] = OutcomePending
	return func(ok bool) {
		if h.finished {
			return
		}
		if ok {
			h.result.Outcomes[name] = OutcomeSucceeded
		} else {
			h.result.Outcomes[name] = OutcomeFailed
		}
	}
}

func (h *Harness) checkReturn(i int, kind string, got bool, want *bool) {
	if want != nil && got != *want {
		h.result.AddError(fmt.Sprintf("steps[%d]: %s returned %t, want %t", i, kind, got, *want))
	}
}

func (h *Harness) deliver(conn uint32, msg string) {
	h.result.AddTrace(DirIn, conn, msg)
	h.channel.Deliver(conn, msg)
}

// onSend records an outbound payload and plays the scripted viewer.
func (h *Harness) onSend(conn uint32, payload string) {
	h.result.AddTrace(DirOut, conn, payload)

	v, ok := h.viewers[conn]
	if !ok {
		return
	}

	tag := protocol.TagOf(payload)
	if tag != protocol.TagSnapshot && tag != protocol.TagCommand {
		return
	}
	head, rest, err := protocol.SplitField(payload[len(tag):])
	if err != nil {
		return
	}

	switch tag {
	case protocol.TagSnapshot:
		if v.Ack {
			h.deliver(conn, string(protocol.TagSnapDone)+head)
		}

	case protocol.TagCommand:
		verb := rest
		if strings.HasPrefix(verb, painter.VerbAddPanel) {
			verb = strings.TrimSuffix(painter.VerbAddPanel, ":")
		}
		if reply, ok := v.Replies[verb]; ok {
			h.deliver(conn, string(protocol.TagReply)+head+":"+reply)
		}
	}
}

// SaveFile implements painter.FileSaver by keeping files in the result.
func (h *Harness) SaveFile(path string, data []byte) error {
	h.result.Files[path] = string(data)
	return nil
}

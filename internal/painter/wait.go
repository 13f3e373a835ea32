package painter

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Verdict is the state of a blocking wait.
type Verdict int

const (
	// Pending means the awaited condition has not resolved yet.
	Pending Verdict = iota
	// Satisfied means the condition holds.
	Satisfied
	// Failed means the condition can no longer hold.
	Failed
	// TimedOut means the deadline passed while still pending.
	TimedOut
)

func (v Verdict) String() string {
	switch v {
	case Pending:
		return "pending"
	case Satisfied:
		return "satisfied"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// WaitBridge turns asynchronous state changes into a blocking call.
//
// Wait re-evaluates a predicate between pumps of the I/O loop. The pump is
// what lets inbound messages be processed while the caller is blocked, so
// the wait is reentrant with respect to message handling rather than a
// thread-blocking primitive.
type WaitBridge struct {
	clock    clockwork.Clock
	interval time.Duration
}

// NewWaitBridge creates a bridge pumping at most interval between checks.
func NewWaitBridge(clock clockwork.Clock, interval time.Duration) *WaitBridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &WaitBridge{clock: clock, interval: interval}
}

// Wait polls check until it leaves Pending, the timeout elapses, or ctx
// ends. Between checks it calls pump with the longest duration the pump
// may block. A timeout <= 0 waits without a deadline.
//
// The check runs before the deadline test, so a condition that holds at
// the deadline is reported as Satisfied. A cancelled ctx yields Failed.
func (w *WaitBridge) Wait(ctx context.Context, timeout time.Duration, pump func(max time.Duration), check func() Verdict) Verdict {
	var deadline time.Time
	if timeout > 0 {
		deadline = w.clock.Now().Add(timeout)
	}

	for {
		if v := check(); v != Pending {
			return v
		}
		if ctx.Err() != nil {
			return Failed
		}

		step := w.interval
		if !deadline.IsZero() {
			remaining := deadline.Sub(w.clock.Now())
			if remaining <= 0 {
				return TimedOut
			}
			if remaining < step {
				step = remaining
			}
		}

		pump(step)
	}
}

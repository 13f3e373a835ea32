package painter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/webcanvas/internal/metrics"
)

const (
	// DefaultPollInterval bounds how long a blocking wait pumps before
	// re-checking its condition.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultUpdateTimeout is how long a blocking update waits for every
	// viewer to acknowledge.
	DefaultUpdateTimeout = 30 * time.Second

	// DefaultCommandTimeout is the ceiling for a blocking command. It is
	// generous because viewers may take long to render or export.
	DefaultCommandTimeout = 100 * time.Second

	// DocumentObjectID is the reserved drawable id of the document itself.
	DocumentObjectID = "canvas"
)

// Painter synchronizes one document with the viewers of one channel.
//
// Thread-safety model:
//   - Deliver(): safe from any goroutine
//   - everything else: owner goroutine only
//
// Completion callbacks always run on the owner goroutine, either directly
// inside a request or while the owner pumps (RunFor or a blocking request).
type Painter struct {
	channel     Channel
	doc         Document
	target      Target
	saver       FileSaver
	interrupter Interrupter
	recorder    Recorder
	clock       clockwork.Clock

	pollInterval   time.Duration
	updateTimeout  time.Duration
	commandTimeout time.Duration

	registry *Registry
	versions *VersionTracker
	commands *CommandQueue
	bridge   *WaitBridge
	inbox    *inbox

	closed bool
}

// Option configures a Painter.
type Option func(*Painter)

// WithPollInterval sets how often blocking waits re-check their condition.
// Non-positive durations keep the default, as do the other timing options.
func WithPollInterval(d time.Duration) Option {
	return func(p *Painter) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithUpdateTimeout sets the deadline of blocking updates.
func WithUpdateTimeout(d time.Duration) Option {
	return func(p *Painter) {
		if d > 0 {
			p.updateTimeout = d
		}
	}
}

// WithCommandTimeout sets the ceiling of blocking commands.
func WithCommandTimeout(d time.Duration) Option {
	return func(p *Painter) {
		if d > 0 {
			p.commandTimeout = d
		}
	}
}

// WithClock replaces the wall clock used for waits.
func WithClock(c clockwork.Clock) Option {
	return func(p *Painter) {
		p.clock = c
	}
}

// WithTarget sets the resolver for GETMENU and OBJEXEC drawable ids.
// Without it the document is used if it implements Target.
func WithTarget(t Target) Option {
	return func(p *Painter) {
		p.target = t
	}
}

// WithFileSaver replaces the disk writer for exports and SAVE requests.
func WithFileSaver(s FileSaver) Option {
	return func(p *Painter) {
		p.saver = s
	}
}

// WithInterrupter sets the receiver of INTERRUPT requests.
func WithInterrupter(i Interrupter) Option {
	return func(p *Painter) {
		p.interrupter = i
	}
}

// WithRecorder traces protocol traffic and command outcomes.
func WithRecorder(r Recorder) Option {
	return func(p *Painter) {
		p.recorder = r
	}
}

// New creates a painter for doc served over ch and registers itself as the
// channel's receiver.
func New(ch Channel, doc Document, opts ...Option) *Painter {
	p := &Painter{
		channel:        ch,
		doc:            doc,
		saver:          DiskSaver{},
		clock:          clockwork.NewRealClock(),
		pollInterval:   DefaultPollInterval,
		updateTimeout:  DefaultUpdateTimeout,
		commandTimeout: DefaultCommandTimeout,
		inbox:          newInbox(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.target == nil {
		if t, ok := doc.(Target); ok {
			p.target = t
		}
	}

	p.registry = NewRegistry()
	p.versions = NewVersionTracker(doc, p.registry)
	p.versions.saver = p.saver
	p.commands = NewCommandQueue(NewClock(), p.saver)
	p.bridge = NewWaitBridge(p.clock, p.pollInterval)

	ch.SetReceiver(p)

	return p
}

// Deliver queues an inbound message from conn for the owner goroutine.
// Safe from any goroutine. Returns false once the painter is closed.
func (p *Painter) Deliver(conn uint32, msg string) bool {
	return p.inbox.Enqueue(inbound{conn: conn, msg: msg})
}

// RequestUpdate announces that the document reached version.
//
// done fires once: true when every connected viewer has rendered version
// (immediately if that already happened), false when the display is not
// shown, all viewers left, the painter closed, or a blocking wait ran out.
//
// With blocking set, RequestUpdate pumps inbound messages until the outcome
// is known and returns it. Otherwise it returns whether the request was
// accepted, and the outcome arrives only through done.
func (p *Painter) RequestUpdate(ctx context.Context, version uint64, blocking bool, done Completion) bool {
	c := newCompletion(observeUpdate(done))

	if p.closed {
		slog.Warn("update after close", "version", version)
		c.fire(false)
		return false
	}

	delivered, err := p.versions.Bump(version)
	if err != nil {
		slog.Error("document update rejected", "version", version, "error", err)
		c.fire(false)
		return false
	}
	if delivered {
		slog.Debug("version already delivered to all viewers",
			"version", version,
			"delivered", p.versions.Delivered(),
		)
		c.fire(true)
		return true
	}

	if !p.channel.IsShown() {
		slog.Warn("document updated without a display", "version", version)
		c.fire(false)
		return false
	}

	id := p.versions.AddPending(version, c)
	p.pushPass()

	if !blocking {
		return true
	}

	verdict := p.bridge.Wait(ctx, p.updateTimeout, p.pump, func() Verdict {
		if fired, ok := c.outcome(); fired {
			return verdictOf(ok)
		}
		if p.registry.AllGone() {
			return Failed
		}
		return Pending
	})

	if verdict != Satisfied {
		p.versions.CancelPending(id)
		slog.Warn("blocking update not delivered",
			"version", version,
			"verdict", verdict.String(),
			"delivered", p.versions.Delivered(),
		)
	}

	return verdict == Satisfied
}

// RequestCommand queues a remote command for the first draw-ready viewer.
//
// The JSON verb is special: arg names a file that receives a copy of the
// next produced snapshot, nothing is sent, and done is not called.
//
// Blocking semantics match RequestUpdate. A blocking command fails as soon
// as the viewer running it disconnects, and is cancelled once the command
// timeout passes.
func (p *Painter) RequestCommand(ctx context.Context, verb, arg string, blocking bool, done Completion) bool {
	if verb == VerbJSON {
		p.DumpNextSnapshot(arg)
		return true
	}

	// rejected requests never get an id, so they are neither traced nor
	// counted as finished commands
	if p.closed {
		slog.Warn("command after close", "verb", verb, "arg", arg)
		return reject(done)
	}
	if !p.channel.IsShown() {
		slog.Error("command needs a shown display", "verb", verb, "arg", arg)
		return reject(done)
	}

	var id uint64
	c := newCompletion(func(ok bool) {
		p.commandFinished(id, verb, arg, ok)
		if done != nil {
			done(ok)
		}
	})
	id = p.commands.Submit(verb, arg, 0, c)
	slog.Debug("command queued", "cmd_id", id, "verb", verb, "arg", arg, "queued", p.commands.Len())

	p.pushPass()

	if !blocking {
		return true
	}

	verdict := p.bridge.Wait(ctx, p.commandTimeout, p.pump, func() Verdict {
		if fired, ok := c.outcome(); fired {
			return verdictOf(ok)
		}
		if cmd, ok := p.commands.Lookup(id); ok && cmd.Running && !p.channel.HasConnection(cmd.Conn) {
			return Failed
		}
		return Pending
	})

	if verdict != Satisfied {
		p.commands.Cancel(id)
		slog.Error("command did not succeed",
			"cmd_id", id,
			"verb", verb,
			"arg", arg,
			"verdict", verdict.String(),
		)
	}

	return verdict == Satisfied
}

// DumpNextSnapshot saves a copy of the next produced snapshot to path.
func (p *Painter) DumpNextSnapshot(path string) {
	p.versions.DumpNext(path, p.saver)
}

// Show opens a display of the document. See the channel implementation
// for the meaning of where.
func (p *Painter) Show(where string) error {
	if p.closed {
		return ErrClosed
	}
	return p.channel.Show(where)
}

// ConnectionCount returns the number of viewers attached to the channel.
func (p *Painter) ConnectionCount() int {
	return p.channel.NumConnections()
}

// AttachPanel asks the viewers to embed panel inside the document display.
// The attach itself runs as an asynchronous command; the result only says
// whether the request could be issued.
func (p *Painter) AttachPanel(panel Channel) bool {
	if !p.channel.IsShown() {
		slog.Error("display not shown, cannot attach panel")
		return false
	}

	addr := p.channel.RelativeAddr(panel)
	if addr == "" {
		slog.Error("panel cannot be attached to this display")
		return false
	}

	// a viewer may still refuse the panel later
	return p.RequestCommand(context.Background(), VerbAddPanel+addr, "AddPanel", false, nil)
}

// RunFor pumps inbound messages for d, or until ctx ends.
func (p *Painter) RunFor(ctx context.Context, d time.Duration) error {
	if p.closed {
		return ErrClosed
	}

	deadline := p.clock.Now().Add(d)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			p.drain()
			return nil
		}
		p.pump(min(p.pollInterval, remaining))
	}
}

// IsModified reports whether version differs from what every viewer has.
func (p *Painter) IsModified(version uint64) bool {
	return p.versions.Delivered() != version
}

// Stats is a point-in-time view of painter state.
type Stats struct {
	Connections      int    `json:"connections"`
	HadConnection    bool   `json:"had_connection"`
	CurrentVersion   uint64 `json:"current_version"`
	DeliveredVersion uint64 `json:"delivered_version"`
	QueuedCommands   int    `json:"queued_commands"`
	PendingUpdates   int    `json:"pending_updates"`
	InboxLen         int    `json:"inbox_len"`
}

// Stats returns the current state counters.
func (p *Painter) Stats() Stats {
	current, _ := p.versions.Current()
	return Stats{
		Connections:      p.registry.Len(),
		HadConnection:    p.registry.HadConnection(),
		CurrentVersion:   current,
		DeliveredVersion: p.versions.Delivered(),
		QueuedCommands:   p.commands.Len(),
		PendingUpdates:   p.versions.PendingCount(),
		InboxLen:         p.inbox.Len(),
	}
}

// Close fails every queued command and pending update, then releases the
// channel's connections. Safe to call more than once.
func (p *Painter) Close() {
	if p.closed {
		return
	}
	p.closed = true

	cmds := p.commands.CancelAll(0)
	updates := p.versions.PendingCount()
	p.versions.CancelAllPending()

	slog.Info("painter closed", "cancelled_commands", cmds, "cancelled_updates", updates)

	p.channel.CloseConnections()
	p.inbox.Close()
}

// pump processes queued inbound messages, blocking at most limit for the
// first one to arrive.
func (p *Painter) pump(limit time.Duration) {
	if p.drain() > 0 {
		return
	}

	timer := p.clock.NewTimer(limit)
	defer timer.Stop()

	if p.inbox.Closed() {
		<-timer.Chan()
		return
	}

	select {
	case <-timer.Chan():
	case <-p.inbox.Wait():
		p.drain()
	}
}

// drain processes every queued inbound message and returns how many.
func (p *Painter) drain() int {
	n := 0
	for {
		in, ok := p.inbox.TryDequeue()
		if !ok {
			return n
		}
		n++
		if err := p.process(in.conn, in.msg); err != nil {
			logInboundError(in, err)
		}
	}
}

func (p *Painter) commandFinished(id uint64, verb, arg string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	metrics.CommandsTotal.WithLabelValues(verbKind(verb), outcome).Inc()

	if p.recorder != nil {
		if err := p.recorder.RecordCommand(id, verb, arg, outcome); err != nil {
			slog.Warn("trace command outcome", "cmd_id", id, "error", err)
		}
	}
}

func reject(done Completion) bool {
	if done != nil {
		done(false)
	}
	return false
}

func observeUpdate(done Completion) Completion {
	return func(ok bool) {
		if ok {
			metrics.UpdatesTotal.WithLabelValues("delivered").Inc()
		} else {
			metrics.UpdatesTotal.WithLabelValues("failed").Inc()
		}
		if done != nil {
			done(ok)
		}
	}
}

func verdictOf(ok bool) Verdict {
	if ok {
		return Satisfied
	}
	return Failed
}

func verbKind(verb string) string {
	switch {
	case IsImageVerb(verb):
		return verb
	case strings.HasPrefix(verb, VerbAddPanel):
		return "ADDPANEL"
	default:
		return "other"
	}
}

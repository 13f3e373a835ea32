package harness

import "github.com/roach88/webcanvas/internal/painter"

// Trace directions.
const (
	DirIn  = "in"
	DirOut = "out"
)

// Request outcomes reported in Result.Outcomes.
const (
	OutcomePending   = "pending"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// TraceEvent is one message crossing the channel.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Dir  string `json:"dir"`
	Conn uint32 `json:"conn"`
	Msg  string `json:"msg"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every inbound and outbound message in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Outcomes maps named requests to their resolution.
	Outcomes map[string]string `json:"outcomes"`

	// Stats is the painter state after the last step.
	Stats painter.Stats `json:"stats"`

	// Files holds what the painter saved, keyed by path.
	Files map[string]string `json:"files,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Outcomes: make(map[string]string),
		Files:    make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a message to the trace.
func (r *Result) AddTrace(dir string, conn uint32, msg string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  len(r.Trace) + 1,
		Dir:  dir,
		Conn: conn,
		Msg:  msg,
	})
}

package painter

// Completion receives the outcome of an update or command request.
// It is called exactly once, on the painter's owner goroutine.
type Completion func(ok bool)

type completionState uint8

const (
	armed completionState = iota
	fired
)

// completion owns a caller's callback and guarantees it runs once.
type completion struct {
	fn    Completion
	state completionState
	ok    bool
}

func newCompletion(fn Completion) *completion {
	return &completion{fn: fn}
}

// fire invokes the callback with ok unless it already ran.
// Returns false if the completion had already fired.
func (c *completion) fire(ok bool) bool {
	if c.state == fired {
		return false
	}
	c.state = fired
	c.ok = ok
	fn := c.fn
	c.fn = nil
	if fn != nil {
		fn(ok)
	}
	return true
}

// outcome reports whether the completion fired and with which result.
func (c *completion) outcome() (done, ok bool) {
	return c.state == fired, c.ok
}

package painter

import "sync"

// inbound is one message delivered by the channel manager.
type inbound struct {
	conn uint32
	msg  string
}

// inbox is a thread-safe FIFO of inbound messages.
//
// Channel I/O goroutines append; only the owner goroutine removes. The
// inbox is unbounded so a slow owner never stalls network reads; the
// channel's own send capacity is what bounds outbound traffic.
//
// A buffered signal channel of size 1 wakes the owner when messages arrive
// so waits can also select on a timer.
type inbox struct {
	mu     sync.Mutex
	items  []inbound
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		items:  make([]inbound, 0, 32),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a message. Returns false once the inbox is closed.
func (q *inbox) Enqueue(in inbound) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, in)

	// non-blocking: the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front message without blocking.
func (q *inbox) TryDequeue() (inbound, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return inbound{}, false
	}

	in := q.items[0]
	q.items[0] = inbound{} // release the payload string

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return in, true
}

// Wait returns a channel that fires when messages may be available.
// It is closed when the inbox closes.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued messages.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *inbox) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further messages and wakes any waiter.
// Messages already queued stay available to TryDequeue.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

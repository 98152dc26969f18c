package dispatch

import "sync"

// commandQueue is an unbounded FIFO. Follow-ups fan out (one Stage per
// participant) so enqueueing must never block.
//
// signal has a buffer of one and coalesces wake-ups; it is closed when the
// queue closes so waiters in Run return promptly.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]Command, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends cmd. It returns false once the queue is closed.
func (q *commandQueue) Enqueue(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.commands = append(q.commands, cmd)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front command without blocking.
func (q *commandQueue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil, false
	}
	cmd := q.commands[0]
	// Clear the slot so the backing array does not pin processed commands.
	q.commands[0] = nil
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}
	return cmd, true
}

// Wait returns the wake-up channel for use in a select.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Done reports whether the queue is closed and empty.
func (q *commandQueue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.commands) == 0
}

// Close stops further enqueues and wakes all waiters.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

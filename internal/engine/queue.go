package engine

import "sync"

// commandQueue is an unbounded FIFO, so producers (motion input, the
// remote listener, stdin) never block on a busy loop. signal holds at most
// one pending wakeup and is closed by Close.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]Command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends c. It reports false once the queue is closed.
func (q *commandQueue) Enqueue(c Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.commands = append(q.commands, c)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the oldest command without blocking.
func (q *commandQueue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) == 0 {
		return Command{}, false
	}
	c := q.commands[0]
	q.commands[0] = Command{} // release reply channel and payload
	q.commands = q.commands[1:]
	if len(q.commands) == 0 {
		q.commands = q.commands[:0:0]
	}
	return c, true
}

// Wait fires when commands may be available, and stays ready after Close.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Drained reports closed and empty. Len alone is not enough: a coalesced
// signal can leave an open queue empty.
func (q *commandQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.commands) == 0
}

func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
}

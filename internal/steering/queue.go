package steering

import "sync"

// Queue is a FIFO of steering commands shared between the network session
// (producer) and the scheduler (consumer). Pop never blocks.
type Queue struct {
	mu   sync.Mutex
	cmds []Command
}

// NewQueue returns an empty command queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a command in arrival order.
func (q *Queue) Push(c Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, c)
}

// Pop removes and returns the oldest command, or a Command with Kind None
// when the queue is empty.
func (q *Queue) Pop() Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cmds) == 0 {
		return Command{}
	}
	c := q.cmds[0]
	q.cmds = q.cmds[1:]
	return c
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}

package dispatch

import (
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// Queue is the pending command list a channel keeps between drains.
type Queue struct {
	mu    sync.Mutex
	items []*domain.Command
}

// Push appends a command.
func (q *Queue) Push(cmd *domain.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, cmd)
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take removes and returns every queued command.
func (q *Queue) Take() []*domain.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Complete builds completions delivering the same result to every command.
func Complete(cmds []*domain.Command, result any) []domain.Completion {
	out := make([]domain.Completion, len(cmds))
	for i, cmd := range cmds {
		out[i] = domain.Completion{Command: cmd, Result: result}
	}
	return out
}

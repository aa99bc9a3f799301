package player

import (
	"sync"

	"github.com/danhigham/vkplay/internal/audio"
)

// notifier is an unbounded FIFO of observations. push never blocks, so
// engine methods can queue notifications while observers hold their own locks.
type notifier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []audio.Observation
	closed  bool
}

func newNotifier() *notifier {
	n := &notifier{}
	n.cond = sync.NewCond(&n.mu)
	return n
}

func (n *notifier) push(o audio.Observation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.pending = append(n.pending, o)
	n.cond.Signal()
}

// pop blocks until an observation is queued. It returns false once the
// notifier is closed and drained.
func (n *notifier) pop() (audio.Observation, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.pending) == 0 && !n.closed {
		n.cond.Wait()
	}
	if len(n.pending) == 0 {
		return audio.Observation{}, false
	}
	o := n.pending[0]
	n.pending[0] = audio.Observation{}
	n.pending = n.pending[1:]
	return o, true
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.cond.Broadcast()
}

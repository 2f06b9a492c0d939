package workflow

import (
	"context"
	"sync"
)

// Pool caps the number of in-flight stage invocations across all symbols.
// Admission is FIFO so no symbol's stages can starve behind a busy batch.
// It is the only mutable structure shared across symbol tasks.
type Pool struct {
	mu      sync.Mutex
	cap     int
	inUse   int
	waiters []chan struct{}
}

// NewPool creates a pool with the given capacity. Capacity below 1 is
// treated as 1.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{cap: capacity}
}

// Acquire blocks until a slot is free or the context is done.
func (p *Pool) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.inUse < p.cap {
		p.inUse++
		p.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	p.waiters = append(p.waiters, ready)
	p.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, w := range p.waiters {
			if w == ready {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		p.mu.Unlock()
		// The slot was granted between ctx firing and the removal
		// attempt; hand it back.
		p.Release()
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the longest-waiting acquirer if any.
func (p *Pool) Release() {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		ready := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		close(ready)
		return
	}
	if p.inUse > 0 {
		p.inUse--
	}
	p.mu.Unlock()
}

// InFlight returns the number of held slots.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Package initgate runs a one-time initialization that many callers wait on.
package initgate

import (
	"context"
	"sync"
	"time"

	"github.com/pysugar/photopick/internal/apperr"
)

// Gate runs its init function once. Every caller waits for that single run
// and receives the cached result. A failed run is cached as well until Reset.
type Gate struct {
	init    func(context.Context) error
	timeout time.Duration

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// New returns a gate whose waiters give up after timeout. A zero timeout waits indefinitely.
func New(init func(context.Context) error, timeout time.Duration) *Gate {
	return &Gate{init: init, timeout: timeout, done: make(chan struct{})}
}

// Wait starts the init function if nobody has yet and blocks until it finishes,
// ctx is cancelled, or the gate timeout elapses.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	done := g.done
	if !g.started {
		g.started = true
		go g.run(done)
	}
	g.mu.Unlock()

	var timer <-chan time.Time
	if g.timeout > 0 {
		t := time.NewTimer(g.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-done:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.err
	case <-timer:
		return apperr.Timeout("", context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the init function has finished without error.
func (g *Gate) Ready() bool {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	select {
	case <-done:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.err == nil
	default:
		return false
	}
}

// Reset forgets a finished result so the next Wait runs init again.
// A run still in flight is left alone.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.done:
		g.started = false
		g.err = nil
		g.done = make(chan struct{})
	default:
	}
}

func (g *Gate) run(done chan struct{}) {
	// The run is not tied to any single waiter's context.
	err := g.init(context.Background())
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
	close(done)
}

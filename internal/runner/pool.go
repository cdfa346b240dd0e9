package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/metrics"
)

// ErrPoolFull is returned by Add once the pool is at capacity. There is
// no eviction; callers must remove a completed session first.
var ErrPoolFull = errors.New("runner pool is at capacity")

// Pool is a bounded map of session ID to runner. All operations are
// serialized; sessions themselves run independently.
type Pool struct {
	mu          sync.RWMutex
	runners     map[string]*Runner
	maxRunners  int
	idleTimeout time.Duration

	cleanupStop chan struct{}
	cleanupOnce sync.Once
}

// NewPool creates a pool with the given capacity and idle timeout.
// Non-positive values use the defaults.
func NewPool(maxRunners int, idleTimeout time.Duration) *Pool {
	if maxRunners <= 0 {
		maxRunners = DefaultMaxRunners
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	p := &Pool{
		runners:     make(map[string]*Runner),
		maxRunners:  maxRunners,
		idleTimeout: idleTimeout,
		cleanupStop: make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

// Add registers a runner. Fails explicitly at capacity or on a duplicate
// session ID.
func (p *Pool) Add(r *Runner) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.runners[r.SessionID()]; exists {
		return fmt.Errorf("session %s already registered", r.SessionID())
	}
	if len(p.runners) >= p.maxRunners {
		return fmt.Errorf("%w (%d max)", ErrPoolFull, p.maxRunners)
	}

	p.runners[r.SessionID()] = r
	metrics.RecordSessionStart(r.Agent().Type())
	logger.Info("Session %s added to pool (%d/%d)", r.SessionID(), len(p.runners), p.maxRunners)
	return nil
}

// Get returns the runner for a session, or nil for unknown IDs. Misses
// are an expected fast existence check, not an error.
func (p *Pool) Get(sessionID string) *Runner {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runners[sessionID]
}

// Remove drops a runner from the pool without stopping it
func (p *Pool) Remove(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.runners[sessionID]
	if !ok {
		return
	}
	delete(p.runners, sessionID)
	metrics.RecordSessionEnd(r.Agent().Type(), string(r.State()), time.Since(r.CreatedAt()).Seconds())
	logger.Info("Session %s removed from pool (%d/%d)", sessionID, len(p.runners), p.maxRunners)
}

// List returns the pooled runners in unspecified order
func (p *Pool) List() []*Runner {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Runner, 0, len(p.runners))
	for _, r := range p.runners {
		out = append(out, r)
	}
	return out
}

// Len returns the number of pooled runners
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.runners)
}

// StopAll stops every runner. Used for graceful shutdown; runners stay
// in the pool so callers can still inspect final state.
func (p *Pool) StopAll(ctx context.Context, reason string) {
	for _, r := range p.List() {
		if err := r.Stop(ctx, reason); err != nil {
			logger.Error("Failed to stop session %s: %v", r.SessionID(), err)
		}
	}
	p.cleanupOnce.Do(func() { close(p.cleanupStop) })
}

// cleanupLoop stops and removes sessions idle past the timeout
func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.cleanupStop:
			return
		case <-ticker.C:
			p.cleanupIdle()
		}
	}
}

func (p *Pool) cleanupIdle() {
	cutoff := time.Now().Add(-p.idleTimeout)
	for _, r := range p.List() {
		if r.State() == StateStopped || r.LastActive().After(cutoff) {
			continue
		}
		logger.Info("Session %s idle since %s, stopping", r.SessionID(), r.LastActive().Format(time.RFC3339))
		if err := r.Stop(context.Background(), "idle timeout"); err != nil {
			logger.Error("Failed to stop idle session %s: %v", r.SessionID(), err)
			continue
		}
		p.Remove(r.SessionID())
	}
}

package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conclavehq/conclave/internal/agent"
	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/tool"
)

// State is the session lifecycle state. Active is initial; Paused and
// Active are interchangeable; Stopped is terminal.
type State string

const (
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// DefaultMaxSteps bounds one drive: the number of step-loop iterations a
// single incoming message may trigger before the runner gives up
const DefaultMaxSteps = 50

// OutputFunc receives every message a session emits
type OutputFunc func(*message.Message)

// Config assembles one runner
type Config struct {
	SessionID string
	UserID    string
	Agent     *agent.Agent
	Registry  *tool.Registry

	// AllowedTools is the per-session execution allow-list. Nil means
	// unrestricted; empty means nothing may execute.
	AllowedTools []string

	// MaxSteps bounds one drive; 0 uses the default
	MaxSteps int

	// BufferSize sizes the event ring; 0 uses the default
	BufferSize int
}

// Runner wraps one agent with lifecycle state, the session allow-list,
// output broadcast, and the event buffer. Drives are serialized: one
// incoming message is worked to completion before the next is accepted.
type Runner struct {
	sessionID string
	userID    string
	agent     *agent.Agent
	registry  *tool.Registry
	allowed   map[string]struct{} // nil = unrestricted
	maxSteps  int

	mu           sync.RWMutex
	state        State
	subscribers  []OutputFunc
	messageCount int
	createdAt    time.Time
	lastActive   time.Time

	driveMu sync.Mutex
	buffer  *EventBuffer
}

// New creates a runner in the Active state
func New(cfg Config) *Runner {
	var allowed map[string]struct{}
	if cfg.AllowedTools != nil {
		allowed = make(map[string]struct{}, len(cfg.AllowedTools))
		for _, name := range cfg.AllowedTools {
			allowed[name] = struct{}{}
		}
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	now := time.Now()
	return &Runner{
		sessionID:  cfg.SessionID,
		userID:     cfg.UserID,
		agent:      cfg.Agent,
		registry:   cfg.Registry,
		allowed:    allowed,
		maxSteps:   maxSteps,
		state:      StateActive,
		createdAt:  now,
		lastActive: now,
		buffer:     NewEventBuffer(cfg.SessionID, cfg.BufferSize),
	}
}

// SessionID returns the session this runner owns
func (r *Runner) SessionID() string { return r.sessionID }

// UserID returns the owning user
func (r *Runner) UserID() string { return r.userID }

// Agent returns the wrapped agent
func (r *Runner) Agent() *agent.Agent { return r.agent }

// State returns the current lifecycle state
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// MessageCount returns how many external messages this session accepted
func (r *Runner) MessageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.messageCount
}

// CreatedAt returns when the runner was created
func (r *Runner) CreatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.createdAt
}

// LastActive returns the time of the last accepted message or state change
func (r *Runner) LastActive() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive
}

// SubscribeOutput registers a callback for every emitted message.
// Multiple subscribers are broadcast to in registration order.
func (r *Runner) SubscribeOutput(fn OutputFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// EventsAfter returns buffered output events after the given index
func (r *Runner) EventsAfter(index int) ([]*BufferedEvent, error) {
	return r.buffer.After(index)
}

// BufferStats returns event buffer statistics for this session
func (r *Runner) BufferStats() BufferStats {
	return r.buffer.Stats()
}

// Pause suspends the session. Only an Active session can pause.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateStopped:
		return fmt.Errorf("session %s is stopped", r.sessionID)
	case StatePaused:
		return nil
	}
	r.state = StatePaused
	r.lastActive = time.Now()
	logger.Info("Session %s paused", r.sessionID)
	return nil
}

// Resume reactivates a paused session
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateStopped:
		return fmt.Errorf("session %s is stopped", r.sessionID)
	case StateActive:
		return nil
	}
	r.state = StateActive
	r.lastActive = time.Now()
	logger.Info("Session %s resumed", r.sessionID)
	return nil
}

// Stop terminates the session. The stop message is delivered to the
// agent (clearing its running flag) before the state flips; stop is
// cooperative and takes effect at the next step boundary of any drive
// already in flight.
func (r *Runner) Stop(ctx context.Context, reason string) error {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return nil
	}
	r.state = StateStopped
	r.lastActive = time.Now()
	r.mu.Unlock()

	r.agent.Step(ctx, message.NewStop(r.sessionID, reason))
	logger.Info("Session %s stopped: %s", r.sessionID, reason)
	return nil
}

// ValidateToolCall applies the session allow-list to a tool-call batch.
// Nil allow-list accepts everything. One disallowed name invalidates the
// whole batch; there is no per-call filtering.
func (r *Runner) ValidateToolCall(m *message.Message) bool {
	if r.allowed == nil {
		return true
	}
	for _, call := range m.ToolCalls {
		if _, ok := r.allowed[call.Name]; !ok {
			return false
		}
	}
	return true
}

// SendMessage feeds a user message to the agent and drives the step
// loop until the agent responds with text, finishes, produces nothing,
// or the step budget runs out. Fails fast when the session is not
// Active; the error names the blocking state.
func (r *Runner) SendMessage(ctx context.Context, text string) error {
	r.mu.Lock()
	switch r.state {
	case StatePaused:
		r.mu.Unlock()
		return fmt.Errorf("session %s is paused", r.sessionID)
	case StateStopped:
		r.mu.Unlock()
		return fmt.Errorf("session %s is stopped", r.sessionID)
	}
	r.messageCount++
	r.lastActive = time.Now()
	r.mu.Unlock()

	r.driveMu.Lock()
	defer r.driveMu.Unlock()

	inputs := []*message.Message{message.NewUser(r.sessionID, text)}

	for step := 0; step < r.maxSteps; step++ {
		// Cooperative pause/stop: re-check state at every step boundary
		if r.State() != StateActive {
			return nil
		}

		out := r.agent.Step(ctx, inputs...)
		if out == nil {
			return nil
		}

		if out.Kind == message.KindToolCall && !r.ValidateToolCall(out) {
			// Disallowed batch: dropped at the session boundary. No
			// subscriber sees it and the model gets no feedback.
			logger.Warn("Session %s: dropped tool-call batch with disallowed tool", r.sessionID)
			return nil
		}

		r.publish(out)

		if out.Kind != message.KindToolCall {
			return nil
		}

		inputs = r.dispatch(ctx, out)
	}

	logger.Warn("Session %s: drive hit step budget (%d)", r.sessionID, r.maxSteps)
	return nil
}

// dispatch executes a validated tool-call batch and builds the
// observations for the next step. Registry execution never throws, so
// every call yields exactly one observation.
func (r *Runner) dispatch(ctx context.Context, m *message.Message) []*message.Message {
	observations := make([]*message.Message, 0, len(m.ToolCalls))
	for _, call := range m.ToolCalls {
		res := r.registry.Execute(ctx, call.Name, call.Arguments)
		status := message.StatusSuccess
		if !res.OK() {
			status = message.StatusError
		}
		obs := message.NewToolResult(r.sessionID, call.ID, tool.ResultContent(res), status)
		observations = append(observations, obs)
	}
	return observations
}

// publish broadcasts an output message to subscribers in registration
// order and records it in the event buffer
func (r *Runner) publish(m *message.Message) {
	r.buffer.Append(m)

	r.mu.RLock()
	subs := make([]OutputFunc, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()

	for _, fn := range subs {
		fn(m)
	}
}

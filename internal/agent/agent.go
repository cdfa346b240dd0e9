package agent

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/metrics"
	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/tool"
)

// FinishTaskTool is the one tool name with step-loop-level semantics.
// Every other name is opaque to the loop.
const FinishTaskTool = "finish_task"

// defaultFinishReason is used when finish_task arrives without a usable
// reason argument
const defaultFinishReason = "Task completed"

// Config assembles one agent. SystemPrompt is rendered fresh on every
// step, so prompts may embed state computed from the project tree at call
// time. The optional hooks layer specialized behavior over the core loop
// without subclassing it.
type Config struct {
	SessionID  string
	AgentType  string
	ProjectDir string
	Provider   provider.Provider
	Registry   *tool.Registry

	// ToolNames restricts which tool schemas the model sees. Nil means
	// the full registry.
	ToolNames []string

	// SystemPrompt renders the system prompt for one step. Required.
	SystemPrompt func(a *Agent) string

	// FormatFinish formats the finished message text. Default: reason only.
	FormatFinish func(reason, result string) string

	// OnToolCalls observes a validated outgoing tool-call batch before it
	// is emitted. Diagnostic and bookkeeping only.
	OnToolCalls func(a *Agent, calls []message.ToolCall)

	// OnFinish runs post-processing around the finish transition. Errors
	// inside the hook are logged, never surfaced. The hook runs inside the
	// step, so it must not call Step or the locked accessors.
	OnFinish func(ctx context.Context, a *Agent, reason, result string)

	// RearmOnUserMessage lets a finished agent flip back to running when
	// it receives a fresh user message, supporting follow-up tasks in the
	// same session while preserving history.
	RearmOnUserMessage bool

	// DebugLogPath, when set, appends one JSON record per step. Never
	// affects control flow.
	DebugLogPath string

	// Usage optionally accumulates token usage per session
	Usage *provider.UsageTracker
}

// Agent drives one session's step loop. Steps are serialized: each call
// to Step runs to completion before the next message is accepted.
type Agent struct {
	cfg     Config
	history *message.History
	running bool
	seq     int
	stepNum int
	mu      sync.Mutex
}

// New creates an agent. Construction fails hard on a missing or
// non-directory project path; everything downstream degrades instead.
func New(cfg Config) (*Agent, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.SystemPrompt == nil {
		return nil, fmt.Errorf("system prompt is required")
	}
	if cfg.ProjectDir != "" {
		info, err := os.Stat(cfg.ProjectDir)
		if err != nil {
			return nil, fmt.Errorf("invalid project directory %s: %w", cfg.ProjectDir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("project path is not a directory: %s", cfg.ProjectDir)
		}
	}

	return &Agent{
		cfg:     cfg,
		history: message.NewHistory(),
		running: true,
	}, nil
}

// SessionID returns the session this agent is bound to
func (a *Agent) SessionID() string { return a.cfg.SessionID }

// Type returns the agent type name
func (a *Agent) Type() string { return a.cfg.AgentType }

// ProjectDir returns the project root this agent operates in
func (a *Agent) ProjectDir() string { return a.cfg.ProjectDir }

// IsRunning reports whether the agent accepts further steps
func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// HistoryLen returns the number of messages recorded so far
func (a *Agent) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Len()
}

// Messages returns a snapshot of the conversation history
func (a *Agent) Messages() []*message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Messages()
}

// Registry exposes the shared tool registry to finish hooks
func (a *Agent) Registry() *tool.Registry { return a.cfg.Registry }

// Provider exposes the LLM provider to finish hooks
func (a *Agent) Provider() provider.Provider { return a.cfg.Provider }

// append records a message and assigns its sequence number. Caller holds
// the lock. Sequence is agent-owned, strictly increasing, gapless.
func (a *Agent) append(m *message.Message) {
	m.Sequence = a.seq
	a.seq++
	a.history.Append(m)
}

// Step runs one full cycle: messages in, at most one provider call,
// response out. Multiple inputs arrive together only when a tool-call
// batch produced several observations; they are appended in order before
// the single provider call. A nil return means no output was produced
// this step: the agent is finished, the model produced nothing, or the
// provider call failed (logged, recovered locally; the caller decides
// whether to re-drive).
func (a *Agent) Step(ctx context.Context, inputs ...*message.Message) *message.Message {
	if len(inputs) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if inputs[0].Kind == message.KindStop {
		a.append(inputs[0])
		a.running = false
		metrics.RecordStep(a.cfg.AgentType, "stop")
		return nil
	}

	if !a.running {
		if a.cfg.RearmOnUserMessage && inputs[0].Kind == message.KindUser {
			a.running = true
			logger.Info("Session %s: re-armed on new user message", a.cfg.SessionID)
		} else {
			metrics.RecordStep(a.cfg.AgentType, "noop")
			return nil
		}
	}

	for _, in := range inputs {
		a.append(in)
	}
	a.stepNum++

	chat := a.buildChat()
	schemas := a.cfg.Registry.Schemas(a.cfg.ToolNames...)

	resp, err := a.cfg.Provider.Generate(ctx, chat, schemas)
	if err != nil {
		logger.Error("Session %s step %d: provider call failed: %v", a.cfg.SessionID, a.stepNum, err)
		metrics.RecordStep(a.cfg.AgentType, "provider_error")
		return nil
	}

	if a.cfg.Usage != nil {
		a.cfg.Usage.Record(a.cfg.SessionID, a.cfg.Provider.Model(), resp.Usage)
	}
	a.writeDebugRecord(chat, resp)

	out := a.interpret(ctx, resp)
	if out == nil {
		metrics.RecordStep(a.cfg.AgentType, "noop")
		return nil
	}
	a.append(out)
	return out
}

// interpret branches on the provider response. finish_task is scanned
// for before any other call in the batch; when present, the remaining
// calls in that batch are discarded so termination stays unambiguous.
func (a *Agent) interpret(ctx context.Context, resp *provider.Response) *message.Message {
	if len(resp.ToolCalls) > 0 {
		for _, call := range resp.ToolCalls {
			if call.Name == FinishTaskTool {
				return a.finish(ctx, call)
			}
		}

		calls := make([]message.ToolCall, len(resp.ToolCalls))
		copy(calls, resp.ToolCalls)
		if a.cfg.OnToolCalls != nil {
			a.cfg.OnToolCalls(a, calls)
		}
		metrics.RecordStep(a.cfg.AgentType, "tool_calls")
		return message.NewToolCall(a.cfg.SessionID, calls, resp.Content)
	}

	if resp.Content != "" {
		metrics.RecordStep(a.cfg.AgentType, "respond")
		return message.NewRespond(a.cfg.SessionID, resp.Content)
	}

	return nil
}

// finish executes the finish-task transition. Missing or malformed
// arguments degrade to defaults rather than failing the step.
func (a *Agent) finish(ctx context.Context, call message.ToolCall) *message.Message {
	reason := defaultFinishReason
	if r, ok := call.Arguments["reason"].(string); ok && r != "" {
		reason = r
	}
	result := ""
	if r, ok := call.Arguments["result"].(string); ok {
		result = r
	}

	if a.cfg.OnFinish != nil {
		a.cfg.OnFinish(ctx, a, reason, result)
	}

	text := reason
	if a.cfg.FormatFinish != nil {
		text = a.cfg.FormatFinish(reason, result)
	}

	a.running = false
	metrics.RecordStep(a.cfg.AgentType, "finish")

	out := message.NewFinished(a.cfg.SessionID, reason, result)
	out.Content = text
	return out
}

// buildChat flattens history into the provider call format, prepending
// the freshly rendered system prompt. Caller holds the lock.
func (a *Agent) buildChat() []provider.ChatMessage {
	msgs := a.history.Messages()
	chat := make([]provider.ChatMessage, 0, len(msgs)+1)
	chat = append(chat, provider.ChatMessage{
		Role:    provider.RoleSystem,
		Content: a.cfg.SystemPrompt(a),
	})

	for _, m := range msgs {
		switch m.Kind {
		case message.KindSystem:
			chat = append(chat, provider.ChatMessage{Role: provider.RoleSystem, Content: m.Content})
		case message.KindUser:
			chat = append(chat, provider.ChatMessage{Role: provider.RoleUser, Content: m.Content})
		case message.KindToolCall:
			chat = append(chat, provider.ChatMessage{
				Role:      provider.RoleAssistant,
				Content:   m.Thought,
				ToolCalls: m.ToolCalls,
			})
		case message.KindToolResult:
			chat = append(chat, provider.ChatMessage{
				Role:       provider.RoleTool,
				Content:    m.Content,
				ToolCallID: m.CallID,
				IsError:    m.IsError(),
			})
		case message.KindRespond, message.KindFinished:
			chat = append(chat, provider.ChatMessage{Role: provider.RoleAssistant, Content: m.Content})
		}
		// Stop messages are lifecycle markers, not model context
	}

	return chat
}

package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/tool"
)

// RecordingTool is a test double for tool.Tool that records invocations
// and returns a configurable result
type RecordingTool struct {
	mu sync.Mutex

	ToolName string
	Desc     string
	Response tool.Result
	// PanicWith, when non-nil, makes Execute panic with this value
	PanicWith any

	Calls []map[string]any
}

func (t *RecordingTool) Name() string        { return t.ToolName }
func (t *RecordingTool) Description() string { return t.Desc }

func (t *RecordingTool) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

// Execute records the call, then panics if configured to, otherwise
// returns the configured result
func (t *RecordingTool) Execute(ctx context.Context, args map[string]any) tool.Result {
	t.mu.Lock()
	t.Calls = append(t.Calls, args)
	t.mu.Unlock()

	if t.PanicWith != nil {
		panic(t.PanicWith)
	}
	return t.Response
}

// CallCount returns the number of recorded invocations
func (t *RecordingTool) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// ToolCallResponse builds a provider response requesting the given tool
// calls
func ToolCallResponse(calls ...message.ToolCall) *provider.Response {
	return &provider.Response{
		ToolCalls:    calls,
		FinishReason: provider.FinishToolCalls,
	}
}

// FinishResponse builds a provider response invoking finish_task
func FinishResponse(reason, result string) *provider.Response {
	args := map[string]any{"reason": reason}
	if result != "" {
		args["result"] = result
	}
	return ToolCallResponse(message.ToolCall{
		ID:        "call_finish",
		Name:      "finish_task",
		Arguments: args,
	})
}

// TextResponse builds a plain text provider response
func TextResponse(content string) *provider.Response {
	return &provider.Response{
		Content:      content,
		FinishReason: provider.FinishStop,
	}
}

// NewTestRegistry creates a registry with a no-op tool of each given
// name, for allow-list and dispatch tests
func NewTestRegistry(t *testing.T, names ...string) *tool.Registry {
	t.Helper()

	r := tool.NewRegistry()
	for _, name := range names {
		n := name
		tool.RegisterFunc(r, n, "test tool "+n, func(ctx context.Context, p struct{}) tool.Result {
			return tool.Result{Output: n + " ok"}
		})
	}
	return r
}

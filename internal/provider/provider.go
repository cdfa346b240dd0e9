package provider

import (
	"context"

	"github.com/google/uuid"

	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/tool"
)

// Chat roles in the flattened provider call format
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FinishReason describes why the model stopped generating
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// ChatMessage is one entry in the flat role/content format providers
// consume. ToolCalls is set on assistant messages requesting execution;
// ToolCallID and IsError are set on tool-result messages.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []message.ToolCall
	ToolCallID string
	IsError    bool
}

// Usage carries token counters for one provider call
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the normalized outcome of one generate call. ToolCall
// arguments are always decoded maps by the time a Response leaves an
// adapter; a provider that returns arguments as a JSON string has them
// parsed (or degraded to an empty map) before the step loop sees them.
type Response struct {
	Content      string
	ToolCalls    []message.ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// Provider is the uniform LLM boundary. Concrete providers are
// interchangeable behind this contract; request/response shape
// translation lives entirely in the adapters.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, messages []ChatMessage, tools []tool.Schema) (*Response, error)
}

// NewCallID generates a correlation token for a tool call that arrived
// without one
func NewCallID() string {
	return "call_" + uuid.New().String()[:8]
}

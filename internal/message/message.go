package message

import (
	"time"
)

// Kind identifies the variant of a Message
type Kind string

const (
	KindSystem     Kind = "system"
	KindUser       Kind = "user"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindRespond    Kind = "respond"
	KindFinished   Kind = "finished"
	KindStop       Kind = "stop"
)

// Result status values for tool result observations
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolCall is one structured tool invocation requested by the model.
// Arguments are always a decoded map by the time a ToolCall reaches this
// package; provider adapters normalize JSON-string arguments at their
// boundary.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry in a session conversation. Exactly one variant's
// fields are populated, selected by Kind. Messages are immutable once
// created; Sequence is assigned by the owning agent when the message is
// appended to its history.
type Message struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`

	// Content holds text for user, system, respond and tool_result variants
	Content string `json:"content,omitempty"`

	// Tool call variant
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Thought   string     `json:"thought,omitempty"`

	// Tool result variant
	CallID string `json:"call_id,omitempty"`
	Status string `json:"status,omitempty"`

	// Finished and stop variants
	Reason string `json:"reason,omitempty"`
	Result string `json:"result,omitempty"`
}

// NewUser creates a user message for the given session
func NewUser(sessionID, content string) *Message {
	return &Message{
		Kind:      KindUser,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewSystem creates a system message
func NewSystem(sessionID, content string) *Message {
	return &Message{
		Kind:      KindSystem,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewToolCall creates an assistant tool-call message carrying the full
// ordered batch of requested calls plus any accompanying text
func NewToolCall(sessionID string, calls []ToolCall, thought string) *Message {
	return &Message{
		Kind:      KindToolCall,
		SessionID: sessionID,
		ToolCalls: calls,
		Thought:   thought,
		CreatedAt: time.Now(),
	}
}

// NewToolResult creates a tool result observation correlated to a prior
// tool call by callID
func NewToolResult(sessionID, callID, content, status string) *Message {
	return &Message{
		Kind:      KindToolResult,
		SessionID: sessionID,
		CallID:    callID,
		Content:   content,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// NewRespond creates a plain text assistant reply
func NewRespond(sessionID, content string) *Message {
	return &Message{
		Kind:      KindRespond,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewFinished creates the terminal message emitted by the finish-task
// protocol
func NewFinished(sessionID, reason, result string) *Message {
	return &Message{
		Kind:      KindFinished,
		SessionID: sessionID,
		Reason:    reason,
		Result:    result,
		CreatedAt: time.Now(),
	}
}

// NewStop creates a stop message delivered when a session is terminated
func NewStop(sessionID, reason string) *Message {
	return &Message{
		Kind:      KindStop,
		SessionID: sessionID,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}

// IsError reports whether a tool result observation carries an error status
func (m *Message) IsError() bool {
	return m.Kind == KindToolResult && m.Status == StatusError
}

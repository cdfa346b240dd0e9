package agent

import (
	"encoding/json"
	"os"
	"time"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/provider"
)

// debugRecord is one JSON line in the step debug log
type debugRecord struct {
	Step         int                   `json:"step"`
	Timestamp    time.Time             `json:"timestamp"`
	SessionID    string                `json:"session_id"`
	Messages     []debugChatMessage    `json:"messages"`
	Response     debugResponse         `json:"response"`
	FinishReason provider.FinishReason `json:"finish_reason"`
	Usage        provider.Usage        `json:"usage"`
}

type debugChatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []debugToolCall `json:"tool_calls,omitempty"`
}

type debugToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type debugResponse struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []debugToolCall `json:"tool_calls,omitempty"`
}

// writeDebugRecord appends one step record to the configured debug log.
// Diagnostic only; failures are logged and swallowed. Caller holds the
// lock.
func (a *Agent) writeDebugRecord(chat []provider.ChatMessage, resp *provider.Response) {
	if a.cfg.DebugLogPath == "" {
		return
	}

	rec := debugRecord{
		Step:         a.stepNum,
		Timestamp:    time.Now(),
		SessionID:    a.cfg.SessionID,
		Messages:     make([]debugChatMessage, 0, len(chat)),
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}

	for _, m := range chat {
		dm := debugChatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, call := range m.ToolCalls {
			dm.ToolCalls = append(dm.ToolCalls, marshalDebugCall(call.ID, call.Name, call.Arguments))
		}
		rec.Messages = append(rec.Messages, dm)
	}

	rec.Response.Content = resp.Content
	for _, call := range resp.ToolCalls {
		rec.Response.ToolCalls = append(rec.Response.ToolCalls, marshalDebugCall(call.ID, call.Name, call.Arguments))
	}

	line, err := json.Marshal(rec)
	if err != nil {
		logger.Error("Session %s: failed to encode debug record: %v", a.cfg.SessionID, err)
		return
	}

	f, err := os.OpenFile(a.cfg.DebugLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Error("Session %s: failed to open debug log: %v", a.cfg.SessionID, err)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.Error("Session %s: failed to write debug log: %v", a.cfg.SessionID, err)
	}
}

func marshalDebugCall(id, name string, args map[string]any) debugToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return debugToolCall{ID: id, Name: name, Arguments: string(raw)}
}

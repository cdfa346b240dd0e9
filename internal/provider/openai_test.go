package provider

import (
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/conclavehq/conclave/internal/message"
)

func TestNormalizeToolCall(t *testing.T) {
	tc := normalizeToolCall("call_abc", "read_file", `{"path":"a.txt","max_bytes":10}`)
	if tc.ID != "call_abc" || tc.Name != "read_file" {
		t.Errorf("ID/Name = %q/%q", tc.ID, tc.Name)
	}
	if tc.Arguments["path"] != "a.txt" {
		t.Errorf("Arguments = %v", tc.Arguments)
	}
	// JSON numbers decode as float64
	if tc.Arguments["max_bytes"] != float64(10) {
		t.Errorf("max_bytes = %v (%T)", tc.Arguments["max_bytes"], tc.Arguments["max_bytes"])
	}
}

func TestNormalizeToolCall_MalformedArguments(t *testing.T) {
	// Unparseable argument JSON degrades to an empty map, never fails
	for _, raw := range []string{"{broken", "[1,2]", `"just a string"`} {
		tc := normalizeToolCall("call_abc", "read_file", raw)
		if tc.Arguments == nil || len(tc.Arguments) != 0 {
			t.Errorf("normalizeToolCall(%q).Arguments = %v, want empty map", raw, tc.Arguments)
		}
	}

	tc := normalizeToolCall("call_abc", "read_file", "")
	if tc.Arguments == nil || len(tc.Arguments) != 0 {
		t.Errorf("empty raw args should give empty map, got %v", tc.Arguments)
	}
}

func TestNormalizeToolCall_GeneratesMissingID(t *testing.T) {
	tc := normalizeToolCall("", "read_file", "{}")
	if !strings.HasPrefix(tc.ID, "call_") || len(tc.ID) != len("call_")+8 {
		t.Errorf("generated ID = %q, want call_ prefix with 8 chars", tc.ID)
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		in   openai.FinishReason
		want FinishReason
	}{
		{openai.FinishReasonStop, FinishStop},
		{openai.FinishReasonToolCalls, FinishToolCalls},
		{openai.FinishReasonFunctionCall, FinishToolCalls},
		{openai.FinishReasonLength, FinishLength},
		{openai.FinishReason("weird"), FinishStop},
	}

	for _, tt := range tests {
		if got := mapOpenAIFinishReason(tt.in); got != tt.want {
			t.Errorf("mapOpenAIFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "read a.txt"},
		{Role: RoleAssistant, Content: "checking", ToolCalls: []message.ToolCall{
			{ID: "call_1", Name: "read_file", Arguments: map[string]any{"path": "a.txt"}},
		}},
		{Role: RoleTool, Content: "file contents", ToolCallID: "call_1"},
		{Role: RoleAssistant, Content: "here it is"},
	}

	out := convertToOpenAIMessages(msgs)
	if len(out) != 5 {
		t.Fatalf("len = %d, want 5", len(out))
	}

	if out[0].Role != openai.ChatMessageRoleSystem || out[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("roles = %s %s", out[0].Role, out[1].Role)
	}

	asst := out[2]
	if len(asst.ToolCalls) != 1 {
		t.Fatalf("assistant ToolCalls = %v", asst.ToolCalls)
	}
	if asst.ToolCalls[0].Function.Name != "read_file" {
		t.Errorf("function name = %q", asst.ToolCalls[0].Function.Name)
	}
	// Arguments are re-encoded as a JSON string for the wire
	if !strings.Contains(asst.ToolCalls[0].Function.Arguments, `"path":"a.txt"`) {
		t.Errorf("function arguments = %q", asst.ToolCalls[0].Function.Arguments)
	}

	if out[3].Role != openai.ChatMessageRoleTool || out[3].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", out[3])
	}
}

func TestNewOpenAI_Defaults(t *testing.T) {
	p := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "gpt-4o"})
	if p.Name() != "openai" {
		t.Errorf("Name = %q, want openai", p.Name())
	}
	if p.Model() != "gpt-4o" {
		t.Errorf("Model = %q", p.Model())
	}

	named := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "glm-4-plus", ProviderName: "glm"})
	if named.Name() != "glm" {
		t.Errorf("Name = %q, want glm", named.Name())
	}
}

func TestNewCallID(t *testing.T) {
	id := NewCallID()
	if !strings.HasPrefix(id, "call_") || len(id) != len("call_")+8 {
		t.Errorf("NewCallID = %q", id)
	}
	if NewCallID() == id {
		t.Error("call IDs should be unique")
	}
}

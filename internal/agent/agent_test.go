package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/testutil"
	"github.com/conclavehq/conclave/internal/tool"
)

func newTestAgent(t *testing.T, fake *testutil.FakeProvider) *Agent {
	t.Helper()

	registry := testutil.NewTestRegistry(t, "read_file", "write_file")
	RegisterFinishTask(registry)

	a, err := New(Config{
		SessionID:    "sess_11111111",
		AgentType:    "coding",
		Provider:     fake,
		Registry:     registry,
		SystemPrompt: func(a *Agent) string { return "You are a test agent." },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_Validation(t *testing.T) {
	fake := testutil.NewFakeProvider()
	registry := tool.NewRegistry()
	prompt := func(a *Agent) string { return "p" }

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing session ID", Config{Provider: fake, Registry: registry, SystemPrompt: prompt}},
		{"missing provider", Config{SessionID: "s", Registry: registry, SystemPrompt: prompt}},
		{"missing registry", Config{SessionID: "s", Provider: fake, SystemPrompt: prompt}},
		{"missing prompt", Config{SessionID: "s", Provider: fake, Registry: registry}},
		{"bad project dir", Config{SessionID: "s", Provider: fake, Registry: registry, SystemPrompt: prompt, ProjectDir: "/nonexistent/path"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New should fail")
			}
		})
	}
}

func TestStep_TextReply(t *testing.T) {
	fake := testutil.NewFakeProvider(testutil.TextResponse("hello there"))
	a := newTestAgent(t, fake)

	out := a.Step(context.Background(), message.NewUser("sess_11111111", "hi"))
	if out == nil {
		t.Fatal("Step returned nil")
	}
	if out.Kind != message.KindRespond || out.Content != "hello there" {
		t.Errorf("out = %s %q", out.Kind, out.Content)
	}

	// Text reply grows history by exactly two: the input and the reply
	if a.HistoryLen() != 2 {
		t.Errorf("HistoryLen = %d, want 2", a.HistoryLen())
	}
	if !a.IsRunning() {
		t.Error("agent should keep running after a text reply")
	}
}

func TestStep_SequenceMonotonic(t *testing.T) {
	fake := &testutil.FakeProvider{DefaultResponse: testutil.TextResponse("ok")}
	a := newTestAgent(t, fake)

	for i := 0; i < 3; i++ {
		a.Step(context.Background(), message.NewUser("sess_11111111", "hi"))
	}

	msgs := a.Messages()
	if len(msgs) != 6 {
		t.Fatalf("history len = %d, want 6", len(msgs))
	}
	for i, m := range msgs {
		if m.Sequence != i {
			t.Errorf("msgs[%d].Sequence = %d, want gapless ascending", i, m.Sequence)
		}
	}
}

func TestStep_FinishTaskPrecedence(t *testing.T) {
	// finish_task buried in a batch wins; the sibling call is discarded
	fake := testutil.NewFakeProvider(testutil.ToolCallResponse(
		message.ToolCall{ID: "call_1", Name: "read_file", Arguments: map[string]any{}},
		message.ToolCall{ID: "call_2", Name: FinishTaskTool, Arguments: map[string]any{"reason": "done early", "result": "nothing to do"}},
	))
	a := newTestAgent(t, fake)

	out := a.Step(context.Background(), message.NewUser("sess_11111111", "go"))
	if out == nil || out.Kind != message.KindFinished {
		t.Fatalf("out = %v, want finished", out)
	}
	if out.Reason != "done early" || out.Result != "nothing to do" {
		t.Errorf("Reason/Result = %q/%q", out.Reason, out.Result)
	}
	if a.IsRunning() {
		t.Error("agent should stop running after finish")
	}

	// The discarded sibling never appears in history
	for _, m := range a.Messages() {
		if m.Kind == message.KindToolCall {
			t.Error("discarded tool-call batch should not be recorded")
		}
	}
}

func TestStep_FinishTaskDefaults(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"no arguments", map[string]any{}},
		{"empty reason", map[string]any{"reason": ""}},
		{"mistyped reason", map[string]any{"reason": 42, "result": []string{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeProvider(testutil.ToolCallResponse(
				message.ToolCall{ID: "call_1", Name: FinishTaskTool, Arguments: tt.args},
			))
			a := newTestAgent(t, fake)

			out := a.Step(context.Background(), message.NewUser("sess_11111111", "go"))
			if out == nil || out.Kind != message.KindFinished {
				t.Fatalf("out = %v, want finished", out)
			}
			if out.Reason != "Task completed" {
				t.Errorf("Reason = %q, want default", out.Reason)
			}
			if out.Result != "" {
				t.Errorf("Result = %q, want empty", out.Result)
			}
		})
	}
}

func TestStep_FinishedAgentIgnoresInput(t *testing.T) {
	fake := testutil.NewFakeProvider(
		testutil.FinishResponse("done", ""),
		testutil.TextResponse("should not be reached"),
	)
	a := newTestAgent(t, fake)

	a.Step(context.Background(), message.NewUser("sess_11111111", "go"))
	if a.IsRunning() {
		t.Fatal("agent should be finished")
	}

	out := a.Step(context.Background(), message.NewUser("sess_11111111", "more"))
	if out != nil {
		t.Errorf("finished agent returned %v, want nil", out)
	}
	if fake.Calls != 1 {
		t.Errorf("provider called %d times, want 1", fake.Calls)
	}
}

func TestStep_RearmOnUserMessage(t *testing.T) {
	registry := testutil.NewTestRegistry(t, "read_file")
	RegisterFinishTask(registry)
	fake := testutil.NewFakeProvider(
		testutil.FinishResponse("first task done", ""),
		testutil.TextResponse("working on the follow-up"),
	)

	a, err := New(Config{
		SessionID:          "sess_11111111",
		AgentType:          "coding",
		Provider:           fake,
		Registry:           registry,
		SystemPrompt:       func(a *Agent) string { return "test" },
		RearmOnUserMessage: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	a.Step(context.Background(), message.NewUser("sess_11111111", "go"))
	if a.IsRunning() {
		t.Fatal("agent should be finished")
	}

	// A fresh user message flips the agent back to running; history from
	// the first task is preserved
	before := a.HistoryLen()
	out := a.Step(context.Background(), message.NewUser("sess_11111111", "one more thing"))
	if out == nil || out.Kind != message.KindRespond {
		t.Fatalf("out = %v, want respond", out)
	}
	if !a.IsRunning() {
		t.Error("agent should be running again")
	}
	if a.HistoryLen() != before+2 {
		t.Errorf("HistoryLen = %d, want %d", a.HistoryLen(), before+2)
	}

	// Tool results do not re-arm
	a.Step(context.Background(), message.NewStop("sess_11111111", "test"))
	out = a.Step(context.Background(), message.NewToolResult("sess_11111111", "call_1", "late", message.StatusSuccess))
	if out != nil {
		t.Error("tool result should not re-arm a stopped agent")
	}
}

func TestStep_StopMessage(t *testing.T) {
	fake := &testutil.FakeProvider{DefaultResponse: testutil.TextResponse("ok")}
	a := newTestAgent(t, fake)

	out := a.Step(context.Background(), message.NewStop("sess_11111111", "operator request"))
	if out != nil {
		t.Errorf("stop step returned %v, want nil", out)
	}
	if a.IsRunning() {
		t.Error("agent should stop")
	}
	if fake.Calls != 0 {
		t.Error("stop must not reach the provider")
	}

	// Stop is recorded in history
	last := a.Messages()[a.HistoryLen()-1]
	if last.Kind != message.KindStop {
		t.Errorf("last message kind = %s, want stop", last.Kind)
	}
}

func TestStep_ProviderErrorRecovers(t *testing.T) {
	fake := &testutil.FakeProvider{Err: errors.New("rate limited")}
	a := newTestAgent(t, fake)

	out := a.Step(context.Background(), message.NewUser("sess_11111111", "hi"))
	if out != nil {
		t.Errorf("out = %v, want nil on provider error", out)
	}
	// The failure is local to the step; the session survives
	if !a.IsRunning() {
		t.Error("agent should keep running after a provider error")
	}

	fake.Err = nil
	fake.DefaultResponse = testutil.TextResponse("recovered")
	out = a.Step(context.Background(), message.NewUser("sess_11111111", "retry"))
	if out == nil || out.Content != "recovered" {
		t.Errorf("out = %v, want recovered reply", out)
	}
}

func TestStep_EmptyInputs(t *testing.T) {
	fake := testutil.NewFakeProvider()
	a := newTestAgent(t, fake)

	if out := a.Step(context.Background()); out != nil {
		t.Errorf("Step() = %v, want nil", out)
	}
	if fake.Calls != 0 {
		t.Error("empty step must not reach the provider")
	}
}

func TestStep_ToolNamesFilterSchemas(t *testing.T) {
	registry := testutil.NewTestRegistry(t, "read_file", "write_file", "list_dir")
	RegisterFinishTask(registry)
	fake := &testutil.FakeProvider{DefaultResponse: testutil.TextResponse("ok")}

	a, err := New(Config{
		SessionID:    "sess_11111111",
		AgentType:    "codebase-analysis",
		Provider:     fake,
		Registry:     registry,
		ToolNames:    []string{"read_file", "list_dir", FinishTaskTool},
		SystemPrompt: func(a *Agent) string { return "test" },
	})
	if err != nil {
		t.Fatal(err)
	}

	a.Step(context.Background(), message.NewUser("sess_11111111", "hi"))

	schemas := fake.ToolLists[0]
	names := make(map[string]bool)
	for _, s := range schemas {
		names[s.Name] = true
	}
	if len(schemas) != 3 || !names["read_file"] || !names["list_dir"] || !names[FinishTaskTool] {
		t.Errorf("model saw schemas %v, want the restricted set", names)
	}
	if names["write_file"] {
		t.Error("write_file should be hidden from the model")
	}
}

func TestStep_MultipleObservations(t *testing.T) {
	registry := testutil.NewTestRegistry(t, "read_file")
	RegisterFinishTask(registry)
	fake := &testutil.FakeProvider{DefaultResponse: testutil.TextResponse("ok")}

	a, err := New(Config{
		SessionID:    "sess_11111111",
		AgentType:    "coding",
		Provider:     fake,
		Registry:     registry,
		SystemPrompt: func(a *Agent) string { return "test" },
	})
	if err != nil {
		t.Fatal(err)
	}

	// A batched step appends every observation before the provider call
	obs1 := message.NewToolResult("sess_11111111", "call_1", "a", message.StatusSuccess)
	obs2 := message.NewToolResult("sess_11111111", "call_2", "b", message.StatusError)
	a.Step(context.Background(), obs1, obs2)

	if fake.Calls != 1 {
		t.Fatalf("provider called %d times, want 1", fake.Calls)
	}
	msgs := a.Messages()
	if len(msgs) != 3 {
		t.Fatalf("history len = %d, want 3", len(msgs))
	}
	if msgs[0] != obs1 || msgs[1] != obs2 {
		t.Error("observations should be appended in order")
	}
}

func TestFactory_New(t *testing.T) {
	registry := testutil.NewTestRegistry(t, "read_file", "write_file", "list_dir")
	RegisterFinishTask(registry)
	f := &Factory{Registry: registry, Provider: testutil.NewFakeProvider()}

	dir := t.TempDir()
	for _, agentType := range Types() {
		a, err := f.New(agentType, "sess_11111111", dir)
		if err != nil {
			t.Errorf("New(%s): %v", agentType, err)
			continue
		}
		if a.Type() != agentType {
			t.Errorf("Type() = %q, want %q", a.Type(), agentType)
		}
	}

	if _, err := f.New("warlock", "sess_11111111", dir); err == nil {
		t.Error("unknown agent type should fail")
	}
}

func TestDefaultAllowedTools(t *testing.T) {
	if got := DefaultAllowedTools(TypeCoding); got != nil {
		t.Errorf("coding allow-list = %v, want nil (unrestricted)", got)
	}

	got := DefaultAllowedTools(TypeCodebaseAnalysis)
	want := map[string]bool{"read_file": true, "list_dir": true, FinishTaskTool: true}
	if len(got) != len(want) {
		t.Fatalf("analysis allow-list = %v", got)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected tool %q in analysis allow-list", name)
		}
	}

	// Reviewers additionally get the sandboxed write
	var hasWrite bool
	for _, name := range DefaultAllowedTools(TypeCodeReview) {
		if name == "write_file" {
			hasWrite = true
		}
	}
	if !hasWrite {
		t.Error("code-review allow-list should include write_file")
	}
}

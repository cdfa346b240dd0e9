package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/conclavehq/conclave/internal/agent"
	"github.com/conclavehq/conclave/internal/config"
	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/runner"
	"github.com/conclavehq/conclave/internal/testutil"
	"github.com/conclavehq/conclave/internal/tool"
)

func newTestServer(t *testing.T, responses ...*provider.Response) *Server {
	t.Helper()

	registry := tool.NewRegistry()
	tool.RegisterBuiltins(registry, t.TempDir())
	agent.RegisterFinishTask(registry)

	fake := testutil.NewFakeProvider(responses...)
	fake.DefaultResponse = testutil.TextResponse("ok")

	pool := runner.NewPool(5, time.Hour)
	t.Cleanup(func() { pool.StopAll(context.Background(), "test teardown") })

	cfg := config.Default()
	return NewServer(&ServerConfig{
		Config:  cfg,
		Pool:    pool,
		Factory: &agent.Factory{Registry: registry, Provider: fake},
		// Schedule store omitted: schedule tools report not enabled
		ToolRegistry: registry,
	})
}

func startTestSession(t *testing.T, s *Server, agentType string) map[string]any {
	t.Helper()

	result, err := s.GetRegistry().CallToolWithMap(context.Background(), "session_start", map[string]any{
		"agent_type":  agentType,
		"project_dir": t.TempDir(),
	})
	if err != nil {
		t.Fatalf("session_start error = %v", err)
	}
	if result["isError"] == true {
		t.Fatalf("session_start failed: %v", result)
	}
	return result
}

func TestServer_SessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	startTestSession(t, s, "coding")

	if s.pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", s.pool.Len())
	}
	run := s.pool.List()[0]
	sessionID := run.SessionID()

	// Pause, then verify send fails
	if _, err := s.registry.CallToolWithMap(context.Background(), "session_pause", map[string]any{"session_id": sessionID}); err != nil {
		t.Fatalf("session_pause error = %v", err)
	}
	if run.State() != runner.StatePaused {
		t.Errorf("State = %q, want paused", run.State())
	}

	result, _ := s.registry.CallToolWithMap(context.Background(), "session_send", map[string]any{
		"session_id": sessionID,
		"message":    "hello",
	})
	if result["isError"] != true {
		t.Error("session_send to paused session should fail")
	}

	// Resume and send
	if _, err := s.registry.CallToolWithMap(context.Background(), "session_resume", map[string]any{"session_id": sessionID}); err != nil {
		t.Fatalf("session_resume error = %v", err)
	}
	result, err := s.registry.CallToolWithMap(context.Background(), "session_send", map[string]any{
		"session_id": sessionID,
		"message":    "hello",
	})
	if err != nil {
		t.Fatalf("session_send error = %v", err)
	}
	if result["isError"] == true {
		t.Fatalf("session_send failed: %v", result)
	}

	// Stop removes from pool
	if _, err := s.registry.CallToolWithMap(context.Background(), "session_stop", map[string]any{"session_id": sessionID}); err != nil {
		t.Fatalf("session_stop error = %v", err)
	}
	if s.pool.Get(sessionID) != nil {
		t.Error("stopped session should be removed from pool")
	}
}

func TestServer_SessionStartUnknownAgent(t *testing.T) {
	s := newTestServer(t)

	result, err := s.registry.CallToolWithMap(context.Background(), "session_start", map[string]any{
		"agent_type":  "astrologer",
		"project_dir": t.TempDir(),
	})
	if err != nil {
		t.Fatalf("CallToolWithMap error = %v", err)
	}
	if result["isError"] != true {
		t.Error("session_start with unknown agent type should fail")
	}
}

func TestServer_SessionEvents(t *testing.T) {
	s := newTestServer(t, testutil.TextResponse("first reply"))
	startTestSession(t, s, "coding")
	run := s.pool.List()[0]

	if err := run.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage error = %v", err)
	}

	result, err := s.registry.CallToolWithMap(context.Background(), "session_events", map[string]any{
		"session_id": run.SessionID(),
	})
	if err != nil {
		t.Fatalf("session_events error = %v", err)
	}
	if result["isError"] == true {
		t.Fatalf("session_events failed: %v", result)
	}
}

func TestServer_SessionNotFound(t *testing.T) {
	s := newTestServer(t)

	result, _ := s.registry.CallToolWithMap(context.Background(), "session_send", map[string]any{
		"session_id": "sess_deadbeef",
		"message":    "hi",
	})
	if result["isError"] != true {
		t.Error("session_send to missing session should fail")
	}
}

func TestServer_AgentList(t *testing.T) {
	s := newTestServer(t)

	result, err := s.registry.CallToolWithMap(context.Background(), "agent_list", nil)
	if err != nil {
		t.Fatalf("agent_list error = %v", err)
	}
	if result["isError"] == true {
		t.Fatalf("agent_list failed: %v", result)
	}
}

func TestServer_ScheduleToolsDisabled(t *testing.T) {
	s := newTestServer(t)

	result, _ := s.registry.CallToolWithMap(context.Background(), "schedule_list", nil)
	if result["isError"] != true {
		t.Error("schedule_list without a store should fail")
	}
}

func TestServer_ControlToolsRegistered(t *testing.T) {
	s := newTestServer(t)

	want := []string{
		"session_start", "session_send", "session_events",
		"session_pause", "session_resume", "session_stop", "session_list",
		"agent_list",
		"schedule_create", "schedule_list", "schedule_update",
		"schedule_delete", "schedule_trigger", "schedule_executions",
	}
	for _, name := range want {
		if _, ok := s.registry.GetTool(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conclavehq/conclave/internal/agent"
	"github.com/conclavehq/conclave/internal/audit"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/runner"
	"github.com/conclavehq/conclave/internal/validation"
)

// Session Management Handlers

func (s *Server) registerSessionTools(r *Registry) {
	Register(r, ToolDef{
		Name: "session_start",
		Description: `Start an agent session.

Creates an agent of the given type bound to a project directory and adds
it to the runner pool. When message is provided the first task is sent
synchronously and the reply is returned.

Key parameters:
  agent_type    — One of: coding, code-review, codebase-analysis, product-manager, tech-lead, prompt-refiner
  project_dir   — Absolute path to the project the agent works in
  message       — Optional first task to send
  allowed_tools — Optional tool allow-list overriding the agent type default
  max_steps     — Optional per-message step budget`,
	}, s.handleSessionStart)

	Register(r, ToolDef{
		Name: "session_send",
		Description: `Send a message to an active session.

Drives the agent step loop to completion and returns the agent's reply.
Fails when the session is paused or stopped.`,
	}, s.handleSessionSend)

	Register(r, ToolDef{
		Name: "session_events",
		Description: `Fetch buffered output events from a session.

Pass after_index=-1 (or omit it) for all buffered events, or the index
of the last event you have seen to fetch only newer ones. Events older
than the buffer window are purged.`,
	}, s.handleSessionEvents)

	Register(r, ToolDef{
		Name:        "session_pause",
		Description: `Pause a session. A paused session rejects new messages until resumed.`,
	}, s.handleSessionPause)

	Register(r, ToolDef{
		Name:        "session_resume",
		Description: `Resume a paused session.`,
	}, s.handleSessionResume)

	Register(r, ToolDef{
		Name: "session_stop",
		Description: `Stop a session permanently and remove it from the pool.

Stopping is terminal: a stopped session cannot be resumed.`,
	}, s.handleSessionStop)

	Register(r, ToolDef{
		Name:        "session_list",
		Description: `List active sessions with their agent type, state, and usage.`,
	}, s.handleSessionList)
}

type SessionStartParams struct {
	AgentType    string   `json:"agent_type" description:"Agent type to run"`
	ProjectDir   string   `json:"project_dir" description:"Absolute path to the project directory"`
	Message      string   `json:"message,omitempty" description:"Optional first task"`
	AllowedTools []string `json:"allowed_tools,omitempty" description:"Tool allow-list override"`
	MaxSteps     int      `json:"max_steps,omitempty" description:"Step budget per message"`
}

func (s *Server) handleSessionStart(ctx context.Context, request *mcp.CallToolRequest, params *SessionStartParams) (*mcp.CallToolResult, any, error) {
	if params.AgentType == "" {
		return nil, nil, fmt.Errorf("agent_type is required")
	}
	if params.ProjectDir == "" {
		return nil, nil, fmt.Errorf("project_dir is required")
	}

	run, err := s.startSession(params.AgentType, params.ProjectDir, params.AllowedTools, params.MaxSteps)
	if err != nil {
		audit.LogFailure(audit.OpSessionStart, "", params.AgentType, err)
		return nil, nil, err
	}
	audit.LogSuccess(audit.OpSessionStart, run.SessionID(), params.AgentType)

	reply := ""
	if params.Message != "" {
		if err := run.SendMessage(ctx, params.Message); err != nil {
			return nil, nil, err
		}
		reply = lastTextOutput(run)
	}

	result := fmt.Sprintf("Session started\n\nID:      %s\nAgent:   %s\nProject: %s\nState:   %s\n",
		run.SessionID(), params.AgentType, params.ProjectDir, run.State())
	if reply != "" {
		result += "\n" + reply
	}

	return NewTextResult(result), map[string]any{
		"session_id": run.SessionID(),
		"agent_type": params.AgentType,
		"state":      string(run.State()),
		"reply":      reply,
	}, nil
}

type SessionSendParams struct {
	SessionID string `json:"session_id" description:"Target session"`
	Message   string `json:"message" description:"Task or follow-up to send"`
	TimeoutS  int    `json:"timeout_s,omitempty" description:"Drive timeout in seconds (default 300)"`
}

func (s *Server) handleSessionSend(ctx context.Context, request *mcp.CallToolRequest, params *SessionSendParams) (*mcp.CallToolResult, any, error) {
	run, err := s.lookupSession(params.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if params.Message == "" {
		return nil, nil, fmt.Errorf("message is required")
	}

	timeout := 5 * time.Minute
	if params.TimeoutS > 0 {
		timeout = time.Duration(params.TimeoutS) * time.Second
	}
	driveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startIndex := run.BufferStats().LastIndex

	if err := run.SendMessage(driveCtx, params.Message); err != nil {
		return nil, nil, err
	}

	events, _ := run.EventsAfter(startIndex)
	reply := ""
	toolCalls := 0
	for _, ev := range events {
		if ev.Message == nil {
			continue
		}
		switch ev.Message.Kind {
		case message.KindRespond, message.KindFinished:
			reply = ev.Message.Content
		case message.KindToolCall:
			toolCalls += len(ev.Message.ToolCalls)
		}
	}

	result := reply
	if result == "" {
		result = "(no reply)"
	}

	return NewTextResult(result), map[string]any{
		"session_id": run.SessionID(),
		"reply":      reply,
		"tool_calls": toolCalls,
		"running":    run.Agent().IsRunning(),
	}, nil
}

type SessionEventsParams struct {
	SessionID  string `json:"session_id" description:"Target session"`
	AfterIndex *int   `json:"after_index,omitempty" description:"Return events after this index; omit for all"`
}

func (s *Server) handleSessionEvents(ctx context.Context, request *mcp.CallToolRequest, params *SessionEventsParams) (*mcp.CallToolResult, any, error) {
	run, err := s.lookupSession(params.SessionID)
	if err != nil {
		return nil, nil, err
	}

	after := -1
	if params.AfterIndex != nil {
		after = *params.AfterIndex
	}

	events, err := run.EventsAfter(after)
	if err != nil {
		return nil, nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d event(s) for session %s\n", len(events), run.SessionID())
	for _, ev := range events {
		if ev.Message == nil {
			continue
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", ev.Index, ev.Message.Kind, summarizeMessage(ev.Message))
	}

	return NewTextResult(b.String()), map[string]any{
		"session_id": run.SessionID(),
		"events":     events,
		"last_index": run.BufferStats().LastIndex,
	}, nil
}

func summarizeMessage(m *message.Message) string {
	switch m.Kind {
	case message.KindToolCall:
		names := make([]string, 0, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			names = append(names, c.Name)
		}
		return strings.Join(names, ", ")
	case message.KindFinished:
		return m.Reason
	default:
		if len(m.Content) > 120 {
			return m.Content[:120] + "..."
		}
		return m.Content
	}
}

type SessionIDParams struct {
	SessionID string `json:"session_id" description:"Target session"`
}

func (s *Server) handleSessionPause(ctx context.Context, request *mcp.CallToolRequest, params *SessionIDParams) (*mcp.CallToolResult, any, error) {
	run, err := s.lookupSession(params.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := run.Pause(); err != nil {
		audit.LogFailure(audit.OpSessionPause, run.SessionID(), run.Agent().Type(), err)
		return nil, nil, err
	}
	audit.LogSuccess(audit.OpSessionPause, run.SessionID(), run.Agent().Type())
	return NewTextResult(fmt.Sprintf("Session %s paused", run.SessionID())), map[string]any{
		"session_id": run.SessionID(),
		"state":      string(run.State()),
	}, nil
}

func (s *Server) handleSessionResume(ctx context.Context, request *mcp.CallToolRequest, params *SessionIDParams) (*mcp.CallToolResult, any, error) {
	run, err := s.lookupSession(params.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := run.Resume(); err != nil {
		audit.LogFailure(audit.OpSessionResume, run.SessionID(), run.Agent().Type(), err)
		return nil, nil, err
	}
	audit.LogSuccess(audit.OpSessionResume, run.SessionID(), run.Agent().Type())
	return NewTextResult(fmt.Sprintf("Session %s resumed", run.SessionID())), map[string]any{
		"session_id": run.SessionID(),
		"state":      string(run.State()),
	}, nil
}

type SessionStopParams struct {
	SessionID string `json:"session_id" description:"Target session"`
	Reason    string `json:"reason,omitempty" description:"Why the session is being stopped"`
}

func (s *Server) handleSessionStop(ctx context.Context, request *mcp.CallToolRequest, params *SessionStopParams) (*mcp.CallToolResult, any, error) {
	run, err := s.lookupSession(params.SessionID)
	if err != nil {
		return nil, nil, err
	}

	reason := params.Reason
	if reason == "" {
		reason = "stopped by operator"
	}

	if err := run.Stop(ctx, reason); err != nil {
		audit.LogFailure(audit.OpSessionStop, run.SessionID(), run.Agent().Type(), err)
		return nil, nil, err
	}
	s.pool.Remove(run.SessionID())
	audit.LogSuccess(audit.OpSessionStop, run.SessionID(), run.Agent().Type())

	return NewTextResult(fmt.Sprintf("Session %s stopped: %s", run.SessionID(), reason)), map[string]any{
		"session_id": run.SessionID(),
		"state":      string(run.State()),
	}, nil
}

type SessionListParams struct{}

func (s *Server) handleSessionList(ctx context.Context, request *mcp.CallToolRequest, params *SessionListParams) (*mcp.CallToolResult, any, error) {
	runners := s.pool.List()

	type sessionInfo struct {
		SessionID string `json:"session_id"`
		AgentType string `json:"agent_type"`
		State     string `json:"state"`
		Messages  int    `json:"messages"`
		Running   bool   `json:"running"`
		CreatedAt string `json:"created_at"`
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d active session(s)\n", len(runners))

	infos := make([]sessionInfo, 0, len(runners))
	for _, run := range runners {
		info := sessionInfo{
			SessionID: run.SessionID(),
			AgentType: run.Agent().Type(),
			State:     string(run.State()),
			Messages:  run.MessageCount(),
			Running:   run.Agent().IsRunning(),
			CreatedAt: run.CreatedAt().Format(time.RFC3339),
		}
		infos = append(infos, info)
		fmt.Fprintf(&b, "%s  %-18s %-8s messages=%d\n", info.SessionID, info.AgentType, info.State, info.Messages)
	}

	return NewTextResult(b.String()), map[string]any{"sessions": infos}, nil
}

// Agent roster handlers

func (s *Server) registerAgentTools(r *Registry) {
	Register(r, ToolDef{
		Name:        "agent_list",
		Description: `List available agent types with their default tool allow-lists.`,
	}, s.handleAgentList)
}

type AgentListParams struct{}

func (s *Server) handleAgentList(ctx context.Context, request *mcp.CallToolRequest, params *AgentListParams) (*mcp.CallToolResult, any, error) {
	type agentInfo struct {
		Type         string   `json:"type"`
		AllowedTools []string `json:"allowed_tools,omitempty"` // nil = unrestricted
	}

	var b strings.Builder
	infos := make([]agentInfo, 0, len(agent.Types()))
	for _, t := range agent.Types() {
		allowed := agent.DefaultAllowedTools(t)
		infos = append(infos, agentInfo{Type: t, AllowedTools: allowed})
		if allowed == nil {
			fmt.Fprintf(&b, "%-18s all tools\n", t)
		} else {
			fmt.Fprintf(&b, "%-18s %s\n", t, strings.Join(allowed, ", "))
		}
	}

	return NewTextResult(b.String()), map[string]any{"agents": infos}, nil
}

func (s *Server) lookupSession(sessionID string) (*runner.Runner, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	run := s.pool.Get(sessionID)
	if run == nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return run, nil
}

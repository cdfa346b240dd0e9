package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conclavehq/conclave/internal/audit"
	"github.com/conclavehq/conclave/internal/schedule"
	"github.com/conclavehq/conclave/internal/validation"
)

// Schedule Management Handlers

func (s *Server) registerScheduleTools(r *Registry) {
	Register(r, ToolDef{
		Name: "schedule_create",
		Description: `Create a recurring agent run.

At each cron tick a fresh session of the given agent type is started in
project_dir and sent the prompt.

Key parameters:
  name        — Human-readable schedule name
  cron_expr   — Standard 5-field cron expression (minute hour day month weekday)
  prompt      — Task to send to the agent on each run
  agent_type  — Agent type to run
  project_dir — Absolute path to the project directory
  overlap     — "skip" (default) or "parallel" when a previous run is still active`,
	}, s.handleScheduleCreate)

	Register(r, ToolDef{
		Name:        "schedule_list",
		Description: `List schedules, optionally filtered by agent_type or enabled status.`,
	}, s.handleScheduleList)

	Register(r, ToolDef{
		Name: "schedule_update",
		Description: `Update a schedule. Only the provided fields change.

Set enabled=false to pause a schedule without deleting it.`,
	}, s.handleScheduleUpdate)

	Register(r, ToolDef{
		Name:        "schedule_delete",
		Description: `Delete a schedule and its execution history.`,
	}, s.handleScheduleDelete)

	Register(r, ToolDef{
		Name:        "schedule_trigger",
		Description: `Run a schedule immediately, outside its cron cadence.`,
	}, s.handleScheduleTrigger)

	Register(r, ToolDef{
		Name:        "schedule_executions",
		Description: `List recent executions of a schedule, most recent first.`,
	}, s.handleScheduleExecutions)
}

func (s *Server) requireScheduleStore() error {
	if s.scheduleStore == nil {
		return fmt.Errorf("scheduling is not enabled")
	}
	return nil
}

type ScheduleCreateParams struct {
	Name       string `json:"name" description:"Schedule name"`
	CronExpr   string `json:"cron_expr" description:"5-field cron expression"`
	Prompt     string `json:"prompt" description:"Task sent to the agent each run"`
	AgentType  string `json:"agent_type" description:"Agent type to run"`
	ProjectDir string `json:"project_dir" description:"Project directory"`
	Enabled    *bool  `json:"enabled,omitempty" description:"Whether the schedule starts enabled (default true)"`
	Overlap    string `json:"overlap,omitempty" description:"skip or parallel"`
}

func (s *Server) handleScheduleCreate(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleCreateParams) (*mcp.CallToolResult, any, error) {
	if err := s.requireScheduleStore(); err != nil {
		return nil, nil, err
	}

	if params.Name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	if params.CronExpr == "" {
		return nil, nil, fmt.Errorf("cron_expr is required")
	}
	if params.Prompt == "" {
		return nil, nil, fmt.Errorf("prompt is required")
	}
	if params.AgentType == "" {
		return nil, nil, fmt.Errorf("agent_type is required")
	}
	if params.ProjectDir == "" {
		return nil, nil, fmt.Errorf("project_dir is required")
	}

	sched := &schedule.Schedule{
		Name:       params.Name,
		CronExpr:   params.CronExpr,
		Prompt:     params.Prompt,
		AgentType:  params.AgentType,
		ProjectDir: params.ProjectDir,
		Enabled:    true,
		Overlap:    schedule.OverlapSkip,
	}

	if params.Enabled != nil {
		sched.Enabled = *params.Enabled
	}
	if params.Overlap != "" {
		overlap := schedule.OverlapBehavior(params.Overlap)
		if !schedule.IsValidOverlapBehavior(overlap) {
			return nil, nil, fmt.Errorf("invalid overlap: %s", params.Overlap)
		}
		sched.Overlap = overlap
	}

	if err := s.scheduleStore.Create(sched); err != nil {
		audit.LogFailure(audit.OpScheduleCreate, "", params.AgentType, err)
		return nil, nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	audit.Log(&audit.Event{Operation: audit.OpScheduleCreate, ScheduleID: sched.ID, AgentType: sched.AgentType, Success: true})

	result := "Schedule created\n\n"
	result += fmt.Sprintf("ID:      %s\n", sched.ID)
	result += fmt.Sprintf("Name:    %s\n", sched.Name)
	result += fmt.Sprintf("Cron:    %s\n", sched.CronExpr)
	result += fmt.Sprintf("Agent:   %s\n", sched.AgentType)
	result += fmt.Sprintf("Enabled: %v\n", sched.Enabled)
	if sched.NextRunAt != nil {
		result += fmt.Sprintf("Next:    %s\n", sched.NextRunAt.Format("2006-01-02 15:04:05"))
	}

	return NewTextResult(result), sched, nil
}

type ScheduleListParams struct {
	AgentType string `json:"agent_type,omitempty" description:"Filter by agent type"`
	Enabled   *bool  `json:"enabled,omitempty" description:"Filter by enabled status"`
}

func (s *Server) handleScheduleList(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleListParams) (*mcp.CallToolResult, any, error) {
	if err := s.requireScheduleStore(); err != nil {
		return nil, nil, err
	}

	schedules, err := s.scheduleStore.List(&schedule.ListFilter{
		AgentType: params.AgentType,
		Enabled:   params.Enabled,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d schedule(s)\n", len(schedules))
	for _, sched := range schedules {
		state := "enabled"
		if !sched.Enabled {
			state = "disabled"
		}
		next := "-"
		if sched.NextRunAt != nil {
			next = sched.NextRunAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%s  %-20s %-14s %s  next=%s\n", sched.ID, sched.Name, sched.AgentType, state, next)
	}

	return NewTextResult(b.String()), map[string]any{"schedules": schedules}, nil
}

type ScheduleUpdateParams struct {
	ScheduleID string  `json:"schedule_id" description:"Target schedule"`
	Name       *string `json:"name,omitempty"`
	CronExpr   *string `json:"cron_expr,omitempty"`
	Prompt     *string `json:"prompt,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
	Overlap    *string `json:"overlap,omitempty" description:"skip or parallel"`
}

func (s *Server) handleScheduleUpdate(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleUpdateParams) (*mcp.CallToolResult, any, error) {
	if err := s.requireScheduleStore(); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateScheduleID(params.ScheduleID); err != nil {
		return nil, nil, err
	}

	update := &schedule.ScheduleUpdate{
		Name:     params.Name,
		CronExpr: params.CronExpr,
		Prompt:   params.Prompt,
		Enabled:  params.Enabled,
	}
	if params.Overlap != nil {
		overlap := schedule.OverlapBehavior(*params.Overlap)
		if !schedule.IsValidOverlapBehavior(overlap) {
			return nil, nil, fmt.Errorf("invalid overlap: %s", *params.Overlap)
		}
		update.Overlap = &overlap
	}

	if err := s.scheduleStore.Update(params.ScheduleID, update); err != nil {
		audit.Log(&audit.Event{Operation: audit.OpScheduleUpdate, ScheduleID: params.ScheduleID, Error: err.Error()})
		return nil, nil, fmt.Errorf("failed to update schedule: %w", err)
	}
	audit.Log(&audit.Event{Operation: audit.OpScheduleUpdate, ScheduleID: params.ScheduleID, Success: true})

	sched, err := s.scheduleStore.Get(params.ScheduleID)
	if err != nil {
		return nil, nil, err
	}

	return NewTextResult(fmt.Sprintf("Schedule %s updated", sched.ID)), sched, nil
}

type ScheduleIDParams struct {
	ScheduleID string `json:"schedule_id" description:"Target schedule"`
}

func (s *Server) handleScheduleDelete(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleIDParams) (*mcp.CallToolResult, any, error) {
	if err := s.requireScheduleStore(); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateScheduleID(params.ScheduleID); err != nil {
		return nil, nil, err
	}

	if err := s.scheduleStore.Delete(params.ScheduleID); err != nil {
		return nil, nil, fmt.Errorf("failed to delete schedule: %w", err)
	}
	audit.Log(&audit.Event{Operation: audit.OpScheduleDelete, ScheduleID: params.ScheduleID, Success: true})

	return NewTextResult(fmt.Sprintf("Schedule %s deleted", params.ScheduleID)), map[string]any{
		"schedule_id": params.ScheduleID,
		"deleted":     true,
	}, nil
}

func (s *Server) handleScheduleTrigger(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleIDParams) (*mcp.CallToolResult, any, error) {
	if err := s.requireScheduleStore(); err != nil {
		return nil, nil, err
	}
	if s.scheduleRunner == nil {
		return nil, nil, fmt.Errorf("scheduling is not enabled")
	}
	if err := validation.ValidateScheduleID(params.ScheduleID); err != nil {
		return nil, nil, err
	}

	sched, err := s.scheduleStore.Get(params.ScheduleID)
	if err != nil {
		return nil, nil, err
	}

	sessionID, err := s.scheduleRunner.TriggerNow(sched)
	if err != nil {
		audit.Log(&audit.Event{Operation: audit.OpScheduleRun, ScheduleID: sched.ID, SessionID: sessionID, Error: err.Error()})
		return nil, nil, fmt.Errorf("schedule execution failed: %w", err)
	}
	audit.Log(&audit.Event{Operation: audit.OpScheduleRun, ScheduleID: sched.ID, SessionID: sessionID, Success: true})

	return NewTextResult(fmt.Sprintf("Schedule %s executed (session %s)", sched.ID, sessionID)), map[string]any{
		"schedule_id": sched.ID,
		"session_id":  sessionID,
	}, nil
}

type ScheduleExecutionsParams struct {
	ScheduleID string `json:"schedule_id" description:"Target schedule"`
	Limit      int    `json:"limit,omitempty" description:"Maximum executions to return (default 20)"`
}

func (s *Server) handleScheduleExecutions(ctx context.Context, request *mcp.CallToolRequest, params *ScheduleExecutionsParams) (*mcp.CallToolResult, any, error) {
	if err := s.requireScheduleStore(); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateScheduleID(params.ScheduleID); err != nil {
		return nil, nil, err
	}

	execs, err := s.scheduleStore.ListExecutions(params.ScheduleID, params.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list executions: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d execution(s) for %s\n", len(execs), params.ScheduleID)
	for _, e := range execs {
		detail := e.SessionID
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(&b, "%s  %-8s %s  %dms\n", e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Status, detail, e.DurationMs)
	}

	return NewTextResult(b.String()), map[string]any{"executions": execs}, nil
}

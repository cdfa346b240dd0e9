package schedule

import (
	"time"
)

// OverlapBehavior defines what to do if a previous run is still active
type OverlapBehavior string

const (
	OverlapSkip     OverlapBehavior = "skip"     // Don't start if previous still running
	OverlapParallel OverlapBehavior = "parallel" // Allow concurrent execution
)

// Schedule is a recurring agent run: at each cron tick a session of the
// configured agent type is started and sent the stored prompt
type Schedule struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CronExpr   string          `json:"cron_expr"` // Standard 5-field cron expression
	Prompt     string          `json:"prompt"`    // Message to send to the agent
	AgentType  string          `json:"agent_type"`
	ProjectDir string          `json:"project_dir"`
	Enabled    bool            `json:"enabled"` // Can be paused/resumed
	Overlap    OverlapBehavior `json:"overlap"` // What to do if previous run active
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
}

// ExecutionStatus represents the outcome of a schedule execution
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionSkipped ExecutionStatus = "skipped"
)

// Execution records a single run of a schedule
type Execution struct {
	ID         string          `json:"id"`
	ScheduleID string          `json:"schedule_id"`
	SessionID  string          `json:"session_id,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
	Status     ExecutionStatus `json:"status"`
	Output     string          `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// ScheduleUpdate contains optional fields for updating a schedule
type ScheduleUpdate struct {
	Name     *string          `json:"name,omitempty"`
	CronExpr *string          `json:"cron_expr,omitempty"`
	Prompt   *string          `json:"prompt,omitempty"`
	Enabled  *bool            `json:"enabled,omitempty"`
	Overlap  *OverlapBehavior `json:"overlap,omitempty"`
}

// ListFilter contains optional filters for listing schedules
type ListFilter struct {
	AgentType string // Filter to schedules running this agent type
	Enabled   *bool  // Filter by enabled status
}

// IsValidOverlapBehavior checks if the overlap behavior is valid
func IsValidOverlapBehavior(b OverlapBehavior) bool {
	return b == OverlapSkip || b == OverlapParallel
}

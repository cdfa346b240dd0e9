package agent

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/tool"
)

// Built-in agent types
const (
	TypeCoding           = "coding"
	TypeCodeReview       = "code-review"
	TypeCodebaseAnalysis = "codebase-analysis"
	TypeProductManager   = "product-manager"
	TypeTechLead         = "tech-lead"
	TypePromptRefiner    = "prompt-refiner"
)

// Types lists the built-in agent types
func Types() []string {
	return []string{
		TypeCoding,
		TypeCodeReview,
		TypeCodebaseAnalysis,
		TypeProductManager,
		TypeTechLead,
		TypePromptRefiner,
	}
}

// readOnlyTools is the allow-list for agents that must not modify the
// workspace. finish_task is always included so the agent can terminate.
var readOnlyTools = []string{"read_file", "list_dir", FinishTaskTool}

// DefaultAllowedTools returns the session allow-list for an agent type.
// Nil means unrestricted.
func DefaultAllowedTools(agentType string) []string {
	switch agentType {
	case TypeCodebaseAnalysis, TypePromptRefiner:
		return append([]string(nil), readOnlyTools...)
	case TypeCodeReview:
		// Reviewers are read-only plus the sandboxed write used for the
		// review artifact.
		return []string{"read_file", "list_dir", "write_file", FinishTaskTool}
	case TypeProductManager:
		return []string{"read_file", "list_dir", "write_file", FinishTaskTool}
	default:
		return nil
	}
}

type finishTaskParams struct {
	Reason string `json:"reason" description:"Why the task is complete"`
	Result string `json:"result,omitempty" description:"Optional final result or summary"`
}

// RegisterFinishTask registers the finish_task descriptor so its schema
// is exported to the model. The step loop intercepts calls to it before
// dispatch, so the handler only runs if something invokes it directly.
func RegisterFinishTask(r *tool.Registry) {
	tool.RegisterFunc(r, FinishTaskTool,
		"Signal that the current task is complete",
		func(ctx context.Context, p finishTaskParams) tool.Result {
			return tool.Result{Output: "task finished: " + p.Reason}
		})
}

// Factory builds configured agents from the shared registry and provider
type Factory struct {
	Registry *tool.Registry
	Provider provider.Provider
	Usage    *provider.UsageTracker
	// DebugDir, when set, gives every session a step debug log under it
	DebugDir string
}

// New creates an agent of the named type bound to sessionID and
// projectDir. Unknown types are an error.
func (f *Factory) New(agentType, sessionID, projectDir string) (*Agent, error) {
	base := Config{
		SessionID:  sessionID,
		AgentType:  agentType,
		ProjectDir: projectDir,
		Provider:   f.Provider,
		Registry:   f.Registry,
		ToolNames:  DefaultAllowedTools(agentType),
		Usage:      f.Usage,
	}
	if f.DebugDir != "" {
		base.DebugLogPath = filepath.Join(f.DebugDir, sessionID+".jsonl")
	}

	switch agentType {
	case TypeCoding:
		return NewCoding(base)
	case TypeCodeReview:
		return NewCodeReview(base)
	case TypeTechLead:
		return NewTechLead(base)
	case TypeCodebaseAnalysis:
		base.SystemPrompt = staticPrompt(codebaseAnalysisPrompt)
		return New(base)
	case TypeProductManager:
		base.SystemPrompt = staticPrompt(productManagerPrompt)
		return New(base)
	case TypePromptRefiner:
		base.SystemPrompt = staticPrompt(promptRefinerPrompt)
		return New(base)
	default:
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}
}

func staticPrompt(prompt string) func(*Agent) string {
	return func(*Agent) string { return prompt }
}

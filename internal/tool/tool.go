package tool

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Result is the uniform outcome envelope returned by every tool
// invocation. Output and Error are the primary success/failure signals;
// both may be present when a tool produced partial output before failing.
// SystemNote and Files are side channels surfaced to the agent but not
// fed back to the model verbatim.
type Result struct {
	Output     string   `json:"output,omitempty"`
	Error      string   `json:"error,omitempty"`
	SystemNote string   `json:"system_note,omitempty"`
	Files      []string `json:"files,omitempty"`
}

// OK reports whether the result represents a successful invocation
func (r Result) OK() bool {
	return r.Error == ""
}

// Merge combines two results by concatenating their respective fields.
// Used when chaining fallback strategies: the caller keeps partial output
// from a failed attempt alongside the outcome of the retry.
func (r Result) Merge(other Result) Result {
	merged := Result{
		Output:     joinNonEmpty(r.Output, other.Output),
		Error:      joinNonEmpty(r.Error, other.Error),
		SystemNote: joinNonEmpty(r.SystemNote, other.SystemNote),
	}
	merged.Files = append(merged.Files, r.Files...)
	merged.Files = append(merged.Files, other.Files...)
	return merged
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}

// Errorf builds a failed result from a format string
func Errorf(format string, v ...any) Result {
	return Result{Error: fmt.Sprintf(format, v...)}
}

// Tool is one named capability the model can invoke. Execute must treat
// failure as data: it returns a Result with Error set rather than a Go
// error, so the model sees the failure text in the next observation and
// decides how to proceed.
type Tool interface {
	Name() string
	Description() string
	Parameters() *jsonschema.Schema
	Execute(ctx context.Context, args map[string]any) Result
}

// Schema is the provider-facing descriptor for one tool
type Schema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/tool"
)

// writeFamilyTools are the tool names whose calls modify workspace files.
// Calls to these are tracked into the changed-file list.
var writeFamilyTools = map[string]bool{
	"write_file": true,
	"edit_file":  true,
}

const (
	changedFilesName  = "changed_files.json"
	prDescriptionName = "pr_description.md"
	todosName         = "todos.json"
)

// NewCoding creates the coding agent: unrestricted tools, re-arms on
// follow-up user messages, tracks changed files during the session, and
// drafts a PR description around the finish transition.
func NewCoding(base Config) (*Agent, error) {
	base.SystemPrompt = staticPrompt(codingPrompt)
	base.RearmOnUserMessage = true
	base.OnToolCalls = trackChangedFiles
	base.OnFinish = draftPRDescription
	return New(base)
}

// trackChangedFiles records every path touched by write-family tool
// calls into .conclave/changed_files.json. The list is the fallback
// change set when no version-control diff is available.
func trackChangedFiles(a *Agent, calls []message.ToolCall) {
	var touched []string
	for _, call := range calls {
		if !writeFamilyTools[call.Name] {
			continue
		}
		path, ok := call.Arguments["path"].(string)
		if !ok || path == "" {
			continue
		}
		touched = append(touched, normalizeProjectPath(a.ProjectDir(), path))
	}
	if len(touched) == 0 {
		return
	}

	existing, err := loadChangedFiles(a.ProjectDir())
	if err != nil {
		logger.Warn("Session %s: could not load changed-file list: %v", a.SessionID(), err)
	}

	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p] = true
	}
	for _, p := range touched {
		if !seen[p] {
			existing = append(existing, p)
			seen[p] = true
		}
	}
	sort.Strings(existing)

	if err := saveChangedFiles(a.ProjectDir(), existing); err != nil {
		logger.Warn("Session %s: could not save changed-file list: %v", a.SessionID(), err)
	}
}

// normalizeProjectPath rewrites an absolute path under the project root
// to a root-relative one; anything else passes through unchanged
func normalizeProjectPath(root, path string) string {
	if root == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func stateDir(projectDir string) string {
	return filepath.Join(projectDir, ".conclave")
}

func loadChangedFiles(projectDir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(stateDir(projectDir), changedFilesName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func saveChangedFiles(projectDir string, files []string) error {
	dir := stateDir(projectDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(files, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, changedFilesName), data, 0o644)
}

// draftPRDescription synthesizes a PR description with one extra LLM call
// using the gathered session context, falling back to a deterministic
// template if that call fails. Runs on the finish transition; never
// affects it.
func draftPRDescription(ctx context.Context, a *Agent, reason, result string) {
	request := firstUserRequest(a)
	files, _ := loadChangedFiles(a.ProjectDir())
	todos := loadDoneTodos(a.ProjectDir())

	body, err := generatePRDescription(ctx, a.Provider(), request, reason, result, files, todos)
	if err != nil {
		logger.Warn("Session %s: PR description call failed, using template: %v", a.SessionID(), err)
		body = templatePRDescription(request, reason, result, files, todos)
	}

	dir := stateDir(a.ProjectDir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("Session %s: could not create state dir: %v", a.SessionID(), err)
		return
	}
	path := filepath.Join(dir, prDescriptionName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		logger.Error("Session %s: could not write PR description: %v", a.SessionID(), err)
	}
}

// firstUserRequest returns the original task statement: the first user
// message in history. Runs on the finish path, where the step lock is
// already held, so it reads the history directly.
func firstUserRequest(a *Agent) string {
	for _, m := range a.history.Messages() {
		if m.Kind == message.KindUser {
			return m.Content
		}
	}
	return ""
}

func loadDoneTodos(projectDir string) []string {
	data, err := os.ReadFile(filepath.Join(stateDir(projectDir), todosName))
	if err != nil {
		return nil
	}
	var items []tool.TodoItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	var done []string
	for _, item := range items {
		if item.Done {
			done = append(done, item.Text)
		}
	}
	return done
}

func generatePRDescription(ctx context.Context, p provider.Provider, request, reason, result string, files, todos []string) (string, error) {
	var b strings.Builder
	b.WriteString("Draft a pull request description in Markdown for the completed work below.\n")
	b.WriteString("Use a short title line, a summary paragraph, and a bullet list of changes.\n\n")
	fmt.Fprintf(&b, "Original request:\n%s\n\n", request)
	fmt.Fprintf(&b, "Completion reason: %s\n", reason)
	if result != "" {
		fmt.Fprintf(&b, "Result summary: %s\n", result)
	}
	if len(todos) > 0 {
		b.WriteString("\nCompleted items:\n")
		for _, t := range todos {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(files) > 0 {
		b.WriteString("\nChanged files:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	resp, err := p.Generate(ctx, []provider.ChatMessage{
		{Role: provider.RoleSystem, Content: "You write concise, factual pull request descriptions."},
		{Role: provider.RoleUser, Content: b.String()},
	}, nil)
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty PR description response")
	}
	return resp.Content, nil
}

// templatePRDescription is the deterministic fallback when the drafting
// call fails
func templatePRDescription(request, reason, result string, files, todos []string) string {
	var b strings.Builder
	b.WriteString("# Changes\n\n")
	if request != "" {
		fmt.Fprintf(&b, "%s\n\n", request)
	}
	fmt.Fprintf(&b, "Completed: %s\n", reason)
	if result != "" {
		fmt.Fprintf(&b, "\n%s\n", result)
	}
	if len(todos) > 0 {
		b.WriteString("\n## Completed items\n\n")
		for _, t := range todos {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(files) > 0 {
		b.WriteString("\n## Changed files\n\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}

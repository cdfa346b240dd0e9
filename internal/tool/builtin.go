package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conclavehq/conclave/internal/validation"
)

// Builtin file tools. These are the minimal workspace-rooted capabilities
// specialized agents allow-list; heavier capabilities (shell, search,
// exporters) register through the same Registry from outside.

const maxReadBytes = 256 * 1024

type readFileParams struct {
	Path     string `json:"path" description:"File path relative to the project root"`
	MaxBytes int    `json:"max_bytes,omitempty" description:"Truncate the file after this many bytes"`
}

type writeFileParams struct {
	Path    string `json:"path" description:"File path relative to the project root"`
	Content string `json:"content" description:"Full file content to write"`
}

type listDirParams struct {
	Path string `json:"path,omitempty" description:"Directory relative to the project root; defaults to the root"`
}

// TodoItem is one entry in the session todo list
type TodoItem struct {
	Text string `json:"text" description:"Todo item text"`
	Done bool   `json:"done,omitempty" description:"Whether the item is completed"`
}

type todoWriteParams struct {
	Todos []TodoItem `json:"todos" description:"Complete replacement todo list"`
}

// RegisterBuiltins registers the builtin file tools rooted at projectDir
func RegisterBuiltins(r *Registry, projectDir string) {
	RegisterFunc(r, "read_file", "Read a file from the project workspace",
		func(ctx context.Context, p readFileParams) Result {
			path, err := resolveWorkspacePath(projectDir, p.Path)
			if err != nil {
				return Errorf("%v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return Errorf("read %s: %v", p.Path, err)
			}
			limit := p.MaxBytes
			if limit <= 0 || limit > maxReadBytes {
				limit = maxReadBytes
			}
			if len(data) > limit {
				return Result{
					Output:     string(data[:limit]),
					SystemNote: fmt.Sprintf("truncated %s at %d bytes", p.Path, limit),
				}
			}
			return Result{Output: string(data)}
		})

	RegisterFunc(r, "write_file", "Write a file in the project workspace, creating parent directories as needed",
		func(ctx context.Context, p writeFileParams) Result {
			path, err := resolveWorkspacePath(projectDir, p.Path)
			if err != nil {
				return Errorf("%v", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return Errorf("create directory for %s: %v", p.Path, err)
			}
			if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
				return Errorf("write %s: %v", p.Path, err)
			}
			return Result{
				Output: fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path),
				Files:  []string{p.Path},
			}
		})

	RegisterFunc(r, "list_dir", "List the entries of a directory in the project workspace",
		func(ctx context.Context, p listDirParams) Result {
			rel := p.Path
			if rel == "" {
				rel = "."
			}
			path := projectDir
			if rel != "." {
				resolved, err := resolveWorkspacePath(projectDir, rel)
				if err != nil {
					return Errorf("%v", err)
				}
				path = resolved
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return Errorf("list %s: %v", rel, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return Result{Output: strings.Join(names, "\n")}
		})

	RegisterFunc(r, "todo_write", "Replace the session todo list",
		func(ctx context.Context, p todoWriteParams) Result {
			dir := filepath.Join(projectDir, ".conclave")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Errorf("create %s: %v", dir, err)
			}
			data, err := json.MarshalIndent(p.Todos, "", "  ")
			if err != nil {
				return Errorf("encode todos: %v", err)
			}
			path := filepath.Join(dir, "todos.json")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return Errorf("write todos: %v", err)
			}
			done := 0
			for _, t := range p.Todos {
				if t.Done {
					done++
				}
			}
			return Result{Output: fmt.Sprintf("recorded %d todos (%d done)", len(p.Todos), done)}
		})
}

// resolveWorkspacePath validates a user-supplied relative path and joins
// it under the project root
func resolveWorkspacePath(root, rel string) (string, error) {
	clean, err := validation.SanitizePath(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, clean), nil
}

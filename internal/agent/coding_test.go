package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/testutil"
)

func newCodingAgent(t *testing.T, fake *testutil.FakeProvider) (*Agent, string) {
	t.Helper()

	dir := t.TempDir()
	registry := testutil.NewTestRegistry(t, "read_file", "write_file", "edit_file")
	RegisterFinishTask(registry)

	a, err := NewCoding(Config{
		SessionID:  "sess_11111111",
		AgentType:  TypeCoding,
		ProjectDir: dir,
		Provider:   fake,
		Registry:   registry,
	})
	if err != nil {
		t.Fatalf("NewCoding: %v", err)
	}
	return a, dir
}

func readChangedFiles(t *testing.T, dir string) []string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, ".conclave", "changed_files.json"))
	if err != nil {
		t.Fatalf("changed_files.json: %v", err)
	}
	var files []string
	if err := json.Unmarshal(data, &files); err != nil {
		t.Fatal(err)
	}
	return files
}

func TestTrackChangedFiles(t *testing.T) {
	a, dir := newCodingAgent(t, testutil.NewFakeProvider())

	trackChangedFiles(a, []message.ToolCall{
		{Name: "write_file", Arguments: map[string]any{"path": "src/b.go"}},
		{Name: "read_file", Arguments: map[string]any{"path": "ignored.go"}},
		{Name: "edit_file", Arguments: map[string]any{"path": "src/a.go"}},
	})
	trackChangedFiles(a, []message.ToolCall{
		// Duplicate and an absolute path under the project root
		{Name: "write_file", Arguments: map[string]any{"path": "src/a.go"}},
		{Name: "write_file", Arguments: map[string]any{"path": filepath.Join(dir, "src/c.go")}},
	})

	got := readChangedFiles(t, dir)
	want := []string{"src/a.go", "src/b.go", "src/c.go"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("changed files = %v, want %v (deduped, sorted, root-relative)", got, want)
	}
}

func TestTrackChangedFiles_SkipsBadArguments(t *testing.T) {
	a, dir := newCodingAgent(t, testutil.NewFakeProvider())

	trackChangedFiles(a, []message.ToolCall{
		{Name: "write_file", Arguments: map[string]any{"path": ""}},
		{Name: "write_file", Arguments: map[string]any{"path": 42}},
		{Name: "write_file", Arguments: map[string]any{}},
	})

	if _, err := os.Stat(filepath.Join(dir, ".conclave", "changed_files.json")); !os.IsNotExist(err) {
		t.Error("no file should be written when nothing usable was touched")
	}
}

func TestNormalizeProjectPath(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"relative passes through", "/proj", "src/a.go", "src/a.go"},
		{"absolute under root", "/proj", "/proj/src/a.go", "src/a.go"},
		{"absolute outside root", "/proj", "/other/a.go", "/other/a.go"},
		{"no root", "", "/abs/a.go", "/abs/a.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeProjectPath(tt.root, tt.path); got != tt.want {
				t.Errorf("normalizeProjectPath(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
			}
		})
	}
}

func TestCodingFinish_WritesPRDescription(t *testing.T) {
	// Finish response first; the drafting call then gets the scripted
	// description
	fake := testutil.NewFakeProvider(
		testutil.FinishResponse("implemented the parser", "added 2 files"),
		testutil.TextResponse("# Add parser\n\nImplements the new parser."),
	)
	a, dir := newCodingAgent(t, fake)

	out := a.Step(context.Background(), message.NewUser("sess_11111111", "build a parser"))
	if out == nil || out.Kind != message.KindFinished {
		t.Fatalf("out = %v, want finished", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".conclave", "pr_description.md"))
	if err != nil {
		t.Fatalf("pr_description.md: %v", err)
	}
	if !strings.Contains(string(data), "Add parser") {
		t.Errorf("pr_description.md = %q", data)
	}
}

func TestCodingFinish_TemplateFallback(t *testing.T) {
	// Drafting call yields no content, so the deterministic template is
	// used instead
	fake := testutil.NewFakeProvider(testutil.FinishResponse("done", "all green"))
	a, dir := newCodingAgent(t, fake)

	trackChangedFiles(a, []message.ToolCall{
		{Name: "write_file", Arguments: map[string]any{"path": "main.go"}},
	})

	out := a.Step(context.Background(), message.NewUser("sess_11111111", "fix the bug"))
	if out == nil || out.Kind != message.KindFinished {
		t.Fatalf("out = %v, want finished", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".conclave", "pr_description.md"))
	if err != nil {
		t.Fatalf("pr_description.md: %v", err)
	}
	body := string(data)
	for _, want := range []string{"fix the bug", "Completed: done", "all green", "main.go"} {
		if !strings.Contains(body, want) {
			t.Errorf("template missing %q in:\n%s", want, body)
		}
	}
}

func TestTemplatePRDescription(t *testing.T) {
	body := templatePRDescription("add caching", "cache added", "hit rate 90%",
		[]string{"cache.go"}, []string{"write the cache", "add tests"})

	for _, want := range []string{"add caching", "Completed: cache added", "hit rate 90%", "`cache.go`", "write the cache"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conclavehq/conclave/internal/agent"
	"github.com/conclavehq/conclave/internal/testutil"
)

func newPoolRunner(t *testing.T, sessionID string) *Runner {
	t.Helper()

	registry := testutil.NewTestRegistry(t, "read_file")
	fake := &testutil.FakeProvider{DefaultResponse: testutil.TextResponse("ok")}
	a, err := agent.New(agent.Config{
		SessionID:    sessionID,
		AgentType:    "coding",
		Provider:     fake,
		Registry:     registry,
		SystemPrompt: func(a *agent.Agent) string { return "test" },
	})
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	return New(Config{SessionID: sessionID, Agent: a, Registry: registry})
}

func TestPool_CapacityLimit(t *testing.T) {
	p := NewPool(2, time.Hour)
	defer p.StopAll(context.Background(), "test cleanup")

	if err := p.Add(newPoolRunner(t, "sess_00000001")); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := p.Add(newPoolRunner(t, "sess_00000002")); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	err := p.Add(newPoolRunner(t, "sess_00000003"))
	if !errors.Is(err, ErrPoolFull) {
		t.Fatalf("third Add error = %v, want ErrPoolFull", err)
	}

	// Removing a session frees capacity
	p.Remove("sess_00000001")
	if err := p.Add(newPoolRunner(t, "sess_00000003")); err != nil {
		t.Errorf("Add after Remove: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d, want 2", p.Len())
	}
}

func TestPool_DuplicateSessionID(t *testing.T) {
	p := NewPool(5, time.Hour)
	defer p.StopAll(context.Background(), "test cleanup")

	if err := p.Add(newPoolRunner(t, "sess_00000001")); err != nil {
		t.Fatal(err)
	}
	if err := p.Add(newPoolRunner(t, "sess_00000001")); err == nil {
		t.Error("duplicate session ID should fail")
	}
}

func TestPool_GetAndRemove(t *testing.T) {
	p := NewPool(5, time.Hour)
	defer p.StopAll(context.Background(), "test cleanup")

	r := newPoolRunner(t, "sess_00000001")
	if err := p.Add(r); err != nil {
		t.Fatal(err)
	}

	if got := p.Get("sess_00000001"); got != r {
		t.Error("Get should return the registered runner")
	}
	if got := p.Get("sess_ffffffff"); got != nil {
		t.Errorf("Get(unknown) = %v, want nil", got)
	}

	p.Remove("sess_00000001")
	if p.Get("sess_00000001") != nil {
		t.Error("Get after Remove should return nil")
	}
	// Removing an unknown session is a no-op
	p.Remove("sess_00000001")
}

func TestPool_StopAll(t *testing.T) {
	p := NewPool(5, time.Hour)

	r1 := newPoolRunner(t, "sess_00000001")
	r2 := newPoolRunner(t, "sess_00000002")
	for _, r := range []*Runner{r1, r2} {
		if err := p.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	p.StopAll(context.Background(), "shutdown")

	// Runners are stopped but stay in the pool for final inspection
	if p.Len() != 2 {
		t.Errorf("Len after StopAll = %d, want 2", p.Len())
	}
	for _, r := range []*Runner{r1, r2} {
		if r.State() != StateStopped {
			t.Errorf("session %s state = %s, want stopped", r.SessionID(), r.State())
		}
	}

	// StopAll is safe to call again
	p.StopAll(context.Background(), "shutdown")
}

func TestPool_List(t *testing.T) {
	p := NewPool(5, time.Hour)
	defer p.StopAll(context.Background(), "test cleanup")

	ids := map[string]bool{"sess_00000001": false, "sess_00000002": false}
	for id := range ids {
		if err := p.Add(newPoolRunner(t, id)); err != nil {
			t.Fatal(err)
		}
	}

	for _, r := range p.List() {
		ids[r.SessionID()] = true
	}
	for id, seen := range ids {
		if !seen {
			t.Errorf("session %s missing from List", id)
		}
	}
}

package provider

import (
	"context"
	"testing"

	"github.com/conclavehq/conclave/internal/tool"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	// Burst of 2, then immediate requests are refused
	if !rl.Allow("openai") {
		t.Error("first request should pass")
	}
	if !rl.Allow("openai") {
		t.Error("second request should pass within burst")
	}
	if rl.Allow("openai") {
		t.Error("third immediate request should be refused")
	}

	// Keys have independent budgets
	if !rl.Allow("anthropic") {
		t.Error("fresh key should have its own budget")
	}
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	rl.Allow("openai") // drain the burst

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx, "openai"); err == nil {
		t.Error("Wait should fail once the context is cancelled")
	}
}

type countingProvider struct {
	calls int
}

func (p *countingProvider) Name() string  { return "counting" }
func (p *countingProvider) Model() string { return "m" }
func (p *countingProvider) Generate(ctx context.Context, messages []ChatMessage, tools []tool.Schema) (*Response, error) {
	p.calls++
	return &Response{Content: "ok", FinishReason: FinishStop}, nil
}

func TestRateLimited_Delegates(t *testing.T) {
	inner := &countingProvider{}
	p := NewRateLimited(inner, NewRateLimiter(100, 10))

	if p.Name() != "counting" || p.Model() != "m" {
		t.Errorf("wrapper should expose the inner identity: %s/%s", p.Name(), p.Model())
	}

	resp, err := p.Generate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "ok" || inner.calls != 1 {
		t.Errorf("resp = %+v, inner calls = %d", resp, inner.calls)
	}
}

func TestRateLimited_AbortsOnCancelledContext(t *testing.T) {
	inner := &countingProvider{}
	limiter := NewRateLimiter(0.001, 1)
	limiter.Allow("counting") // drain the burst
	p := NewRateLimited(inner, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Generate(ctx, nil, nil); err == nil {
		t.Error("Generate should fail when the limiter wait is aborted")
	}
	if inner.calls != 0 {
		t.Error("inner provider must not be called after an aborted wait")
	}
}

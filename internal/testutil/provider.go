package testutil

import (
	"context"
	"sync"

	"github.com/conclavehq/conclave/internal/provider"
	"github.com/conclavehq/conclave/internal/tool"
)

// FakeProvider is a scripted test double for provider.Provider. It
// returns queued responses in order and records every call it receives.
type FakeProvider struct {
	mu sync.Mutex

	// Queued responses, consumed front to back. When the queue is empty
	// the provider returns DefaultResponse, or an empty stop response if
	// that is nil.
	Responses []*provider.Response

	// DefaultResponse is returned once the queue is drained
	DefaultResponse *provider.Response

	// Err, when set, fails every Generate call
	Err error

	// Call tracking
	Calls     int
	Messages  [][]provider.ChatMessage
	ToolLists [][]tool.Schema
}

// NewFakeProvider creates a fake that returns the given responses in order
func NewFakeProvider(responses ...*provider.Response) *FakeProvider {
	return &FakeProvider{Responses: responses}
}

func (f *FakeProvider) Name() string  { return "fake" }
func (f *FakeProvider) Model() string { return "fake-model" }

// Generate pops the next scripted response
func (f *FakeProvider) Generate(ctx context.Context, messages []provider.ChatMessage, tools []tool.Schema) (*provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	msgs := make([]provider.ChatMessage, len(messages))
	copy(msgs, messages)
	f.Messages = append(f.Messages, msgs)
	f.ToolLists = append(f.ToolLists, tools)

	if f.Err != nil {
		return nil, f.Err
	}

	if len(f.Responses) > 0 {
		resp := f.Responses[0]
		f.Responses = f.Responses[1:]
		return resp, nil
	}
	if f.DefaultResponse != nil {
		return f.DefaultResponse, nil
	}
	return &provider.Response{FinishReason: provider.FinishStop}, nil
}

// LastMessages returns the flattened chat of the most recent call, or
// nil if no call happened
func (f *FakeProvider) LastMessages() []provider.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Messages) == 0 {
		return nil
	}
	return f.Messages[len(f.Messages)-1]
}

package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/metrics"
)

// Event buffer defaults
const (
	DefaultEventBufferSize = 1000
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultMaxRunners      = 10
)

// BufferedEvent wraps an output message with metadata for resumption.
// Indices are logical and monotonically increasing for the life of the
// session; the physical ring drops the oldest entries when full.
type BufferedEvent struct {
	Index     int              `json:"index"`
	Timestamp time.Time        `json:"timestamp"`
	Message   *message.Message `json:"message"`
}

// EventBuffer is a bounded ring of output messages with index-based
// resumption. Clients poll with the last index they saw; a client that
// falls behind the ring window gets a purged-events error and must
// restart from -1.
type EventBuffer struct {
	sessionID     string
	events        []*BufferedEvent
	maxSize       int
	startIndex    int   // logical index of the first buffered event
	droppedEvents int64 // count of events dropped to overflow
	mu            sync.RWMutex
}

// BufferStats contains statistics about the event buffer
type BufferStats struct {
	SessionID     string `json:"session_id"`
	CurrentSize   int    `json:"current_size"`
	MaxSize       int    `json:"max_size"`
	StartIndex    int    `json:"start_index"`
	LastIndex     int    `json:"last_index"`
	DroppedEvents int64  `json:"dropped_events"`
}

// NewEventBuffer creates a buffer for the given session
func NewEventBuffer(sessionID string, maxSize int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = DefaultEventBufferSize
	}
	return &EventBuffer{
		sessionID: sessionID,
		events:    make([]*BufferedEvent, 0, maxSize),
		maxSize:   maxSize,
	}
}

// Append adds a message to the buffer and returns its logical index
func (b *EventBuffer) Append(m *message.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	index := b.startIndex + len(b.events)
	be := &BufferedEvent{
		Index:     index,
		Timestamp: time.Now(),
		Message:   m,
	}

	if len(b.events) >= b.maxSize {
		// Ring behavior: drop the oldest event
		b.events = b.events[1:]
		b.startIndex++
		b.droppedEvents++
		metrics.RecordEventDrop(b.sessionID)
	}
	b.events = append(b.events, be)
	return index
}

// After returns events after the given index (exclusive). index=-1
// returns everything buffered, used on a client's first poll. Requesting
// an index before the buffer window is an error.
func (b *EventBuffer) After(index int) ([]*BufferedEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index == -1 {
		result := make([]*BufferedEvent, len(b.events))
		copy(result, b.events)
		return result, nil
	}

	if index < b.startIndex-1 {
		return nil, fmt.Errorf("events before index %d have been purged (oldest available: %d)", index, b.startIndex)
	}

	start := index - b.startIndex + 1
	if start < 0 {
		start = 0
	}
	if start >= len(b.events) {
		return []*BufferedEvent{}, nil
	}

	result := make([]*BufferedEvent, len(b.events)-start)
	copy(result, b.events[start:])
	return result, nil
}

// LastIndex returns the index of the most recent event, or -1 if empty
func (b *EventBuffer) LastIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return -1
	}
	return b.startIndex + len(b.events) - 1
}

// Len returns the number of events currently buffered
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// DroppedEvents returns the count of events dropped to overflow
func (b *EventBuffer) DroppedEvents() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.droppedEvents
}

// Stats returns current buffer statistics
func (b *EventBuffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lastIndex := -1
	if len(b.events) > 0 {
		lastIndex = b.startIndex + len(b.events) - 1
	}

	return BufferStats{
		SessionID:     b.sessionID,
		CurrentSize:   len(b.events),
		MaxSize:       b.maxSize,
		StartIndex:    b.startIndex,
		LastIndex:     lastIndex,
		DroppedEvents: b.droppedEvents,
	}
}

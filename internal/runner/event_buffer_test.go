package runner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/conclavehq/conclave/internal/message"
)

func TestEventBuffer_AppendAndAfter(t *testing.T) {
	b := NewEventBuffer("sess_11111111", 10)

	for i := 0; i < 3; i++ {
		idx := b.Append(message.NewRespond("sess_11111111", fmt.Sprintf("msg %d", i)))
		if idx != i {
			t.Errorf("Append returned index %d, want %d", idx, i)
		}
	}

	events, err := b.After(-1)
	if err != nil {
		t.Fatalf("After(-1) error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("After(-1) len = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.Index != i {
			t.Errorf("events[%d].Index = %d", i, e.Index)
		}
	}

	events, err = b.After(1)
	if err != nil {
		t.Fatalf("After(1) error = %v", err)
	}
	if len(events) != 1 || events[0].Index != 2 {
		t.Errorf("After(1) = %v, want single event at index 2", events)
	}

	// Caught-up poll returns an empty slice, not an error
	events, err = b.After(2)
	if err != nil {
		t.Fatalf("After(2) error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("After(2) len = %d, want 0", len(events))
	}
}

func TestEventBuffer_RingDropsOldest(t *testing.T) {
	b := NewEventBuffer("sess_11111111", 3)

	for i := 0; i < 5; i++ {
		b.Append(message.NewRespond("sess_11111111", fmt.Sprintf("msg %d", i)))
	}

	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}
	if b.DroppedEvents() != 2 {
		t.Errorf("DroppedEvents = %d, want 2", b.DroppedEvents())
	}

	// Logical indices keep counting past the drop
	if b.LastIndex() != 4 {
		t.Errorf("LastIndex = %d, want 4", b.LastIndex())
	}

	events, err := b.After(-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 || events[0].Index != 2 {
		t.Errorf("window should start at index 2, got first index %d", events[0].Index)
	}
}

func TestEventBuffer_PurgedWindowError(t *testing.T) {
	b := NewEventBuffer("sess_11111111", 2)

	for i := 0; i < 5; i++ {
		b.Append(message.NewRespond("sess_11111111", "x"))
	}

	// startIndex is now 3; a client at index 0 has fallen behind
	_, err := b.After(0)
	if err == nil {
		t.Fatal("After(0) should fail once the window has moved past it")
	}
	if !strings.Contains(err.Error(), "purged") {
		t.Errorf("error = %v, want purged-events message", err)
	}

	// The boundary index (startIndex-1) is still servable
	events, err := b.After(2)
	if err != nil {
		t.Fatalf("After(2) error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("After(2) len = %d, want 2", len(events))
	}
}

func TestEventBuffer_Stats(t *testing.T) {
	b := NewEventBuffer("sess_11111111", 5)

	stats := b.Stats()
	if stats.LastIndex != -1 || stats.CurrentSize != 0 {
		t.Errorf("empty stats = %+v", stats)
	}

	b.Append(message.NewRespond("sess_11111111", "x"))
	b.Append(message.NewRespond("sess_11111111", "y"))

	stats = b.Stats()
	if stats.SessionID != "sess_11111111" {
		t.Errorf("SessionID = %q", stats.SessionID)
	}
	if stats.CurrentSize != 2 || stats.LastIndex != 1 || stats.StartIndex != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.MaxSize != 5 {
		t.Errorf("MaxSize = %d, want 5", stats.MaxSize)
	}
}

func TestEventBuffer_DefaultSize(t *testing.T) {
	b := NewEventBuffer("sess_11111111", 0)
	if b.maxSize != DefaultEventBufferSize {
		t.Errorf("maxSize = %d, want %d", b.maxSize, DefaultEventBufferSize)
	}
}

package message

// History is the append-only conversation record owned by exactly one
// agent. Insertion order is authoritative: it is the order messages are
// presented to the model on every call. The dynamically rendered system
// prompt is never stored here; the agent prepends it fresh each step.
type History struct {
	messages []*Message
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{messages: make([]*Message, 0, 16)}
}

// Append adds a message to the end of the history
func (h *History) Append(m *Message) {
	h.messages = append(h.messages, m)
}

// Len returns the number of messages recorded
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns the recorded messages in insertion order. The returned
// slice is a copy; the messages themselves are shared and must not be
// mutated.
func (h *History) Messages() []*Message {
	out := make([]*Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns the most recent message, or nil if the history is empty
func (h *History) Last() *Message {
	if len(h.messages) == 0 {
		return nil
	}
	return h.messages[len(h.messages)-1]
}

package state

import "strings"

// DefaultHistorySize is the number of outcomes kept when none is configured.
const DefaultHistorySize = 20

// History is a fixed-capacity FIFO of probe outcomes. It is not safe for
// concurrent use; Store serialises access.
type History struct {
	items    []Outcome
	capacity int
}

// NewHistory returns an empty history. Capacities below one are raised to one.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{items: make([]Outcome, 0, capacity), capacity: capacity}
}

// Record appends o, evicting the oldest entries once capacity is exceeded.
func (h *History) Record(o Outcome) {
	if len(h.items) < h.capacity {
		h.items = append(h.items, o)
		return
	}
	copy(h.items, h.items[1:])
	h.items[len(h.items)-1] = o
}

// Reset drops every entry.
func (h *History) Reset() {
	h.items = h.items[:0]
}

// Snapshot returns a copy of the entries, oldest first.
func (h *History) Snapshot() []Outcome {
	return append([]Outcome(nil), h.items...)
}

// Len returns the number of recorded outcomes.
func (h *History) Len() int {
	return len(h.items)
}

// Cap returns the configured capacity.
func (h *History) Cap() int {
	return h.capacity
}

// FormatHistory renders outcomes one label per line, oldest first, for
// pasting into a support ticket or chat.
func FormatHistory(history []Outcome) string {
	var b strings.Builder
	for _, o := range history {
		b.WriteString(o.Label())
		b.WriteByte('\n')
	}
	return b.String()
}

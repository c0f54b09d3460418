package daemon

import (
	"sync"
	"time"

	"github.com/mcrlens/lensctl/pkg/status"
	"github.com/mcrlens/lensctl/pkg/types"
)

// History records the last N status transitions of the session.
type History struct {
	MaxRecordCount int
	records        []types.Transition
	mu             *sync.Mutex
}

// NewHistory returns a History keeping at most maxRecordCount transitions.
func NewHistory(maxRecordCount int) *History {
	return &History{
		MaxRecordCount: maxRecordCount,
		records:        make([]types.Transition, 0),
		mu:             &sync.Mutex{},
	}
}

// AddNow records a transition at the current time.
func (h *History) AddNow(from, to status.Status) {
	h.Add(types.Transition{From: from, To: to, At: time.Now()})
}

// Add records a transition, dropping the oldest when full.
func (h *History) Add(t types.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Strip monotonic clock reading.
	t.At = t.At.Round(0)

	if len(h.records) >= h.MaxRecordCount {
		h.records = h.records[1:]
	}
	h.records = append(h.records, t)
}

// Records returns a copy of all records, oldest first.
func (h *History) Records() []types.Transition {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]types.Transition(nil), h.records...)
}

// Since returns the records newer than last, oldest first.
func (h *History) Since(last time.Duration) []types.Transition {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := len(h.records)
	for i > 0 && time.Since(h.records[i-1].At) <= last {
		i--
	}
	return append([]types.Transition(nil), h.records[i:]...)
}

// Clear drops all records.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = make([]types.Transition, 0)
}

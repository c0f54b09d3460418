package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 32

// EventHub fans events out to SSE subscribers. Publish never blocks; a slow
// subscriber misses events instead.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan Event]filter
	closed bool
}

// filter is the set of event names a subscriber wants; empty means all.
type filter map[string]struct{}

func (f filter) match(name string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[name]
	return ok
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]filter)} }

// Subscribe returns a channel receiving the named events, or every event when
// no names are given. The channel is closed by Unsubscribe or Close.
func (h *EventHub) Subscribe(names ...string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	f := make(filter, len(names))
	for _, n := range names {
		f[n] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = f
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to marshal event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, f := range h.subs {
		if !f.match(name) {
			continue
		}
		select {
		case ch <- msg:
		default:
			logrus.WithField("event", name).Debug("dropping event for slow subscriber")
		}
	}
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

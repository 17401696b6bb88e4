// Package events provides the in-process stream of gateway activity:
// deliveries, rejections, and lifecycle changes. The API server and the
// watch TUI consume it; the gateway publishes to it.
package events

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one entry in the gateway activity stream. Data holds a
// single-line JSON document describing the event.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Matches reports whether the event type falls under any of the given
// prefixes. An empty prefix list matches everything; a prefix ending in
// "." matches the whole family (e.g. "delivery." matches
// "delivery.completed").
func (e Event) Matches(prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if e.Type == p || (strings.HasSuffix(p, ".") && strings.HasPrefix(e.Type, p)) {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch       chan Event
	prefixes []string
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]*subscriber
	nextSubID int
}

// NewHub creates a hub whose ring buffer retains the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]*subscriber),
	}
}

// Publish records an event and fans it out to matching subscribers. The
// data value is marshalled once; marshalling failures degrade to an empty
// JSON object rather than dropping the event.
func (h *Hub) Publish(eventType string, data any) {
	id := h.nextID.Add(1)

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, sub := range h.subs {
		if !ev.Matches(sub.prefixes) {
			continue
		}
		// Don't let slow clients block producers.
		select {
		case sub.ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a live feed of events whose types match the given
// prefixes (all events when none are given). The returned cancel func must
// be called to release the subscription.
func (h *Hub) Subscribe(prefixes ...string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	sub := &subscriber{
		ch:       make(chan Event, 128),
		prefixes: prefixes,
	}
	h.subs[id] = sub

	cancel := func() {
		h.mu.Lock()
		if s, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
		h.mu.Unlock()
	}

	return sub.ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first,
// filtered by the given type prefixes. If lastID is 0, the full matching
// ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64, prefixes ...string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID != 0 && ev.ID <= lastID {
			continue
		}
		if ev.Matches(prefixes) {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

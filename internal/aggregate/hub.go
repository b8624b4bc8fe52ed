package aggregate

import (
	"context"
	"sync"
	"time"

	"attentionguard/internal/records"
)

// EventType names a Hub event.
type EventType string

const (
	EventStatsChanged     EventType = "stats_changed"
	EventSurfaceChanged   EventType = "surface_changed"
	EventSurfaceClosed    EventType = "surface_closed"
	EventIndicator        EventType = "indicator"
	EventReset            EventType = "reset"
	EventPersistence      EventType = "persistence_changed"
	EventRefreshRequested EventType = "refresh_requested"
)

// DefaultHubCapacity bounds the Hub when no capacity is given.
const DefaultHubCapacity = 512

// Event is one published change.
type Event struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	Source    string          `json:"source,omitempty"`
	SurfaceID string          `json:"surfaceId,omitempty"`
	Address   string          `json:"address,omitempty"`
	Stats     *records.Record `json:"stats,omitempty"`
	Indicator *Indicator      `json:"indicator,omitempty"`
	Durable   *bool           `json:"durable,omitempty"`
}

// Hub stores recent events and wakes waiters when new events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewHub constructs a bounded in-memory event buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultHubCapacity
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends evt, assigning its sequence number. It never blocks on
// readers.
func (h *Hub) Publish(evt Event) uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	return evt.Sequence
}

// Fetch returns up to limit events with sequence greater than since, and the
// cursor to pass as since on the next call. When wait is true, Fetch blocks
// until at least one event is available or the context ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	stopWake := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer stopWake()

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
	}
}

// Latest reports the sequence of the most recent event.
func (h *Hub) Latest() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

// FirstSequence reports the smallest sequence number still buffered.
func (h *Hub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return h.nextSeq
	}
	return h.buffer[0].Sequence
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	start := len(h.buffer)
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	if start == len(h.buffer) {
		return nil, h.nextSeq
	}
	end := min(start+limit, len(h.buffer))
	out := make([]Event, end-start)
	copy(out, h.buffer[start:end])
	return out, out[len(out)-1].Sequence
}

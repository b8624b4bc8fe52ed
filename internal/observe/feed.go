package observe

import (
	"context"
	"sync"

	"attentionguard/internal/rescan"
)

// Feed is an in-memory surface: an append-only list of candidates that
// announces each append as a structural change. It serves as both the
// Adapter and the change source of a Loop.
type Feed struct {
	mu     sync.Mutex
	items  []Candidate
	events *rescan.Broadcaster
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{events: rescan.NewBroadcaster()}
}

// Append adds candidates and notifies subscribers with the added nodes.
func (f *Feed) Append(items ...Candidate) {
	if len(items) == 0 {
		return
	}
	f.mu.Lock()
	f.items = append(f.items, items...)
	f.mu.Unlock()

	nodes := make([]any, len(items))
	for i, c := range items {
		nodes[i] = c
	}
	f.events.Publish(nodes...)
}

// Len reports the number of candidates on the surface.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Clear removes every candidate without notifying subscribers.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

// Extract returns every candidate currently on the surface.
func (f *Feed) Extract(context.Context) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Candidate, len(f.items))
	copy(out, f.items)
	return out, nil
}

// Subscribe implements rescan.ChangeSource.
func (f *Feed) Subscribe(fn func(added []any)) func() {
	return f.events.Subscribe(fn)
}

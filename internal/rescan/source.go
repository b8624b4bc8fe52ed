package rescan

import "sync"

// ChangeSource delivers structural-change notifications. Each call to the
// callback carries only the nodes added by that change. The returned
// function cancels the subscription.
type ChangeSource interface {
	Subscribe(fn func(added []any)) (unsubscribe func())
}

// Predicate reports whether an added node looks like new content worth a
// scan. It must be cheap; it runs on every notification.
type Predicate func(node any) bool

// Broadcaster is an in-process ChangeSource that fans published nodes out
// to every subscriber.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func([]any)
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func([]any))}
}

func (b *Broadcaster) Subscribe(fn func(added []any)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish notifies every subscriber that nodes were added.
func (b *Broadcaster) Publish(nodes ...any) {
	b.mu.Lock()
	subs := make([]func([]any), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(nodes)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Package events provides a small in-process pub-sub bus that core
// components use to announce state changes to whatever front end is attached.
package events

import "sync"

// Kind identifies the category of an event.
type Kind string

const (
	// KindLibraryChanged fires after any playlist collection mutation.
	KindLibraryChanged Kind = "library.changed"

	// KindImportProgress fires on every import progress publication.
	KindImportProgress Kind = "import.progress"

	// KindImportCompleted fires once after an import finishes.
	KindImportCompleted Kind = "import.completed"

	// KindPlaybackChanged fires when player state or the current track changes.
	KindPlaybackChanged Kind = "playback.changed"
)

// Event carries a kind plus an event-specific payload.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Bus dispatches events to subscribers. Subscribers are invoked synchronously
// in the publishing goroutine; handlers must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]func(Event)),
	}
}

// Subscribe registers a handler for all events and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to all current subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}

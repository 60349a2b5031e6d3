package events

import "testing"

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()

	var first, second int
	b.Subscribe(func(e Event) { first++ })
	b.Subscribe(func(e Event) { second++ })

	b.Publish(Event{Kind: KindLibraryChanged})
	b.Publish(Event{Kind: KindPlaybackChanged})

	if first != 2 || second != 2 {
		t.Errorf("expected both subscribers to see 2 events, got %d and %d", first, second)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()

	var calls int
	cancel := b.Subscribe(func(e Event) { calls++ })

	b.Publish(Event{Kind: KindLibraryChanged})
	cancel()
	b.Publish(Event{Kind: KindLibraryChanged})

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestBusPublishWithNoSubscribers(t *testing.T) {
	b := NewBus()
	// Must not panic.
	b.Publish(Event{Kind: KindImportProgress})
}

func TestBusPayloadPassedThrough(t *testing.T) {
	b := NewBus()

	var got interface{}
	b.Subscribe(func(e Event) { got = e.Payload })

	b.Publish(Event{Kind: KindImportCompleted, Payload: 42})

	if got != 42 {
		t.Errorf("expected payload 42, got %v", got)
	}
}

package webhook

import "testing"

func TestEnqueueDrain(t *testing.T) {
	q := NewQueue(10)
	q.Enqueue(Event{Type: EventAdd, Hash: "h1"})
	q.Enqueue(Event{Type: EventComplete, Hash: "h2"})

	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
	events := q.Drain()
	if len(events) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(events))
	}
	if q.Len() != 0 {
		t.Error("expected queue empty after drain")
	}
}

func TestDrainEmptyReturnsNil(t *testing.T) {
	q := NewQueue(10)
	if events := q.Drain(); events != nil {
		t.Errorf("expected nil for empty drain, got %v", events)
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(Event{Hash: "h1"})
	q.Enqueue(Event{Hash: "h2"})
	q.Enqueue(Event{Hash: "h3"})

	events := q.Drain()
	if len(events) != 2 {
		t.Fatalf("expected capacity-bounded len 2, got %d", len(events))
	}
	if events[0].Hash != "h2" || events[1].Hash != "h3" {
		t.Errorf("expected oldest (h1) dropped, got %+v", events)
	}
}

func TestNewQueueDefaultsCapacityWhenNonPositive(t *testing.T) {
	q := NewQueue(0)
	if q.capacity != 1000 {
		t.Errorf("expected default capacity 1000, got %d", q.capacity)
	}
}

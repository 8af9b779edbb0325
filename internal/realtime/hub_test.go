package realtime

import (
	"errors"
	"sync"
	"testing"

	"example.com/threadfeed/internal/models"
)

type fakeConn struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
	closed bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	if ev, ok := v.(models.Event); ok {
		f.events = append(f.events, ev)
	}
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("not implemented")
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a, b := &fakeConn{}, &fakeConn{}
	h.Register(a)
	h.Register(b)

	h.Broadcast(models.Event{ID: "e1", Type: models.EventThreadCreated})

	for _, c := range []*fakeConn{a, b} {
		if len(c.events) != 1 || c.events[0].ID != "e1" {
			t.Fatalf("subscriber missed event: %+v", c.events)
		}
	}
}

func TestBroadcastDropsFailedSubscriber(t *testing.T) {
	h := NewHub()
	good, bad := &fakeConn{}, &fakeConn{fail: true}
	h.Register(good)
	h.Register(bad)

	h.Broadcast(models.Event{ID: "e1", Type: models.EventReplyCreated})

	if h.Count() != 1 {
		t.Fatalf("expected failed subscriber dropped, count=%d", h.Count())
	}
	if !bad.closed {
		t.Fatal("expected dropped subscriber connection closed")
	}

	h.Broadcast(models.Event{ID: "e2", Type: models.EventReplyCreated})
	if len(good.events) != 2 {
		t.Fatalf("expected 2 events for healthy subscriber, got %d", len(good.events))
	}
}

func TestUnregisterAndCloseAll(t *testing.T) {
	h := NewHub()
	a, b := &fakeConn{}, &fakeConn{}
	id := h.Register(a)
	h.Register(b)

	h.Unregister(id)
	if h.Count() != 1 || !a.closed {
		t.Fatalf("unregister did not drop subscriber")
	}

	h.CloseAll()
	if h.Count() != 0 || !b.closed {
		t.Fatalf("CloseAll left subscribers behind")
	}
}

package download

import (
	"sync"
	"testing"
	"time"
)

func TestEventLoop_RunsInPostedOrder(t *testing.T) {
	l := newEventLoop()
	l.start()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		i := i
		l.post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d ran out of order (got %d)", i, v)
		}
	}
}

func TestEventLoop_QuitDrainsQueuedEvents(t *testing.T) {
	l := newEventLoop()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		l.post(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}

	l.quit()
	if l.post(func() {}) {
		t.Error("post after quit must be rejected")
	}

	l.start()
	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit after quit")
	}

	mu.Lock()
	defer mu.Unlock()
	if ran != 10 {
		t.Errorf("ran = %d queued events, want all 10", ran)
	}
}

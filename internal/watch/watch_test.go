package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLister struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeLister) set(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = names
	f.err = nil
}

func (f *fakeLister) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLister) ProcessNames(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.names...), nil
}

func TestWatcherCheckEmitsEdges(t *testing.T) {
	lister := &fakeLister{}
	var events []Event
	w := New("Zoom", time.Second, lister, func(e Event) { events = append(events, e) })

	steps := []struct {
		names      []string
		wantEvents int
		running    bool
	}{
		{[]string{"bash", "code"}, 0, false},
		{[]string{"bash", "zoom.us"}, 1, true},
		{[]string{"ZoomOpener", "zoom.us"}, 1, true},
		{[]string{"bash"}, 2, false},
		{[]string{"bash"}, 2, false},
		{[]string{"Zoom.exe"}, 3, true},
	}

	for i, step := range steps {
		lister.set(step.names...)
		running, err := w.Check(context.Background())
		if err != nil {
			t.Fatalf("step %d: Check: %v", i, err)
		}
		if running != step.running || w.Running() != step.running {
			t.Errorf("step %d: expected running=%v, got %v", i, step.running, running)
		}
		if len(events) != step.wantEvents {
			t.Fatalf("step %d: expected %d events, got %d", i, step.wantEvents, len(events))
		}
	}

	if !events[0].Running || events[1].Running || !events[2].Running {
		t.Errorf("unexpected event sequence: %+v", events)
	}
	if events[0].Process != "zoom" {
		t.Errorf("expected lowercased process name, got %q", events[0].Process)
	}
}

func TestWatcherInitiallyRunning(t *testing.T) {
	lister := &fakeLister{}
	lister.set("zoom")
	var events []Event
	w := New("", 0, lister, func(e Event) { events = append(events, e) })

	if _, err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(events) != 1 || !events[0].Running {
		t.Errorf("expected a running event on first check, got %+v", events)
	}
}

func TestWatcherCheckErrorKeepsState(t *testing.T) {
	lister := &fakeLister{}
	lister.set("zoom")
	w := New("zoom", time.Second, lister, nil)

	if _, err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	lister.fail(errors.New("permission denied"))

	running, err := w.Check(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !running || !w.Running() {
		t.Error("expected the last known state to be kept")
	}
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	lister := &fakeLister{}
	lister.set("zoom")

	events := make(chan Event, 4)
	w := New("zoom", 10*time.Millisecond, lister, func(e Event) { events <- e })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case e := <-events:
		if !e.Running {
			t.Errorf("expected running event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	lister.set("bash")
	select {
	case e := <-events:
		if e.Running {
			t.Errorf("expected stopped event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no stop event received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

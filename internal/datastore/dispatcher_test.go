package datastore

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"docstore-go/internal/ds"
)

type collected struct {
	mu  sync.Mutex
	ids []string
}

func (c *collected) listener(batch *ds.SnapshotBatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, batch.ID)
	return nil
}

func (c *collected) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func newTestDispatcher(t *testing.T) (*dispatcher, *[]error) {
	t.Helper()
	var mu sync.Mutex
	var errs []error
	d := newDispatcher(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}, ds.NewNopLogger())
	d.start()
	t.Cleanup(d.stop)
	return d, &errs
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var a, b collected
	d.subscribe(a.listener, nil)
	d.subscribe(b.listener, nil)
	for _, id := range []string{"1", "2", "3"} {
		d.publish(&ds.SnapshotBatch{ID: id})
	}
	d.stop()

	for _, c := range []*collected{&a, &b} {
		if got := strings.Join(c.get(), ","); got != "1,2,3" {
			t.Errorf("delivered %s, want 1,2,3", got)
		}
	}
}

func TestDispatcher_RegistrationWaitsForReady(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var c collected
	ready := make(chan struct{})
	d.subscribe(c.listener, ready)
	d.publish(&ds.SnapshotBatch{ID: "after-cut"})

	time.Sleep(20 * time.Millisecond)
	if got := c.get(); len(got) != 0 {
		t.Fatalf("delivered %v before ready", got)
	}

	close(ready)
	d.stop()
	if got := strings.Join(c.get(), ","); got != "after-cut" {
		t.Errorf("delivered %s, want after-cut", got)
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	t.Run("before activation", func(t *testing.T) {
		d, _ := newTestDispatcher(t)

		var c collected
		ready := make(chan struct{})
		_, sub, err := d.subscribe(c.listener, ready)
		if err != nil {
			t.Fatalf("subscribe() error = %v", err)
		}
		sub.Unsubscribe()
		close(ready)
		d.publish(&ds.SnapshotBatch{ID: "1"})
		d.stop()

		if got := c.get(); len(got) != 0 {
			t.Errorf("delivered %v to cancelled subscriber", got)
		}
	})

	t.Run("from inside the listener", func(t *testing.T) {
		d, _ := newTestDispatcher(t)

		var calls int
		var sub *ds.Subscription
		_, sub, _ = d.subscribe(func(*ds.SnapshotBatch) error {
			calls++
			sub.Unsubscribe()
			return nil
		}, nil)
		d.publish(&ds.SnapshotBatch{ID: "1"})
		d.publish(&ds.SnapshotBatch{ID: "2"})
		d.stop()

		if calls != 1 {
			t.Errorf("listener called %d times, want 1", calls)
		}
	})
}

func TestDispatcher_ListenerFailures(t *testing.T) {
	d, errs := newTestDispatcher(t)

	var c collected
	d.subscribe(func(*ds.SnapshotBatch) error { return errors.New("rejected") }, nil)
	d.subscribe(func(*ds.SnapshotBatch) error { panic("boom") }, nil)
	d.subscribe(c.listener, nil)
	d.publish(&ds.SnapshotBatch{ID: "1"})
	d.publish(&ds.SnapshotBatch{ID: "2"})
	d.stop()

	if got := strings.Join(c.get(), ","); got != "1,2" {
		t.Errorf("healthy listener got %s, want 1,2", got)
	}
	if len(*errs) != 4 {
		t.Fatalf("reported %d errors, want 4: %v", len(*errs), *errs)
	}
	if !strings.Contains((*errs)[1].Error(), "panicked") {
		t.Errorf("panic reported as %v", (*errs)[1])
	}
}

func TestDispatcher_Report(t *testing.T) {
	d, errs := newTestDispatcher(t)

	boom := errors.New("mirror unavailable")
	d.report(boom)
	d.stop()
	if len(*errs) != 1 || !errors.Is((*errs)[0], boom) {
		t.Fatalf("reported %v, want [%v]", *errs, boom)
	}

	// After stop the error is handed over directly.
	late := errors.New("late")
	d.report(late)
	if len(*errs) != 2 || !errors.Is((*errs)[1], late) {
		t.Errorf("reported %v after stop", *errs)
	}
}

func TestDispatcher_Stop(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.stop()
	d.stop()

	if _, _, err := d.subscribe(func(*ds.SnapshotBatch) error { return nil }, nil); !errors.Is(err, ds.ErrNotRunning) {
		t.Errorf("subscribe() after stop error = %v", err)
	}
	// Publishing after stop is dropped, not a panic.
	d.publish(&ds.SnapshotBatch{ID: "late"})
}

func TestDeliver(t *testing.T) {
	batch := &ds.SnapshotBatch{ID: "b1"}

	if err := deliver(func(*ds.SnapshotBatch) error { return nil }, batch); err != nil {
		t.Errorf("deliver() error = %v", err)
	}
	sentinel := errors.New("nope")
	if err := deliver(func(*ds.SnapshotBatch) error { return sentinel }, batch); !errors.Is(err, sentinel) {
		t.Errorf("deliver() error = %v, want wrapped sentinel", err)
	}
	if err := deliver(func(*ds.SnapshotBatch) error { panic("x") }, batch); err == nil {
		t.Error("deliver() swallowed a panic")
	}
}

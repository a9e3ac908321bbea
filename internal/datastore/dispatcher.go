package datastore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"docstore-go/internal/ds"
)

// subscriber is one registered listener.
type subscriber struct {
	listener  ds.DocMetaSnapshotListener
	cancelled atomic.Bool
}

// job is one unit of work for the delivery goroutine. Exactly one of
// batch, register, unregister or err is set.
type job struct {
	batch      *ds.SnapshotBatch
	register   *subscriber
	ready      <-chan struct{}
	unregister *subscriber
	err        error
}

// dispatcher delivers change batches to listeners from a single goroutine.
//
// Enqueueing never blocks, so writers and listeners may call back into the
// datastore. Registrations travel through the same FIFO as batches, so a
// listener is only added between two batches and never sees part of one.
// The listener list is owned by the delivery goroutine.
type dispatcher struct {
	onError func(error)
	logger  ds.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	stopped bool
	done    chan struct{}

	subs []*subscriber
}

func newDispatcher(onError func(error), logger ds.Logger) *dispatcher {
	d := &dispatcher{
		onError: onError,
		logger:  logger,
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) start() {
	go d.run()
}

// stop delivers everything already queued, then exits. It must not be
// called from a listener.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) enqueue(j job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.queue = append(d.queue, j)
	d.cond.Signal()
	return true
}

// publish queues a batch for every listener registered ahead of it.
func (d *dispatcher) publish(batch *ds.SnapshotBatch) {
	if !d.enqueue(job{batch: batch}) {
		d.logger.Warn("dropping batch published after stop", "batch", batch.ID)
	}
}

// report queues err for the error listener. Errors raised while the commit
// lock is held go through here so the listener may call back into the
// datastore. After stop, err is reported on the caller's goroutine.
func (d *dispatcher) report(err error) {
	if !d.enqueue(job{err: err}) {
		d.onError(err)
	}
}

// subscribe queues a registration. If ready is non-nil the delivery
// goroutine waits for it to close before activating the listener, which
// lets the caller deliver a catch-up batch first.
func (d *dispatcher) subscribe(listener ds.DocMetaSnapshotListener, ready <-chan struct{}) (*subscriber, *ds.Subscription, error) {
	sub := &subscriber{listener: listener}
	if !d.enqueue(job{register: sub, ready: ready}) {
		return nil, nil, ds.ErrNotRunning
	}
	return sub, ds.NewSubscription(func() {
		sub.cancelled.Store(true)
		d.enqueue(job{unregister: sub})
	}), nil
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		j := d.queue[0]
		d.queue[0] = job{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		switch {
		case j.register != nil:
			if j.ready != nil {
				<-j.ready
			}
			if !j.register.cancelled.Load() {
				d.subs = append(d.subs, j.register)
			}
		case j.unregister != nil:
			for i, s := range d.subs {
				if s == j.unregister {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					break
				}
			}
		case j.err != nil:
			d.onError(j.err)
		case j.batch != nil:
			for _, s := range d.subs {
				if s.cancelled.Load() {
					continue
				}
				if err := deliver(s.listener, j.batch); err != nil {
					d.logger.Warn("listener failed", "batch", j.batch.ID, "error", err)
					d.onError(err)
				}
			}
		}
	}
}

// deliver calls listener, turning a panic into an error.
func deliver(listener ds.DocMetaSnapshotListener, batch *ds.SnapshotBatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked on batch %s: %v", batch.ID, r)
		}
	}()
	if err := listener(batch); err != nil {
		return fmt.Errorf("listener rejected batch %s: %w", batch.ID, err)
	}
	return nil
}

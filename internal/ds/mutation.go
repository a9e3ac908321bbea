package ds

import (
	"context"
	"sync"
)

// Future is a single-assignment value that any number of goroutines may
// wait on. It is resolved exactly once; resolving it again panics.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	resolved bool
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve sets the value and wakes all waiters.
func (f *Future[T]) resolve(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		panic("ds: future resolved twice")
	}
	f.value = v
	f.resolved = true
	close(f.done)
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value returns the resolved value. ok is false while the future is pending.
func (f *Future[T]) Value() (v T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.resolved
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _ := f.Value()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Mutation tracks the completion of a single write in two phases.
// Written resolves once the record is visible to subsequent reads; Committed
// resolves once the backend considers it durable. Written never resolves
// after Committed.
//
// The caller creates the Mutation and passes it to Datastore.Write; only the
// datastore resolves it. The zero value is ready to use.
type Mutation struct {
	once      sync.Once
	written   *Future[bool]
	committed *Future[bool]
	mu        sync.Mutex
}

// NewMutation returns a Mutation with both phases pending.
func NewMutation() *Mutation {
	return &Mutation{}
}

func (m *Mutation) phases() {
	m.once.Do(func() {
		m.written = NewFuture[bool]()
		m.committed = NewFuture[bool]()
	})
}

// Written is resolved when the write became visible (true) or failed (false).
func (m *Mutation) Written() *Future[bool] {
	m.phases()
	return m.written
}

// Committed is resolved when the write became durable (true) or failed (false).
func (m *Mutation) Committed() *Future[bool] {
	m.phases()
	return m.committed
}

// ResolveWritten resolves the written phase. It panics if written or
// committed was already resolved.
func (m *Mutation) ResolveWritten(ok bool) {
	m.phases()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.committed.Value(); done {
		panic("ds: written resolved after committed")
	}
	m.written.resolve(ok)
}

// ResolveCommitted resolves the committed phase. If written is still pending
// it is resolved first with the same value. Panics on a second resolution.
func (m *Mutation) ResolveCommitted(ok bool) {
	m.phases()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.written.Value(); !done {
		m.written.resolve(ok)
	}
	m.committed.resolve(ok)
}

// Pending reports whether the write is still in flight.
func (m *Mutation) Pending() bool {
	m.phases()
	_, done := m.committed.Value()
	return !done
}

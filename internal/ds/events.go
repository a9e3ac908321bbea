package ds

import "sync"

// EventKind classifies a change to a document-metadata record.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// DocMetaEvent is one record in a SnapshotBatch. DocMeta is empty for
// deleted records.
type DocMetaEvent struct {
	Fingerprint string    `json:"fingerprint"`
	DocMeta     string    `json:"docMeta,omitempty"`
	DocInfo     *DocInfo  `json:"docInfo,omitempty"`
	Kind        EventKind `json:"kind"`
}

// SnapshotBatch is a bundle of committed events delivered to a listener in
// one call. Seq is the commit sequence the batch reflects. Initial is set on
// the catch-up batch produced by Snapshot. Listeners must not modify it.
type SnapshotBatch struct {
	ID      string         `json:"id"`
	Seq     uint64         `json:"seq"`
	Initial bool           `json:"initial"`
	Events  []DocMetaEvent `json:"events"`
}

// DocMetaSnapshotListener receives batches. A returned error is reported to
// the datastore's ErrorListener and does not stop later deliveries.
type DocMetaSnapshotListener func(batch *SnapshotBatch) error

// ErrorListener receives failures that happen after Init.
type ErrorListener func(err error)

// SnapshotResult describes a delivered snapshot.
type SnapshotResult struct {
	// Count is the number of records in the initial batch.
	Count int
	// Seq is the commit sequence at which the snapshot was cut.
	Seq uint64
	// Subscription keeps the listener registered for change batches.
	Subscription *Subscription
}

// Subscription is a listener registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel, which runs at most once.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe stops delivery to the listener. It is safe to call more than
// once and from inside the listener.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

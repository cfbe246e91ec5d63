// Package ids defines the harness's identifier types: opaque
// publisher/subscriber UUIDs and the per-publisher sequence counter.
package ids

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// PubId uniquely identifies a publisher for the lifetime of a run.
type PubId string

// SubId uniquely identifies a subscriber for the lifetime of a run.
type SubId string

// SequenceId is a monotonically increasing per-publisher counter.
// Zero is reserved to distinguish default-constructed (never-sent)
// samples from real ones; the first published sample carries 1.
type SequenceId uint64

// NewPubId returns a fresh random publisher identifier.
func NewPubId() PubId { return PubId(uuid.NewString()) }

// NewSubId returns a fresh random subscriber identifier.
func NewSubId() SubId { return SubId(uuid.NewString()) }

// SequenceCounter hands out strictly increasing SequenceIds starting
// at 1. It is owned by exactly one publisher's DataRunner goroutine;
// no synchronization is required, but atomic storage keeps it safe to
// read from a metrics-reporting goroutine too.
type SequenceCounter struct {
	next uint64
}

// NewSequenceCounter returns a counter whose first Next() is 1.
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{next: 0}
}

// Next returns the next SequenceId in order, starting at 1.
func (c *SequenceCounter) Next() SequenceId {
	return SequenceId(atomic.AddUint64(&c.next, 1))
}

// Last returns the most recently issued SequenceId, or 0 if Next has
// never been called.
func (c *SequenceCounter) Last() SequenceId {
	return SequenceId(atomic.LoadUint64(&c.next))
}

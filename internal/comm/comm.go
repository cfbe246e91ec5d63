// Package comm defines the Communicator capability the core consumes
// from a driver thread, and the optional Loaner capability some
// transports additionally expose.
//
// Concrete transports (NATS, Kafka, the in-process test double) live
// under internal/transport; this package is the trait only, per
// spec.md §1's "the core consumes an abstract Communicator capability".
package comm

import (
	"context"
	"time"

	"github.com/adred-codev/pubsubbench/internal/ids"
)

// Sample is one received message handed back by UpdateSubscription.
type Sample struct {
	PubId      ids.PubId
	SequenceId ids.SequenceId
	Payload    []byte
	Timestamp  int64 // transport-observed receive time, ns
}

// Communicator is implemented once per transport plugin and owned
// exclusively by one DataRunner for the runner's entire lifetime.
type Communicator interface {
	// Publish sends one message, stamped with seq, and returns only
	// after the transport has accepted it for transmission (or
	// failed). A transport failure here is fatal for the owning
	// runner (spec.md §4.3).
	Publish(ctx context.Context, seq ids.SequenceId) error

	// UpdateSubscription blocks or polls with a bounded wait (at most
	// Timeout()) and returns zero or more samples received since the
	// last call. In relay mode the Communicator republishes each
	// sample itself and UpdateSubscription returns the republished
	// sample's new identity (relay pub id, relay sequence) in its
	// place; the caller records it as a MessageSent for the relay hop,
	// never as a MessageReceived (spec.md §4.3).
	UpdateSubscription(ctx context.Context) ([]Sample, error)

	// Relay reports whether this Communicator is operating in
	// roundtrip/relay mode, where the subscriber side republishes
	// instead of recording receipt.
	Relay() bool

	// Close releases transport handles. Idempotent.
	Close() error
}

// Loaner is an optional capability: transports that support
// zero-copy/loaned samples implement it so DataRunner can skip a
// stack-allocated copy on the hot path. Transports without it are used
// through Communicator alone, copying as needed (spec.md §9).
type Loaner interface {
	// LoanPublish behaves like Publish but hands the caller a
	// preallocated buffer to fill before the transport sends it,
	// avoiding an extra copy.
	LoanPublish(ctx context.Context, seq ids.SequenceId, fill func([]byte)) error
}

// DefaultTimeout is the bounded wait spec.md §4.3 mandates for
// UpdateSubscription: at most 15s.
const DefaultTimeout = 15 * time.Second

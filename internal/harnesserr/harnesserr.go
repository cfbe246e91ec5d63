// Package harnesserr defines the sentinel errors the rest of the
// harness wraps with fmt.Errorf("...: %w", err) so callers can test
// error class with errors.Is regardless of the wrapping message.
package harnesserr

import "errors"

var (
	// ErrFatalInvariant means a testable property (spec.md §9) was
	// violated at runtime — sequence went backward, a transaction
	// bracket was left open, etc. Always fatal to the run.
	ErrFatalInvariant = errors.New("harnesserr: fatal invariant violated")

	// ErrTransportFailure means a Communicator reported a failure that
	// is not a bounded-wait timeout. Fatal for the owning runner.
	ErrTransportFailure = errors.New("harnesserr: transport failure")

	// ErrTimeout means a bounded wait (UpdateSubscription, DB open,
	// connect) exceeded its deadline. Callers decide fatality per call
	// site; transports themselves treat it as non-fatal (spec.md §7).
	ErrTimeout = errors.New("harnesserr: timeout")

	// ErrUnsupportedMessage means a msg_name read from config or a
	// replayed event has no constructor registered (internal/registry).
	ErrUnsupportedMessage = errors.New("harnesserr: unsupported message type")

	// ErrConfigError means configuration failed to load or validate.
	ErrConfigError = errors.New("harnesserr: configuration error")
)

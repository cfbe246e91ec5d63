// Package sink defines the EventSink and EventSource contracts that
// the event pipeline fans out to and that post-hoc replay reads from.
package sink

import "github.com/adred-codev/pubsubbench/internal/event"

// EventSink receives every event the EventLogger drains, bracketed by
// one BeginTransaction/EndTransaction pair per drain pass. A sink is
// mutated only by the logger goroutine; implementations need not be
// safe for concurrent use from elsewhere.
type EventSink interface {
	BeginTransaction() error
	EndTransaction() error

	RecordRegisterPub(event.Event) error
	RecordRegisterSub(event.Event) error
	RecordMessageSent(event.Event) error
	RecordMessageReceived(event.Event) error
	RecordSystemMeasured(event.Event) error
}

// Dispatch routes an Event to the matching Record* method on sink.
func Dispatch(s EventSink, e event.Event) error {
	switch e.Kind {
	case event.KindRegisterPub:
		return s.RecordRegisterPub(e)
	case event.KindRegisterSub:
		return s.RecordRegisterSub(e)
	case event.KindMessageSent:
		return s.RecordMessageSent(e)
	case event.KindMessageReceived:
		return s.RecordMessageReceived(e)
	case event.KindSystemMeasured:
		return s.RecordSystemMeasured(e)
	default:
		return nil
	}
}

// EventSource serves range queries over persisted events, used by
// offline replay to re-derive AnalysisResults as a ground-truth oracle
// against the live aggregator.
type EventSource interface {
	// EventsInRange returns every event with Timestamp in [start, end)
	// for the given topic, grouped by event kind with each kind's
	// events ordered by timestamp.
	EventsInRange(topic string, start, end int64) ([]event.Event, error)
}

// Package eventlog implements the single consumer goroutine that
// drains the five event queues and fans each event out to every
// registered sink inside a begin/end transaction bracket.
//
// Grounded on the teacher's WorkerPool.worker() select loop
// (ws/worker_pool.go): one goroutine, panic-recovered task execution,
// graceful shutdown via context cancellation plus a final drain.
package eventlog

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/eventqueue"
	"github.com/adred-codev/pubsubbench/internal/harnesserr"
	"github.com/adred-codev/pubsubbench/internal/sink"
)

// Logger owns the five per-kind queues and fans drained events out to
// every registered sink. It is created before any DataRunner and
// destroyed after all of them, so no runner ever emits into a queue
// nobody is draining.
type Logger struct {
	logger zerolog.Logger
	queues [5]*eventqueue.Queue
	sinks  []sink.EventSink

	yieldEvery time.Duration

	// faults carries sink errors wrapping harnesserr.ErrFatalInvariant
	// out to whoever owns the Logger (AnalyzeRunner), so a fault
	// detected deep in a sink's Record* call can still abort the run
	// with a diagnostic per spec.md §7, instead of only being logged.
	faults chan error

	cancel context.CancelFunc
	ctx    context.Context
	done   chan struct{}
	once   sync.Once
}

// Option configures a Logger at construction time.
type Option func(*Logger)

// WithYield sets the cooperative pause between drain passes (default
// 1ms, matching the "brief sleep or cooperative yield" the spec
// allows).
func WithYield(d time.Duration) Option {
	return func(l *Logger) { l.yieldEvery = d }
}

// QueueCapacity is the default per-kind channel capacity.
const QueueCapacity = 4096

// New constructs a Logger with the given sinks, registered in the
// order they will receive events each drain pass.
func New(logger zerolog.Logger, sinks []sink.EventSink, opts ...Option) *Logger {
	l := &Logger{
		logger:     logger,
		sinks:      sinks,
		yieldEvery: time.Millisecond,
		faults:     make(chan error, 16),
		done:       make(chan struct{}),
	}
	for i := range l.queues {
		l.queues[i] = eventqueue.New(QueueCapacity)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Logger) queueFor(k event.Kind) *eventqueue.Queue { return l.queues[int(k)] }

// Faults delivers sink errors that wrap harnesserr.ErrFatalInvariant.
// Non-fatal sink errors are logged only and never appear here.
func (l *Logger) Faults() <-chan error { return l.faults }

// Emit enqueues e for eventual delivery to all sinks. Non-blocking:
// the hot path never waits on the logger goroutine.
func (l *Logger) Emit(e event.Event) {
	if !l.queueFor(e.Kind).Push(e) {
		l.logger.Warn().Str("kind", e.Kind.String()).Msg("event queue full, dropping event")
	}
}

// Start launches the consumer goroutine. The goroutine exits only
// after Stop is called and a final drain pass completes.
func (l *Logger) Start() {
	l.ctx, l.cancel = context.WithCancel(context.Background())
	go l.run()
}

func (l *Logger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.drainOnce() // final pass: guarantees no enqueued event is lost
			return
		default:
			l.drainOnce()
			time.Sleep(l.yieldEvery)
		}
	}
}

func (l *Logger) drainOnce() {
	for _, s := range l.sinks {
		l.safeSinkCall(func() error { return s.BeginTransaction() }, "begin_transaction")
	}

	for _, q := range l.queues {
		events := q.DrainAll()
		for _, e := range events {
			for _, s := range l.sinks {
				sNow := s
				eNow := e
				l.safeSinkCall(func() error { return sink.Dispatch(sNow, eNow) }, "record")
			}
		}
	}

	for _, s := range l.sinks {
		l.safeSinkCall(func() error { return s.EndTransaction() }, "end_transaction")
	}
}

func (l *Logger) safeSinkCall(fn func() error, step string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Str("step", step).
				Msg("event sink panic recovered")
		}
	}()
	if err := fn(); err != nil {
		l.logger.Error().Err(err).Str("step", step).Msg("event sink error")
		if errors.Is(err, harnesserr.ErrFatalInvariant) {
			select {
			case l.faults <- err:
			default:
				// faults is already backed up; the first fault is what
				// matters for aborting the run.
			}
		}
	}
}

// Stop signals the consumer goroutine to perform one final drain and
// exit, then blocks until it has done so.
func (l *Logger) Stop() {
	l.once.Do(func() {
		if l.cancel == nil {
			return // Start was never called
		}
		l.cancel()
		<-l.done
	})
	runtime.Gosched()
}

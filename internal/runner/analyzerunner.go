package runner

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
	"github.com/adred-codev/pubsubbench/internal/clock"
	"github.com/adred-codev/pubsubbench/internal/comm"
	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/eventlog"
	"github.com/adred-codev/pubsubbench/internal/ids"
	"github.com/adred-codev/pubsubbench/internal/sink"
	"github.com/adred-codev/pubsubbench/internal/sysmetrics"
)

// PublisherSpec describes one publisher to construct.
type PublisherSpec struct {
	PubID ids.PubId
	Comm  comm.Communicator
	Rate  float64
}

// SubscriberSpec describes one subscriber to construct.
type SubscriberSpec struct {
	SubID ids.SubId
	Comm  comm.Communicator
}

// AnalyzeRunnerConfig configures the top-level orchestrator.
type AnalyzeRunnerConfig struct {
	Logger      zerolog.Logger
	Sinks       []sink.EventSink
	Publishers  []PublisherSpec
	Subscribers []SubscriberSpec
	MaxRuntime  time.Duration // 0 = run forever
	Clock       clock.Clock   // nil defaults to clock.SystemClock{}
	Topic       string
	MsgName     string
	PayloadSize int // registered as each subscriber's RegisterSub.DataSize
}

// AnalyzeRunner is the top-level orchestrator: constructs the
// EventLogger and its sinks, spawns one DataRunner per publisher and
// subscriber, samples system metrics at 1 Hz, and tears everything
// down in construction order reversed (spec.md §4.7).
type AnalyzeRunner struct {
	logger     *eventlog.Logger
	runners    []*DataRunner
	sysMetrics *sysmetrics.Tracker
	clock      clock.Clock
	maxRuntime time.Duration
	log        zerolog.Logger

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	err error
}

// NewAnalyzeRunner constructs the EventLogger, starts it, then
// constructs every DataRunner (each of which starts its own
// goroutine), matching spec.md §4.7 steps 1-2.
func NewAnalyzeRunner(cfg AnalyzeRunnerConfig) (*AnalyzeRunner, error) {
	c := cfg.Clock
	if c == nil {
		c = clock.SystemClock{}
	}

	logger := eventlog.New(cfg.Logger, cfg.Sinks)
	logger.Start()

	sysTracker, err := sysmetrics.New()
	if err != nil {
		logger.Stop()
		return nil, err
	}

	a := &AnalyzeRunner{
		logger:     logger,
		sysMetrics: sysTracker,
		clock:      c,
		maxRuntime: cfg.MaxRuntime,
		log:        cfg.Logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, p := range cfg.Publishers {
		logger.Emit(event.NewRegisterPub(c.Timestamp(), p.PubID, cfg.MsgName, cfg.Topic))
		a.runners = append(a.runners, New(Config{
			Role:   RolePublisher,
			Comm:   p.Comm,
			Logger: logger,
			Clock:  c,
			PubID:  p.PubID,
			Rate:   p.Rate,
			Log:    cfg.Logger,
		}))
	}
	for _, s := range cfg.Subscribers {
		logger.Emit(event.NewRegisterSub(c.Timestamp(), s.SubID, cfg.MsgName, cfg.Topic, cfg.PayloadSize))
		a.runners = append(a.runners, New(Config{
			Role:   RoleSubscriber,
			Comm:   s.Comm,
			Logger: logger,
			Clock:  c,
			SubID:  s.SubID,
			Log:    cfg.Logger,
		}))
	}

	return a, nil
}

// Run blocks, sampling system metrics at 1 Hz and checking exit
// conditions in order: external stop signal, a fatal fault surfaced by
// a sink (spec.md §7 FatalInvariant — program aborts with a
// diagnostic), then max_runtime (spec.md §4.7 steps 3-4). It returns
// once any of these fires; Err reports whether the exit was fatal.
func (a *AnalyzeRunner) Run() {
	a.started.Store(true)
	defer close(a.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	start := a.clock.Now()
	for {
		select {
		case <-a.stop:
			return
		case err := <-a.logger.Faults():
			a.err = err
			a.log.Error().Err(err).Msg("analyzerunner: fatal invariant violated, aborting")
			return
		case <-ticker.C:
			cpu, rusage := a.sysMetrics.Sample()
			a.logger.Emit(event.NewSystemMeasured(a.clock.Timestamp(), cpu, rusage))

			if a.maxRuntime > 0 && a.clock.Now().Sub(start) >= a.maxRuntime {
				a.log.Info().Dur("max_runtime", a.maxRuntime).Msg("analyzerunner: max runtime reached")
				return
			}
		}
	}
}

// Err returns the fatal fault that caused Run to exit early, or nil if
// Run exited via Stop or max_runtime. Callers use this to choose the
// process exit code (spec.md §7: non-zero on fatal fault).
func (a *AnalyzeRunner) Err() error {
	return a.err
}

// Stop signals Run to exit and waits for it to return. Safe to call
// even if Run was never started (a no-op in that case) — call
// Shutdown afterward either way to tear down runners and the logger.
func (a *AnalyzeRunner) Stop() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	if !a.started.Load() {
		return
	}
	<-a.done
}

// Shutdown tears everything down in spec.md §4.7 step 5's order: drop
// DataRunners (join threads), then the EventLogger (drain + join).
// Communicators are closed by their owning runner's caller once
// Shutdown returns.
func (a *AnalyzeRunner) Shutdown() {
	for _, r := range a.runners {
		r.Stop()
	}
	a.logger.Stop()
}

// NewAggregatorSink is a convenience constructor for the live reducer sink,
// wired with the clock's current time as the experiment start.
func NewAggregatorSink(c clock.Clock, outputs []aggregator.Output) *aggregator.Aggregator {
	if c == nil {
		c = clock.SystemClock{}
	}
	return aggregator.New(c.Now(), outputs)
}

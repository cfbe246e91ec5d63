// Package runner implements the driver loop (DataRunner) and the
// top-level orchestrator (AnalyzeRunner), spec.md §4.4 and §4.7.
//
// Grounded on the teacher's goroutine-per-role lifecycle idiom
// (ws/worker_pool.go's worker loop; ws/server.go's Start/Shutdown
// construction order) generalized from "HTTP connection handling" to
// "pace publish/subscribe calls against a Communicator".
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adred-codev/pubsubbench/internal/allocguard"
	"github.com/adred-codev/pubsubbench/internal/clock"
	"github.com/adred-codev/pubsubbench/internal/comm"
	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/eventlog"
	"github.com/adred-codev/pubsubbench/internal/ids"
)

// Role is which half of a pub/sub pair a DataRunner drives.
type Role int

const (
	RolePublisher Role = iota
	RoleSubscriber
)

// DataRunner paces one Communicator's Publish or UpdateSubscription
// calls from a single goroutine and emits events for every call
// (spec.md §4.4).
type DataRunner struct {
	role    Role
	comm    comm.Communicator
	logger  *eventlog.Logger
	clock   clock.Clock
	pubID   ids.PubId
	subID   ids.SubId
	counter *ids.SequenceCounter
	limiter *rate.Limiter // nil when rate == 0 ("as fast as possible")

	guard *allocguard.Guard
	log   zerolog.Logger

	run    atomic.Bool
	wg     sync.WaitGroup
	done   chan struct{}
	cancel context.CancelFunc
}

// Config configures one DataRunner.
type Config struct {
	Role   Role
	Comm   comm.Communicator
	Logger *eventlog.Logger
	Clock  clock.Clock
	PubID  ids.PubId // RolePublisher only
	SubID  ids.SubId // RoleSubscriber only
	Rate   float64   // publications/sec; 0 = as fast as possible (RolePublisher only)
	Log    zerolog.Logger
}

// New constructs a DataRunner and starts its goroutine immediately
// (spec.md §4.4/§4.7: "each runner's constructor starts its thread").
func New(cfg Config) *DataRunner {
	r := &DataRunner{
		role:    cfg.Role,
		comm:    cfg.Comm,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
		pubID:   cfg.PubID,
		subID:   cfg.SubID,
		counter: ids.NewSequenceCounter(),
		guard:   allocguard.New(),
		log:     cfg.Log,
		done:    make(chan struct{}),
	}
	if cfg.Role == RolePublisher && cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.run.Store(true)
	r.wg.Add(1)
	go r.loop(ctx)
	return r
}

// loop is the hot path: drift-free pacing via next_tick = start +
// k*interval (spec.md §4.4), not next_tick += interval, so scheduling
// jitter in one iteration never compounds into later iterations.
// ctx is cancelled by Stop so a subscriber blocked in UpdateSubscription
// unblocks immediately instead of riding out comm.DefaultTimeout, on
// transports whose UpdateSubscription honors ctx (natscomm's does not).
func (r *DataRunner) loop(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.done)

	start := r.clock.Now()
	var interval time.Duration
	if r.limiter != nil {
		interval = time.Duration(float64(time.Second) / float64(r.limiter.Limit()))
	}

	for k := int64(0); r.run.Load(); k++ {
		if r.role == RolePublisher && r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.log.Error().Err(err).Msg("datarunner: rate limiter wait failed, stopping")
				return
			}
		}

		var err error
		switch r.role {
		case RolePublisher:
			err = r.publishOnce(ctx)
		case RoleSubscriber:
			err = r.subscribeOnce(ctx)
		}
		if err != nil {
			if ctx.Err() != nil && !r.run.Load() {
				return // unblocked by Stop, not a real transport failure
			}
			r.log.Error().Err(err).Str("role", r.roleName()).Msg("datarunner: transport error, stopping")
			return
		}

		if r.role == RolePublisher && r.limiter != nil && !r.comm.Relay() {
			nextTick := start.Add(time.Duration(k+1) * interval)
			if err := r.clock.SleepCtx(ctx, nextTick.Sub(r.clock.Now())); err != nil {
				return // unblocked by Stop mid-pacing-sleep
			}
		}

		if k == 0 {
			r.guard.Arm()
		} else if grown, armed := r.guard.Check(); armed && grown > 0 {
			r.log.Warn().Uint64("bytes", grown).Msg("datarunner: steady-state allocation detected")
		}
	}
}

func (r *DataRunner) publishOnce(ctx context.Context) error {
	seq := r.counter.Next()
	var err error
	if l, ok := r.comm.(comm.Loaner); ok {
		err = l.LoanPublish(ctx, seq, func([]byte) {})
	} else {
		err = r.comm.Publish(ctx, seq)
	}
	if err != nil {
		return err
	}
	r.logger.Emit(event.NewMessageSent(r.clock.Timestamp(), r.pubID, seq))
	return nil
}

// subscribeOnce emits events for every sample UpdateSubscription
// returned before acting on any error it also returned: a transport can
// relay-publish several records successfully before one mid-batch call
// fails (kafkacomm's EachRecord loop is the case that matters), and
// discarding those already-succeeded samples would silently corrupt the
// sent/received accounting on top of the transport error itself.
func (r *DataRunner) subscribeOnce(ctx context.Context) error {
	samples, err := r.comm.UpdateSubscription(ctx)
	if r.comm.Relay() {
		// Relay mode never emits MessageReceived for the hop this
		// runner received on (spec.md §4.3); the Communicator has
		// already republished and handed back each relayed sample's
		// new identity, so the runner emits MessageSent for that
		// republish hop through its own EventLogger. This gives the
		// aggregator a publishedTs entry for the relayed (pub,seq),
		// which is what lets a downstream receiver's latency sample
		// cover the full round trip (spec.md scenario 4).
		for _, s := range samples {
			r.logger.Emit(event.NewMessageSent(r.clock.Timestamp(), s.PubId, s.SequenceId))
		}
		return err
	}
	for _, s := range samples {
		r.logger.Emit(event.NewMessageReceived(r.clock.Timestamp(), r.subID, s.PubId, s.SequenceId))
	}
	return err
}

func (r *DataRunner) roleName() string {
	if r.role == RolePublisher {
		return "publisher"
	}
	return "subscriber"
}

// Stop sets the run flag false, cancels the loop's context so a
// subscriber blocked in UpdateSubscription unblocks immediately instead
// of riding out comm.DefaultTimeout (natscomm's UpdateSubscription
// ignores ctx and waits out its own timeout), and joins the goroutine. No
// messages in flight are discarded; the transport itself is closed by
// the caller via Communicator.Close once Stop returns.
func (r *DataRunner) Stop() {
	r.run.Store(false)
	r.cancel()
	<-r.done
}

// Package aggregator implements the live rolling-window EventSink:
// per-second latency/throughput/loss reduction, pushed to every
// registered Output.
//
// Grounded on the teacher's SystemMonitor (ticker-driven sampling
// loop, mutex-guarded state, snapshot-on-read) generalized from "CPU
// percent" to the full AnalysisResult reduction spec.md §4.6.2 defines.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/harnesserr"
	"github.com/adred-codev/pubsubbench/internal/ids"
	"github.com/adred-codev/pubsubbench/internal/sink"
	"github.com/adred-codev/pubsubbench/internal/stats"
)

// AnalysisResult is the harness's one-per-second output record
// (spec.md §6).
type AnalysisResult struct {
	ExperimentElapsed time.Duration
	WindowElapsed     time.Duration
	NumReceived       uint64
	NumSent           uint64
	NumLost           uint64
	SumDataReceived   uint64
	Latency           *stats.Tracker
	CPU               event.CPUInfo
	ResourceUsage     event.ResourceUsage
}

// Output receives one AnalysisResult per reporter tick.
type Output interface {
	Publish(AnalysisResult) error
}

type sentKey struct {
	pub ids.PubId
	seq ids.SequenceId
}

type pairKey struct {
	sub ids.SubId
	pub ids.PubId
}

// maxGapFill bounds how many sequence numbers a single
// RecordMessageReceived call will mark erasable for a detected gap.
// Held under a.mu, so an unbounded gap (a corrupted sequence id, not a
// real loss burst) would otherwise stall the whole event pipeline for
// as long as the gap is wide.
const maxGapFill = 1 << 16

// Aggregator is the EventSink described in spec.md §4.6.2. Its
// internal state is owned exclusively by the EventLogger goroutine
// that calls its Record* methods; the reporter goroutine only ever
// touches state through the mutex-guarded snapshotAndReset.
type Aggregator struct {
	mu sync.Mutex

	experimentStart time.Time
	windowStart     time.Time

	numSubs   uint64
	dataSizes map[ids.SubId]int

	numSent     uint64
	numReceived uint64
	numLost     uint64
	sumData     uint64

	publishedTs   map[sentKey]int64
	receivedCount map[sentKey]int

	latestReceived map[pairKey]ids.SequenceId
	latency        *stats.Tracker

	lastCPU    event.CPUInfo
	lastRUsage event.ResourceUsage

	outputs []Output

	ticker   *time.Ticker
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs an Aggregator. experimentStart is the instant
// ExperimentElapsed is measured from (the moment AnalyzeRunner began).
func New(experimentStart time.Time, outputs []Output) *Aggregator {
	now := time.Now()
	return &Aggregator{
		experimentStart: experimentStart,
		windowStart:     now,
		dataSizes:       make(map[ids.SubId]int),
		publishedTs:     make(map[sentKey]int64),
		receivedCount:   make(map[sentKey]int),
		latestReceived:  make(map[pairKey]ids.SequenceId),
		latency:         stats.New(),
		outputs:         outputs,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

var _ sink.EventSink = (*Aggregator)(nil)

func (a *Aggregator) BeginTransaction() error { return nil }
func (a *Aggregator) EndTransaction() error   { return nil }

func (a *Aggregator) RecordRegisterPub(event.Event) error { return nil }

func (a *Aggregator) RecordRegisterSub(e event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.numSubs++
	a.dataSizes[e.SubId] = e.DataSize
	return nil
}

func (a *Aggregator) RecordMessageSent(e event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.numSent++
	a.publishedTs[sentKey{e.PubId, e.SequenceId}] = e.Timestamp
	return nil
}

// markErasable credits sub's receipt (or loss) of (pub,seq) toward the
// num_subs-acknowledgement threshold that retires a publishedTs entry,
// per spec.md §9's fix for unbounded published_ts growth: a sequence
// this subscriber will never receive must count toward erasure just
// as a genuine receipt does, or a lost pair pins its entry forever.
func (a *Aggregator) markErasable(pub ids.PubId, seq ids.SequenceId) {
	key := sentKey{pub, seq}
	a.receivedCount[key]++
	if uint64(a.receivedCount[key]) >= a.numSubs && a.numSubs > 0 {
		delete(a.publishedTs, key)
		delete(a.receivedCount, key)
	}
}

// RecordMessageReceived implements spec.md §4.6.2's per-event update,
// including the §9-fixed erase discipline described on markErasable.
func (a *Aggregator) RecordMessageReceived(e event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.numReceived++

	key := sentKey{e.PubId, e.SequenceId}
	if sentTs, ok := a.publishedTs[key]; ok {
		a.latency.Add(float64(e.Timestamp - sentTs))
	}
	// If publishedTs has no entry yet, the Sent event for this sample
	// hasn't been delivered to the aggregator in this window: the
	// receipt is counted but not latency-sampled (spec.md §4.6.2
	// tolerance).

	a.markErasable(e.PubId, e.SequenceId)

	pk := pairKey{e.SubId, e.PubId}
	prev, seen := a.latestReceived[pk]
	if seen && e.SequenceId <= prev {
		// Out-of-order or duplicate delivery within a (pub,sub) pair
		// violates spec.md invariant 1 (monotonic sequence per pair)
		// and is one of the FatalInvariant kinds spec.md §7 lists —
		// the run aborts rather than recording a window-level anomaly.
		return fmt.Errorf("aggregator: sequence not monotonic for pub=%s sub=%s: got %d, last was %d: %w",
			e.PubId, e.SubId, e.SequenceId, prev, harnesserr.ErrFatalInvariant)
	}
	if seen {
		gapEnd := e.SequenceId
		if gapEnd-prev-1 > maxGapFill {
			// A gap this wide cannot be a real loss burst at any
			// sane publish rate; it means a corrupted or adversarial
			// sequence id. Still count every skipped sequence as lost
			// (numLost below doesn't depend on this loop), but stop
			// iterating per-sequence markErasable bookkeeping — this
			// runs while a.mu is held, and the event pipeline has one
			// consumer goroutine for every sink, so an unbounded loop
			// here stalls the whole pipeline.
			gapEnd = prev + 1 + maxGapFill
		}
		for missing := prev + 1; missing < gapEnd; missing++ {
			a.markErasable(e.PubId, missing)
		}
		a.numLost += uint64(e.SequenceId - prev - 1)
	}
	a.latestReceived[pk] = e.SequenceId

	if size, ok := a.dataSizes[e.SubId]; ok {
		a.sumData += uint64(size)
	}

	return nil
}

// PrimeSent seeds a publishedTs entry for (pub,seq) without
// incrementing NumSent or touching the acknowledgement-erasure
// bookkeeping markErasable drives. Replay (internal/eventsource) uses
// this to make a Sent event from an earlier window visible to a
// Received event that falls in the window being replayed, matching the
// live aggregator's publishedTs map, which persists across report
// ticks instead of resetting per window (spec.md §8 property 4).
func (a *Aggregator) PrimeSent(pub ids.PubId, seq ids.SequenceId, ts int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publishedTs[sentKey{pub, seq}] = ts
}

func (a *Aggregator) RecordSystemMeasured(e event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastCPU = e.CPU
	a.lastRUsage = e.RUsage
	return nil
}

// Snapshot takes the window's accumulated counters, resets them for
// the next window, and returns the AnalysisResult — the same
// reduction the reporter goroutine uses, exposed so replay
// (internal/eventsource) can derive AnalysisResults from persisted
// events through the identical code path spec.md §8 property 4
// requires to match the live aggregator exactly.
func (a *Aggregator) Snapshot(now time.Time) AnalysisResult {
	return a.snapshotAndReset(now)
}

func (a *Aggregator) snapshotAndReset(now time.Time) AnalysisResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := AnalysisResult{
		ExperimentElapsed: now.Sub(a.experimentStart),
		WindowElapsed:     now.Sub(a.windowStart),
		NumReceived:       a.numReceived,
		NumSent:           a.numSent,
		NumLost:           a.numLost,
		SumDataReceived:   a.sumData,
		Latency:           a.latency.Clone(),
		CPU:               a.lastCPU,
		ResourceUsage:     a.lastRUsage,
	}

	a.windowStart = now
	a.numReceived = 0
	a.numSent = 0
	a.numLost = 0
	a.sumData = 0
	a.latency.Reset()

	return res
}

// Start launches the 1 Hz reporter goroutine.
func (a *Aggregator) Start(reportInterval time.Duration) {
	a.started = true
	a.ticker = time.NewTicker(reportInterval)
	go func() {
		defer close(a.doneCh)
		for {
			select {
			case <-a.stopCh:
				return
			case t := <-a.ticker.C:
				res := a.snapshotAndReset(t)
				for _, out := range a.outputs {
					_ = out.Publish(res)
				}
			}
		}
	}()
}

// Stop halts the reporter goroutine. Safe to call multiple times.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		if !a.started {
			return
		}
		a.ticker.Stop()
		close(a.stopCh)
		<-a.doneCh
	})
}

// PendingCount returns the number of (pub,seq) pairs still awaiting
// acknowledgement from every subscriber. Used by the bounded-growth
// test (spec.md §8): under num_subs=0 this never erases and is
// expected to grow, bounded only by max_runtime*rate.
func (a *Aggregator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.publishedTs)
}

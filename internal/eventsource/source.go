// Package eventsource provides post-hoc replay: range queries over
// the events an eventdb.Sink persisted, letting an offline printer
// re-derive the same AnalysisResults the live aggregator produced
// (spec.md §4.6.3 — serves as ground-truth oracle in tests).
package eventsource

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/ids"
	"github.com/adred-codev/pubsubbench/internal/sink"
)

var _ sink.EventSource = (*Source)(nil)

// Source is an EventSource reading back from the same SQLite schema
// eventdb.Sink writes.
type Source struct {
	db *sql.DB
}

// Open opens an existing event database read-only for replay.
func Open(path string) (*Source, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("eventsource: open %s: %w", path, err)
	}
	return &Source{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Source) Close() error { return s.db.Close() }

// registeredIDs returns the publisher and subscriber ids registered on
// topic, alongside the RegisterPub/RegisterSub events that describe
// them.
func (s *Source) registeredIDs(topic string) (pubIDs, subIDs map[string]bool, identity []event.Event, err error) {
	pubRows, err := s.db.Query(`SELECT id, msg_type FROM publishers WHERE topic = ?`, topic)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("eventsource: query publishers: %w", err)
	}
	pubIDs = map[string]bool{}
	for pubRows.Next() {
		var id, msgType string
		if err := pubRows.Scan(&id, &msgType); err != nil {
			pubRows.Close()
			return nil, nil, nil, err
		}
		pubIDs[id] = true
		identity = append(identity, event.NewRegisterPub(0, ids.PubId(id), msgType, topic))
	}
	pubRows.Close()

	subRows, err := s.db.Query(`SELECT id, msg_type, data_size FROM subscribers WHERE topic = ?`, topic)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("eventsource: query subscribers: %w", err)
	}
	subIDs = map[string]bool{}
	for subRows.Next() {
		var id, msgType string
		var dataSize int
		if err := subRows.Scan(&id, &msgType, &dataSize); err != nil {
			subRows.Close()
			return nil, nil, nil, err
		}
		subIDs[id] = true
		identity = append(identity, event.NewRegisterSub(0, ids.SubId(id), msgType, topic, dataSize))
	}
	subRows.Close()

	return pubIDs, subIDs, identity, nil
}

// sentEventsInRange returns every MessageSent with Timestamp in
// [start, end) whose publisher is in pubIDs, ordered by timestamp.
func (s *Source) sentEventsInRange(pubIDs map[string]bool, start, end int64) ([]event.Event, error) {
	rows, err := s.db.Query(`SELECT pub_id, seq, ts FROM messages_sent WHERE ts >= ? AND ts < ? ORDER BY ts`, start, end)
	if err != nil {
		return nil, fmt.Errorf("eventsource: query messages_sent: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var pubID string
		var seq uint64
		var ts int64
		if err := rows.Scan(&pubID, &seq, &ts); err != nil {
			return nil, err
		}
		if pubIDs[pubID] {
			out = append(out, event.NewMessageSent(ts, ids.PubId(pubID), ids.SequenceId(seq)))
		}
	}
	return out, nil
}

// pendingSentBefore returns every MessageSent with Timestamp < before
// whose publisher is in pubIDs and that had no recorded receipt before
// before, ordered by timestamp. Unlike a fixed one-window lookback, this
// reaches arbitrarily far back, matching the live Aggregator's
// publishedTs map, which keeps a (pub,seq) entry until every subscriber
// has acknowledged it regardless of how many windows that takes.
func (s *Source) pendingSentBefore(pubIDs map[string]bool, before int64) ([]event.Event, error) {
	rows, err := s.db.Query(`
		SELECT s.pub_id, s.seq, s.ts FROM messages_sent s
		WHERE s.ts < ?
		AND NOT EXISTS (
			SELECT 1 FROM messages_received r
			WHERE r.pub_id = s.pub_id AND r.seq = s.seq AND r.ts < ?
		)
		ORDER BY s.ts`, before, before)
	if err != nil {
		return nil, fmt.Errorf("eventsource: query pending messages_sent: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var pubID string
		var seq uint64
		var ts int64
		if err := rows.Scan(&pubID, &seq, &ts); err != nil {
			return nil, err
		}
		if pubIDs[pubID] {
			out = append(out, event.NewMessageSent(ts, ids.PubId(pubID), ids.SequenceId(seq)))
		}
	}
	return out, nil
}

// EventsInRange reconstructs every event with Timestamp in [start, end)
// whose publisher or subscriber was registered on topic, plus every
// SystemMeasured row in range (those carry no topic). The result is
// grouped by kind — RegisterPub/RegisterSub, then MessageSent, then
// MessageReceived, then SystemMeasured — and each timed group is
// ordered by timestamp; the list as a whole is not. RegisterPub/RegisterSub
// events for that topic are included regardless of their own
// timestamp's position relative to start/end, since they describe
// identity rather than a timed sample — callers that need strict
// event-kind filtering can discard them.
func (s *Source) EventsInRange(topic string, start, end int64) ([]event.Event, error) {
	pubIDs, subIDs, out, err := s.registeredIDs(topic)
	if err != nil {
		return nil, err
	}

	sent, err := s.sentEventsInRange(pubIDs, start, end)
	if err != nil {
		return nil, err
	}
	out = append(out, sent...)

	recvRows, err := s.db.Query(`SELECT sub_id, pub_id, seq, ts FROM messages_received WHERE ts >= ? AND ts < ? ORDER BY ts`, start, end)
	if err != nil {
		return nil, fmt.Errorf("eventsource: query messages_received: %w", err)
	}
	for recvRows.Next() {
		var subID, pubID string
		var seq uint64
		var ts int64
		if err := recvRows.Scan(&subID, &pubID, &seq, &ts); err != nil {
			recvRows.Close()
			return nil, err
		}
		if subIDs[subID] {
			out = append(out, event.NewMessageReceived(ts, ids.SubId(subID), ids.PubId(pubID), ids.SequenceId(seq)))
		}
	}
	recvRows.Close()

	sysRows, err := s.db.Query(`SELECT cpu_usage, ru_utime, ru_stime, ru_maxrss, ts FROM system_metrics WHERE ts >= ? AND ts < ? ORDER BY ts`, start, end)
	if err != nil {
		return nil, fmt.Errorf("eventsource: query system_metrics: %w", err)
	}
	for sysRows.Next() {
		var cpuUsage float64
		var uT, sT, rss, ts int64
		if err := sysRows.Scan(&cpuUsage, &uT, &sT, &rss, &ts); err != nil {
			sysRows.Close()
			return nil, err
		}
		out = append(out, event.NewSystemMeasured(ts, event.CPUInfo{UsagePercent: cpuUsage}, event.ResourceUsage{UTimeNs: uT, STimeNs: sT, MaxRSSKB: rss}))
	}
	sysRows.Close()

	return out, nil
}

// Replay re-derives the AnalysisResult for [start, end) over topic by
// feeding the queried events through a fresh Aggregator in the order
// EventsInRange returns them (by kind, then timestamp, as the live
// EventLogger drains its per-kind queues) — the same reduction the
// live aggregator uses (spec.md §8
// property 4: replay must equal live).
//
// The live aggregator's publishedTs map persists across report ticks,
// so a Sent delivered one window and its Received delivered any later
// window still join for a latency sample — a slow consumer or a GC
// pause can push that gap past a single window. A fresh per-call
// Aggregator loses that unless this method joins across the boundary
// itself: it primes the Aggregator with every Sent still unacknowledged
// as of start (pendingSentBefore, not just the immediately preceding
// window) before dispatching [start, end)'s own events, so a Received
// here whose Sent landed arbitrarily far before start still finds its
// publishedTs entry. Those primed Sent events don't count toward this
// window's NumSent — they were already counted in the window they
// actually belong to.
func (s *Source) Replay(topic string, start, end int64) (aggregator.AnalysisResult, error) {
	pubIDs, _, _, err := s.registeredIDs(topic)
	if err != nil {
		return aggregator.AnalysisResult{}, err
	}

	priorSent, err := s.pendingSentBefore(pubIDs, start)
	if err != nil {
		return aggregator.AnalysisResult{}, err
	}

	events, err := s.EventsInRange(topic, start, end)
	if err != nil {
		return aggregator.AnalysisResult{}, err
	}

	agg := aggregator.New(time.Unix(0, start), nil)
	if err := agg.BeginTransaction(); err != nil {
		return aggregator.AnalysisResult{}, err
	}
	for _, e := range priorSent {
		agg.PrimeSent(e.PubId, e.SequenceId, e.Timestamp)
	}
	for _, e := range events {
		if err := sink.Dispatch(agg, e); err != nil {
			return aggregator.AnalysisResult{}, fmt.Errorf("eventsource: replay dispatch: %w", err)
		}
	}
	if err := agg.EndTransaction(); err != nil {
		return aggregator.AnalysisResult{}, err
	}
	return agg.Snapshot(time.Unix(0, end)), nil
}

// Package inproc is an in-memory Communicator transport: publishers
// and subscribers on the same topic share a Go channel. It is the
// transport the core's own tests run against; it also exercises the
// relay-mode contract so loss/ordering tests don't need a real broker.
package inproc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adred-codev/pubsubbench/internal/comm"
	"github.com/adred-codev/pubsubbench/internal/ids"
)

// Topic is a shared, in-process broadcast channel. Every Subscriber
// created from the same Topic sees every message a Publisher sends.
type Topic struct {
	mu   sync.Mutex
	subs []chan comm.Sample
}

// NewTopic returns an empty shared topic.
func NewTopic() *Topic { return &Topic{} }

func (t *Topic) subscribe(buffer int) chan comm.Sample {
	ch := make(chan comm.Sample, buffer)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

func (t *Topic) publish(s comm.Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- s:
		default:
			// Slow subscriber drops the sample; this is how loss is
			// injected deliberately in tests.
		}
	}
}

// Publisher is a Communicator that publishes onto a Topic.
type Publisher struct {
	topic   *Topic
	pubID   ids.PubId
	counter *ids.SequenceCounter
	payload int
	dropSeq map[ids.SequenceId]bool
}

// NewPublisher returns a Publisher bound to pub and topic. dropSeq, if
// non-nil, names sequence numbers to silently fail to deliver (for
// loss-injection tests) — spec.md scenario 3.
func NewPublisher(topic *Topic, pub ids.PubId, payloadSize int, dropSeq map[ids.SequenceId]bool) *Publisher {
	return &Publisher{topic: topic, pubID: pub, counter: ids.NewSequenceCounter(), payload: payloadSize, dropSeq: dropSeq}
}

var _ comm.Communicator = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, seq ids.SequenceId) error {
	if p.dropSeq != nil && p.dropSeq[seq] {
		return nil // accepted by the transport but never delivered
	}
	p.topic.publish(comm.Sample{
		PubId:      p.pubID,
		SequenceId: seq,
		Payload:    make([]byte, p.payload),
		Timestamp:  time.Now().UnixNano(),
	})
	return nil
}

func (p *Publisher) UpdateSubscription(ctx context.Context) ([]comm.Sample, error) {
	return nil, errors.New("inproc: Publisher does not subscribe")
}

func (p *Publisher) Relay() bool  { return false }
func (p *Publisher) Close() error { return nil }

// Subscriber is a Communicator that receives from a Topic. When relay
// is non-nil, every received sample is republished onto relay and the
// relayed sample, not the received one, is returned (spec.md §4.3
// relay mode).
type Subscriber struct {
	ch      chan comm.Sample
	relay   *Topic
	relayAs ids.PubId
	seq     *ids.SequenceCounter
	timeout time.Duration
}

// NewSubscriber subscribes to topic with the given channel buffer
// depth. If relayTo is non-nil, received samples are republished on
// relayTo under relayAs, and the relayed samples are returned in their
// place.
func NewSubscriber(topic *Topic, buffer int, relayTo *Topic, relayAs ids.PubId) *Subscriber {
	s := &Subscriber{
		ch:      topic.subscribe(buffer),
		relay:   relayTo,
		timeout: comm.DefaultTimeout,
	}
	if relayTo != nil {
		s.relayAs = relayAs
		s.seq = ids.NewSequenceCounter()
	}
	return s
}

var _ comm.Communicator = (*Subscriber)(nil)

func (s *Subscriber) Publish(ctx context.Context, seq ids.SequenceId) error {
	return errors.New("inproc: Subscriber does not publish")
}

func (s *Subscriber) UpdateSubscription(ctx context.Context) ([]comm.Sample, error) {
	var out []comm.Sample
	deadline := time.After(s.timeout)

	// Block for the first sample (or timeout/cancel) so idle
	// subscribers don't busy-poll; once something has arrived, drain
	// whatever else is already buffered without waiting further.
	for {
		select {
		case sample := <-s.ch:
			s.deliver(sample, &out)
			return s.drainBuffered(out), nil
		case <-deadline:
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

// deliver handles one received sample. In relay mode it republishes the
// sample under the relay identity and appends the *relayed* sample (its
// new pub id, sequence and republish timestamp) to out, so the caller
// (DataRunner) can emit a MessageSent event for the republish hop
// through its own EventLogger — the transport performs the republish
// I/O, but never touches the event pipeline itself (spec.md §4.3).
func (s *Subscriber) deliver(sample comm.Sample, out *[]comm.Sample) {
	if s.relay != nil {
		relayed := comm.Sample{
			PubId:      s.relayAs,
			SequenceId: s.seq.Next(),
			Payload:    sample.Payload,
			Timestamp:  time.Now().UnixNano(),
		}
		s.relay.publish(relayed)
		*out = append(*out, relayed)
		return
	}
	*out = append(*out, sample)
}

func (s *Subscriber) drainBuffered(out []comm.Sample) []comm.Sample {
	for {
		select {
		case sample := <-s.ch:
			s.deliver(sample, &out)
		default:
			return out
		}
	}
}

func (s *Subscriber) Relay() bool  { return s.relay != nil }
func (s *Subscriber) Close() error { return nil }

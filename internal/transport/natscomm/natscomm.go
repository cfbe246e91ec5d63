// Package natscomm implements comm.Communicator over NATS core
// pub/sub, grounded on the teacher's nats.Connect/Subscribe usage
// (ws_poc/src/server.go, go-server/pkg/nats/client.go).
//
// This is a transport plugin in spec.md §1's sense: an external
// collaborator the core depends on only through comm.Communicator.
package natscomm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/adred-codev/pubsubbench/internal/comm"
	"github.com/adred-codev/pubsubbench/internal/ids"
)

// Communicator publishes to, or subscribes on, one NATS subject.
type Communicator struct {
	conn     *nats.Conn
	subject  string
	sub      *nats.Subscription
	pubID    ids.PubId
	payload  int
	timeout  time.Duration
	relayTo  *Communicator // non-nil in relay mode: republish here
	relaySeq *ids.SequenceCounter
}

// Config configures a single Communicator.
type Config struct {
	URL         string
	Subject     string
	PubId       ids.PubId
	PayloadSize int
	Timeout     time.Duration
}

// NewPublisher connects and returns a publish-only Communicator.
func NewPublisher(cfg Config) (*Communicator, error) {
	conn, err := nats.Connect(cfg.URL, nats.MaxReconnects(5), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("natscomm: connect: %w", err)
	}
	return &Communicator{conn: conn, subject: cfg.Subject, pubID: cfg.PubId, payload: cfg.PayloadSize, timeout: orDefault(cfg.Timeout)}, nil
}

// NewSubscriber connects and subscribes to cfg.Subject. If relayTo is
// non-nil, every received message is republished on relayTo (under
// relayTo's own pub id), and UpdateSubscription returns the relayed
// samples' new identities instead of the received samples (spec.md
// §4.3 relay mode).
func NewSubscriber(cfg Config, relayTo *Communicator) (*Communicator, error) {
	conn, err := nats.Connect(cfg.URL, nats.MaxReconnects(5), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("natscomm: connect: %w", err)
	}
	c := &Communicator{conn: conn, subject: cfg.Subject, timeout: orDefault(cfg.Timeout)}
	sub, err := conn.SubscribeSync(cfg.Subject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natscomm: subscribe: %w", err)
	}
	c.sub = sub
	if relayTo != nil {
		c.relayTo = relayTo
		c.relaySeq = ids.NewSequenceCounter()
	}
	return c, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 || d > comm.DefaultTimeout {
		return comm.DefaultTimeout
	}
	return d
}

var _ comm.Communicator = (*Communicator)(nil)

// The sequence id and pub id travel as NATS headers rather than in the
// body, keeping the payload exactly payload-sized for throughput
// measurement purposes.
const (
	seqHeaderKey = "Pubsubbench-Seq"
	pubHeaderKey = "Pubsubbench-Pub"
)

func (c *Communicator) Publish(ctx context.Context, seq ids.SequenceId) error {
	msg := nats.NewMsg(c.subject)
	msg.Data = make([]byte, c.payload)
	msg.Header = nats.Header{}
	msg.Header.Set(seqHeaderKey, strconv.FormatUint(uint64(seq), 10))
	msg.Header.Set(pubHeaderKey, string(c.pubID))
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("natscomm: publish: %w", err)
	}
	return nil
}

func (c *Communicator) UpdateSubscription(ctx context.Context) ([]comm.Sample, error) {
	if c.sub == nil {
		return nil, fmt.Errorf("natscomm: not subscribed")
	}

	msg, err := c.sub.NextMsg(c.timeout)
	if err == nats.ErrTimeout {
		return nil, nil // bounded-wait timeout is non-fatal (spec.md §7)
	}
	if err != nil {
		return nil, fmt.Errorf("natscomm: receive: %w", err)
	}

	sample := decodeSample(msg)

	if c.relayTo != nil {
		relayed, err := c.relayPublish(ctx)
		if err != nil {
			return nil, err
		}
		out := []comm.Sample{relayed}
		for {
			if _, err := c.sub.NextMsg(time.Millisecond); err != nil {
				break
			}
			relayed, err := c.relayPublish(ctx)
			if err != nil {
				return out, err
			}
			out = append(out, relayed)
		}
		return out, nil
	}

	out := []comm.Sample{sample}
	// Drain whatever else is already queued, without waiting further.
	for {
		next, err := c.sub.NextMsg(time.Millisecond)
		if err != nil {
			break
		}
		out = append(out, decodeSample(next))
	}
	return out, nil
}

// relayPublish republishes on relayTo and returns the relayed sample's
// new identity (pub id, sequence, republish timestamp) so the caller
// can emit a MessageSent event for this hop through its own
// EventLogger — the Communicator never touches the event pipeline
// itself (spec.md §4.3).
func (c *Communicator) relayPublish(ctx context.Context) (comm.Sample, error) {
	seq := c.relaySeq.Next()
	if err := c.relayTo.Publish(ctx, seq); err != nil {
		return comm.Sample{}, fmt.Errorf("natscomm: relay publish: %w", err)
	}
	return comm.Sample{PubId: c.relayTo.pubID, SequenceId: seq, Timestamp: time.Now().UnixNano()}, nil
}

func decodeSample(msg *nats.Msg) comm.Sample {
	var seq ids.SequenceId
	if raw := msg.Header.Get(seqHeaderKey); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			seq = ids.SequenceId(n)
		}
	}
	return comm.Sample{
		PubId:      ids.PubId(msg.Header.Get(pubHeaderKey)),
		SequenceId: seq,
		Payload:    msg.Data,
		Timestamp:  time.Now().UnixNano(),
	}
}

func (c *Communicator) Relay() bool { return c.relayTo != nil }

func (c *Communicator) Close() error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
	return nil
}

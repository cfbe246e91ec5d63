// Package kafkacomm implements comm.Communicator over a Kafka-API
// broker via franz-go, grounded on the teacher's
// ws/kafka/consumer.go and ws/internal/shared/kafka/consumer.go
// (kgo.NewClient, ConsumeTopics, FetchMaxWait, partition
// assign/revoke logging). The teacher only consumes; this adds a
// symmetric produce path in the same configuration idiom, since the
// harness needs to publish too.
package kafkacomm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/adred-codev/pubsubbench/internal/comm"
	"github.com/adred-codev/pubsubbench/internal/ids"
)

// Config configures a single Communicator.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PubId       ids.PubId
	PayloadSize int
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// Communicator produces to, or consumes from, one Kafka topic.
type Communicator struct {
	client    *kgo.Client
	topic     string
	pubID     ids.PubId
	payload   int
	timeout   time.Duration
	consuming bool
	relayTo   *Communicator
	relaySeq  *ids.SequenceCounter
	logger    zerolog.Logger
}

var _ comm.Communicator = (*Communicator)(nil)

const (
	seqHeaderKey = "pubsubbench-seq"
	pubHeaderKey = "pubsubbench-pub"
)

// NewPublisher returns a produce-only Communicator.
func NewPublisher(cfg Config) (*Communicator, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, fmt.Errorf("kafkacomm: new client: %w", err)
	}
	return &Communicator{client: client, topic: cfg.Topic, pubID: cfg.PubId, payload: cfg.PayloadSize, timeout: orDefault(cfg.Timeout), logger: cfg.Logger}, nil
}

// NewSubscriber returns a consume-only Communicator in a consumer
// group. If relayTo is non-nil, every consumed record is republished
// on relayTo, and UpdateSubscription returns the relayed samples' new
// identities instead of the consumed records (relay mode).
func NewSubscriber(cfg Config, relayTo *Communicator) (*Communicator, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.SessionTimeout(30*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			cfg.Logger.Info().Interface("partitions", assigned).Msg("kafkacomm: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			cfg.Logger.Info().Interface("partitions", revoked).Msg("kafkacomm: partitions revoked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkacomm: new client: %w", err)
	}
	c := &Communicator{client: client, topic: cfg.Topic, timeout: orDefault(cfg.Timeout), consuming: true, logger: cfg.Logger}
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

func (c *Communicator) Publish(ctx context.Context, seq ids.SequenceId) error {
	record := &kgo.Record{
		Topic: c.topic,
		Value: make([]byte, c.payload),
		Headers: []kgo.RecordHeader{
			{Key: seqHeaderKey, Value: []byte(strconv.FormatUint(uint64(seq), 10))},
			{Key: pubHeaderKey, Value: []byte(c.pubID)},
		},
	}
	result := c.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("kafkacomm: produce: %w", err)
	}
	return nil
}

func (c *Communicator) UpdateSubscription(ctx context.Context) ([]comm.Sample, error) {
	if !c.consuming {
		return nil, fmt.Errorf("kafkacomm: not a subscriber")
	}

	pollCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fetches := c.client.PollFetches(pollCtx)
	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("kafkacomm: client closed")
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, e := range errs {
			if e.Err == context.DeadlineExceeded {
				continue // bounded-wait timeout, non-fatal (spec.md §7)
			}
			return nil, fmt.Errorf("kafkacomm: fetch: %w", e.Err)
		}
	}

	var out []comm.Sample
	var relayErr error
	fetches.EachRecord(func(rec *kgo.Record) {
		if relayErr != nil {
			return
		}
		if c.relayTo != nil {
			relayed, err := c.relayPublish(ctx)
			if err != nil {
				relayErr = err
				return
			}
			out = append(out, relayed)
			return
		}
		out = append(out, decodeSample(rec))
	})
	if relayErr != nil {
		return out, relayErr
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
		return comm.Sample{}, fmt.Errorf("kafkacomm: relay publish: %w", err)
	}
	return comm.Sample{PubId: c.relayTo.pubID, SequenceId: seq, Timestamp: time.Now().UnixNano()}, nil
}

func decodeSample(rec *kgo.Record) comm.Sample {
	var seq ids.SequenceId
	var pub ids.PubId
	for _, h := range rec.Headers {
		switch h.Key {
		case seqHeaderKey:
			if n, err := strconv.ParseUint(string(h.Value), 10, 64); err == nil {
				seq = ids.SequenceId(n)
			}
		case pubHeaderKey:
			pub = ids.PubId(h.Value)
		}
	}
	return comm.Sample{
		PubId:      pub,
		SequenceId: seq,
		Payload:    rec.Value,
		Timestamp:  time.Now().UnixNano(),
	}
}

func (c *Communicator) Relay() bool { return c.relayTo != nil }

func (c *Communicator) Close() error {
	c.client.Close()
	return nil
}

package runner

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsubbench/internal/ids"
	"github.com/adred-codev/pubsubbench/internal/sink"
	"github.com/adred-codev/pubsubbench/internal/transport/inproc"
)

func TestAnalyzeRunnerRunExitsOnMaxRuntime(t *testing.T) {
	topic := inproc.NewTopic()
	pub := ids.NewPubId()
	sub := ids.NewSubId()

	cs := &collectingSink{}

	a, err := NewAnalyzeRunner(AnalyzeRunnerConfig{
		Logger: zerolog.Nop(),
		Sinks:  []sink.EventSink{cs},
		Publishers: []PublisherSpec{
			{PubID: pub, Comm: inproc.NewPublisher(topic, pub, 8, nil), Rate: 50},
		},
		Subscribers: []SubscriberSpec{
			{SubID: sub, Comm: inproc.NewSubscriber(topic, 8, nil, "")},
		},
		MaxRuntime: 1100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewAnalyzeRunner: %v", err)
	}

	done := make(chan struct{})
	go func() {
		a.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not exit within max_runtime + margin")
	}

	a.Shutdown()

	sent, received := cs.counts()
	if sent == 0 {
		t.Fatalf("expected at least one MessageSent event to have been recorded, got 0")
	}
	if received == 0 {
		t.Fatalf("expected at least one MessageReceived event to have been recorded, got 0")
	}
}

func TestAnalyzeRunnerStopBeforeRunIsSafe(t *testing.T) {
	topic := inproc.NewTopic()
	pub := ids.NewPubId()
	cs := &collectingSink{}

	a, err := NewAnalyzeRunner(AnalyzeRunnerConfig{
		Logger: zerolog.Nop(),
		Sinks:  []sink.EventSink{cs},
		Publishers: []PublisherSpec{
			{PubID: pub, Comm: inproc.NewPublisher(topic, pub, 8, nil), Rate: 10},
		},
	})
	if err != nil {
		t.Fatalf("NewAnalyzeRunner: %v", err)
	}

	a.Stop() // must not deadlock even though Run was never called
	a.Shutdown()
}

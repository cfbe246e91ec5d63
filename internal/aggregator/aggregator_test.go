package aggregator

import (
	"errors"
	"testing"
	"time"

	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/harnesserr"
	"github.com/adred-codev/pubsubbench/internal/ids"
)

func TestSingleSubNoLoss(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	sub := ids.NewSubId()

	if err := a.RecordRegisterSub(event.NewRegisterSub(0, sub, "t", "topic", 64)); err != nil {
		t.Fatal(err)
	}

	for seq := ids.SequenceId(1); seq <= 1000; seq++ {
		if err := a.RecordMessageSent(event.NewMessageSent(int64(seq)*1000, pub, seq)); err != nil {
			t.Fatal(err)
		}
		if err := a.RecordMessageReceived(event.NewMessageReceived(int64(seq)*1000+500, sub, pub, seq)); err != nil {
			t.Fatal(err)
		}
	}

	res := a.snapshotAndReset(time.Now())
	if res.NumSent != 1000 || res.NumReceived != 1000 || res.NumLost != 0 {
		t.Fatalf("expected 1000/1000/0, got sent=%d received=%d lost=%d", res.NumSent, res.NumReceived, res.NumLost)
	}
	if res.Latency.Count() != 1000 {
		t.Fatalf("expected 1000 latency samples, got %d", res.Latency.Count())
	}
	if res.Latency.Min() <= 0 || res.Latency.Max() <= 0 {
		t.Fatalf("expected positive finite latency bounds, got min=%v max=%v", res.Latency.Min(), res.Latency.Max())
	}
	if a.PendingCount() != 0 {
		t.Fatalf("expected published_ts to be fully erased, got %d pending", a.PendingCount())
	}
}

func TestSinglePubThreeSubs(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	subs := []ids.SubId{ids.NewSubId(), ids.NewSubId(), ids.NewSubId()}

	for _, s := range subs {
		if err := a.RecordRegisterSub(event.NewRegisterSub(0, s, "t", "topic", 32)); err != nil {
			t.Fatal(err)
		}
	}

	for seq := ids.SequenceId(1); seq <= 500; seq++ {
		if err := a.RecordMessageSent(event.NewMessageSent(int64(seq), pub, seq)); err != nil {
			t.Fatal(err)
		}
		for _, s := range subs {
			if err := a.RecordMessageReceived(event.NewMessageReceived(int64(seq)+1, s, pub, seq)); err != nil {
				t.Fatal(err)
			}
		}
	}

	res := a.snapshotAndReset(time.Now())
	if res.NumReceived != 1500 {
		t.Fatalf("expected 1500 received, got %d", res.NumReceived)
	}
	if a.PendingCount() != 0 {
		t.Fatalf("expected published_ts map empty at end, got %d", a.PendingCount())
	}
	if len(a.receivedCount) != 0 {
		t.Fatalf("expected received_count map empty at end, got %d", len(a.receivedCount))
	}
	if a.numSubs != 3 {
		t.Fatalf("expected numSubs=3, got %d", a.numSubs)
	}
}

func TestLossInjection(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	sub := ids.NewSubId()
	_ = a.RecordRegisterSub(event.NewRegisterSub(0, sub, "t", "topic", 16))

	dropped := map[ids.SequenceId]bool{10: true, 11: true, 20: true}
	for seq := ids.SequenceId(1); seq <= 500; seq++ {
		_ = a.RecordMessageSent(event.NewMessageSent(int64(seq), pub, seq))
		if dropped[seq] {
			continue
		}
		_ = a.RecordMessageReceived(event.NewMessageReceived(int64(seq)+1, sub, pub, seq))
	}

	res := a.snapshotAndReset(time.Now())
	if res.NumLost != 3 {
		t.Fatalf("expected 3 lost, got %d", res.NumLost)
	}
	if a.latestReceived[pairKey{sub, pub}] != 500 {
		t.Fatalf("expected latestReceived=500, got %d", a.latestReceived[pairKey{sub, pub}])
	}
	// loss equation: num_lost == last_seq_received - first_seq_received + 1 - count_received
	firstReceived, lastReceived, count := ids.SequenceId(1), ids.SequenceId(500), uint64(500-len(dropped))
	wantLost := uint64(lastReceived-firstReceived+1) - count
	if res.NumLost != wantLost {
		t.Fatalf("loss equation mismatch: got %d want %d", res.NumLost, wantLost)
	}
	if a.PendingCount() != 0 {
		t.Fatalf("dropped (pub,seq) entries must still be erased once marked lost, got %d pending", a.PendingCount())
	}
}

func TestGapFillIsCappedForExtremeSequenceJump(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	sub := ids.NewSubId()
	_ = a.RecordRegisterSub(event.NewRegisterSub(0, sub, "t", "topic", 8))

	_ = a.RecordMessageReceived(event.NewMessageReceived(1, sub, pub, 1))
	// A sequence jump far wider than any real loss burst must still be
	// counted exactly in NumLost without the per-sequence gap-fill loop
	// actually iterating that many times.
	hugeSeq := ids.SequenceId(1) + 10*maxGapFill
	if err := a.RecordMessageReceived(event.NewMessageReceived(2, sub, pub, hugeSeq)); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}

	res := a.snapshotAndReset(time.Now())
	wantLost := uint64(hugeSeq - 1 - 1)
	if res.NumLost != wantLost {
		t.Fatalf("expected NumLost=%d regardless of the gap-fill cap, got %d", wantLost, res.NumLost)
	}
}

func TestOutOfOrderWithinPairIsFault(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	sub := ids.NewSubId()
	_ = a.RecordRegisterSub(event.NewRegisterSub(0, sub, "t", "topic", 8))

	if err := a.RecordMessageReceived(event.NewMessageReceived(10, sub, pub, 5)); err != nil {
		t.Fatalf("first delivery of seq 5 must not fault: %v", err)
	}
	err := a.RecordMessageReceived(event.NewMessageReceived(20, sub, pub, 5)) // duplicate seq
	if !errors.Is(err, harnesserr.ErrFatalInvariant) {
		t.Fatalf("duplicate/out-of-order delivery must report a fatal invariant violation, got %v", err)
	}
}

func TestBoundedGrowthWhenNoSubs(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	for seq := ids.SequenceId(1); seq <= 100; seq++ {
		_ = a.RecordMessageSent(event.NewMessageSent(int64(seq), pub, seq))
	}
	if a.PendingCount() != 100 {
		t.Fatalf("with num_subs=0, published_ts must never be erased; expected 100 pending, got %d", a.PendingCount())
	}
}

func TestReceivedBeforeSentToleratedInWindow(t *testing.T) {
	a := New(time.Now(), nil)
	pub := ids.NewPubId()
	sub := ids.NewSubId()
	_ = a.RecordRegisterSub(event.NewRegisterSub(0, sub, "t", "topic", 8))

	// Received arrives before its Sent counterpart is drained.
	_ = a.RecordMessageReceived(event.NewMessageReceived(100, sub, pub, 1))
	res := a.snapshotAndReset(time.Now())
	if res.NumReceived != 1 {
		t.Fatalf("expected receipt to still be counted, got %d", res.NumReceived)
	}
	if res.Latency.Count() != 0 {
		t.Fatalf("expected no latency sample when sent hasn't arrived yet, got %d", res.Latency.Count())
	}
}

package eventdb

import (
	"path/filepath"
	"testing"

	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/eventsource"
	"github.com/adred-codev/pubsubbench/internal/ids"
)

func TestRoundTripPreservesFields(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "run.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pub := ids.NewPubId()
	sub := ids.NewSubId()

	if err := s.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	events := []event.Event{
		event.NewRegisterPub(100, pub, "Array1k", "bench/topic"),
		event.NewRegisterSub(100, sub, "Array1k", "bench/topic", 1024),
		event.NewMessageSent(200, pub, 1),
		event.NewMessageReceived(250, sub, pub, 1),
	}
	for _, e := range events {
		switch e.Kind {
		case event.KindRegisterPub:
			if err := s.RecordRegisterPub(e); err != nil {
				t.Fatalf("RecordRegisterPub: %v", err)
			}
		case event.KindRegisterSub:
			if err := s.RecordRegisterSub(e); err != nil {
				t.Fatalf("RecordRegisterSub: %v", err)
			}
		case event.KindMessageSent:
			if err := s.RecordMessageSent(e); err != nil {
				t.Fatalf("RecordMessageSent: %v", err)
			}
		case event.KindMessageReceived:
			if err := s.RecordMessageReceived(e); err != nil {
				t.Fatalf("RecordMessageReceived: %v", err)
			}
		}
	}
	if err := s.EndTransaction(); err != nil {
		t.Fatalf("EndTransaction: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := eventsource.Open(dbPath)
	if err != nil {
		t.Fatalf("eventsource.Open: %v", err)
	}
	defer src.Close()

	got, err := src.EventsInRange("bench/topic", 0, 1000)
	if err != nil {
		t.Fatalf("EventsInRange: %v", err)
	}

	var sawSent, sawRecv bool
	for _, e := range got {
		if e.Kind == event.KindMessageSent && e.PubId == pub && e.SequenceId == 1 && e.Timestamp == 200 {
			sawSent = true
		}
		if e.Kind == event.KindMessageReceived && e.SubId == sub && e.PubId == pub && e.SequenceId == 1 && e.Timestamp == 250 {
			sawRecv = true
		}
	}
	if !sawSent {
		t.Errorf("expected MessageSent to round-trip exactly, got %+v", got)
	}
	if !sawRecv {
		t.Errorf("expected MessageReceived to round-trip exactly, got %+v", got)
	}
}

// Package event defines the five event kinds the harness's driver
// threads emit and the logging pipeline fans out to sinks.
package event

import "github.com/adred-codev/pubsubbench/internal/ids"

// Kind tags which fields of an Event are populated.
type Kind int

const (
	KindRegisterPub Kind = iota
	KindRegisterSub
	KindMessageSent
	KindMessageReceived
	KindSystemMeasured
)

func (k Kind) String() string {
	switch k {
	case KindRegisterPub:
		return "RegisterPub"
	case KindRegisterSub:
		return "RegisterSub"
	case KindMessageSent:
		return "MessageSent"
	case KindMessageReceived:
		return "MessageReceived"
	case KindSystemMeasured:
		return "SystemMeasured"
	default:
		return "Unknown"
	}
}

// CPUInfo is the system metrics payload carried by SystemMeasured.
type CPUInfo struct {
	Cores        int
	UsagePercent float64
}

// ResourceUsage mirrors the process resource counters the harness
// samples once per second.
type ResourceUsage struct {
	UTimeNs  int64
	STimeNs  int64
	MaxRSSKB int64
}

// Event is a tagged union over the five event kinds. Only the fields
// relevant to Kind are meaningful; Go has no sum types, so unused
// fields are simply zero.
type Event struct {
	Kind      Kind
	Timestamp int64 // ns, from clock.Clock.Timestamp()

	// RegisterPub / RegisterSub
	PubId   ids.PubId
	SubId   ids.SubId
	MsgType string
	Topic   string
	// RegisterSub only
	DataSize int

	// MessageSent / MessageReceived
	SequenceId ids.SequenceId

	// SystemMeasured
	CPU    CPUInfo
	RUsage ResourceUsage
}

// NewRegisterPub builds a RegisterPub event.
func NewRegisterPub(ts int64, pub ids.PubId, msgType, topic string) Event {
	return Event{Kind: KindRegisterPub, Timestamp: ts, PubId: pub, MsgType: msgType, Topic: topic}
}

// NewRegisterSub builds a RegisterSub event.
func NewRegisterSub(ts int64, sub ids.SubId, msgType, topic string, dataSize int) Event {
	return Event{Kind: KindRegisterSub, Timestamp: ts, SubId: sub, MsgType: msgType, Topic: topic, DataSize: dataSize}
}

// NewMessageSent builds a MessageSent event.
func NewMessageSent(ts int64, pub ids.PubId, seq ids.SequenceId) Event {
	return Event{Kind: KindMessageSent, Timestamp: ts, PubId: pub, SequenceId: seq}
}

// NewMessageReceived builds a MessageReceived event.
func NewMessageReceived(ts int64, sub ids.SubId, pub ids.PubId, seq ids.SequenceId) Event {
	return Event{Kind: KindMessageReceived, Timestamp: ts, SubId: sub, PubId: pub, SequenceId: seq}
}

// NewSystemMeasured builds a SystemMeasured event.
func NewSystemMeasured(ts int64, cpu CPUInfo, ru ResourceUsage) Event {
	return Event{Kind: KindSystemMeasured, Timestamp: ts, CPU: cpu, RUsage: ru}
}

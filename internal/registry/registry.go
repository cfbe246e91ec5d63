// Package registry maps the configured msg_name string (spec.md §6)
// to a concrete payload schema, replacing template polymorphism over
// message type with a small constructor table (spec.md §9 redesign
// flag: "tagged variant plus a registry mapping msg_name to
// constructors").
package registry

import (
	"fmt"
	"sync"

	"github.com/adred-codev/pubsubbench/internal/harnesserr"
)

// Schema describes one message type's wire shape. DataRunner consults
// PayloadSize to size the buffer it publishes; the name is carried in
// RegisterPub/RegisterSub events for offline analysis.
type Schema struct {
	Name        string
	PayloadSize int
}

// Constructor builds a Schema for a given payload size override (0
// means "use the schema's own default").
type Constructor func(payloadSizeOverride int) Schema

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{
		"default": func(size int) Schema {
			if size <= 0 {
				size = 64
			}
			return Schema{Name: "default", PayloadSize: size}
		},
		"small": func(size int) Schema {
			if size <= 0 {
				size = 16
			}
			return Schema{Name: "small", PayloadSize: size}
		},
		"large": func(size int) Schema {
			if size <= 0 {
				size = 4096
			}
			return Schema{Name: "large", PayloadSize: size}
		},
	}
)

// Register adds or replaces the constructor for msgName. Intended for
// tests and for callers extending the set of known schemas at
// startup; not safe to call concurrently with Lookup mid-run.
func Register(msgName string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[msgName] = ctor
}

// Lookup resolves msgName to a Schema, applying payloadSizeOverride if
// positive. Returns harnesserr.ErrUnsupportedMessage if msgName has no
// registered constructor (spec.md §6 msg_name).
func Lookup(msgName string, payloadSizeOverride int) (Schema, error) {
	mu.RLock()
	ctor, ok := registry[msgName]
	mu.RUnlock()
	if !ok {
		return Schema{}, fmt.Errorf("registry: %q: %w", msgName, harnesserr.ErrUnsupportedMessage)
	}
	return ctor(payloadSizeOverride), nil
}

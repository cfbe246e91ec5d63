package registry

import (
	"errors"
	"testing"

	"github.com/adred-codev/pubsubbench/internal/harnesserr"
)

func TestLookupKnownSchemaAppliesDefault(t *testing.T) {
	schema, err := Lookup("default", 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if schema.PayloadSize != 64 {
		t.Fatalf("expected default payload size 64, got %d", schema.PayloadSize)
	}
}

func TestLookupKnownSchemaHonorsOverride(t *testing.T) {
	schema, err := Lookup("small", 256)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if schema.PayloadSize != 256 {
		t.Fatalf("expected override payload size 256, got %d", schema.PayloadSize)
	}
}

func TestLookupUnknownSchemaIsUnsupportedMessage(t *testing.T) {
	_, err := Lookup("does-not-exist", 0)
	if !errors.Is(err, harnesserr.ErrUnsupportedMessage) {
		t.Fatalf("expected ErrUnsupportedMessage, got %v", err)
	}
}

func TestRegisterAddsNewSchema(t *testing.T) {
	Register("custom", func(size int) Schema {
		if size <= 0 {
			size = 128
		}
		return Schema{Name: "custom", PayloadSize: size}
	})
	schema, err := Lookup("custom", 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if schema.Name != "custom" || schema.PayloadSize != 128 {
		t.Fatalf("unexpected schema: %+v", schema)
	}
}

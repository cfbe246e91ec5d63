package config

import (
	"errors"
	"os"
	"testing"

	"github.com/adred-codev/pubsubbench/internal/harnesserr"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if len(key) > 4 && key[:4] == "PSB_" {
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Topic != "bench/default" {
		t.Errorf("expected default topic, got %q", cfg.Topic)
	}
	if cfg.RoundtripMode != RoundtripNone {
		t.Errorf("expected default roundtrip mode none, got %q", cfg.RoundtripMode)
	}
	if cfg.TransportKind != "inproc" {
		t.Errorf("expected default transport inproc, got %q", cfg.TransportKind)
	}
}

func TestLoadRejectsUnknownRoundtripMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSB_ROUNDTRIP_MODE", "bogus")
	defer os.Unsetenv("PSB_ROUNDTRIP_MODE")

	_, err := Load(nil)
	if !errors.Is(err, harnesserr.ErrConfigError) {
		t.Fatalf("expected ErrConfigError, got %v", err)
	}
}

func TestLoadRejectsNegativeRate(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSB_RATE", "-1")
	defer os.Unsetenv("PSB_RATE")

	_, err := Load(nil)
	if !errors.Is(err, harnesserr.ErrConfigError) {
		t.Fatalf("expected ErrConfigError, got %v", err)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSB_TRANSPORT", "carrier-pigeon")
	defer os.Unsetenv("PSB_TRANSPORT")

	_, err := Load(nil)
	if !errors.Is(err, harnesserr.ErrConfigError) {
		t.Fatalf("expected ErrConfigError, got %v", err)
	}
}

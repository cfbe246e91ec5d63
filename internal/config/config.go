// Package config loads the harness's run configuration from the
// environment (plus an optional .env file), grounded directly on the
// teacher's config.go (caarlos0/env + godotenv, env tags with
// envDefault, then Validate()).
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsubbench/internal/harnesserr"
)

// RoundtripMode selects whether subscribers record receipt or relay
// (spec.md §6 roundtrip_mode).
type RoundtripMode string

const (
	RoundtripNone  RoundtripMode = "none"
	RoundtripMain  RoundtripMode = "main"
	RoundtripRelay RoundtripMode = "relay"
)

// Config is the run's configuration object (spec.md §6's CLI surface,
// sourced from the environment instead of flags — cmd/pubsubbench
// layers a single -debug flag on top, which overrides LogLevel).
type Config struct {
	Topic          string        `env:"PSB_TOPIC" envDefault:"bench/default"`
	MsgName        string        `env:"PSB_MSG_NAME" envDefault:"default"`
	PayloadSize    int           `env:"PSB_PAYLOAD_SIZE" envDefault:"0"`
	Rate           float64       `env:"PSB_RATE" envDefault:"0"`
	NumPublishers  int           `env:"PSB_NUM_PUBLISHERS" envDefault:"1"`
	NumSubscribers int           `env:"PSB_NUM_SUBSCRIBERS" envDefault:"1"`
	MaxRuntimeSec  int           `env:"PSB_MAX_RUNTIME_SEC" envDefault:"0"`
	RowsToIgnore   int           `env:"PSB_ROWS_TO_IGNORE" envDefault:"0"`
	RoundtripMode  RoundtripMode `env:"PSB_ROUNDTRIP_MODE" envDefault:"none"`

	OutputEventDB  bool   `env:"PSB_OUTPUT_EVENT_DB" envDefault:"false"`
	EventDBPath    string `env:"PSB_EVENT_DB_PATH" envDefault:""`
	CSVPath        string `env:"PSB_CSV_PATH" envDefault:""`
	JSONPath       string `env:"PSB_JSON_PATH" envDefault:""`
	Stdout         bool   `env:"PSB_STDOUT" envDefault:"true"`
	Prometheus     bool   `env:"PSB_PROMETHEUS" envDefault:"false"`
	PrometheusAddr string `env:"PSB_PROMETHEUS_ADDR" envDefault:":9090"`

	TransportKind string `env:"PSB_TRANSPORT" envDefault:"inproc"` // inproc | nats | kafka
	NATSUrl       string `env:"PSB_NATS_URL" envDefault:"nats://localhost:4222"`
	KafkaBrokers  string `env:"PSB_KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaGroupID  string `env:"PSB_KAFKA_GROUP_ID" envDefault:"pubsubbench"`

	// QoS fields are accepted and validated but not translated into
	// transport-specific behavior (spec.md Non-goal: "QoS translation
	// layers"); an unsupported value is a fatal config error rather
	// than a silently-ignored one, matching spec.md §7's "unsupported
	// QoS" fatal exit path.
	QoSReliability  string `env:"PSB_QOS_RELIABILITY" envDefault:"best_effort"`
	QoSDurability   string `env:"PSB_QOS_DURABILITY" envDefault:"volatile"`
	QoSHistoryKind  string `env:"PSB_QOS_HISTORY_KIND" envDefault:"keep_last"`
	QoSHistoryDepth int    `env:"PSB_QOS_HISTORY_DEPTH" envDefault:"1"`

	LogLevel  string `env:"PSB_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PSB_LOG_FORMAT" envDefault:"pretty"`
}

// Load reads a .env file (if present; absence is not an error) and
// then parses environment variables into a Config, validating the
// result.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("config: no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("config: loaded .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w: %w", err, harnesserr.ErrConfigError)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks range and enum constraints spec.md §6 implies.
func (c *Config) Validate() error {
	if c.NumPublishers < 0 {
		return fmt.Errorf("config: PSB_NUM_PUBLISHERS must be >= 0, got %d: %w", c.NumPublishers, harnesserr.ErrConfigError)
	}
	if c.NumSubscribers < 0 {
		return fmt.Errorf("config: PSB_NUM_SUBSCRIBERS must be >= 0, got %d: %w", c.NumSubscribers, harnesserr.ErrConfigError)
	}
	if c.Rate < 0 {
		return fmt.Errorf("config: PSB_RATE must be >= 0 (0 = as fast as possible), got %v: %w", c.Rate, harnesserr.ErrConfigError)
	}
	switch c.RoundtripMode {
	case RoundtripNone, RoundtripMain, RoundtripRelay:
	default:
		return fmt.Errorf("config: PSB_ROUNDTRIP_MODE must be one of none|main|relay, got %q: %w", c.RoundtripMode, harnesserr.ErrConfigError)
	}
	switch c.TransportKind {
	case "inproc", "nats", "kafka":
	default:
		return fmt.Errorf("config: PSB_TRANSPORT must be one of inproc|nats|kafka, got %q: %w", c.TransportKind, harnesserr.ErrConfigError)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("config: PSB_LOG_LEVEL must be one of debug|info|warn|error, got %q: %w", c.LogLevel, harnesserr.ErrConfigError)
	}

	validReliability := map[string]bool{"best_effort": true, "reliable": true}
	if !validReliability[c.QoSReliability] {
		return fmt.Errorf("config: PSB_QOS_RELIABILITY must be one of best_effort|reliable, got %q: %w", c.QoSReliability, harnesserr.ErrConfigError)
	}
	validDurability := map[string]bool{"volatile": true, "transient_local": true}
	if !validDurability[c.QoSDurability] {
		return fmt.Errorf("config: PSB_QOS_DURABILITY must be one of volatile|transient_local, got %q: %w", c.QoSDurability, harnesserr.ErrConfigError)
	}
	validHistoryKind := map[string]bool{"keep_last": true, "keep_all": true}
	if !validHistoryKind[c.QoSHistoryKind] {
		return fmt.Errorf("config: PSB_QOS_HISTORY_KIND must be one of keep_last|keep_all, got %q: %w", c.QoSHistoryKind, harnesserr.ErrConfigError)
	}
	if c.QoSHistoryDepth < 0 {
		return fmt.Errorf("config: PSB_QOS_HISTORY_DEPTH must be >= 0, got %d: %w", c.QoSHistoryDepth, harnesserr.ErrConfigError)
	}
	return nil
}

// Print logs the loaded configuration at Info level, grounded on the
// teacher's LogConfig (structured, not fmt.Println — this harness
// always runs under zerolog rather than offering a human-readable
// fallback path).
func (c *Config) Print(logger zerolog.Logger) {
	logger.Info().
		Str("topic", c.Topic).
		Str("msg_name", c.MsgName).
		Int("payload_size", c.PayloadSize).
		Float64("rate", c.Rate).
		Int("num_publishers", c.NumPublishers).
		Int("num_subscribers", c.NumSubscribers).
		Int("max_runtime_sec", c.MaxRuntimeSec).
		Str("roundtrip_mode", string(c.RoundtripMode)).
		Str("transport", c.TransportKind).
		Bool("output_event_db", c.OutputEventDB).
		Msg("config: loaded")
}

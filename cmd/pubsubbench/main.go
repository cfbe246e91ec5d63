// Command pubsubbench drives the publish/subscribe benchmark harness:
// it loads configuration, wires the configured transport, the event
// pipeline and its sinks/outputs, runs until a stop signal or
// max_runtime fires, then tears everything down in reverse
// construction order. Grounded on the teacher's ws/main.go bootstrap
// sequence (flag parse -> config load -> build -> start -> wait on
// signal -> shutdown).
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/pubsubbench/internal/clock"
	"github.com/adred-codev/pubsubbench/internal/comm"
	"github.com/adred-codev/pubsubbench/internal/config"
	"github.com/adred-codev/pubsubbench/internal/eventdb"
	"github.com/adred-codev/pubsubbench/internal/ids"
	"github.com/adred-codev/pubsubbench/internal/output"
	"github.com/adred-codev/pubsubbench/internal/registry"
	"github.com/adred-codev/pubsubbench/internal/runner"
	"github.com/adred-codev/pubsubbench/internal/sink"
	"github.com/adred-codev/pubsubbench/internal/transport/inproc"
	"github.com/adred-codev/pubsubbench/internal/transport/kafkacomm"
	"github.com/adred-codev/pubsubbench/internal/transport/natscomm"
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func newLogger(level, format string) zerolog.Logger {
	var zl zerolog.Level
	switch level {
	case "debug":
		zl = zerolog.DebugLevel
	case "warn":
		zl = zerolog.WarnLevel
	case "error":
		zl = zerolog.ErrorLevel
	default:
		zl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zl)

	var w = os.Stdout
	if format == "pretty" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "pubsubbench").Logger()
	}
	return zerolog.New(w).With().Timestamp().Str("service", "pubsubbench").Logger()
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides PSB_LOG_LEVEL)")
	flag.Parse()

	bootLogger := log.New(os.Stdout, "[pubsubbench] ", log.LstdFlags)
	bootLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", runtime.GOMAXPROCS(0))

	cfg, err := config.Load(nil)
	if err != nil {
		bootLogger.Fatalf("config: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	cfg.Print(logger)

	schema, err := registry.Lookup(cfg.MsgName, cfg.PayloadSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("registry: lookup failed")
	}

	sysClock := clock.SystemClock{}

	var sinks []sink.EventSink
	var dbSink *eventdb.Sink
	if cfg.OutputEventDB {
		dbPath := cfg.EventDBPath
		if dbPath == "" {
			dbPath = uuid.NewString() + ".db"
		}
		dbSink, err = eventdb.Open(dbPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("eventdb: open failed")
		}
		sinks = append(sinks, dbSink)
	}

	var outputs []output.Output
	var closers []func() error
	if cfg.Stdout {
		outputs = append(outputs, output.NewConsole(cfg.RowsToIgnore))
	}
	if cfg.CSVPath != "" {
		csvOut, err := output.NewCSV(cfg.CSVPath, cfg.RowsToIgnore)
		if err != nil {
			logger.Fatal().Err(err).Msg("output: csv open failed")
		}
		outputs = append(outputs, csvOut)
		closers = append(closers, csvOut.Close)
	}
	if cfg.JSONPath != "" {
		jsonOut, err := output.NewJSON(cfg.JSONPath, cfg.RowsToIgnore)
		if err != nil {
			logger.Fatal().Err(err).Msg("output: json open failed")
		}
		outputs = append(outputs, jsonOut)
		closers = append(closers, jsonOut.Close)
	}
	var metricsServer *http.Server
	if cfg.Prometheus {
		promOut, reg := output.NewPrometheus()
		outputs = append(outputs, promOut)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.PrometheusAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("prometheus: metrics server failed")
			}
		}()
	}

	agg := runner.NewAggregatorSink(sysClock, outputs)
	agg.Start(time.Second)
	sinks = append(sinks, agg)

	var publishers []runner.PublisherSpec
	var subscribers []runner.SubscriberSpec
	var comms []comm.Communicator

	for i := 0; i < cfg.NumPublishers; i++ {
		pubID := ids.NewPubId()
		c, err := newPublisherComm(cfg, pubID, schema.PayloadSize)
		if err != nil {
			logger.Fatal().Err(err).Msg("transport: publisher construction failed")
		}
		comms = append(comms, c)
		publishers = append(publishers, runner.PublisherSpec{PubID: pubID, Comm: c, Rate: cfg.Rate})
	}
	for i := 0; i < cfg.NumSubscribers; i++ {
		subID := ids.NewSubId()
		c, err := newSubscriberComm(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("transport: subscriber construction failed")
		}
		comms = append(comms, c)
		subscribers = append(subscribers, runner.SubscriberSpec{SubID: subID, Comm: c})
	}

	ar, err := runner.NewAnalyzeRunner(runner.AnalyzeRunnerConfig{
		Logger:      logger,
		Sinks:       sinks,
		Publishers:  publishers,
		Subscribers: subscribers,
		MaxRuntime:  time.Duration(cfg.MaxRuntimeSec) * time.Second,
		Clock:       sysClock,
		Topic:       cfg.Topic,
		MsgName:     cfg.MsgName,
		PayloadSize: schema.PayloadSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: construction failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("signal received, stopping")
		ar.Stop()
	}()

	ar.Run()
	ar.Stop()
	runErr := ar.Err()

	logger.Info().Msg("shutting down")
	ar.Shutdown()
	agg.Stop()

	for _, c := range comms {
		_ = c.Close()
	}
	if dbSink != nil {
		_ = dbSink.Close()
	}
	for _, closeFn := range closers {
		_ = closeFn()
	}
	if metricsServer != nil {
		_ = metricsServer.Close()
	}

	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("pubsubbench: aborting on fatal fault")
	}
}

var sharedInprocTopic = inproc.NewTopic()
var sharedInprocRelayTopic = inproc.NewTopic()

// relaySubject derives the subject/topic a relay subscriber
// republishes onto (spec.md scenario 4: a relay subscriber republishes
// under a second identity for a downstream subscriber to record). It
// must differ from the subscribed-to topic, or a relaying subscriber
// would receive and re-relay its own output forever.
func relaySubject(topic string) string { return topic + "/relay" }

func newPublisherComm(cfg *config.Config, pubID ids.PubId, payloadSize int) (comm.Communicator, error) {
	switch cfg.TransportKind {
	case "nats":
		return natscomm.NewPublisher(natscomm.Config{
			URL: cfg.NATSUrl, Subject: cfg.Topic, PubId: pubID, PayloadSize: payloadSize,
		})
	case "kafka":
		return kafkacomm.NewPublisher(kafkacomm.Config{
			Brokers: splitList(cfg.KafkaBrokers), Topic: cfg.Topic, PubId: pubID, PayloadSize: payloadSize,
		})
	default:
		return inproc.NewPublisher(sharedInprocTopic, pubID, payloadSize, nil), nil
	}
}

func newSubscriberComm(cfg *config.Config, logger zerolog.Logger) (comm.Communicator, error) {
	relaying := cfg.RoundtripMode == config.RoundtripRelay

	switch cfg.TransportKind {
	case "nats":
		var relayPub *natscomm.Communicator
		if relaying {
			var err error
			relayPub, err = natscomm.NewPublisher(natscomm.Config{
				URL: cfg.NATSUrl, Subject: relaySubject(cfg.Topic), PubId: ids.NewPubId(),
			})
			if err != nil {
				return nil, err
			}
		}
		return natscomm.NewSubscriber(natscomm.Config{
			URL: cfg.NATSUrl, Subject: cfg.Topic,
		}, relayPub)
	case "kafka":
		var relayPub *kafkacomm.Communicator
		if relaying {
			var err error
			relayPub, err = kafkacomm.NewPublisher(kafkacomm.Config{
				Brokers: splitList(cfg.KafkaBrokers), Topic: relaySubject(cfg.Topic), PubId: ids.NewPubId(),
			})
			if err != nil {
				return nil, err
			}
		}
		return kafkacomm.NewSubscriber(kafkacomm.Config{
			Brokers: splitList(cfg.KafkaBrokers), Topic: cfg.Topic, GroupID: cfg.KafkaGroupID, Logger: logger,
		}, relayPub)
	default:
		if relaying {
			return inproc.NewSubscriber(sharedInprocTopic, 256, sharedInprocRelayTopic, ids.NewPubId()), nil
		}
		return inproc.NewSubscriber(sharedInprocTopic, 256, nil, ""), nil
	}
}

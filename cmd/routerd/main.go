// Command routerd runs the event routing engine as a standalone
// daemon: it taps the NATS event namespace, persists rules and audit
// batches in JetStream KV, and exposes metrics and introspection over
// HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eventrouter/metric"
	"github.com/c360/eventrouter/natsclient"
	"github.com/c360/eventrouter/routing"
	"github.com/c360/eventrouter/service"
)

const (
	rulesBucket = "router_rules"
	auditBucket = "router_audit"
)

func main() {
	natsURL := flag.String("nats-url", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	metricsPort := flag.Int("metrics-port", 9090, "Prometheus metrics port")
	httpPort := flag.Int("http-port", 8080, "introspection HTTP port")
	streamRate := flag.Float64("stream-rate", 50, "max decisions per second per stream client")
	seedPath := flag.String("seed", envOr("ROUTER_SEED_FILE", ""), "optional YAML seed rules file")
	policy := flag.String("dispatch-policy", "fan_out", "dispatch policy: fan_out or priority_wins")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	setupLogging(*logLevel)
	logger := slog.Default().With("component", "routerd")

	if err := run(logger, *natsURL, *metricsPort, *httpPort, *streamRate, *seedPath, *policy); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, natsURL string, metricsPort, httpPort int,
	streamRate float64, seedPath, policy string) error {

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := natsclient.NewClient(natsURL, natsclient.WithName("routerd"))
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", natsURL, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()
	logger.Info("Connected to NATS", "url", natsURL)

	ruleStore, err := kvStore(ctx, client, rulesBucket, "routing rules")
	if err != nil {
		return err
	}
	auditStore, err := kvStore(ctx, client, auditBucket, "audit batches")
	if err != nil {
		return err
	}

	cfg := routing.DefaultConfig()
	switch policy {
	case "fan_out":
		cfg.DispatchPolicy = routing.DispatchFanOut
	case "priority_wins":
		cfg.DispatchPolicy = routing.DispatchPriorityWins
	default:
		return fmt.Errorf("unknown dispatch policy %q", policy)
	}

	registry := metric.NewMetricsRegistry()

	// TODO: replace the static directory with the orchestrator's actor
	// registry once its lookup API is published
	directory := routing.NewStaticDirectory()

	engine, err := routing.NewEngine(cfg, routing.NewNATSBus(client),
		routing.NewKVEntityStore(ruleStore), routing.NewKVEntityStore(auditStore),
		directory, registry)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	runner := service.NewRunner(engine,
		service.WithMetricsServer(metric.NewServer(metricsPort, "/metrics", registry)),
		service.WithIntrospection(service.NewIntrospectionServer(engine, httpPort, streamRate)),
	)

	if seedPath != "" {
		file, err := routing.LoadSeedFile(seedPath)
		if err != nil {
			return fmt.Errorf("load seed file %s: %w", seedPath, err)
		}
		// Seeding goes through the normal mutation path after start so
		// rules validate against the durable set
		go func() {
			waitHealthy(ctx, engine)
			result, err := engine.Seed(ctx, file)
			if err != nil {
				logger.Error("Seed failed", "error", err)
				return
			}
			logger.Info("Seed complete", "created", result.Created,
				"skipped", result.Skipped, "rejected", len(result.Rejected))
		}()
	}

	return runner.Run(ctx)
}

func kvStore(ctx context.Context, client *natsclient.Client, bucket, description string) (*natsclient.KVStore, error) {
	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: description,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create KV bucket %s: %w", bucket, err)
	}
	return natsclient.NewKVStore(kv, bucket, nil), nil
}

func waitHealthy(ctx context.Context, engine *routing.Engine) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if engine.Health().Healthy {
				return
			}
		}
	}
}

func setupLogging(level string) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel})))
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

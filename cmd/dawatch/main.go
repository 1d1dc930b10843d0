package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/config"
	"availsdk/internal/infrastructure/kafka"
	"availsdk/internal/infrastructure/logging"
	"availsdk/internal/infrastructure/storage"
	"availsdk/internal/infrastructure/substrate"
	"availsdk/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/dawatch.log"
	}
	if rotating, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    "dawatch",
	}); err != nil {
		slog.Error("logger init error", "err", err)
	} else if rotating != nil {
		defer rotating.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.Config{ServiceName: "dawatch", Endpoint: cfg.OtelEndpoint})
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}()

	stateRepo, err := storage.Open(storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		slog.Error("state db error", "err", err)
		os.Exit(1)
	}
	defer stateRepo.Close()

	chain, err := substrate.Connect(ctx, substrate.Config{Endpoint: cfg.Endpoint})
	if err != nil {
		slog.Error("node connection error", "endpoint", cfg.Endpoint, "err", err)
		os.Exit(1)
	}
	defer chain.Close()

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:     cfg.KafkaBrokers,
		TopicPrefix: cfg.KafkaTopicPrefix,
	})
	if err != nil {
		slog.Error("kafka error", "err", err)
		os.Exit(1)
	}
	defer producer.Close()

	watcher, err := application.NewWatcher(chain, producer, stateRepo, stateRepo, watchObserver{}, application.WatcherConfig{
		Network:      cfg.Network,
		StartBlock:   cfg.WatchStartBlock,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		AppIDs:       cfg.WatchAppIDs,
	})
	if err != nil {
		slog.Error("watcher error", "err", err)
		os.Exit(1)
	}

	slog.Info("data submission watcher started",
		"network", cfg.Network,
		"endpoint", chain.Endpoint(),
		"topic", producer.Topic(cfg.Network),
		"start", cfg.WatchStartBlock,
		"batch", cfg.BatchSize,
		"app_ids", cfg.WatchAppIDs,
	)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		slog.Error("watcher stopped", "err", err)
		os.Exit(1)
	}
}

type watchObserver struct{}

func (watchObserver) OnLatestBlock(block uint64) {}

func (watchObserver) OnBatchProcessed(fromBlock, toBlock uint64, submissionCount int) {
	slog.Info("watch batch",
		"from", fromBlock,
		"to", toBlock,
		"submissions", submissionCount,
	)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"availsdk/internal/config"
	"availsdk/internal/infrastructure/kafka"
	"availsdk/internal/infrastructure/logging"
	"availsdk/internal/infrastructure/storage"
	"availsdk/internal/infrastructure/telemetry"
	"availsdk/internal/interfaces/httpapi"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/ledger.log"
	}
	if rotating, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    "ledger",
	}); err != nil {
		slog.Error("logger init error", "err", err)
	} else if rotating != nil {
		defer rotating.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.Config{ServiceName: "ledger", Endpoint: cfg.OtelEndpoint})
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

	repo, err := storage.Open(storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, RedisAddr: cfg.RedisAddr})
	if err != nil {
		slog.Error("ledger db error", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	consumerCfg := kafka.ConsumerConfig{
		Brokers:     cfg.KafkaBrokers,
		TopicPrefix: cfg.KafkaTopicPrefix,
		GroupID:     cfg.KafkaGroupID,
		Network:     cfg.Network,
	}
	reader, err := kafka.NewReader(consumerCfg)
	if err != nil {
		slog.Error("kafka error", "err", err)
		os.Exit(1)
	}
	defer reader.Close()

	metrics := httpapi.NewMetrics()
	if last, ok, err := repo.LastProcessedBlock(ctx, cfg.Network); err == nil && ok {
		metrics.SetLastProcessed(last)
	}

	consumer, err := kafka.NewConsumer(reader, repo, metrics, consumerCfg)
	if err != nil {
		slog.Error("consumer error", "err", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           metricsMux(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("ledger consumer started",
		"network", cfg.Network,
		"group", cfg.KafkaGroupID,
		"topic", kafka.TopicName(cfg.KafkaTopicPrefix, cfg.Network),
		"db_driver", cfg.DBDriver,
		"metrics_addr", cfg.HTTPAddr,
	)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("ledger consumer stopped", "err", err)
		os.Exit(1)
	}
}

func metricsMux(metrics *httpapi.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

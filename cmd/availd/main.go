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
	"availsdk/internal/domain"
	"availsdk/internal/infrastructure/kafka"
	"availsdk/internal/infrastructure/logging"
	"availsdk/internal/infrastructure/noderpc"
	"availsdk/internal/infrastructure/nonces"
	"availsdk/internal/infrastructure/storage"
	"availsdk/internal/infrastructure/substrate"
	"availsdk/internal/infrastructure/telemetry"
	"availsdk/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/availd.log"
	}
	if rotating, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    "availd",
	}); err != nil {
		slog.Error("logger init error", "err", err)
	} else if rotating != nil {
		defer rotating.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.Config{ServiceName: "availd", Endpoint: cfg.OtelEndpoint})
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

	chain, err := substrate.Connect(ctx, substrate.Config{Endpoint: cfg.Endpoint})
	if err != nil {
		slog.Error("node connection error", "endpoint", cfg.Endpoint, "err", err)
		os.Exit(1)
	}
	defer chain.Close()

	node, err := noderpc.NewClient(noderpc.Config{URL: cfg.HTTPRPCURL})
	if err != nil {
		slog.Error("rpc client error", "err", err)
		os.Exit(1)
	}

	ledger, err := storage.Open(storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, RedisAddr: cfg.RedisAddr})
	if err != nil {
		slog.Error("ledger error", "err", err)
		os.Exit(1)
	}
	defer ledger.Close()

	query, err := application.NewQuery(chain, node)
	if err != nil {
		slog.Error("query error", "err", err)
		os.Exit(1)
	}

	metrics := httpapi.NewMetrics()
	if last, ok, err := ledger.LastProcessedBlock(ctx, cfg.Network); err == nil && ok {
		metrics.SetLastProcessed(last)
	}

	// Results go to kafka when brokers are configured, straight into the ledger otherwise.
	var sink application.ResultSink = ledgerSink{ledger}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
		})
		if err != nil {
			slog.Error("kafka error", "err", err)
			os.Exit(1)
		}
		defer producer.Close()
		sink = producer
	}

	var allocator application.NonceAllocator
	if cfg.ManagedNonces {
		redisNonces, err := nonces.NewRedisAllocator(nonces.Config{Addr: cfg.RedisAddr, Network: cfg.Network})
		if err != nil {
			slog.Error("nonce allocator error", "err", err)
			os.Exit(1)
		}
		defer redisNonces.Close()
		allocator = redisNonces
	}

	submitter, err := application.NewSubmitter(chain, allocator, sink, metrics, application.SubmitterConfig{
		Network: cfg.Network,
		Timeout: cfg.TxTimeout,
	})
	if err != nil {
		slog.Error("submitter error", "err", err)
		os.Exit(1)
	}

	deps := httpapi.Deps{
		Query:  query,
		Chain:  chain,
		Kate:   node,
		Ledger: ledger,
	}
	if cfg.Seed != "" {
		signer, err := substrate.NewKeyringSigner(cfg.Seed)
		if err != nil {
			slog.Error("signer error", "err", err)
			os.Exit(1)
		}
		account := application.NewAccount(signer).
			WithAppID(cfg.AppID).
			WithWait(cfg.WaitFor).
			WithNonceMode(cfg.NonceMode)
		deps.Account = &account
		deps.Transactor = application.NewTransactions(submitter)
		slog.Info("signing account loaded", "address", signer.AccountID().SS58(), "app_id", cfg.AppID)
	} else {
		slog.Warn("AVAIL_SEED not set, submission routes disabled")
	}

	httpServer, err := httpapi.NewServer(cfg, deps, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	slog.Info("availd started",
		"network", cfg.Network,
		"endpoint", chain.Endpoint(),
		"db_driver", cfg.DBDriver,
		"kafka", len(cfg.KafkaBrokers) > 0,
		"managed_nonces", cfg.ManagedNonces,
	)
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server stopped", "err", err)
	}
}

type ledgerSink struct {
	repo application.LedgerRepository
}

func (s ledgerSink) PublishTxResults(ctx context.Context, results []domain.TxResultRecord) error {
	return s.repo.StoreTxResults(ctx, results)
}

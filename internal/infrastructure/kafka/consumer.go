package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/infrastructure/telemetry"
	"availsdk/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MessageReader is the subset of *kafka.Reader used by Consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type ConsumerObserver interface {
	OnConsumed(msg streaming.Message)
	OnFetchError()
	OnDecodeError()
	OnApplyError()
}

type ConsumerConfig struct {
	Brokers     []string
	TopicPrefix string
	GroupID     string
	Network     string
	BatchSize   int
	// FlushInterval bounds how long a partial batch waits before it is written.
	FlushInterval time.Duration
}

func NewReader(cfg ConsumerConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka group id is required")
	}
	if cfg.Network == "" {
		return nil, errors.New("network is required")
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    TopicName(prefix, cfg.Network),
		MinBytes: 1,
		MaxBytes: 10e6,
	}), nil
}

// Consumer feeds one network topic into the ledger. Messages are written in batches
// and their offsets committed only after the write succeeds.
type Consumer struct {
	reader   MessageReader
	repo     application.LedgerRepository
	observer ConsumerObserver
	network  string

	batchSize     int
	flushInterval time.Duration
	retryDelay    time.Duration
}

func NewConsumer(reader MessageReader, repo application.LedgerRepository, observer ConsumerObserver, cfg ConsumerConfig) (*Consumer, error) {
	if reader == nil {
		return nil, errors.New("kafka reader is required")
	}
	if repo == nil {
		return nil, errors.New("ledger repository is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	return &Consumer{
		reader:        reader,
		repo:          repo,
		observer:      observer,
		network:       cfg.Network,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		retryDelay:    100 * time.Millisecond,
	}, nil
}

// Run consumes until ctx is cancelled. Pending messages are flushed before returning.
func (c *Consumer) Run(ctx context.Context) error {
	batch := application.NewBatch()
	defer func() {
		if batch.Len() == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := batch.Flush(flushCtx, c.repo, c.reader); err != nil {
			slog.Error("final batch flush error", "err", err)
		}
	}()

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.flushInterval)
		message, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if err := batch.Flush(ctx, c.repo, c.reader); err != nil {
					slog.Error("batch flush error", "reason", "interval", "err", err)
				}
				continue
			}
			c.onFetchError()
			slog.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}
		if err := c.handle(ctx, batch, message); err != nil {
			return err
		}
		if batch.Len() >= c.batchSize {
			if err := batch.Flush(ctx, c.repo, c.reader); err != nil {
				slog.Error("batch flush error", "reason", "size", "err", err)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, batch *application.Batch, message kafka.Message) error {
	decoded, err := streaming.Decode(message.Value)
	if err != nil {
		slog.Warn("message decode error", "offset", message.Offset, "err", err)
		c.onDecodeError()
		return c.reader.CommitMessages(ctx, message)
	}
	if c.network != "" && decoded.Network != c.network {
		slog.Warn("unexpected network on topic", "network", decoded.Network, "expected", c.network)
	}

	messageCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
	if !trace.SpanContextFromContext(messageCtx).IsValid() && decoded.TraceID != "" {
		if withTrace, ok := telemetry.ContextWithTraceID(messageCtx, decoded.TraceID); ok {
			messageCtx = withTrace
		}
	}
	messageCtx, span := otel.Tracer("availsdk/ledger").Start(messageCtx, "ledger.process_message", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("message.type", string(decoded.Type)),
		attribute.String("network", decoded.Network),
	)
	if decoded.BlockNumber != 0 {
		span.SetAttributes(attribute.Int64("block.number", int64(decoded.BlockNumber)))
	}
	if decoded.TxHash != "" {
		span.SetAttributes(attribute.String("tx.hash", decoded.TxHash))
	}

	if batch.Add(decoded, message) {
		c.onConsumed(decoded)
		return nil
	}

	// Reorgs are applied alone, after everything queued before them.
	if err := batch.Flush(messageCtx, c.repo, c.reader); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := application.ApplyMessage(messageCtx, c.repo, decoded); err != nil {
		slog.Error("reorg apply error", "network", decoded.Network, "from_block", decoded.FromBlock, "err", err)
		c.onApplyError()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		slog.Error("reorg commit error", "err", err)
	}
	c.onConsumed(decoded)
	return nil
}

func (c *Consumer) onConsumed(msg streaming.Message) {
	if c.observer != nil {
		c.observer.OnConsumed(msg)
	}
}

func (c *Consumer) onFetchError() {
	if c.observer != nil {
		c.observer.OnFetchError()
	}
}

func (c *Consumer) onDecodeError() {
	if c.observer != nil {
		c.observer.OnDecodeError()
	}
}

func (c *Consumer) onApplyError() {
	if c.observer != nil {
		c.observer.OnApplyError()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

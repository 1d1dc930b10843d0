package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"availsdk/internal/domain"
	"availsdk/internal/infrastructure/telemetry"
	"availsdk/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTopicPrefix = "avail"

// messageWriter is the subset of *kafka.Writer used by Producer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	prefix string
}

type ProducerConfig struct {
	Brokers     []string
	TopicPrefix string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(writer, cfg.TopicPrefix), nil
}

func newProducer(writer messageWriter, prefix string) *Producer {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultTopicPrefix
	}
	return &Producer{writer: writer, prefix: prefix}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Topic is the per-network topic every message of network is written to.
func (p *Producer) Topic(network string) string {
	return TopicName(p.prefix, network)
}

func TopicName(prefix, network string) string {
	return fmt.Sprintf("%s-%s", prefix, network)
}

// outgoing is one message waiting to be traced and written.
type outgoing struct {
	key   string
	msg   streaming.Message
	attrs []attribute.KeyValue
}

func (p *Producer) PublishSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error {
	batch := make([]outgoing, 0, len(submissions))
	for _, sub := range submissions {
		batch = append(batch, outgoing{
			key: sub.TxHash,
			msg: streaming.Message{
				Type:        streaming.MessageTypeSubmission,
				Network:     sub.Network,
				BlockNumber: sub.BlockNumber,
				BlockHash:   sub.BlockHash,
				TxHash:      sub.TxHash,
				TxIndex:     sub.TxIndex,
				Signer:      sub.Signer,
				AppID:       sub.AppID,
				Data:        sub.Data,
				DataSize:    sub.DataSize,
				ObservedAt:  sub.ObservedAt,
			},
			attrs: []attribute.KeyValue{
				attribute.Int64("block.number", int64(sub.BlockNumber)),
				attribute.String("tx.hash", sub.TxHash),
				attribute.Int64("app.id", int64(sub.AppID)),
				attribute.Int("data.size", sub.DataSize),
			},
		})
	}
	return p.publish(ctx, "dawatch.publish_submission", batch)
}

func (p *Producer) PublishBlocks(ctx context.Context, blocks []domain.BlockRecord) error {
	batch := make([]outgoing, 0, len(blocks))
	for _, block := range blocks {
		batch = append(batch, outgoing{
			key: fmt.Sprintf("block:%d", block.BlockNumber),
			msg: streaming.Message{
				Type:           streaming.MessageTypeBlock,
				Network:        block.Network,
				BlockNumber:    block.BlockNumber,
				BlockHash:      block.BlockHash,
				ParentHash:     block.ParentHash,
				ExtrinsicCount: block.ExtrinsicCount,
			},
			attrs: []attribute.KeyValue{
				attribute.Int64("block.number", int64(block.BlockNumber)),
				attribute.String("block.hash", block.BlockHash),
			},
		})
	}
	return p.publish(ctx, "dawatch.publish_block", batch)
}

func (p *Producer) PublishTxResults(ctx context.Context, results []domain.TxResultRecord) error {
	batch := make([]outgoing, 0, len(results))
	for _, result := range results {
		batch = append(batch, outgoing{
			key: result.TxHash,
			msg: streaming.Message{
				Type:        streaming.MessageTypeTxResult,
				Network:     result.Network,
				BlockNumber: result.BlockNumber,
				BlockHash:   result.BlockHash,
				TxHash:      result.TxHash,
				TxIndex:     result.TxIndex,
				Signer:      result.Signer,
				Call:        result.Call,
				Status:      result.Status,
				Success:     result.Success,
				Reason:      result.Reason,
				ObservedAt:  result.SubmittedAt,
			},
			attrs: []attribute.KeyValue{
				attribute.String("tx.hash", result.TxHash),
				attribute.String("tx.call", result.Call),
				attribute.Bool("tx.success", result.Success),
			},
		})
	}
	return p.publish(ctx, "availd.publish_tx_result", batch)
}

func (p *Producer) PublishReorg(ctx context.Context, network string, fromBlock uint64, reason string) error {
	payload, err := streaming.Encode(streaming.Message{
		Type:      streaming.MessageTypeReorg,
		Network:   network,
		FromBlock: fromBlock,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic(network),
		Key:   []byte("reorg"),
		Value: payload,
	})
}

// publish writes the batch in one call with a producer span per message.
func (p *Producer) publish(ctx context.Context, spanName string, batch []outgoing) error {
	if len(batch) == 0 {
		return nil
	}
	tracer := otel.Tracer("availsdk/kafka")
	messages := make([]kafka.Message, 0, len(batch))
	spans := make([]trace.Span, 0, len(batch))
	endAll := func(err error) {
		for _, span := range spans {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
	}

	for _, item := range batch {
		traceCtx, traceID := telemetry.NewRootContext(ctx)
		traceCtx, span := tracer.Start(traceCtx, spanName, trace.WithSpanKind(trace.SpanKindProducer))
		span.SetAttributes(attribute.String("network", item.msg.Network))
		span.SetAttributes(item.attrs...)
		spans = append(spans, span)

		item.msg.TraceID = traceID
		payload, err := streaming.Encode(item.msg)
		if err != nil {
			endAll(err)
			return err
		}
		messages = append(messages, kafka.Message{
			Topic:   p.Topic(item.msg.Network),
			Key:     []byte(item.key),
			Value:   payload,
			Headers: telemetry.InjectKafkaHeaders(traceCtx, nil),
		})
	}
	err := p.writer.WriteMessages(ctx, messages...)
	endAll(err)
	return err
}

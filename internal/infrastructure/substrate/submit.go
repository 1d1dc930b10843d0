package substrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"availsdk/internal/application"
	"availsdk/internal/domain"

	gethrpc "github.com/centrifuge/go-substrate-rpc-client/v4/gethrpc"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEraPeriod is the mortality applied when TxOptions.Era is unset.
const DefaultEraPeriod = 32

// SubmitAndWatch signs call and submits it with author_submitAndWatchExtrinsic.
func (c *Client) SubmitAndWatch(ctx context.Context, call domain.Call, signer application.Signer, nonce uint32, opts domain.TxOptions) (application.StatusStream, error) {
	ctx, span := otel.Tracer("availsdk/substrate").Start(ctx, "substrate.submit_and_watch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("tx.call", call.Name()),
		attribute.Int64("tx.nonce", int64(nonce)),
		attribute.Int64("tx.app_id", int64(opts.AppIDOrZero())),
	)

	encoded, hash, err := c.sign(ctx, call, signer, nonce, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("tx.hash", hash.Hex()))

	updates := make(chan types.ExtrinsicStatus, 4)
	sub, err := c.rpc.Subscribe(ctx, "author", "submitAndWatchExtrinsic", "unwatchExtrinsic", "extrinsicUpdate", updates, codec.HexEncodeToString(encoded))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("author_submitAndWatchExtrinsic: %w", err)
	}
	slog.Debug("extrinsic submitted",
		"tx_hash", hash.Hex(),
		"call", call.Name(),
		"nonce", nonce,
		"app_id", opts.AppIDOrZero(),
	)
	stream := &statusStream{
		hash:    hash,
		sub:     sub,
		updates: make(chan domain.TxStatus),
		done:    make(chan struct{}),
	}
	go stream.run(updates)
	return stream, nil
}

func (c *Client) sign(ctx context.Context, call domain.Call, signer application.Signer, nonce uint32, opts domain.TxOptions) ([]byte, domain.Hash, error) {
	registry := c.runtime()
	callBytes, err := registry.encodeCall(call)
	if err != nil {
		return nil, domain.Hash{}, err
	}
	specVersion, txVersion := c.RuntimeVersion()
	signing := signingContext{
		specVersion: specVersion,
		txVersion:   txVersion,
		genesis:     c.GenesisHash(),
		checkpoint:  c.GenesisHash(),
		nonce:       nonce,
		tip:         opts.TipOrZero(),
		appID:       opts.AppIDOrZero(),
	}

	period := uint64(DefaultEraPeriod)
	if opts.Era != nil {
		period = *opts.Era
	}
	if period > 0 {
		checkpoint, number, err := c.checkpoint(ctx, opts.BlockHash)
		if err != nil {
			return nil, domain.Hash{}, err
		}
		signing.checkpoint = checkpoint
		signing.era = MortalEra(period, number)
	}

	payload, err := signing.payload(callBytes)
	if err != nil {
		return nil, domain.Hash{}, err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return nil, domain.Hash{}, fmt.Errorf("sign %s: %w", call.Name(), err)
	}
	encoded, err := encodeSigned(signer.AccountID(), signature, signing, callBytes)
	if err != nil {
		return nil, domain.Hash{}, err
	}
	return encoded, extrinsicHash(encoded), nil
}

// checkpoint returns the block a mortal era is anchored to: the requested block or
// the latest finalized head.
func (c *Client) checkpoint(ctx context.Context, requested *domain.Hash) (domain.Hash, uint64, error) {
	var hash domain.Hash
	if requested != nil {
		hash = *requested
	} else {
		head, err := c.FinalizedHead(ctx)
		if err != nil {
			return domain.Hash{}, 0, err
		}
		hash = head
	}
	header, err := c.header(ctx, &hash)
	if err != nil {
		return domain.Hash{}, 0, err
	}
	number, err := parseBlockNumber(header.Number)
	if err != nil {
		return domain.Hash{}, 0, err
	}
	return hash, number, nil
}

// subscription is the part of *gethrpc.ClientSubscription a statusStream uses.
type subscription interface {
	Err() <-chan error
	Unsubscribe()
}

var _ subscription = (*gethrpc.ClientSubscription)(nil)

type statusStream struct {
	hash    domain.Hash
	sub     subscription
	updates chan domain.TxStatus
	done    chan struct{}
	once    sync.Once
}

func (s *statusStream) TxHash() domain.Hash {
	return s.hash
}

func (s *statusStream) Updates() <-chan domain.TxStatus {
	return s.updates
}

func (s *statusStream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Unsubscribe()
	})
}

func (s *statusStream) run(raw <-chan types.ExtrinsicStatus) {
	defer close(s.updates)
	for {
		select {
		case <-s.done:
			return
		case status := <-raw:
			if !s.send(convertStatus(status)) {
				return
			}
		case err, ok := <-s.sub.Err():
			if ok && err != nil {
				s.send(domain.TxStatus{Kind: domain.StatusError, Err: err})
			}
			return
		}
	}
}

func (s *statusStream) send(status domain.TxStatus) bool {
	select {
	case s.updates <- status:
		return true
	case <-s.done:
		return false
	}
}

func convertStatus(status types.ExtrinsicStatus) domain.TxStatus {
	switch {
	case status.IsFuture:
		return domain.TxStatus{Kind: domain.StatusFuture}
	case status.IsReady:
		return domain.TxStatus{Kind: domain.StatusReady}
	case status.IsBroadcast:
		return domain.TxStatus{Kind: domain.StatusBroadcast}
	case status.IsInBlock:
		return domain.TxStatus{Kind: domain.StatusInBlock, BlockHash: domain.Hash(status.AsInBlock)}
	case status.IsRetracted:
		return domain.TxStatus{Kind: domain.StatusRetracted, BlockHash: domain.Hash(status.AsRetracted)}
	case status.IsFinalityTimeout:
		return domain.TxStatus{Kind: domain.StatusFinalityTimeout, BlockHash: domain.Hash(status.AsFinalityTimeout)}
	case status.IsFinalized:
		return domain.TxStatus{Kind: domain.StatusFinalized, BlockHash: domain.Hash(status.AsFinalized)}
	case status.IsUsurped:
		return domain.TxStatus{Kind: domain.StatusUsurped, BlockHash: domain.Hash(status.AsUsurped)}
	case status.IsDropped:
		return domain.TxStatus{Kind: domain.StatusDropped}
	case status.IsInvalid:
		return domain.TxStatus{Kind: domain.StatusInvalid}
	default:
		return domain.TxStatus{Kind: domain.StatusPending}
	}
}

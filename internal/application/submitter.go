package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"availsdk/internal/domain"
)

// Signer signs extrinsic payloads for one account.
type Signer interface {
	AccountID() domain.AccountID
	Sign(payload []byte) ([]byte, error)
}

// StatusStream is a live subscription to the status of one submitted extrinsic.
// Updates is closed once the subscription ends; Close unsubscribes.
type StatusStream interface {
	TxHash() domain.Hash
	Updates() <-chan domain.TxStatus
	Close()
}

// TxClient is the chain connection the submitter drives.
type TxClient interface {
	SubmitAndWatch(ctx context.Context, call domain.Call, signer Signer, nonce uint32, opts domain.TxOptions) (StatusStream, error)
	AccountNonce(ctx context.Context, account domain.AccountID, mode domain.NonceMode) (uint32, error)
	BlockByHash(ctx context.Context, hash domain.Hash) (domain.Block, error)
	Events(ctx context.Context, blockHash domain.Hash) ([]domain.EventRecord, error)
	ResolveDispatchError(dispatchErr domain.DispatchError) domain.DispatchError
}

// NonceAllocator hands out nonces for accounts shared by several submitters.
type NonceAllocator interface {
	Next(ctx context.Context, account domain.AccountID, chainNonce uint32) (uint32, error)
	Reset(ctx context.Context, account domain.AccountID) error
}

// ResultSink receives the outcome of every submission.
type ResultSink interface {
	PublishTxResults(ctx context.Context, results []domain.TxResultRecord) error
}

type SubmitterObserver interface {
	OnSubmitted(call string)
	OnResolved(call string, status string, failed bool, latency time.Duration)
}

type SubmitterConfig struct {
	Network string
	// Timeout bounds a whole submission; zero leaves it to the caller's context.
	Timeout time.Duration
}

// Submitter signs, submits and watches extrinsics until they reach the requested
// inclusion state, then collects the events the extrinsic emitted.
type Submitter struct {
	client   TxClient
	nonces   NonceAllocator
	sink     ResultSink
	observer SubmitterObserver
	cfg      SubmitterConfig
}

func NewSubmitter(client TxClient, nonces NonceAllocator, sink ResultSink, observer SubmitterObserver, cfg SubmitterConfig) (*Submitter, error) {
	if client == nil {
		return nil, errors.New("submitter client must not be nil")
	}
	return &Submitter{client: client, nonces: nonces, sink: sink, observer: observer, cfg: cfg}, nil
}

// Submit drives one call to completion. Failures are returned as *domain.TransactionFailed.
func (s *Submitter) Submit(ctx context.Context, call domain.Call, signer Signer, wait domain.WaitFor, opts domain.TxOptions) (domain.TxDetails, error) {
	details, _, err := s.submit(ctx, call, signer, wait, opts)
	return details, err
}

// submit also returns the included extrinsic so helpers can recover call arguments.
func (s *Submitter) submit(ctx context.Context, call domain.Call, signer Signer, wait domain.WaitFor, opts domain.TxOptions) (domain.TxDetails, domain.Extrinsic, error) {
	if signer == nil {
		return domain.TxDetails{}, domain.Extrinsic{}, errors.New("signer is required")
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	account := signer.AccountID()

	nonce, err := s.resolveNonce(ctx, account, opts)
	if err != nil {
		failed := domain.TransportFailed(fmt.Errorf("resolve nonce: %w", err), nil)
		s.finish(ctx, call, account, start, domain.TxDetails{}, failed)
		return domain.TxDetails{}, domain.Extrinsic{}, failed
	}

	stream, err := s.client.SubmitAndWatch(ctx, call, signer, nonce, opts)
	if err != nil {
		s.releaseNonce(ctx, account, opts)
		failed := domain.TransportFailed(err, nil)
		s.finish(ctx, call, account, start, domain.TxDetails{}, failed)
		return domain.TxDetails{}, domain.Extrinsic{}, failed
	}
	defer stream.Close()
	if s.observer != nil {
		s.observer.OnSubmitted(call.Name())
	}
	slog.Info("transaction submitted",
		"call", call.Name(),
		"tx_hash", stream.TxHash().Hex(),
		"signer", account.SS58(),
		"nonce", nonce,
		"app_id", opts.AppIDOrZero(),
	)

	status, err := s.await(ctx, stream, wait)
	if err != nil {
		var failed *domain.TransactionFailed
		if errors.As(err, &failed) && status.Kind != domain.StatusError {
			s.releaseNonce(ctx, account, opts)
		}
		s.finish(ctx, call, account, start, domain.TxDetails{TxHash: stream.TxHash(), Status: status.Kind}, err)
		return domain.TxDetails{}, domain.Extrinsic{}, err
	}

	details, extrinsic, err := s.collect(ctx, stream.TxHash(), status)
	s.finish(ctx, call, account, start, details, err)
	return details, extrinsic, err
}

func (s *Submitter) await(ctx context.Context, stream StatusStream, wait domain.WaitFor) (domain.TxStatus, error) {
	state := StatePending
	for {
		select {
		case <-ctx.Done():
			return domain.TxStatus{Kind: domain.StatusError}, &domain.TransactionFailed{
				Reason: fmt.Sprintf("transaction cancelled: %v", ctx.Err()),
				Err:    ctx.Err(),
			}
		case status, ok := <-stream.Updates():
			if !ok {
				return domain.TxStatus{Kind: domain.StatusError}, domain.Failed(domain.ReasonStreamClosed, nil)
			}
			var outcome Outcome
			state, outcome = Classify(state, status, wait)
			slog.Debug("transaction status",
				"tx_hash", stream.TxHash().Hex(),
				"status", status.Kind.String(),
				"state", state.String(),
			)
			if !outcome.Done {
				continue
			}
			if outcome.Failed {
				return status, domain.Failed(outcome.Reason, nil)
			}
			return status, nil
		}
	}
}

func (s *Submitter) collect(ctx context.Context, txHash domain.Hash, status domain.TxStatus) (domain.TxDetails, domain.Extrinsic, error) {
	details := domain.TxDetails{TxHash: txHash, BlockHash: status.BlockHash, Status: status.Kind}
	block, err := s.client.BlockByHash(ctx, status.BlockHash)
	if err != nil {
		return details, domain.Extrinsic{}, domain.TransportFailed(fmt.Errorf("fetch block %s: %w", status.BlockHash, err), &details)
	}
	details.BlockNumber = block.Number
	extrinsic, ok := block.ByHash(txHash)
	if !ok {
		notFound := fmt.Errorf("%w: %s in block %s", domain.ErrExtrinsicNotFound, txHash, status.BlockHash)
		return details, domain.Extrinsic{}, domain.TransportFailed(notFound, &details)
	}
	details.TxIndex = extrinsic.Index

	records, err := s.client.Events(ctx, status.BlockHash)
	if err != nil {
		return details, extrinsic, domain.TransportFailed(fmt.Errorf("fetch events %s: %w", status.BlockHash, err), &details)
	}
	details.Events = domain.ForExtrinsic(records, extrinsic.Index)

	if dispatchErr, failed := domain.FindExtrinsicFailure(details.Events); failed {
		dispatchErr = s.client.ResolveDispatchError(dispatchErr)
		return details, extrinsic, domain.Failed(dispatchErr.String(), &details)
	}
	return details, extrinsic, nil
}

func (s *Submitter) resolveNonce(ctx context.Context, account domain.AccountID, opts domain.TxOptions) (uint32, error) {
	if opts.Nonce != nil {
		return *opts.Nonce, nil
	}
	nonce, err := s.client.AccountNonce(ctx, account, opts.NonceMode)
	if err != nil {
		return 0, err
	}
	if s.nonces == nil {
		return nonce, nil
	}
	return s.nonces.Next(ctx, account, nonce)
}

// releaseNonce drops the allocator state after a rejection so the next call resyncs with the chain.
func (s *Submitter) releaseNonce(ctx context.Context, account domain.AccountID, opts domain.TxOptions) {
	if s.nonces == nil || opts.Nonce != nil {
		return
	}
	if err := s.nonces.Reset(context.WithoutCancel(ctx), account); err != nil {
		slog.Warn("nonce reset failed", "account", account.SS58(), "err", err)
	}
}

func (s *Submitter) finish(ctx context.Context, call domain.Call, account domain.AccountID, start time.Time, details domain.TxDetails, err error) {
	latency := time.Since(start)
	record := domain.TxResultRecord{
		Network:     s.cfg.Network,
		TxHash:      details.TxHash.Hex(),
		Call:        call.Name(),
		Signer:      account.SS58(),
		Status:      details.Status.String(),
		Success:     err == nil,
		SubmittedAt: start.UTC(),
	}
	if !details.BlockHash.IsZero() {
		record.BlockHash = details.BlockHash.Hex()
		record.BlockNumber = uint64(details.BlockNumber)
		record.TxIndex = details.TxIndex
	}
	if err != nil {
		record.Reason = err.Error()
		slog.Warn("transaction failed", "call", record.Call, "tx_hash", record.TxHash, "reason", record.Reason, "latency", latency)
	} else {
		slog.Info("transaction resolved", "call", record.Call, "tx_hash", record.TxHash, "block_hash", record.BlockHash, "status", record.Status, "latency", latency)
	}
	if s.observer != nil {
		s.observer.OnResolved(record.Call, record.Status, err != nil, latency)
	}
	if s.sink != nil {
		if sinkErr := s.sink.PublishTxResults(context.WithoutCancel(ctx), []domain.TxResultRecord{record}); sinkErr != nil {
			slog.Warn("publish tx result failed", "tx_hash", record.TxHash, "err", sinkErr)
		}
	}
}

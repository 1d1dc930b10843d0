package main

import (
	"context"
	"errors"
	"fmt"

	"availsdk/internal/application"
	"availsdk/internal/config"
	"availsdk/internal/infrastructure/noderpc"
	"availsdk/internal/infrastructure/substrate"
)

// session is one command's connection to the node.
type session struct {
	cfg   config.Config
	chain *substrate.Client
	node  *noderpc.Client
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	chain, err := substrate.Connect(ctx, substrate.Config{Endpoint: cfg.Endpoint})
	if err != nil {
		return nil, err
	}
	node, err := noderpc.NewClient(noderpc.Config{URL: cfg.HTTPRPCURL})
	if err != nil {
		chain.Close()
		return nil, err
	}
	return &session{cfg: cfg, chain: chain, node: node}, nil
}

func (s *session) Close() {
	s.chain.Close()
}

func (s *session) query() (*application.Query, error) {
	return application.NewQuery(s.chain, s.node)
}

// account builds the signing account from AVAIL_SEED with the configured defaults.
func (s *session) account() (application.Account, error) {
	if s.cfg.Seed == "" {
		return application.Account{}, errors.New("AVAIL_SEED is required to sign transactions")
	}
	signer, err := substrate.NewKeyringSigner(s.cfg.Seed)
	if err != nil {
		return application.Account{}, err
	}
	return application.NewAccount(signer).
		WithAppID(s.cfg.AppID).
		WithWait(s.cfg.WaitFor).
		WithNonceMode(s.cfg.NonceMode), nil
}

func (s *session) transactions() (*application.Transactions, error) {
	submitter, err := application.NewSubmitter(s.chain, nil, nil, nil, application.SubmitterConfig{
		Network: s.cfg.Network,
		Timeout: s.cfg.TxTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("submitter: %w", err)
	}
	return application.NewTransactions(submitter), nil
}

package application

import (
	"math/big"

	"availsdk/internal/domain"
)

// Account bundles a signer with the options applied to its submissions.
// It is a value: every With* method returns a modified copy, so one Account can be
// shared between goroutines and specialised per call.
type Account struct {
	signer Signer
	wait   domain.WaitFor
	opts   domain.TxOptions
}

func NewAccount(signer Signer) Account {
	return Account{signer: signer, wait: domain.WaitForInclusion}
}

func (a Account) Signer() Signer              { return a.signer }
func (a Account) Wait() domain.WaitFor        { return a.wait }
func (a Account) Options() domain.TxOptions   { return a.opts }
func (a Account) AccountID() domain.AccountID { return a.signer.AccountID() }

func (a Account) WithWait(wait domain.WaitFor) Account {
	a.wait = wait
	return a
}

func (a Account) WithOptions(opts domain.TxOptions) Account {
	a.opts = opts
	return a
}

func (a Account) WithAppID(id uint32) Account {
	a.opts = a.opts.WithAppID(id)
	return a
}

func (a Account) WithNonce(nonce uint32) Account {
	a.opts = a.opts.WithNonce(nonce)
	return a
}

func (a Account) WithNonceMode(mode domain.NonceMode) Account {
	a.opts = a.opts.WithNonceMode(mode)
	return a
}

func (a Account) WithTip(tip *big.Int) Account {
	a.opts = a.opts.WithTip(tip)
	return a
}

func (a Account) WithEra(period uint64) Account {
	a.opts = a.opts.WithEra(period)
	return a
}

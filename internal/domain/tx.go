package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// WaitFor selects the inclusion state that resolves a submission.
type WaitFor int

const (
	WaitForInclusion WaitFor = iota
	WaitForFinalization
)

func (w WaitFor) String() string {
	switch w {
	case WaitForInclusion:
		return "inclusion"
	case WaitForFinalization:
		return "finalization"
	default:
		return fmt.Sprintf("WaitFor(%d)", int(w))
	}
}

func ParseWaitFor(raw string) (WaitFor, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "inclusion", "in_block", "inblock":
		return WaitForInclusion, nil
	case "finalization", "finalized", "final":
		return WaitForFinalization, nil
	default:
		return 0, fmt.Errorf("invalid wait condition %q", raw)
	}
}

// NonceMode chooses where the nonce comes from when TxOptions.Nonce is unset.
type NonceMode int

const (
	// NonceBestBlockAndTxPool asks the node, counting its pending pool.
	NonceBestBlockAndTxPool NonceMode = iota
	NonceBestBlock
	NonceFinalizedBlock
)

func (m NonceMode) String() string {
	switch m {
	case NonceBestBlockAndTxPool:
		return "node"
	case NonceBestBlock:
		return "best"
	case NonceFinalizedBlock:
		return "finalized"
	default:
		return fmt.Sprintf("NonceMode(%d)", int(m))
	}
}

func ParseNonceMode(raw string) (NonceMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "node", "pool":
		return NonceBestBlockAndTxPool, nil
	case "state", "best":
		return NonceBestBlock, nil
	case "finalized":
		return NonceFinalizedBlock, nil
	default:
		return 0, fmt.Errorf("invalid nonce mode %q", raw)
	}
}

// TxOptions is an immutable set of per-call overrides. The With* methods return
// modified copies; unset fields fall back to chain-determined defaults.
type TxOptions struct {
	AppID     *uint32
	Nonce     *uint32
	NonceMode NonceMode
	Era       *uint64
	BlockHash *Hash
	Tip       *big.Int
}

func (o TxOptions) WithAppID(id uint32) TxOptions {
	o.AppID = &id
	return o
}

func (o TxOptions) WithNonce(nonce uint32) TxOptions {
	o.Nonce = &nonce
	return o
}

func (o TxOptions) WithNonceMode(mode NonceMode) TxOptions {
	o.NonceMode = mode
	return o
}

func (o TxOptions) WithEra(period uint64) TxOptions {
	o.Era = &period
	return o
}

func (o TxOptions) WithBlockHash(hash Hash) TxOptions {
	o.BlockHash = &hash
	return o
}

func (o TxOptions) WithTip(tip *big.Int) TxOptions {
	if tip == nil {
		o.Tip = nil
		return o
	}
	o.Tip = new(big.Int).Set(tip)
	return o
}

func (o TxOptions) AppIDOrZero() uint32 {
	if o.AppID == nil {
		return 0
	}
	return *o.AppID
}

func (o TxOptions) TipOrZero() *big.Int {
	if o.Tip == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(o.Tip)
}

// Call names a runtime call. Args are SCALE-encodable values in declaration order.
type Call struct {
	Pallet string
	Method string
	Args   []any
}

func NewCall(pallet, method string, args ...any) Call {
	return Call{Pallet: pallet, Method: method, Args: args}
}

func (c Call) Name() string {
	return c.Pallet + "." + c.Method
}

// TxStatusKind enumerates the statuses a node reports for a watched extrinsic.
type TxStatusKind int

const (
	StatusPending TxStatusKind = iota
	StatusFuture
	StatusReady
	StatusBroadcast
	StatusInBlock
	StatusRetracted
	StatusFinalityTimeout
	StatusFinalized
	StatusUsurped
	StatusDropped
	StatusInvalid
	StatusError
)

var statusNames = map[TxStatusKind]string{
	StatusPending:         "pending",
	StatusFuture:          "future",
	StatusReady:           "ready",
	StatusBroadcast:       "broadcast",
	StatusInBlock:         "in_block",
	StatusRetracted:       "retracted",
	StatusFinalityTimeout: "finality_timeout",
	StatusFinalized:       "finalized",
	StatusUsurped:         "usurped",
	StatusDropped:         "dropped",
	StatusInvalid:         "invalid",
	StatusError:           "error",
}

func (k TxStatusKind) String() string {
	if name, ok := statusNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TxStatusKind(%d)", int(k))
}

func (k TxStatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TxStatus is one update on a submission status stream.
type TxStatus struct {
	Kind      TxStatusKind
	BlockHash Hash
	Err       error
}

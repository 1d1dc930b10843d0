package domain

import "fmt"

// Fixed failure reasons reported by the submitter.
const (
	ReasonDropped         = "transaction dropped"
	ReasonInvalid         = "transaction invalid"
	ReasonUsurped         = "transaction usurped"
	ReasonFinalityTimeout = "transaction finality timeout"
	ReasonStreamClosed    = "transaction status stream closed"
)

// TxDetails describes an extrinsic that reached its wait condition.
type TxDetails struct {
	TxHash      Hash          `json:"tx_hash"`
	TxIndex     uint32        `json:"tx_index"`
	BlockHash   Hash          `json:"block_hash"`
	BlockNumber uint32        `json:"block_number"`
	Status      TxStatusKind  `json:"status"`
	Events      []EventRecord `json:"events"`
}

func (d TxDetails) Finalized() bool {
	return d.Status == StatusFinalized
}

// Succeeded reports whether the extrinsic emitted System.ExtrinsicSuccess.
func (d TxDetails) Succeeded() bool {
	_, ok := FindFirst[ExtrinsicSuccess](d.Events)
	return ok
}

// TransactionFailed is returned for every failed submission. Details is set when the
// transaction reached a block before failing.
type TransactionFailed struct {
	Reason  string
	Details *TxDetails
	// Err is the transport or lookup error behind Reason, if any.
	Err error
}

func (e *TransactionFailed) Error() string {
	return e.Reason
}

func (e *TransactionFailed) Unwrap() error {
	return e.Err
}

func Failed(reason string, details *TxDetails) *TransactionFailed {
	return &TransactionFailed{Reason: reason, Details: details}
}

// TransportFailed wraps an RPC or lookup error in the failure shape, keeping what is
// already known about the transaction.
func TransportFailed(err error, details *TxDetails) *TransactionFailed {
	return &TransactionFailed{Reason: fmt.Sprintf("transaction error: %v", err), Details: details, Err: err}
}

// MissingEvent is the failure reported when a successful call lacks its expected event.
func MissingEvent(name string, details *TxDetails) *TransactionFailed {
	return Failed(fmt.Sprintf("failed to find %s event", name), details)
}

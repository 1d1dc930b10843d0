package domain

import "time"

// BlockRecord stores the canonical hash for a watched block number.
type BlockRecord struct {
	Network        string
	BlockNumber    uint64
	BlockHash      string
	ParentHash     string
	ExtrinsicCount int
}

// SubmissionRecord is a data submission persisted by the ledger.
type SubmissionRecord struct {
	Network     string    `json:"network"`
	BlockNumber uint64    `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
	TxHash      string    `json:"tx_hash"`
	TxIndex     uint32    `json:"tx_index"`
	Signer      string    `json:"signer"`
	AppID       uint32    `json:"app_id"`
	Data        string    `json:"data"`
	DataSize    int       `json:"data_size"`
	ObservedAt  time.Time `json:"observed_at"`
}

// TxResultRecord is the outcome of a submission made through this service.
type TxResultRecord struct {
	Network     string    `json:"network"`
	TxHash      string    `json:"tx_hash"`
	BlockHash   string    `json:"block_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	TxIndex     uint32    `json:"tx_index,omitempty"`
	Call        string    `json:"call"`
	Signer      string    `json:"signer"`
	Status      string    `json:"status"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmissionFromBlock converts a block projection into a ledger record.
func SubmissionFromBlock(network string, block Block, submission DataSubmission) SubmissionRecord {
	return SubmissionRecord{
		Network:     network,
		BlockNumber: uint64(block.Number),
		BlockHash:   block.Hash.Hex(),
		TxHash:      submission.TxHash.Hex(),
		TxIndex:     submission.TxIndex,
		Signer:      submission.Signer.SS58(),
		AppID:       submission.AppID,
		Data:        "0x" + submission.Hex(),
		DataSize:    len(submission.Data),
	}
}

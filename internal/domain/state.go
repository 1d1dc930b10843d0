package domain

import "math/big"

// AccountInfo is the System.Account storage entry.
type AccountInfo struct {
	Nonce       uint32   `json:"nonce"`
	Consumers   uint32   `json:"consumers"`
	Providers   uint32   `json:"providers"`
	Sufficients uint32   `json:"sufficients"`
	Free        *big.Int `json:"free"`
	Reserved    *big.Int `json:"reserved"`
	Frozen      *big.Int `json:"frozen"`
}

// AppKey is one DataAvailability.AppKeys entry.
type AppKey struct {
	Key   []byte    `json:"key"`
	Owner AccountID `json:"owner"`
	ID    uint32    `json:"id"`
}

// BlockLength is the kate matrix layout of a block.
type BlockLength struct {
	Max       PerDispatchClass `json:"max"`
	Cols      uint32           `json:"cols"`
	Rows      uint32           `json:"rows"`
	ChunkSize uint32           `json:"chunk_size"`
}

type PerDispatchClass struct {
	Normal      uint32 `json:"normal"`
	Operational uint32 `json:"operational"`
	Mandatory   uint32 `json:"mandatory"`
}

// Cell addresses one kate matrix cell.
type Cell struct {
	Row uint32 `json:"row"`
	Col uint32 `json:"col"`
}

// MaxCells bounds a single kate_queryProof request.
const MaxCells = 10000

// DataProof is the merkle proof of a data submission returned by kate_queryDataProof.
type DataProof struct {
	Root           Hash   `json:"root"`
	Proof          []Hash `json:"proof"`
	NumberOfLeaves uint32 `json:"number_of_leaves"`
	LeafIndex      uint32 `json:"leaf_index"`
	Leaf           Hash   `json:"leaf"`
}

package domain

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

var ErrExtrinsicNotFound = errors.New("extrinsic not found")

// Block is a fetched block with its extrinsics decoded far enough for introspection.
type Block struct {
	Hash       Hash        `json:"hash"`
	Number     uint32      `json:"number"`
	ParentHash Hash        `json:"parent_hash"`
	Extrinsics []Extrinsic `json:"extrinsics"`
}

// Extrinsic is one block body entry. Args holds the SCALE-encoded call arguments.
type Extrinsic struct {
	Index     uint32     `json:"index"`
	Hash      Hash       `json:"hash"`
	Signed    bool       `json:"signed"`
	Signer    *AccountID `json:"signer,omitempty"`
	AppID     uint32     `json:"app_id"`
	Nonce     uint32     `json:"nonce"`
	Tip       *big.Int   `json:"tip,omitempty"`
	Pallet    string     `json:"pallet"`
	Method    string     `json:"method"`
	CallIndex [2]byte    `json:"call_index"`
	Args      []byte     `json:"-"`
	Raw       []byte     `json:"-"`
}

func (e Extrinsic) Is(pallet, method string) bool {
	return e.Pallet == pallet && e.Method == method
}

// DataSubmission is the projection of a DataAvailability.submit_data extrinsic.
type DataSubmission struct {
	TxHash  Hash      `json:"tx_hash"`
	TxIndex uint32    `json:"tx_index"`
	Signer  AccountID `json:"signer"`
	AppID   uint32    `json:"app_id"`
	Data    []byte    `json:"data"`
}

func (d DataSubmission) Hex() string {
	return hex.EncodeToString(d.Data)
}

// ASCII returns the data as text, or "" when it is not valid UTF-8.
func (d DataSubmission) ASCII() string {
	if !utf8.Valid(d.Data) {
		return ""
	}
	return string(d.Data)
}

func (b Block) BySigner(signer AccountID) []Extrinsic {
	return b.filter(func(e Extrinsic) bool {
		return e.Signer != nil && *e.Signer == signer
	})
}

func (b Block) ByAppID(appID uint32) []Extrinsic {
	return b.filter(func(e Extrinsic) bool {
		return e.Signed && e.AppID == appID
	})
}

func (b Block) ByHash(hash Hash) (Extrinsic, bool) {
	for _, extrinsic := range b.Extrinsics {
		if extrinsic.Hash == hash {
			return extrinsic, true
		}
	}
	return Extrinsic{}, false
}

func (b Block) ByIndex(index uint32) (Extrinsic, bool) {
	for _, extrinsic := range b.Extrinsics {
		if extrinsic.Index == index {
			return extrinsic, true
		}
	}
	return Extrinsic{}, false
}

func (b Block) filter(keep func(Extrinsic) bool) []Extrinsic {
	var out []Extrinsic
	for _, extrinsic := range b.Extrinsics {
		if keep(extrinsic) {
			out = append(out, extrinsic)
		}
	}
	return out
}

// DataSubmissions lists the signed submit_data extrinsics of the block.
func (b Block) DataSubmissions() []DataSubmission {
	var out []DataSubmission
	for _, extrinsic := range b.Extrinsics {
		if submission, ok := AsDataSubmission(extrinsic); ok {
			out = append(out, submission)
		}
	}
	return out
}

func (b Block) DataSubmissionsByAppID(appID uint32) []DataSubmission {
	var out []DataSubmission
	for _, submission := range b.DataSubmissions() {
		if submission.AppID == appID {
			out = append(out, submission)
		}
	}
	return out
}

func (b Block) DataSubmissionsBySigner(signer AccountID) []DataSubmission {
	var out []DataSubmission
	for _, submission := range b.DataSubmissions() {
		if submission.Signer == signer {
			out = append(out, submission)
		}
	}
	return out
}

func AsDataSubmission(extrinsic Extrinsic) (DataSubmission, bool) {
	if !extrinsic.Is("DataAvailability", "submit_data") || extrinsic.Signer == nil {
		return DataSubmission{}, false
	}
	data, err := DecodeCompactBytes(extrinsic.Args)
	if err != nil {
		return DataSubmission{}, false
	}
	return DataSubmission{
		TxHash:  extrinsic.Hash,
		TxIndex: extrinsic.Index,
		Signer:  *extrinsic.Signer,
		AppID:   extrinsic.AppID,
		Data:    data,
	}, true
}

// DecodeHexData decodes a hex string with or without the 0x prefix.
func DecodeHexData(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	return hex.DecodeString(trimmed)
}

// DecodeCompactBytes reads a SCALE Vec<u8>: a compact length followed by the bytes.
func DecodeCompactBytes(buf []byte) ([]byte, error) {
	var data []byte
	if err := codec.Decode(buf, &data); err != nil {
		return nil, err
	}
	return data, nil
}

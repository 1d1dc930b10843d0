package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeBlock      MessageType = "block"
	MessageTypeSubmission MessageType = "submission"
	MessageTypeTxResult   MessageType = "tx_result"
	MessageTypeReorg      MessageType = "reorg"
)

type Message struct {
	ID             string      `json:"id"`
	Type           MessageType `json:"type"`
	Network        string      `json:"network"`
	TraceID        string      `json:"trace_id,omitempty"`
	BlockNumber    uint64      `json:"block_number,omitempty"`
	BlockHash      string      `json:"block_hash,omitempty"`
	ParentHash     string      `json:"parent_hash,omitempty"`
	ExtrinsicCount int         `json:"extrinsic_count,omitempty"`
	TxHash         string      `json:"tx_hash,omitempty"`
	TxIndex        uint32      `json:"tx_index,omitempty"`
	Signer         string      `json:"signer,omitempty"`
	AppID          uint32      `json:"app_id,omitempty"`
	Data           string      `json:"data,omitempty"`
	DataSize       int         `json:"data_size,omitempty"`
	Call           string      `json:"call,omitempty"`
	Status         string      `json:"status,omitempty"`
	Success        bool        `json:"success,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	FromBlock      uint64      `json:"from_block,omitempty"`
	ObservedAt     time.Time   `json:"observed_at,omitzero"`
}

// Encode validates msg and serializes it, assigning an id when none is set.
func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.Network == "" {
		return nil, errors.New("network is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.Network == "" {
		return Message{}, errors.New("network is missing")
	}
	return msg, nil
}

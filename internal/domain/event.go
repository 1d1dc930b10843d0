package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

type PhaseKind int

const (
	PhaseApplyExtrinsic PhaseKind = iota
	PhaseFinalization
	PhaseInitialization
)

// Phase is the block execution phase an event was emitted in.
type Phase struct {
	Kind           PhaseKind `json:"kind"`
	ExtrinsicIndex uint32    `json:"extrinsic_index,omitempty"`
}

func ApplyExtrinsic(index uint32) Phase {
	return Phase{Kind: PhaseApplyExtrinsic, ExtrinsicIndex: index}
}

func (p Phase) IsExtrinsic(index uint32) bool {
	return p.Kind == PhaseApplyExtrinsic && p.ExtrinsicIndex == index
}

// EventRecord is a chain event with its fields normalized to Go values:
// AccountID, Hash, []byte, uint64, *big.Int, bool, string, map[string]any and []any.
type EventRecord struct {
	Index  uint32         `json:"index"`
	Pallet string         `json:"pallet"`
	Name   string         `json:"name"`
	Phase  Phase          `json:"phase"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (r EventRecord) ID() string {
	return r.Pallet + "." + r.Name
}

func (r EventRecord) Is(pallet, name string) bool {
	return r.Pallet == pallet && r.Name == name
}

// ForExtrinsic keeps the events emitted while applying the extrinsic at index.
func ForExtrinsic(records []EventRecord, index uint32) []EventRecord {
	out := make([]EventRecord, 0, len(records))
	for _, record := range records {
		if record.Phase.IsExtrinsic(index) {
			out = append(out, record)
		}
	}
	return out
}

var errMissingField = errors.New("missing field")

type fieldReader struct {
	fields map[string]any
	err    error
}

func readFields(record EventRecord) *fieldReader {
	return &fieldReader{fields: record.Fields}
}

func (r *fieldReader) raw(name string) (any, bool) {
	if r.err != nil {
		return nil, false
	}
	value, ok := r.fields[name]
	if !ok {
		r.err = fmt.Errorf("%w %q", errMissingField, name)
		return nil, false
	}
	return value, true
}

func (r *fieldReader) fail(name string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("field %q: %w", name, err)
	}
}

func (r *fieldReader) account(name string) AccountID {
	value, ok := r.raw(name)
	if !ok {
		return AccountID{}
	}
	id, err := AsAccountID(value)
	if err != nil {
		r.fail(name, err)
	}
	return id
}

func (r *fieldReader) hash(name string) Hash {
	value, ok := r.raw(name)
	if !ok {
		return Hash{}
	}
	h, err := AsHash(value)
	if err != nil {
		r.fail(name, err)
	}
	return h
}

func (r *fieldReader) uint(name string) uint64 {
	value, ok := r.raw(name)
	if !ok {
		return 0
	}
	n, err := AsUint64(value)
	if err != nil {
		r.fail(name, err)
	}
	return n
}

func (r *fieldReader) big(name string) *big.Int {
	value, ok := r.raw(name)
	if !ok {
		return new(big.Int)
	}
	n, err := AsBigInt(value)
	if err != nil {
		r.fail(name, err)
		return new(big.Int)
	}
	return n
}

func (r *fieldReader) bytes(name string) []byte {
	value, ok := r.raw(name)
	if !ok {
		return nil
	}
	b, err := AsBytes(value)
	if err != nil {
		r.fail(name, err)
	}
	return b
}

func (r *fieldReader) bool(name string) bool {
	value, ok := r.raw(name)
	if !ok {
		return false
	}
	b, isBool := value.(bool)
	if !isBool {
		r.fail(name, fmt.Errorf("expected bool, got %T", value))
	}
	return b
}

func (r *fieldReader) nested(name string) *fieldReader {
	value, ok := r.raw(name)
	if !ok {
		return &fieldReader{err: r.err}
	}
	fields, isMap := value.(map[string]any)
	if !isMap {
		r.fail(name, fmt.Errorf("expected struct, got %T", value))
		return &fieldReader{err: r.err}
	}
	return &fieldReader{fields: fields}
}

func (r *fieldReader) optional(name string) (any, bool) {
	value, ok := r.fields[name]
	return value, ok
}

func AsAccountID(value any) (AccountID, error) {
	switch v := value.(type) {
	case AccountID:
		return v, nil
	case []byte:
		return AccountIDFromBytes(v)
	case string:
		return ParseAccountID(v)
	default:
		return AccountID{}, fmt.Errorf("expected account id, got %T", value)
	}
}

func AsHash(value any) (Hash, error) {
	switch v := value.(type) {
	case Hash:
		return v, nil
	case []byte:
		return HashFromBytes(v)
	case string:
		return ParseHash(v)
	default:
		return Hash{}, fmt.Errorf("expected hash, got %T", value)
	}
}

func AsBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return DecodeHexData(v)
	case Hash:
		return v[:], nil
	case AccountID:
		return v[:], nil
	default:
		return nil, fmt.Errorf("expected bytes, got %T", value)
	}
}

func AsUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	case *big.Int:
		if v == nil || !v.IsUint64() {
			return 0, fmt.Errorf("value %v does not fit in uint64", v)
		}
		return v.Uint64(), nil
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected unsigned integer, got %T", value)
	}
}

func AsBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return new(big.Int), nil
		}
		return new(big.Int).Set(v), nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		return n, nil
	default:
		n, err := AsUint64(value)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(n), nil
	}
}

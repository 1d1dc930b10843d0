package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/vedhavyas/go-subkey/v2"
)

// SubstrateSS58Prefix is the generic Substrate address format used by Avail.
const SubstrateSS58Prefix uint16 = 42

// AccountID is a 32-byte sr25519 public key.
type AccountID [32]byte

func AccountIDFromBytes(b []byte) (AccountID, error) {
	var id AccountID
	if len(b) != len(id) {
		return id, fmt.Errorf("account id must be 32 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseAccountID accepts an SS58 address or a 0x-prefixed hex public key.
func ParseAccountID(raw string) (AccountID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AccountID{}, errors.New("empty address")
	}
	if strings.HasPrefix(raw, "0x") {
		decoded, err := hex.DecodeString(raw[2:])
		if err != nil {
			return AccountID{}, fmt.Errorf("invalid hex account id: %w", err)
		}
		return AccountIDFromBytes(decoded)
	}
	_, pub, err := subkey.SS58Decode(raw)
	if err != nil {
		return AccountID{}, fmt.Errorf("invalid ss58 address %q: %w", raw, err)
	}
	return AccountIDFromBytes(pub)
}

func (a AccountID) SS58() string {
	return subkey.SS58Encode(a[:], SubstrateSS58Prefix)
}

func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountID) String() string {
	return a.SS58()
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.SS58()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash is a 32-byte block or transaction hash.
type Hash [32]byte

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func ParseHash(raw string) (Hash, error) {
	decoded, err := DecodeHexData(raw)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash: %w", err)
	}
	return HashFromBytes(decoded)
}

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

package application

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"
)

const multisigPrefix = "modlpy/utilisuba"

// SortSignatories returns a copy of signatories in the byte order the Multisig pallet requires.
func SortSignatories(signatories []domain.AccountID) []domain.AccountID {
	sorted := append([]domain.AccountID(nil), signatories...)
	sort.Slice(sorted, func(a, b int) bool {
		return bytes.Compare(sorted[a][:], sorted[b][:]) < 0
	})
	return sorted
}

// MultisigAddress derives the account controlled by threshold of signatories.
func MultisigAddress(signatories []domain.AccountID, threshold uint16) (domain.AccountID, error) {
	if len(signatories) == 0 {
		return domain.AccountID{}, errors.New("multisig needs at least one signatory")
	}
	if threshold == 0 || int(threshold) > len(signatories) {
		return domain.AccountID{}, fmt.Errorf("invalid threshold %d for %d signatories", threshold, len(signatories))
	}
	sorted := SortSignatories(signatories)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return domain.AccountID{}, fmt.Errorf("duplicate signatory %s", sorted[i].SS58())
		}
	}
	who, err := codec.Encode(accountsArg(sorted))
	if err != nil {
		return domain.AccountID{}, fmt.Errorf("encode signatories: %w", err)
	}
	encodedThreshold, err := codec.Encode(types.NewU16(threshold))
	if err != nil {
		return domain.AccountID{}, fmt.Errorf("encode threshold: %w", err)
	}

	payload := make([]byte, 0, len(multisigPrefix)+len(who)+len(encodedThreshold))
	payload = append(payload, multisigPrefix...)
	payload = append(payload, who...)
	payload = append(payload, encodedThreshold...)
	return domain.AccountID(blake2b.Sum256(payload)), nil
}

// CallHash is the blake2-256 hash of an encoded call, as used by approve_as_multi.
func CallHash(encodedCall []byte) domain.Hash {
	return domain.Hash(blake2b.Sum256(encodedCall))
}

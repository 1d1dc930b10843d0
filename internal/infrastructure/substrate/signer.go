package substrate

import (
	"fmt"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// SS58Prefix is the generic substrate address prefix Avail uses.
const SS58Prefix = 42

// KeyringSigner signs with an sr25519 key derived from a secret seed or URI.
type KeyringSigner struct {
	pair    signature.KeyringPair
	account domain.AccountID
}

// NewKeyringSigner accepts a mnemonic, a hex seed or a dev URI such as "//Alice".
func NewKeyringSigner(seed string) (*KeyringSigner, error) {
	pair, err := signature.KeyringPairFromSecret(seed, SS58Prefix)
	if err != nil {
		return nil, fmt.Errorf("derive keyring pair: %w", err)
	}
	account, err := domain.AccountIDFromBytes(pair.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyringSigner{pair: pair, account: account}, nil
}

func (s *KeyringSigner) AccountID() domain.AccountID {
	return s.account
}

func (s *KeyringSigner) Sign(payload []byte) ([]byte, error) {
	return signature.Sign(payload, s.pair.URI)
}

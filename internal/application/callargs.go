package application

import (
	"fmt"
	"math/big"
	"strings"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

func addressArg(id domain.AccountID) types.MultiAddress {
	return types.MultiAddress{IsID: true, AsID: types.AccountID(id)}
}

func accountArg(id domain.AccountID) types.AccountID {
	return types.AccountID(id)
}

func compactArg(value *big.Int) types.UCompact {
	if value == nil {
		value = new(big.Int)
	}
	return types.NewUCompact(value)
}

func addressesArg(ids []domain.AccountID) []types.MultiAddress {
	out := make([]types.MultiAddress, 0, len(ids))
	for _, id := range ids {
		out = append(out, addressArg(id))
	}
	return out
}

func accountsArg(ids []domain.AccountID) []types.AccountID {
	out := make([]types.AccountID, 0, len(ids))
	for _, id := range ids {
		out = append(out, accountArg(id))
	}
	return out
}

// RewardKind selects where staking rewards are paid.
type RewardKind uint8

const (
	RewardStaked RewardKind = iota
	RewardStash
	RewardController
	RewardAccount
	RewardNone
)

type RewardDestination struct {
	Kind    RewardKind
	Account domain.AccountID
}

func (d RewardDestination) Encode(encoder scale.Encoder) error {
	if d.Kind > RewardNone {
		return fmt.Errorf("invalid reward destination %d", d.Kind)
	}
	if err := encoder.PushByte(byte(d.Kind)); err != nil {
		return err
	}
	if d.Kind == RewardAccount {
		return encoder.Encode(types.AccountID(d.Account))
	}
	return nil
}

// ParseRewardDestination accepts Staked, Stash, Controller, None or an account address.
func ParseRewardDestination(raw string) (RewardDestination, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "staked", "":
		return RewardDestination{Kind: RewardStaked}, nil
	case "stash":
		return RewardDestination{Kind: RewardStash}, nil
	case "controller":
		return RewardDestination{Kind: RewardController}, nil
	case "none":
		return RewardDestination{Kind: RewardNone}, nil
	}
	account, err := domain.ParseAccountID(raw)
	if err != nil {
		return RewardDestination{}, fmt.Errorf("invalid reward destination %q: %w", raw, err)
	}
	return RewardDestination{Kind: RewardAccount, Account: account}, nil
}

type validatorPrefs struct {
	commission uint32
	blocked    bool
}

func (p validatorPrefs) Encode(encoder scale.Encoder) error {
	if err := encoder.EncodeUintCompact(*new(big.Int).SetUint64(uint64(p.commission))); err != nil {
		return err
	}
	return encoder.Encode(types.NewBool(p.blocked))
}

// PoolBondExtra is the source of extra funds bonded into a nomination pool.
type PoolBondExtra struct {
	// Rewards re-bonds pending rewards; otherwise FreeBalance is bonded.
	Rewards     bool
	FreeBalance *big.Int
}

func (b PoolBondExtra) Encode(encoder scale.Encoder) error {
	if b.Rewards {
		return encoder.PushByte(1)
	}
	if err := encoder.PushByte(0); err != nil {
		return err
	}
	amount := b.FreeBalance
	if amount == nil {
		amount = new(big.Int)
	}
	return encoder.Encode(types.NewU128(*amount))
}

// ClaimPermission controls who may claim pool rewards on a member's behalf.
type ClaimPermission uint8

const (
	PermissionedClaim ClaimPermission = iota
	PermissionlessCompound
	PermissionlessWithdraw
	PermissionlessAll
)

func ParseClaimPermission(raw string) (ClaimPermission, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "permissioned":
		return PermissionedClaim, nil
	case "permissionlesscompound", "compound":
		return PermissionlessCompound, nil
	case "permissionlesswithdraw", "withdraw":
		return PermissionlessWithdraw, nil
	case "permissionlessall", "all":
		return PermissionlessAll, nil
	default:
		return 0, fmt.Errorf("invalid claim permission %q", raw)
	}
}

// PoolState is the lifecycle state of a nomination pool.
type PoolState uint8

const (
	PoolOpen PoolState = iota
	PoolBlocked
	PoolDestroying
)

func ParsePoolState(raw string) (PoolState, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return PoolOpen, nil
	case "blocked":
		return PoolBlocked, nil
	case "destroying":
		return PoolDestroying, nil
	default:
		return 0, fmt.Errorf("invalid pool state %q", raw)
	}
}

// poolCommission is Option<(Perbill, AccountId)>.
type poolCommission struct {
	set     bool
	perbill uint32
	payee   domain.AccountID
}

func (c poolCommission) Encode(encoder scale.Encoder) error {
	if !c.set {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	if err := encoder.Encode(types.NewU32(c.perbill)); err != nil {
		return err
	}
	return encoder.Encode(types.AccountID(c.payee))
}

// FeeModifier adjusts the fee charged for DataAvailability.submit_data.
// Nil fields are encoded as None.
type FeeModifier struct {
	WeightMaximumFee    *big.Int
	WeightFeeDivider    *uint32
	WeightFeeMultiplier *uint32
}

func (m FeeModifier) Encode(encoder scale.Encoder) error {
	if m.WeightMaximumFee == nil {
		if err := encoder.PushByte(0); err != nil {
			return err
		}
	} else if err := encoder.EncodeOption(true, types.NewU128(*m.WeightMaximumFee)); err != nil {
		return err
	}
	for _, value := range []*uint32{m.WeightFeeDivider, m.WeightFeeMultiplier} {
		if value == nil {
			if err := encoder.PushByte(0); err != nil {
				return err
			}
			continue
		}
		if err := encoder.EncodeOption(true, types.NewU32(*value)); err != nil {
			return err
		}
	}
	return nil
}

// multisigTimepoint is Option<Timepoint>.
type multisigTimepoint struct {
	point *domain.Timepoint
}

func (t multisigTimepoint) Encode(encoder scale.Encoder) error {
	if t.point == nil {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	if err := encoder.Encode(types.NewU32(t.point.Height)); err != nil {
		return err
	}
	return encoder.Encode(types.NewU32(t.point.Index))
}

// Weight is the two-dimensional dispatch weight.
type Weight struct {
	RefTime   uint64 `json:"ref_time"`
	ProofSize uint64 `json:"proof_size"`
}

func (w Weight) Encode(encoder scale.Encoder) error {
	if err := encoder.EncodeUintCompact(*new(big.Int).SetUint64(w.RefTime)); err != nil {
		return err
	}
	return encoder.EncodeUintCompact(*new(big.Int).SetUint64(w.ProofSize))
}

// SessionKeys is the concatenation of babe, grandpa, im_online and authority_discovery keys.
type SessionKeys [128]byte

func ParseSessionKeys(raw string) (SessionKeys, error) {
	var keys SessionKeys
	decoded, err := domain.DecodeHexData(raw)
	if err != nil {
		return keys, fmt.Errorf("decode session keys: %w", err)
	}
	if len(decoded) != len(keys) {
		return keys, fmt.Errorf("session keys must be %d bytes, got %d", len(keys), len(decoded))
	}
	copy(keys[:], decoded)
	return keys, nil
}

func (k SessionKeys) Encode(encoder scale.Encoder) error {
	return encoder.Write(k[:])
}

package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// Transactions wraps the submitter with one helper per supported runtime call. Each
// helper checks for the event the call is expected to emit.
type Transactions struct {
	submitter *Submitter
}

func NewTransactions(submitter *Submitter) *Transactions {
	return &Transactions{submitter: submitter}
}

func (t *Transactions) Submitter() *Submitter {
	return t.submitter
}

func (t *Transactions) send(ctx context.Context, account Account, call domain.Call) (domain.TxDetails, domain.Extrinsic, error) {
	return t.submitter.submit(ctx, call, account.Signer(), account.Wait(), account.Options())
}

// sudo wraps call in Sudo.sudo and fails when the inner dispatch failed.
func (t *Transactions) sudo(ctx context.Context, account Account, call domain.Call) (domain.TxDetails, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("Sudo", "sudo", call))
	if err != nil {
		return details, err
	}
	sudid, err := expect[domain.Sudid](details)
	if err != nil {
		return details, err
	}
	if !sudid.Result.Ok {
		dispatchErr := t.submitter.client.ResolveDispatchError(sudid.Result.Error)
		return details, domain.Failed(dispatchErr.String(), &details)
	}
	return details, nil
}

func expect[T domain.Event](details domain.TxDetails) (T, error) {
	event, ok := domain.FindFirst[T](details.Events)
	if !ok {
		var zero T
		return zero, domain.MissingEvent(zero.EventID(), &details)
	}
	return event, nil
}

func optional[T domain.Event](details domain.TxDetails) *T {
	event, ok := domain.FindFirst[T](details.Events)
	if !ok {
		return nil
	}
	return &event
}

// Data availability

type SubmitDataResult struct {
	Details domain.TxDetails
	Event   domain.DataSubmitted
	// Data is the payload as recovered from the included extrinsic.
	Data []byte
}

func (t *Transactions) SubmitData(ctx context.Context, account Account, data []byte) (SubmitDataResult, error) {
	details, extrinsic, err := t.send(ctx, account, domain.NewCall("DataAvailability", "submit_data", types.NewBytes(data)))
	if err != nil {
		return SubmitDataResult{Details: details}, err
	}
	event, err := expect[domain.DataSubmitted](details)
	if err != nil {
		return SubmitDataResult{Details: details}, err
	}
	result := SubmitDataResult{Details: details, Event: event}
	if submission, ok := domain.AsDataSubmission(extrinsic); ok {
		result.Data = submission.Data
	}
	return result, nil
}

type CreateApplicationKeyResult struct {
	Details domain.TxDetails
	Event   domain.ApplicationKeyCreated
}

func (t *Transactions) CreateApplicationKey(ctx context.Context, account Account, key []byte) (CreateApplicationKeyResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("DataAvailability", "create_application_key", types.NewBytes(key)))
	if err != nil {
		return CreateApplicationKeyResult{Details: details}, err
	}
	event, err := expect[domain.ApplicationKeyCreated](details)
	return CreateApplicationKeyResult{Details: details, Event: event}, err
}

type SetApplicationKeyResult struct {
	Details domain.TxDetails
	Event   domain.ApplicationKeySet
}

func (t *Transactions) SetApplicationKey(ctx context.Context, account Account, oldKey, newKey []byte) (SetApplicationKeyResult, error) {
	call := domain.NewCall("DataAvailability", "set_application_key", types.NewBytes(oldKey), types.NewBytes(newKey))
	details, err := t.sudo(ctx, account, call)
	if err != nil {
		return SetApplicationKeyResult{Details: details}, err
	}
	event, err := expect[domain.ApplicationKeySet](details)
	return SetApplicationKeyResult{Details: details, Event: event}, err
}

type BlockLengthProposalResult struct {
	Details domain.TxDetails
	Event   domain.BlockLengthProposalSubmitted
}

func (t *Transactions) SubmitBlockLengthProposal(ctx context.Context, account Account, rows, cols uint32) (BlockLengthProposalResult, error) {
	call := domain.NewCall("DataAvailability", "submit_block_length_proposal", types.NewU32(rows), types.NewU32(cols))
	details, err := t.sudo(ctx, account, call)
	if err != nil {
		return BlockLengthProposalResult{Details: details}, err
	}
	event, err := expect[domain.BlockLengthProposalSubmitted](details)
	return BlockLengthProposalResult{Details: details, Event: event}, err
}

type FeeModifierResult struct {
	Details domain.TxDetails
	Event   domain.SubmitDataFeeModifierSet
}

func (t *Transactions) SetSubmitDataFeeModifier(ctx context.Context, account Account, modifier FeeModifier) (FeeModifierResult, error) {
	details, err := t.sudo(ctx, account, domain.NewCall("DataAvailability", "set_submit_data_fee_modifier", modifier))
	if err != nil {
		return FeeModifierResult{Details: details}, err
	}
	event, err := expect[domain.SubmitDataFeeModifierSet](details)
	return FeeModifierResult{Details: details, Event: event}, err
}

// Balances

type TransferResult struct {
	Details domain.TxDetails
	Event   domain.Transfer
	// Killed is set when the transfer reaped the sender account.
	Killed *domain.KilledAccount
}

// TransferKeepAliveCall builds the call without submitting it, for wrapping in multisig or sudo.
func TransferKeepAliveCall(dest domain.AccountID, amount *big.Int) domain.Call {
	return domain.NewCall("Balances", "transfer_keep_alive", addressArg(dest), compactArg(amount))
}

func (t *Transactions) TransferKeepAlive(ctx context.Context, account Account, dest domain.AccountID, amount *big.Int) (TransferResult, error) {
	return t.transfer(ctx, account, TransferKeepAliveCall(dest, amount))
}

func (t *Transactions) TransferAllowDeath(ctx context.Context, account Account, dest domain.AccountID, amount *big.Int) (TransferResult, error) {
	return t.transfer(ctx, account, domain.NewCall("Balances", "transfer_allow_death", addressArg(dest), compactArg(amount)))
}

func (t *Transactions) TransferAll(ctx context.Context, account Account, dest domain.AccountID, keepAlive bool) (TransferResult, error) {
	return t.transfer(ctx, account, domain.NewCall("Balances", "transfer_all", addressArg(dest), types.NewBool(keepAlive)))
}

func (t *Transactions) transfer(ctx context.Context, account Account, call domain.Call) (TransferResult, error) {
	details, _, err := t.send(ctx, account, call)
	if err != nil {
		return TransferResult{Details: details}, err
	}
	event, err := expect[domain.Transfer](details)
	if err != nil {
		return TransferResult{Details: details}, err
	}
	return TransferResult{Details: details, Event: event, Killed: optional[domain.KilledAccount](details)}, nil
}

// Staking

type BondResult struct {
	Details domain.TxDetails
	Event   domain.StakingBonded
}

func (t *Transactions) Bond(ctx context.Context, account Account, value *big.Int, payee RewardDestination) (BondResult, error) {
	return t.bond(ctx, account, domain.NewCall("Staking", "bond", compactArg(value), payee))
}

func (t *Transactions) BondExtra(ctx context.Context, account Account, value *big.Int) (BondResult, error) {
	return t.bond(ctx, account, domain.NewCall("Staking", "bond_extra", compactArg(value)))
}

func (t *Transactions) bond(ctx context.Context, account Account, call domain.Call) (BondResult, error) {
	details, _, err := t.send(ctx, account, call)
	if err != nil {
		return BondResult{Details: details}, err
	}
	event, err := expect[domain.StakingBonded](details)
	return BondResult{Details: details, Event: event}, err
}

type ChillResult struct {
	Details domain.TxDetails
	Event   domain.StakingChilled
}

func (t *Transactions) Chill(ctx context.Context, account Account) (ChillResult, error) {
	return t.chill(ctx, account, domain.NewCall("Staking", "chill"))
}

func (t *Transactions) ChillOther(ctx context.Context, account Account, stash domain.AccountID) (ChillResult, error) {
	return t.chill(ctx, account, domain.NewCall("Staking", "chill_other", accountArg(stash)))
}

func (t *Transactions) chill(ctx context.Context, account Account, call domain.Call) (ChillResult, error) {
	details, _, err := t.send(ctx, account, call)
	if err != nil {
		return ChillResult{Details: details}, err
	}
	event, err := expect[domain.StakingChilled](details)
	return ChillResult{Details: details, Event: event}, err
}

type UnbondResult struct {
	Details domain.TxDetails
	Event   domain.StakingUnbonded
}

func (t *Transactions) Unbond(ctx context.Context, account Account, value *big.Int) (UnbondResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("Staking", "unbond", compactArg(value)))
	if err != nil {
		return UnbondResult{Details: details}, err
	}
	event, err := expect[domain.StakingUnbonded](details)
	return UnbondResult{Details: details, Event: event}, err
}

type ValidateResult struct {
	Details domain.TxDetails
	Event   domain.ValidatorPrefsSet
}

// Validate declares the signer as a validator. commission is a whole percentage.
func (t *Transactions) Validate(ctx context.Context, account Account, commission float64, blocked bool) (ValidateResult, error) {
	perbill, err := commissionPerbill(commission)
	if err != nil {
		return ValidateResult{}, err
	}
	call := domain.NewCall("Staking", "validate", validatorPrefs{commission: perbill, blocked: blocked})
	details, _, err := t.send(ctx, account, call)
	if err != nil {
		return ValidateResult{Details: details}, err
	}
	event, err := expect[domain.ValidatorPrefsSet](details)
	return ValidateResult{Details: details, Event: event}, err
}

type NominateResult struct {
	Details domain.TxDetails
	// Targets are the nominations as recorded in the included extrinsic.
	Targets []domain.AccountID
}

func (t *Transactions) Nominate(ctx context.Context, account Account, targets []domain.AccountID) (NominateResult, error) {
	details, extrinsic, err := t.send(ctx, account, domain.NewCall("Staking", "nominate", addressesArg(targets)))
	if err != nil {
		return NominateResult{Details: details}, err
	}
	recovered, err := NominationTargets(extrinsic)
	if err != nil {
		return NominateResult{Details: details}, domain.Failed(fmt.Sprintf("failed to decode nomination targets: %v", err), &details)
	}
	return NominateResult{Details: details, Targets: recovered}, nil
}

// NominationTargets decodes the target list of a Staking.nominate extrinsic.
func NominationTargets(extrinsic domain.Extrinsic) ([]domain.AccountID, error) {
	if !extrinsic.Is("Staking", "nominate") {
		return nil, fmt.Errorf("extrinsic %d is %s.%s, not Staking.nominate", extrinsic.Index, extrinsic.Pallet, extrinsic.Method)
	}
	var addresses []types.MultiAddress
	if err := codec.Decode(extrinsic.Args, &addresses); err != nil {
		return nil, err
	}
	out := make([]domain.AccountID, 0, len(addresses))
	for _, address := range addresses {
		if !address.IsID {
			return nil, errors.New("nomination target is not an account id")
		}
		out = append(out, domain.AccountID(address.AsID))
	}
	return out, nil
}

type PayoutStakersResult struct {
	Details domain.TxDetails
}

func (t *Transactions) PayoutStakers(ctx context.Context, account Account, stash domain.AccountID, era uint32) (PayoutStakersResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("Staking", "payout_stakers", accountArg(stash), types.NewU32(era)))
	return PayoutStakersResult{Details: details}, err
}

// Nomination pools

type PoolCreateResult struct {
	Details domain.TxDetails
	Event   domain.PoolCreated
	Bonded  domain.PoolBonded
}

// PoolRoles are the privileged accounts of a nomination pool.
type PoolRoles struct {
	Root      domain.AccountID
	Nominator domain.AccountID
	Bouncer   domain.AccountID
}

func (t *Transactions) PoolCreate(ctx context.Context, account Account, amount *big.Int, roles PoolRoles) (PoolCreateResult, error) {
	call := domain.NewCall("NominationPools", "create",
		compactArg(amount), addressArg(roles.Root), addressArg(roles.Nominator), addressArg(roles.Bouncer))
	return t.poolCreate(ctx, account, call)
}

func (t *Transactions) PoolCreateWithPoolID(ctx context.Context, account Account, amount *big.Int, roles PoolRoles, poolID uint32) (PoolCreateResult, error) {
	call := domain.NewCall("NominationPools", "create_with_pool_id",
		compactArg(amount), addressArg(roles.Root), addressArg(roles.Nominator), addressArg(roles.Bouncer), types.NewU32(poolID))
	return t.poolCreate(ctx, account, call)
}

func (t *Transactions) poolCreate(ctx context.Context, account Account, call domain.Call) (PoolCreateResult, error) {
	details, _, err := t.send(ctx, account, call)
	if err != nil {
		return PoolCreateResult{Details: details}, err
	}
	created, err := expect[domain.PoolCreated](details)
	if err != nil {
		return PoolCreateResult{Details: details}, err
	}
	bonded, err := expect[domain.PoolBonded](details)
	return PoolCreateResult{Details: details, Event: created, Bonded: bonded}, err
}

type PoolBondResult struct {
	Details domain.TxDetails
	Event   domain.PoolBonded
}

func (t *Transactions) PoolJoin(ctx context.Context, account Account, amount *big.Int, poolID uint32) (PoolBondResult, error) {
	return t.poolBond(ctx, account, domain.NewCall("NominationPools", "join", compactArg(amount), types.NewU32(poolID)))
}

func (t *Transactions) PoolBondExtra(ctx context.Context, account Account, extra PoolBondExtra) (PoolBondResult, error) {
	return t.poolBond(ctx, account, domain.NewCall("NominationPools", "bond_extra", extra))
}

func (t *Transactions) poolBond(ctx context.Context, account Account, call domain.Call) (PoolBondResult, error) {
	details, _, err := t.send(ctx, account, call)
	if err != nil {
		return PoolBondResult{Details: details}, err
	}
	event, err := expect[domain.PoolBonded](details)
	return PoolBondResult{Details: details, Event: event}, err
}

// PoolResult is returned by pool calls that emit no pool specific event.
type PoolResult struct {
	Details domain.TxDetails
}

func (t *Transactions) PoolNominate(ctx context.Context, account Account, poolID uint32, validators []domain.AccountID) (PoolResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "nominate", types.NewU32(poolID), accountsArg(validators)))
	return PoolResult{Details: details}, err
}

func (t *Transactions) PoolSetMetadata(ctx context.Context, account Account, poolID uint32, metadata []byte) (PoolResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "set_metadata", types.NewU32(poolID), types.NewBytes(metadata)))
	return PoolResult{Details: details}, err
}

func (t *Transactions) PoolChill(ctx context.Context, account Account, poolID uint32) (PoolResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "chill", types.NewU32(poolID)))
	return PoolResult{Details: details}, err
}

func (t *Transactions) PoolSetClaimPermission(ctx context.Context, account Account, permission ClaimPermission) (PoolResult, error) {
	if permission > PermissionlessAll {
		return PoolResult{}, fmt.Errorf("invalid claim permission %d", permission)
	}
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "set_claim_permission", types.NewU8(uint8(permission))))
	return PoolResult{Details: details}, err
}

type PoolUnbondResult struct {
	Details domain.TxDetails
	Event   domain.PoolUnbonded
}

func (t *Transactions) PoolUnbond(ctx context.Context, account Account, member domain.AccountID, points *big.Int) (PoolUnbondResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "unbond", addressArg(member), compactArg(points)))
	if err != nil {
		return PoolUnbondResult{Details: details}, err
	}
	event, err := expect[domain.PoolUnbonded](details)
	return PoolUnbondResult{Details: details, Event: event}, err
}

type PoolCommissionClaimedResult struct {
	Details domain.TxDetails
	Event   domain.PoolCommissionClaimed
}

func (t *Transactions) PoolClaimCommission(ctx context.Context, account Account, poolID uint32) (PoolCommissionClaimedResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "claim_commission", types.NewU32(poolID)))
	if err != nil {
		return PoolCommissionClaimedResult{Details: details}, err
	}
	event, err := expect[domain.PoolCommissionClaimed](details)
	return PoolCommissionClaimedResult{Details: details, Event: event}, err
}

type PoolPayoutResult struct {
	Details domain.TxDetails
	// Event is nil when there was nothing to pay out.
	Event *domain.PoolPaidOut
}

func (t *Transactions) PoolClaimPayout(ctx context.Context, account Account) (PoolPayoutResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "claim_payout"))
	if err != nil {
		return PoolPayoutResult{Details: details}, err
	}
	return PoolPayoutResult{Details: details, Event: optional[domain.PoolPaidOut](details)}, nil
}

func (t *Transactions) PoolClaimPayoutOther(ctx context.Context, account Account, other domain.AccountID) (PoolPayoutResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "claim_payout_other", accountArg(other)))
	if err != nil {
		return PoolPayoutResult{Details: details}, err
	}
	return PoolPayoutResult{Details: details, Event: optional[domain.PoolPaidOut](details)}, nil
}

// PoolCommission is a new pool commission. A nil *PoolCommission clears it.
type PoolCommission struct {
	Percent float64
	Payee   domain.AccountID
}

type PoolCommissionResult struct {
	Details domain.TxDetails
	Event   domain.PoolCommissionUpdated
}

func (t *Transactions) PoolSetCommission(ctx context.Context, account Account, poolID uint32, commission *PoolCommission) (PoolCommissionResult, error) {
	arg := poolCommission{}
	if commission != nil {
		perbill, err := commissionPerbill(commission.Percent)
		if err != nil {
			return PoolCommissionResult{}, err
		}
		arg = poolCommission{set: true, perbill: perbill, payee: commission.Payee}
	}
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "set_commission", types.NewU32(poolID), arg))
	if err != nil {
		return PoolCommissionResult{Details: details}, err
	}
	event, err := expect[domain.PoolCommissionUpdated](details)
	return PoolCommissionResult{Details: details, Event: event}, err
}

type PoolWithdrawResult struct {
	Details domain.TxDetails
	Event   domain.PoolWithdrawn
}

func (t *Transactions) PoolWithdrawUnbonded(ctx context.Context, account Account, member domain.AccountID, slashingSpans uint32) (PoolWithdrawResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "withdraw_unbonded", addressArg(member), types.NewU32(slashingSpans)))
	if err != nil {
		return PoolWithdrawResult{Details: details}, err
	}
	event, err := expect[domain.PoolWithdrawn](details)
	return PoolWithdrawResult{Details: details, Event: event}, err
}

type PoolStateResult struct {
	Details domain.TxDetails
	// Event is nil when the pool was already in the requested state.
	Event *domain.PoolStateChanged
}

func (t *Transactions) PoolSetState(ctx context.Context, account Account, poolID uint32, state PoolState) (PoolStateResult, error) {
	if state > PoolDestroying {
		return PoolStateResult{}, fmt.Errorf("invalid pool state %d", state)
	}
	details, _, err := t.send(ctx, account, domain.NewCall("NominationPools", "set_state", types.NewU32(poolID), types.NewU8(uint8(state))))
	if err != nil {
		return PoolStateResult{Details: details}, err
	}
	return PoolStateResult{Details: details, Event: optional[domain.PoolStateChanged](details)}, nil
}

// Multisig

type MultisigResult struct {
	Details  domain.TxDetails
	New      *domain.NewMultisig
	Approval *domain.MultisigApproval
	Executed *domain.MultisigExecuted
}

func multisigResult(details domain.TxDetails) (MultisigResult, error) {
	result := MultisigResult{
		Details:  details,
		New:      optional[domain.NewMultisig](details),
		Approval: optional[domain.MultisigApproval](details),
		Executed: optional[domain.MultisigExecuted](details),
	}
	if result.New == nil && result.Approval == nil && result.Executed == nil {
		return result, domain.MissingEvent("Multisig.NewMultisig", &details)
	}
	return result, nil
}

// AsMulti approves and, once the threshold is met, dispatches call from the multisig account.
// others are the other signatories; timepoint is nil for the first approval.
func (t *Transactions) AsMulti(ctx context.Context, account Account, threshold uint16, others []domain.AccountID, timepoint *domain.Timepoint, call domain.Call, maxWeight Weight) (MultisigResult, error) {
	sorted := SortSignatories(others)
	multi := domain.NewCall("Multisig", "as_multi",
		types.NewU16(threshold), accountsArg(sorted), multisigTimepoint{point: timepoint}, call, maxWeight)
	details, _, err := t.send(ctx, account, multi)
	if err != nil {
		return MultisigResult{Details: details}, err
	}
	result, err := multisigResult(details)
	if err != nil {
		return result, err
	}
	if result.Executed != nil && !result.Executed.Result.Ok {
		dispatchErr := t.submitter.client.ResolveDispatchError(result.Executed.Result.Error)
		return result, domain.Failed(dispatchErr.String(), &details)
	}
	return result, nil
}

func (t *Transactions) ApproveAsMulti(ctx context.Context, account Account, threshold uint16, others []domain.AccountID, timepoint *domain.Timepoint, callHash domain.Hash, maxWeight Weight) (MultisigResult, error) {
	sorted := SortSignatories(others)
	multi := domain.NewCall("Multisig", "approve_as_multi",
		types.NewU16(threshold), accountsArg(sorted), multisigTimepoint{point: timepoint}, types.NewHash(callHash[:]), maxWeight)
	details, _, err := t.send(ctx, account, multi)
	if err != nil {
		return MultisigResult{Details: details}, err
	}
	return multisigResult(details)
}

// Session

type SetKeysResult struct {
	Details domain.TxDetails
}

func (t *Transactions) SetKeys(ctx context.Context, account Account, keys SessionKeys) (SetKeysResult, error) {
	details, _, err := t.send(ctx, account, domain.NewCall("Session", "set_keys", keys, types.NewBytes([]byte{})))
	return SetKeysResult{Details: details}, err
}

package domain

import (
	"errors"
	"fmt"
	"math/big"
)

var ErrEventNotFound = errors.New("event not found")

// Event is the closed set of chain events this package understands.
// DecodeEvent never fails: anything it cannot type becomes UnrecognizedEvent.
type Event interface {
	EventID() string
	isEvent()
}

type UnrecognizedEvent struct {
	Record EventRecord
	Err    error
}

type Transfer struct {
	From   AccountID
	To     AccountID
	Amount *big.Int
}

type Endowed struct {
	Account     AccountID
	FreeBalance *big.Int
}

type NewAccount struct {
	Account AccountID
}

type KilledAccount struct {
	Account AccountID
}

type ExtrinsicSuccess struct{}

type ExtrinsicFailed struct {
	DispatchError DispatchError
}

type TransactionFeePaid struct {
	Who       AccountID
	ActualFee *big.Int
	Tip       *big.Int
}

type DataSubmitted struct {
	Who      AccountID
	DataHash Hash
}

type ApplicationKeyCreated struct {
	Key   []byte
	Owner AccountID
	ID    uint32
}

type ApplicationKeySet struct {
	OldKey []byte
	NewKey []byte
}

type BlockLengthProposalSubmitted struct {
	Rows uint32
	Cols uint32
}

type SubmitDataFeeModifierSet struct {
	Value map[string]any
}

type StakingBonded struct {
	Stash  AccountID
	Amount *big.Int
}

type StakingUnbonded struct {
	Stash  AccountID
	Amount *big.Int
}

type StakingChilled struct {
	Stash AccountID
}

type ValidatorPrefsSet struct {
	Stash      AccountID
	Commission uint32
	Blocked    bool
}

type Timepoint struct {
	Height uint32 `json:"height"`
	Index  uint32 `json:"index"`
}

type NewMultisig struct {
	Approving AccountID
	Multisig  AccountID
	CallHash  Hash
}

type MultisigApproval struct {
	Approving AccountID
	Timepoint Timepoint
	Multisig  AccountID
	CallHash  Hash
}

type MultisigExecuted struct {
	Approving AccountID
	Timepoint Timepoint
	Multisig  AccountID
	CallHash  Hash
	Result    DispatchOutcome
}

type PoolCreated struct {
	Depositor AccountID
	PoolID    uint32
}

type PoolBonded struct {
	Member AccountID
	PoolID uint32
	Bonded *big.Int
	Joined bool
}

type PoolUnbonded struct {
	Member  AccountID
	PoolID  uint32
	Balance *big.Int
	Points  *big.Int
	Era     uint32
}

type PoolWithdrawn struct {
	Member  AccountID
	PoolID  uint32
	Balance *big.Int
	Points  *big.Int
}

type PoolPaidOut struct {
	Member AccountID
	PoolID uint32
	Payout *big.Int
}

type PoolCommissionUpdated struct {
	PoolID     uint32
	Commission *uint32
	Payee      *AccountID
}

type PoolCommissionClaimed struct {
	PoolID     uint32
	Commission *big.Int
}

type PoolStateChanged struct {
	PoolID   uint32
	NewState string
}

type BatchCompleted struct{}

type BatchCompletedWithErrors struct{}

type BatchInterrupted struct {
	Index uint32
	Error DispatchError
}

type ItemCompleted struct{}

type ItemFailed struct {
	Error DispatchError
}

type Sudid struct {
	Result DispatchOutcome
}

// DispatchOutcome is a decoded DispatchResult.
type DispatchOutcome struct {
	Ok    bool
	Error DispatchError
}

func (UnrecognizedEvent) isEvent()            {}
func (Transfer) isEvent()                     {}
func (Endowed) isEvent()                      {}
func (NewAccount) isEvent()                   {}
func (KilledAccount) isEvent()                {}
func (ExtrinsicSuccess) isEvent()             {}
func (ExtrinsicFailed) isEvent()              {}
func (TransactionFeePaid) isEvent()           {}
func (DataSubmitted) isEvent()                {}
func (ApplicationKeyCreated) isEvent()        {}
func (ApplicationKeySet) isEvent()            {}
func (BlockLengthProposalSubmitted) isEvent() {}
func (SubmitDataFeeModifierSet) isEvent()     {}
func (StakingBonded) isEvent()                {}
func (StakingUnbonded) isEvent()              {}
func (StakingChilled) isEvent()               {}
func (ValidatorPrefsSet) isEvent()            {}
func (NewMultisig) isEvent()                  {}
func (MultisigApproval) isEvent()             {}
func (MultisigExecuted) isEvent()             {}
func (PoolCreated) isEvent()                  {}
func (PoolBonded) isEvent()                   {}
func (PoolUnbonded) isEvent()                 {}
func (PoolWithdrawn) isEvent()                {}
func (PoolPaidOut) isEvent()                  {}
func (PoolCommissionUpdated) isEvent()        {}
func (PoolCommissionClaimed) isEvent()        {}
func (PoolStateChanged) isEvent()             {}
func (BatchCompleted) isEvent()               {}
func (BatchCompletedWithErrors) isEvent()     {}
func (BatchInterrupted) isEvent()             {}
func (ItemCompleted) isEvent()                {}
func (ItemFailed) isEvent()                   {}
func (Sudid) isEvent()                        {}

func (e UnrecognizedEvent) EventID() string          { return e.Record.ID() }
func (Transfer) EventID() string                     { return "Balances.Transfer" }
func (Endowed) EventID() string                      { return "Balances.Endowed" }
func (NewAccount) EventID() string                   { return "System.NewAccount" }
func (KilledAccount) EventID() string                { return "System.KilledAccount" }
func (ExtrinsicSuccess) EventID() string             { return "System.ExtrinsicSuccess" }
func (ExtrinsicFailed) EventID() string              { return "System.ExtrinsicFailed" }
func (TransactionFeePaid) EventID() string           { return "TransactionPayment.TransactionFeePaid" }
func (DataSubmitted) EventID() string                { return "DataAvailability.DataSubmitted" }
func (ApplicationKeyCreated) EventID() string        { return "DataAvailability.ApplicationKeyCreated" }
func (ApplicationKeySet) EventID() string            { return "DataAvailability.ApplicationKeySet" }
func (BlockLengthProposalSubmitted) EventID() string { return "DataAvailability.BlockLengthProposalSubmitted" }
func (SubmitDataFeeModifierSet) EventID() string     { return "DataAvailability.SubmitDataFeeModifierSet" }
func (StakingBonded) EventID() string                { return "Staking.Bonded" }
func (StakingUnbonded) EventID() string              { return "Staking.Unbonded" }
func (StakingChilled) EventID() string               { return "Staking.Chilled" }
func (ValidatorPrefsSet) EventID() string            { return "Staking.ValidatorPrefsSet" }
func (NewMultisig) EventID() string                  { return "Multisig.NewMultisig" }
func (MultisigApproval) EventID() string             { return "Multisig.MultisigApproval" }
func (MultisigExecuted) EventID() string             { return "Multisig.MultisigExecuted" }
func (PoolCreated) EventID() string                  { return "NominationPools.Created" }
func (PoolBonded) EventID() string                   { return "NominationPools.Bonded" }
func (PoolUnbonded) EventID() string                 { return "NominationPools.Unbonded" }
func (PoolWithdrawn) EventID() string                { return "NominationPools.Withdrawn" }
func (PoolPaidOut) EventID() string                  { return "NominationPools.PaidOut" }
func (PoolCommissionUpdated) EventID() string        { return "NominationPools.PoolCommissionUpdated" }
func (PoolCommissionClaimed) EventID() string        { return "NominationPools.PoolCommissionClaimed" }
func (PoolStateChanged) EventID() string             { return "NominationPools.StateChanged" }
func (BatchCompleted) EventID() string               { return "Utility.BatchCompleted" }
func (BatchCompletedWithErrors) EventID() string     { return "Utility.BatchCompletedWithErrors" }
func (BatchInterrupted) EventID() string             { return "Utility.BatchInterrupted" }
func (ItemCompleted) EventID() string                { return "Utility.ItemCompleted" }
func (ItemFailed) EventID() string                   { return "Utility.ItemFailed" }
func (Sudid) EventID() string                        { return "Sudo.Sudid" }

type eventDecoder func(r *fieldReader) Event

var eventDecoders = map[string]eventDecoder{
	"Balances.Transfer": func(r *fieldReader) Event {
		return Transfer{From: r.account("from"), To: r.account("to"), Amount: r.big("amount")}
	},
	"Balances.Endowed": func(r *fieldReader) Event {
		return Endowed{Account: r.account("account"), FreeBalance: r.big("free_balance")}
	},
	"System.NewAccount": func(r *fieldReader) Event {
		return NewAccount{Account: r.account("account")}
	},
	"System.KilledAccount": func(r *fieldReader) Event {
		return KilledAccount{Account: r.account("account")}
	},
	"System.ExtrinsicSuccess": func(r *fieldReader) Event {
		return ExtrinsicSuccess{}
	},
	"System.ExtrinsicFailed": func(r *fieldReader) Event {
		return ExtrinsicFailed{DispatchError: ParseDispatchError(dispatchErrorField(r.fields))}
	},
	"TransactionPayment.TransactionFeePaid": func(r *fieldReader) Event {
		return TransactionFeePaid{Who: r.account("who"), ActualFee: r.big("actual_fee"), Tip: r.big("tip")}
	},
	"DataAvailability.DataSubmitted": func(r *fieldReader) Event {
		return DataSubmitted{Who: r.account("who"), DataHash: r.hash("data_hash")}
	},
	"DataAvailability.ApplicationKeyCreated": func(r *fieldReader) Event {
		return ApplicationKeyCreated{Key: r.bytes("key"), Owner: r.account("owner"), ID: uint32(r.uint("id"))}
	},
	"DataAvailability.ApplicationKeySet": func(r *fieldReader) Event {
		return ApplicationKeySet{OldKey: r.bytes("old_key"), NewKey: r.bytes("new_key")}
	},
	"DataAvailability.BlockLengthProposalSubmitted": func(r *fieldReader) Event {
		return BlockLengthProposalSubmitted{Rows: uint32(r.uint("rows")), Cols: uint32(r.uint("cols"))}
	},
	"DataAvailability.SubmitDataFeeModifierSet": func(r *fieldReader) Event {
		value, _ := r.raw("value")
		fields, _ := value.(map[string]any)
		return SubmitDataFeeModifierSet{Value: fields}
	},
	"Staking.Bonded": func(r *fieldReader) Event {
		return StakingBonded{Stash: r.account("stash"), Amount: r.big("amount")}
	},
	"Staking.Unbonded": func(r *fieldReader) Event {
		return StakingUnbonded{Stash: r.account("stash"), Amount: r.big("amount")}
	},
	"Staking.Chilled": func(r *fieldReader) Event {
		return StakingChilled{Stash: r.account("stash")}
	},
	"Staking.ValidatorPrefsSet": func(r *fieldReader) Event {
		prefs := r.nested("prefs")
		event := ValidatorPrefsSet{
			Stash:      r.account("stash"),
			Commission: uint32(prefs.uint("commission")),
			Blocked:    prefs.bool("blocked"),
		}
		if prefs.err != nil {
			r.fail("prefs", prefs.err)
		}
		return event
	},
	"Multisig.NewMultisig": func(r *fieldReader) Event {
		return NewMultisig{Approving: r.account("approving"), Multisig: r.account("multisig"), CallHash: r.hash("call_hash")}
	},
	"Multisig.MultisigApproval": func(r *fieldReader) Event {
		return MultisigApproval{
			Approving: r.account("approving"),
			Timepoint: r.timepoint("timepoint"),
			Multisig:  r.account("multisig"),
			CallHash:  r.hash("call_hash"),
		}
	},
	"Multisig.MultisigExecuted": func(r *fieldReader) Event {
		result, _ := r.raw("result")
		return MultisigExecuted{
			Approving: r.account("approving"),
			Timepoint: r.timepoint("timepoint"),
			Multisig:  r.account("multisig"),
			CallHash:  r.hash("call_hash"),
			Result:    ParseDispatchOutcome(result),
		}
	},
	"NominationPools.Created": func(r *fieldReader) Event {
		return PoolCreated{Depositor: r.account("depositor"), PoolID: uint32(r.uint("pool_id"))}
	},
	"NominationPools.Bonded": func(r *fieldReader) Event {
		return PoolBonded{Member: r.account("member"), PoolID: uint32(r.uint("pool_id")), Bonded: r.big("bonded"), Joined: r.bool("joined")}
	},
	"NominationPools.Unbonded": func(r *fieldReader) Event {
		return PoolUnbonded{
			Member:  r.account("member"),
			PoolID:  uint32(r.uint("pool_id")),
			Balance: r.big("balance"),
			Points:  r.big("points"),
			Era:     uint32(r.uint("era")),
		}
	},
	"NominationPools.Withdrawn": func(r *fieldReader) Event {
		return PoolWithdrawn{Member: r.account("member"), PoolID: uint32(r.uint("pool_id")), Balance: r.big("balance"), Points: r.big("points")}
	},
	"NominationPools.PaidOut": func(r *fieldReader) Event {
		return PoolPaidOut{Member: r.account("member"), PoolID: uint32(r.uint("pool_id")), Payout: r.big("payout")}
	},
	"NominationPools.PoolCommissionUpdated": func(r *fieldReader) Event {
		event := PoolCommissionUpdated{PoolID: uint32(r.uint("pool_id"))}
		if current, ok := r.optional("current"); ok {
			event.Commission, event.Payee = parseCommissionPair(current)
		}
		return event
	},
	"NominationPools.PoolCommissionClaimed": func(r *fieldReader) Event {
		return PoolCommissionClaimed{PoolID: uint32(r.uint("pool_id")), Commission: r.big("commission")}
	},
	"NominationPools.StateChanged": func(r *fieldReader) Event {
		value, _ := r.raw("new_state")
		return PoolStateChanged{PoolID: uint32(r.uint("pool_id")), NewState: poolStateName(value)}
	},
	"Utility.BatchCompleted": func(r *fieldReader) Event {
		return BatchCompleted{}
	},
	"Utility.BatchCompletedWithErrors": func(r *fieldReader) Event {
		return BatchCompletedWithErrors{}
	},
	"Utility.BatchInterrupted": func(r *fieldReader) Event {
		value, _ := r.raw("error")
		return BatchInterrupted{Index: uint32(r.uint("index")), Error: ParseDispatchError(value)}
	},
	"Utility.ItemCompleted": func(r *fieldReader) Event {
		return ItemCompleted{}
	},
	"Utility.ItemFailed": func(r *fieldReader) Event {
		value, _ := r.raw("error")
		return ItemFailed{Error: ParseDispatchError(value)}
	},
	"Sudo.Sudid": func(r *fieldReader) Event {
		value, _ := r.optional("sudo_result")
		return Sudid{Result: ParseDispatchOutcome(value)}
	},
}

// DecodeEvent types a record. It is total over its input.
func DecodeEvent(record EventRecord) Event {
	decode, ok := eventDecoders[record.ID()]
	if !ok {
		return UnrecognizedEvent{Record: record}
	}
	reader := readFields(record)
	event := decode(reader)
	if reader.err != nil {
		return UnrecognizedEvent{Record: record, Err: fmt.Errorf("decode %s: %w", record.ID(), reader.err)}
	}
	return event
}

func DecodeEvents(records []EventRecord) []Event {
	events := make([]Event, 0, len(records))
	for _, record := range records {
		events = append(events, DecodeEvent(record))
	}
	return events
}

func FindFirst[T Event](records []EventRecord) (T, bool) {
	for _, record := range records {
		if event, ok := DecodeEvent(record).(T); ok {
			return event, true
		}
	}
	var zero T
	return zero, false
}

func FindLast[T Event](records []EventRecord) (T, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if event, ok := DecodeEvent(records[i]).(T); ok {
			return event, true
		}
	}
	var zero T
	return zero, false
}

func FindAll[T Event](records []EventRecord) []T {
	var out []T
	for _, record := range records {
		if event, ok := DecodeEvent(record).(T); ok {
			out = append(out, event)
		}
	}
	return out
}

// FindExtrinsicFailure reports the dispatch error of the first System.ExtrinsicFailed
// record, whatever shape its fields were decoded into.
func FindExtrinsicFailure(records []EventRecord) (DispatchError, bool) {
	for _, record := range records {
		if !record.Is("System", "ExtrinsicFailed") {
			continue
		}
		dispatchErr := ParseDispatchError(dispatchErrorField(record.Fields))
		if dispatchErr.Module == nil && dispatchErr.Other == "" {
			dispatchErr.Other = fmt.Sprintf("%s %v", record.ID(), record.Fields)
		}
		return dispatchErr, true
	}
	return DispatchError{}, false
}

// dispatchErrorField finds the dispatch error under its metadata name, as the first
// positional field, or as the only field.
func dispatchErrorField(fields map[string]any) any {
	if value, ok := fields["dispatch_error"]; ok {
		return value
	}
	if value, ok := fields["0"]; ok {
		return value
	}
	if len(fields) == 1 {
		for _, value := range fields {
			return value
		}
	}
	return nil
}

// ParseDispatchOutcome reads a DispatchResult. Ok(()) normalizes to nil, an empty
// struct or the Ok variant index; errors may be wrapped in an "Err" key.
func ParseDispatchOutcome(value any) DispatchOutcome {
	switch v := value.(type) {
	case nil:
		return DispatchOutcome{Ok: true}
	case uint64:
		if v == 0 {
			return DispatchOutcome{Ok: true}
		}
	case map[string]any:
		if len(v) == 0 {
			return DispatchOutcome{Ok: true}
		}
		if _, ok := v["Ok"]; ok {
			return DispatchOutcome{Ok: true}
		}
		if inner, ok := v["Err"]; ok {
			return DispatchOutcome{Error: ParseDispatchError(inner)}
		}
	}
	return DispatchOutcome{Error: ParseDispatchError(value)}
}

func (r *fieldReader) timepoint(name string) Timepoint {
	nested := r.nested(name)
	tp := Timepoint{Height: uint32(nested.uint("height")), Index: uint32(nested.uint("index"))}
	if nested.err != nil {
		r.fail(name, nested.err)
	}
	return tp
}

func parseCommissionPair(value any) (*uint32, *AccountID) {
	var first, second any
	switch v := value.(type) {
	case []any:
		if len(v) != 2 {
			return nil, nil
		}
		first, second = v[0], v[1]
	case map[string]any:
		first, second = v["0"], v["1"]
	default:
		return nil, nil
	}
	perbill, err := AsUint64(first)
	if err != nil {
		return nil, nil
	}
	commission := uint32(perbill)
	payee, err := AsAccountID(second)
	if err != nil {
		return &commission, nil
	}
	return &commission, &payee
}

var poolStates = []string{"Open", "Blocked", "Destroying"}

func poolStateName(value any) string {
	if index, err := AsUint64(value); err == nil && int(index) < len(poolStates) {
		return poolStates[index]
	}
	return fmt.Sprintf("%v", value)
}

package application

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataExtrinsic(data string) domain.Extrinsic {
	args := append([]byte{byte(len(data) << 2)}, data...)
	return domain.Extrinsic{
		Index:  1,
		Hash:   testTxHash,
		Signed: true,
		Signer: &alice,
		AppID:  1,
		Pallet: "DataAvailability",
		Method: "submit_data",
		Args:   args,
	}
}

func TestSubmitDataRecoversPayload(t *testing.T) {
	client := &fakeTxClient{
		statuses: []domain.TxStatus{inBlock()},
		block:    includedBlock(dataExtrinsic("My Data")),
		events: successEvents(domain.EventRecord{
			Pallet: "DataAvailability", Name: "DataSubmitted", Phase: domain.ApplyExtrinsic(1),
			Fields: map[string]any{"who": alice, "data_hash": domain.Hash{7}},
		}),
	}
	txs := NewTransactions(newTestSubmitter(t, client))

	result, err := txs.SubmitData(context.Background(), NewAccount(fakeSigner{alice}).WithAppID(1), []byte("My Data"))
	require.NoError(t, err)
	assert.Equal(t, alice, result.Event.Who)
	assert.Equal(t, domain.Hash{7}, result.Event.DataHash)
	assert.Equal(t, "My Data", string(result.Data))

	require.Len(t, client.calls, 1)
	assert.Equal(t, "DataAvailability.submit_data", client.calls[0].Name())
}

func TestSubmitDataMissingEvent(t *testing.T) {
	client := &fakeTxClient{
		statuses: []domain.TxStatus{inBlock()},
		block:    includedBlock(dataExtrinsic("My Data")),
		events:   successEvents(),
	}
	txs := NewTransactions(newTestSubmitter(t, client))

	_, err := txs.SubmitData(context.Background(), NewAccount(fakeSigner{alice}), []byte("My Data"))
	var failed *domain.TransactionFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "failed to find DataAvailability.DataSubmitted event", failed.Reason)
	require.NotNil(t, failed.Details)
}

func TestSudoReportsInnerDispatchError(t *testing.T) {
	client := &fakeTxClient{
		statuses: []domain.TxStatus{inBlock()},
		block:    includedBlock(transferExtrinsic()),
		events: successEvents(domain.EventRecord{
			Pallet: "Sudo", Name: "Sudid", Phase: domain.ApplyExtrinsic(1),
			Fields: map[string]any{"sudo_result": map[string]any{"index": uint64(6), "error": []byte{2, 0, 0, 0}}},
		}),
	}
	txs := NewTransactions(newTestSubmitter(t, client))

	_, err := txs.SubmitBlockLengthProposal(context.Background(), NewAccount(fakeSigner{alice}), 256, 256)
	var failed *domain.TransactionFailed
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Reason, "Balances.InsufficientBalance")

	require.Len(t, client.calls, 1)
	assert.Equal(t, "Sudo.sudo", client.calls[0].Name())
	inner, ok := client.calls[0].Args[0].(domain.Call)
	require.True(t, ok)
	assert.Equal(t, "DataAvailability.submit_block_length_proposal", inner.Name())
}

func TestValidateRejectsCommissionBeforeSubmitting(t *testing.T) {
	client := &fakeTxClient{}
	txs := NewTransactions(newTestSubmitter(t, client))

	_, err := txs.Validate(context.Background(), NewAccount(fakeSigner{alice}), 150, false)
	assert.True(t, errors.Is(err, ErrInvalidCommission))
	_, err = txs.PoolSetCommission(context.Background(), NewAccount(fakeSigner{alice}), 1, &PoolCommission{Percent: 2.5, Payee: alice})
	assert.True(t, errors.Is(err, ErrInvalidCommission))
	assert.Empty(t, client.calls)
}

func TestNominateRecoversTargets(t *testing.T) {
	args, err := codec.Encode(addressesArg([]domain.AccountID{alice, bob}))
	require.NoError(t, err)
	extrinsic := domain.Extrinsic{Index: 1, Hash: testTxHash, Signed: true, Signer: &alice, Pallet: "Staking", Method: "nominate", Args: args}
	client := &fakeTxClient{
		statuses: []domain.TxStatus{inBlock()},
		block:    includedBlock(extrinsic),
		events:   successEvents(),
	}
	txs := NewTransactions(newTestSubmitter(t, client))

	result, err := txs.Nominate(context.Background(), NewAccount(fakeSigner{alice}), []domain.AccountID{alice, bob})
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{alice, bob}, result.Targets)
}

func TestTransferReportsKilledAccount(t *testing.T) {
	client := &fakeTxClient{
		statuses: []domain.TxStatus{finalized()},
		block:    includedBlock(transferExtrinsic()),
		events: successEvents(
			domain.EventRecord{Pallet: "Balances", Name: "Transfer", Phase: domain.ApplyExtrinsic(1),
				Fields: map[string]any{"from": alice, "to": bob, "amount": uint64(5)}},
			domain.EventRecord{Pallet: "System", Name: "KilledAccount", Phase: domain.ApplyExtrinsic(1),
				Fields: map[string]any{"account": alice}},
		),
	}
	txs := NewTransactions(newTestSubmitter(t, client))

	account := NewAccount(fakeSigner{alice}).WithWait(domain.WaitForFinalization)
	result, err := txs.TransferAll(context.Background(), account, bob, false)
	require.NoError(t, err)
	assert.Equal(t, "5", result.Event.Amount.String())
	require.NotNil(t, result.Killed)
	assert.Equal(t, alice, result.Killed.Account)
	assert.True(t, result.Details.Finalized())
}

func TestTransferKeepAliveSubmitsBuiltCall(t *testing.T) {
	client := &fakeTxClient{
		statuses: []domain.TxStatus{inBlock()},
		block:    includedBlock(transferExtrinsic()),
		events: successEvents(domain.EventRecord{Pallet: "Balances", Name: "Transfer", Phase: domain.ApplyExtrinsic(1),
			Fields: map[string]any{"from": alice, "to": bob, "amount": uint64(7)}}),
	}
	txs := NewTransactions(newTestSubmitter(t, client))

	result, err := txs.TransferKeepAlive(context.Background(), NewAccount(fakeSigner{alice}), bob, big.NewInt(7))
	require.NoError(t, err)
	assert.Nil(t, result.Killed)

	expected := TransferKeepAliveCall(bob, big.NewInt(7))
	require.Len(t, client.calls, 1)
	assert.Equal(t, expected.Pallet, client.calls[0].Pallet)
	assert.Equal(t, expected.Method, client.calls[0].Method)
	assert.Len(t, client.calls[0].Args, 2)
}

func TestAccountOptionsAreCopies(t *testing.T) {
	base := NewAccount(fakeSigner{alice}).WithAppID(3)
	derived := base.WithNonce(5).WithWait(domain.WaitForFinalization)

	assert.Equal(t, uint32(3), base.Options().AppIDOrZero())
	assert.Nil(t, base.Options().Nonce)
	assert.Equal(t, domain.WaitForInclusion, base.Wait())
	require.NotNil(t, derived.Options().Nonce)
	assert.Equal(t, uint32(5), *derived.Options().Nonce)
	assert.Equal(t, domain.WaitForFinalization, derived.Wait())
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitDataExtrinsic(index uint32, signer AccountID, appID uint32, data string) Extrinsic {
	args := append([]byte{byte(len(data) << 2)}, data...)
	return Extrinsic{
		Index:  index,
		Hash:   Hash{byte(index + 1)},
		Signed: true,
		Signer: &signer,
		AppID:  appID,
		Pallet: "DataAvailability",
		Method: "submit_data",
		Args:   args,
	}
}

func TestDataSubmissionRoundTrip(t *testing.T) {
	block := Block{Extrinsics: []Extrinsic{
		{Index: 0, Pallet: "Timestamp", Method: "set"},
		submitDataExtrinsic(1, alice, 1, "My Data"),
	}}

	submissions := block.DataSubmissions()
	require.Len(t, submissions, 1)
	assert.Equal(t, "4d792044617461", submissions[0].Hex())
	assert.Equal(t, "My Data", submissions[0].ASCII())
	assert.Equal(t, uint32(1), submissions[0].AppID)
	assert.Equal(t, alice, submissions[0].Signer)
}

func TestBlockFilters(t *testing.T) {
	transfer := Extrinsic{Index: 3, Hash: Hash{0xaa}, Signed: true, Signer: &bob, Pallet: "Balances", Method: "transfer_keep_alive"}
	block := Block{Extrinsics: []Extrinsic{
		{Index: 0, Pallet: "Timestamp", Method: "set"},
		submitDataExtrinsic(1, alice, 1, "a"),
		submitDataExtrinsic(2, alice, 2, "b"),
		transfer,
	}}

	assert.Len(t, block.BySigner(alice), 2)
	assert.Len(t, block.BySigner(bob), 1)
	assert.Len(t, block.ByAppID(2), 1)
	assert.Len(t, block.ByAppID(0), 1)

	found, ok := block.ByHash(Hash{0xaa})
	require.True(t, ok)
	assert.Equal(t, uint32(3), found.Index)
	_, ok = block.ByHash(Hash{0xbb})
	assert.False(t, ok)

	found, ok = block.ByIndex(1)
	require.True(t, ok)
	assert.True(t, found.Is("DataAvailability", "submit_data"))

	assert.Len(t, block.DataSubmissionsByAppID(2), 1)
	assert.Len(t, block.DataSubmissionsBySigner(bob), 0)
}

func TestDecodeHexData(t *testing.T) {
	for _, raw := range []string{"0x4d792044617461", "4d792044617461"} {
		data, err := DecodeHexData(raw)
		require.NoError(t, err)
		assert.Equal(t, "My Data", string(data))
	}
	_, err := DecodeHexData("0xzz")
	assert.Error(t, err)
}

func TestAccountIDSS58(t *testing.T) {
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", alice.SS58())
	parsed, err := ParseAccountID("5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty")
	require.NoError(t, err)
	assert.Equal(t, bob, parsed)

	_, err = ParseAccountID("not-an-address")
	assert.Error(t, err)
}

package noderpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"availsdk/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Params []json.RawMessage
}

func newTestServer(t *testing.T, responses map[string]string) (*Client, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		*calls = append(*calls, recordedCall{Method: req.Method, Params: req.Params})
		resp, ok := responses[req.Method]
		if !ok {
			resp = `{"error":{"code":-32601,"message":"Method not found"}}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)
	client, err := NewClient(Config{URL: server.URL})
	require.NoError(t, err)
	return client, calls
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{URL: " "})
	assert.Error(t, err)
}

func TestAccountNextIndex(t *testing.T) {
	client, calls := newTestServer(t, map[string]string{
		"system_accountNextIndex": `{"jsonrpc":"2.0","id":1,"result":12}`,
	})
	nonce, err := client.AccountNextIndex(context.Background(), "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)
	assert.Equal(t, uint32(12), nonce)
	require.Len(t, *calls, 1)
	assert.JSONEq(t, `"5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"`, string((*calls)[0].Params[0]))
}

func TestRPCErrorIsTyped(t *testing.T) {
	client, _ := newTestServer(t, map[string]string{
		"system_chain": `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`,
	})
	_, err := client.Chain(context.Background())
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "rpc error -32000: boom", err.Error())
}

func TestKateMethodNotFound(t *testing.T) {
	client, _ := newTestServer(t, map[string]string{})
	_, err := client.BlockLength(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrKateUnsupported))
}

func TestBlockLengthAtHash(t *testing.T) {
	client, calls := newTestServer(t, map[string]string{
		"kate_blockLength": `{"jsonrpc":"2.0","id":1,"result":{"max":{"normal":2097152,"operational":2097152,"mandatory":2097152},"cols":256,"rows":256,"chunk_size":32}}`,
	})
	at := domain.Hash{1}
	length, err := client.BlockLength(context.Background(), &at)
	require.NoError(t, err)
	assert.Equal(t, uint32(256), length.Cols)
	assert.Equal(t, uint32(32), length.ChunkSize)
	assert.Equal(t, uint32(2097152), length.Max.Normal)
	require.Len(t, (*calls)[0].Params, 1)
	assert.JSONEq(t, `"`+at.Hex()+`"`, string((*calls)[0].Params[0]))
}

func TestQueryProofRejectsTooManyCells(t *testing.T) {
	client, calls := newTestServer(t, map[string]string{})
	cells := make([]domain.Cell, domain.MaxCells+1)
	_, err := client.QueryProof(context.Background(), cells, nil)
	assert.Error(t, err)
	_, err = client.QueryProof(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Empty(t, *calls)
}

func TestQueryProofDecodesByteArray(t *testing.T) {
	client, calls := newTestServer(t, map[string]string{
		"kate_queryProof": `{"jsonrpc":"2.0","id":1,"result":[1,2,255]}`,
	})
	proof, err := client.QueryProof(context.Background(), []domain.Cell{{Row: 0, Col: 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 255}, proof)
	assert.JSONEq(t, `[{"row":0,"col":3}]`, string((*calls)[0].Params[0]))
}

func TestQueryDataProof(t *testing.T) {
	root := domain.Hash{0xaa}
	leaf := domain.Hash{0xbb}
	client, _ := newTestServer(t, map[string]string{
		"kate_queryDataProof": `{"jsonrpc":"2.0","id":1,"result":{"root":"` + root.Hex() + `","proof":[],"number_of_leaves":4,"leaf_index":1,"leaf":"` + leaf.Hex() + `"}}`,
	})
	proof, err := client.QueryDataProof(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, root, proof.Root)
	assert.Equal(t, leaf, proof.Leaf)
	assert.Equal(t, uint32(4), proof.NumberOfLeaves)
	assert.Equal(t, uint32(1), proof.LeafIndex)
}

func TestQueryRowsKeepsMissingRows(t *testing.T) {
	client, _ := newTestServer(t, map[string]string{
		"kate_queryRows": `{"jsonrpc":"2.0","id":1,"result":[[1,2],null,"0x0304"]}`,
	})
	rows, err := client.QueryRows(context.Background(), []uint32{0, 1, 2}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []byte{1, 2}, rows[0])
	assert.Nil(t, rows[1])
	assert.Equal(t, []byte{3, 4}, rows[2])
}

func TestByteListRejectsOutOfRange(t *testing.T) {
	var list ByteList
	assert.Error(t, json.Unmarshal([]byte(`[256]`), &list))
}

func TestRotateKeys(t *testing.T) {
	client, _ := newTestServer(t, map[string]string{
		"author_rotateKeys": `{"jsonrpc":"2.0","id":1,"result":"0x0102"}`,
	})
	keys, err := client.RotateKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, keys)
}

func TestHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	client, err := NewClient(Config{URL: server.URL})
	require.NoError(t, err)
	_, err = client.Health(context.Background())
	assert.EqualError(t, err, "rpc status 502")
}

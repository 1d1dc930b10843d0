package streaming

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAssignsID(t *testing.T) {
	payload, err := Encode(Message{Type: MessageTypeSubmission, Network: "turing", AppID: 3, Data: "0x4d792044617461"})
	require.NoError(t, err)

	msg, err := Decode(payload)
	require.NoError(t, err)
	_, err = uuid.Parse(msg.ID)
	assert.NoError(t, err)
	assert.Equal(t, uint32(3), msg.AppID)
	assert.Equal(t, "0x4d792044617461", msg.Data)
}

func TestEncodeKeepsID(t *testing.T) {
	payload, err := Encode(Message{ID: "fixed", Type: MessageTypeReorg, Network: "local", FromBlock: 9})
	require.NoError(t, err)
	msg, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "fixed", msg.ID)
	assert.Equal(t, uint64(9), msg.FromBlock)
}

func TestEncodeRequiresTypeAndNetwork(t *testing.T) {
	_, err := Encode(Message{Network: "local"})
	assert.Error(t, err)
	_, err = Encode(Message{Type: MessageTypeBlock})
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"block"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{`))
	assert.Error(t, err)
}

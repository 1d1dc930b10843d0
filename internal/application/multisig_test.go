package application

import (
	"testing"

	"availsdk/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var charlie = mustAccount("0x90b5ab205c6974c9ea841be688864633dc9ca8a357843eeacf2314649965fe22")

func TestSortSignatories(t *testing.T) {
	input := []domain.AccountID{alice, bob, charlie}
	sorted := SortSignatories(input)
	assert.Equal(t, []domain.AccountID{bob, charlie, alice}, sorted)
	assert.Equal(t, alice, input[0])
}

func TestMultisigAddressIgnoresOrder(t *testing.T) {
	first, err := MultisigAddress([]domain.AccountID{alice, bob, charlie}, 2)
	require.NoError(t, err)
	second, err := MultisigAddress([]domain.AccountID{charlie, alice, bob}, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := MultisigAddress([]domain.AccountID{alice, bob, charlie}, 3)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestMultisigAddressValidation(t *testing.T) {
	_, err := MultisigAddress(nil, 1)
	assert.Error(t, err)
	_, err = MultisigAddress([]domain.AccountID{alice, bob}, 3)
	assert.Error(t, err)
	_, err = MultisigAddress([]domain.AccountID{alice, bob}, 0)
	assert.Error(t, err)
	_, err = MultisigAddress([]domain.AccountID{alice, alice}, 2)
	assert.Error(t, err)
}

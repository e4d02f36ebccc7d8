// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotEmpty(t, priv)
	require.NotEmpty(t, pub)
}

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("delivered: timeslot-42"))
	b := Hash([]byte("delivered: timeslot-42"))
	require.Equal(t, a, b)

	c := Hash([]byte("delivered: timeslot-43"))
	require.NotEqual(t, a, c)
}

func TestCreateCommitmentMatchesHash(t *testing.T) {
	data := []byte("commitment input")
	require.Equal(t, Hash(data), CreateCommitment(data))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	secret := []byte("account-master-secret")
	salt := []byte("vault-salt")
	info := []byte("vault:seller:escrow")

	k1, err := DeriveKey(secret, salt, info, 32)
	require.NoError(t, err)
	k2, err := DeriveKey(secret, salt, info, 32)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)

	k3, err := DeriveKey(secret, salt, []byte("vault:buyer:escrow"), 32)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}

func TestValidateKeySize(t *testing.T) {
	c := NewCore()
	require.NoError(t, c.ValidateKeySize(make([]byte, 32), 32))
	require.ErrorIs(t, c.ValidateKeySize(make([]byte, 16), 32), ErrInvalidKeySize)
}

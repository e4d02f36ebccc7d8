// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorePutGetDelete(t *testing.T) {
	s, err := New("memory", "")
	require.NoError(t, err)
	defer s.Close()

	key := TimeslotKey(1_700_000_000)
	require.NoError(t, s.Put(key, []byte("payload")))

	has, err := s.Has(key)
	require.NoError(t, err)
	require.True(t, has)

	got, err := s.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	require.NoError(t, s.Delete(key))
	has, err = s.Has(key)
	require.NoError(t, err)
	require.False(t, has)
}

func TestStoreBatch(t *testing.T) {
	s, err := New("memory", "")
	require.NoError(t, err)
	defer s.Close()

	batch := s.NewBatch()
	require.NoError(t, batch.Put(SingletonKey(NamespaceGlobalConfig), []byte("cfg-v1")))
	require.NoError(t, batch.Put(SingletonKey(NamespaceEmergencyFlag), []byte{0}))
	require.NoError(t, batch.Write())

	got, err := s.Get(SingletonKey(NamespaceGlobalConfig))
	require.NoError(t, err)
	require.Equal(t, []byte("cfg-v1"), got)
}

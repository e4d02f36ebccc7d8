// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/log"
)

func newTestManager(t *testing.T) (*Manager, ids.ID) {
	t.Helper()
	authority := ids.GenerateTestID()
	m := NewManager(log.NoOp())
	require.NoError(t, m.Initialize(authority, ids.GenerateTestID(), 100, 1))
	return m, authority
}

func TestInitializeOnce(t *testing.T) {
	m, authority := newTestManager(t)
	require.ErrorIs(t, m.Initialize(authority, ids.GenerateTestID(), 50, 1), ErrAlreadyInitialized)
}

func TestInitializeRejectsBadFeeBps(t *testing.T) {
	m := NewManager(log.NoOp())
	err := m.Initialize(ids.GenerateTestID(), ids.GenerateTestID(), 1001, 1)
	require.ErrorIs(t, err, ErrInvalidFeeBps)
}

func TestRequireAuthority(t *testing.T) {
	m, authority := newTestManager(t)
	require.NoError(t, m.RequireAuthority(authority))
	require.ErrorIs(t, m.RequireAuthority(ids.GenerateTestID()), ErrUnauthorized)
}

func TestPauseBlocksButResumeClears(t *testing.T) {
	m, authority := newTestManager(t)

	require.NoError(t, m.RequireNotPaused())
	require.NoError(t, m.Pause(authority, "maintenance", 1000))
	require.ErrorIs(t, m.RequireNotPaused(), ErrEmergencyPaused)

	snap := m.EmergencySnapshot()
	require.True(t, snap.Active)
	require.Equal(t, "maintenance", snap.Reason)

	require.NoError(t, m.Resume(authority))
	require.NoError(t, m.RequireNotPaused())
}

func TestPauseRequiresAuthority(t *testing.T) {
	m, _ := newTestManager(t)
	require.ErrorIs(t, m.Pause(ids.GenerateTestID(), "x", 1), ErrUnauthorized)
}

func TestApplyProposalFeeBps(t *testing.T) {
	m, authority := newTestManager(t)

	require.NoError(t, m.ApplyProposal(authority, Proposal{Kind: ProposalFeeBps, NewValue: 250}))
	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, uint32(250), snap.FeeBps)
	require.Equal(t, uint64(2), snap.Version)

	err = m.ApplyProposal(authority, Proposal{Kind: ProposalFeeBps, NewValue: 1001})
	require.ErrorIs(t, err, ErrInvalidProposalValue)
}

func TestApplyProposalOracleSet(t *testing.T) {
	m, authority := newTestManager(t)
	oracle := ids.GenerateTestID()

	ok, err := m.IsAuthorizedOracle(oracle)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.ApplyProposal(authority, Proposal{Kind: ProposalAddOracle, OracleID: oracle}))
	ok, err = m.IsAuthorizedOracle(oracle)
	require.NoError(t, err)
	require.True(t, ok)

	err = m.ApplyProposal(authority, Proposal{Kind: ProposalAddOracle, OracleID: oracle})
	require.ErrorIs(t, err, ErrOracleAlreadyKnown)

	require.NoError(t, m.ApplyProposal(authority, Proposal{Kind: ProposalRemoveOracle, OracleID: oracle}))
	err = m.ApplyProposal(authority, Proposal{Kind: ProposalRemoveOracle, OracleID: oracle})
	require.ErrorIs(t, err, ErrOracleUnknown)
}

func TestApplyProposalRequiresAuthority(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.ApplyProposal(ids.GenerateTestID(), Proposal{Kind: ProposalFeeBps, NewValue: 1})
	require.ErrorIs(t, err, ErrUnauthorized)
}

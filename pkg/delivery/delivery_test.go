// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/crypto"
	"github.com/voltgrid/auction-core/pkg/allocation"
	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
)

func setupOracle(t *testing.T, cfg *config.Manager, authority ids.ID) (ids.ID, []byte, []byte) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	oracleID := ids.GenerateTestID()
	require.NoError(t, cfg.ApplyProposal(authority, config.Proposal{Kind: config.ProposalAddOracle, OracleID: oracleID}))
	return oracleID, priv, pub
}

func signedReport(t *testing.T, priv, pub []byte, oracleID ids.ID, supplier ids.ID, allocated, delivered uint64, ts int64) DeliveryReport {
	t.Helper()
	r := DeliveryReport{
		Supplier:          supplier,
		AllocatedQuantity: allocated,
		DeliveredQuantity: delivered,
		EvidenceHash:      []byte("evidence"),
		Timestamp:         ts,
		OracleID:          oracleID,
		OraclePublicKey:   pub,
	}
	sig, err := crypto.Sign(priv, r.SignedMessage())
	require.NoError(t, err)
	r.OracleSignature = sig
	return r
}

func newTestConfig(t *testing.T) (*config.Manager, ids.ID) {
	t.Helper()
	cfg := config.NewManager(log.NoOp())
	authority := ids.GenerateTestID()
	require.NoError(t, cfg.Initialize(authority, ids.GenerateTestID(), 250, 1))
	return cfg, authority
}

func TestSubmitDeliveryReportFullDeliveryConfirmsImmediately(t *testing.T) {
	cfg, authority := newTestConfig(t)
	oracleID, priv, pub := setupOracle(t, cfg, authority)

	seller := ids.GenerateTestID()
	alloc := &allocation.SellerAllocation{Timeslot: 1, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	report := signedReport(t, priv, pub, oracleID, seller, 100, 100, 1000)

	state, err := SubmitDeliveryReport(cfg, 1, alloc, report)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, state.Status)
	require.Equal(t, uint64(0), state.ShortfallQuantity)
}

func TestSubmitDeliveryReportSmallShortfallIsManual(t *testing.T) {
	cfg, authority := newTestConfig(t)
	oracleID, priv, pub := setupOracle(t, cfg, authority)

	seller := ids.GenerateTestID()
	alloc := &allocation.SellerAllocation{Timeslot: 1, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	report := signedReport(t, priv, pub, oracleID, seller, 100, 95, 1000) // 5% shortfall

	state, err := SubmitDeliveryReport(cfg, 1, alloc, report)
	require.NoError(t, err)
	require.Equal(t, StatusReported, state.Status)
	require.Equal(t, uint64(5), state.ShortfallQuantity)
	require.Equal(t, int64(1000+manualAppealWindowSecs), state.AppealDeadline)
}

func TestSubmitDeliveryReportLargeShortfallAutoTriggers(t *testing.T) {
	cfg, authority := newTestConfig(t)
	oracleID, priv, pub := setupOracle(t, cfg, authority)

	seller := ids.GenerateTestID()
	alloc := &allocation.SellerAllocation{Timeslot: 1, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	report := signedReport(t, priv, pub, oracleID, seller, 100, 80, 1000) // 20% shortfall

	state, err := SubmitDeliveryReport(cfg, 1, alloc, report)
	require.NoError(t, err)
	require.Equal(t, StatusAutoTriggered, state.Status)
	require.Equal(t, int64(1000+autoAppealWindowSecs), state.AppealDeadline)
}

func TestSubmitDeliveryReportRejectsUnauthorizedOracle(t *testing.T) {
	cfg, _ := newTestConfig(t)
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	seller := ids.GenerateTestID()
	alloc := &allocation.SellerAllocation{Timeslot: 1, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	report := signedReport(t, priv, pub, ids.GenerateTestID(), seller, 100, 80, 1000)

	_, err = SubmitDeliveryReport(cfg, 1, alloc, report)
	require.ErrorIs(t, err, ErrUnauthorizedOracle)
}

func TestSubmitDeliveryReportRejectsOutOfWindowTimestamp(t *testing.T) {
	cfg, authority := newTestConfig(t)
	oracleID, priv, pub := setupOracle(t, cfg, authority)

	seller := ids.GenerateTestID()
	alloc := &allocation.SellerAllocation{Timeslot: 1000, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	report := signedReport(t, priv, pub, oracleID, seller, 100, 80, 1000-1)

	_, err := SubmitDeliveryReport(cfg, 1000, alloc, report)
	require.ErrorIs(t, err, ErrOutOfWindow)
}

func TestSubmitDeliveryReportRejectsAllocationMismatch(t *testing.T) {
	cfg, authority := newTestConfig(t)
	oracleID, priv, pub := setupOracle(t, cfg, authority)

	seller := ids.GenerateTestID()
	alloc := &allocation.SellerAllocation{Timeslot: 1, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	report := signedReport(t, priv, pub, oracleID, seller, 200, 80, 1000)

	_, err := SubmitDeliveryReport(cfg, 1, alloc, report)
	require.ErrorIs(t, err, ErrAllocationMismatch)
}

func TestAppealAndResolveReversed(t *testing.T) {
	s := &SlashingState{Status: StatusAutoTriggered, AppealDeadline: 1000}
	require.NoError(t, Appeal(s, 500))
	require.Equal(t, StatusUnderAppeal, s.Status)

	require.NoError(t, ResolveAppeal(s, true))
	require.Equal(t, StatusReversed, s.Status)
}

func TestConfirmIfExpired(t *testing.T) {
	s := &SlashingState{Status: StatusReported, AppealDeadline: 1000}
	require.ErrorIs(t, ConfirmIfExpired(s, 999), ErrAppealWindowOpen)
	require.NoError(t, ConfirmIfExpired(s, 1000))
	require.Equal(t, StatusConfirmed, s.Status)
}

func TestExecutePenaltyClampedToAvailable(t *testing.T) {
	l := ledger.New(log.NoOp())
	seller := ids.GenerateTestID()
	sellerVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1, Owner: seller}
	penaltyVault := ledger.VaultRef{Kind: ledger.VaultPenaltyVault}

	require.NoError(t, l.Deposit(sellerVault, 100))

	s := &SlashingState{Status: StatusConfirmed, ShortfallQuantity: 10, AllocationPrice: 10}
	// penalty = 10*10 * (10000+15000)/10000 = 100*2.5 = 250, but only 100 available
	require.NoError(t, Execute(l, 15000, s, sellerVault, penaltyVault))

	require.Equal(t, StatusExecuted, s.Status)
	require.Equal(t, uint64(100), s.Penalty)
	require.Equal(t, uint64(150), s.UnrecoveredDeficit)

	penaltyBal, _ := l.Balance(penaltyVault)
	require.Equal(t, uint64(100), penaltyBal)
	sellerBal, _ := l.Balance(sellerVault)
	require.Equal(t, uint64(0), sellerBal)
}

func TestExecuteFullyRecovered(t *testing.T) {
	l := ledger.New(log.NoOp())
	seller := ids.GenerateTestID()
	sellerVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1, Owner: seller}
	penaltyVault := ledger.VaultRef{Kind: ledger.VaultPenaltyVault}

	require.NoError(t, l.Deposit(sellerVault, 1000))

	s := &SlashingState{Status: StatusConfirmed, ShortfallQuantity: 10, AllocationPrice: 10}
	require.NoError(t, Execute(l, 15000, s, sellerVault, penaltyVault))

	require.Equal(t, uint64(250), s.Penalty)
	require.Equal(t, uint64(0), s.UnrecoveredDeficit)
}

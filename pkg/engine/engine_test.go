// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/crypto"
	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/delivery"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/metric"
)

func newTestEngine(t *testing.T) (*Engine, ids.ID) {
	t.Helper()
	logger := log.NoOp()
	m, err := metric.NewMetrics()
	require.NoError(t, err)
	cfg := config.NewManager(logger)
	l := ledger.New(logger)

	authority := ids.GenerateTestID()
	require.NoError(t, cfg.Initialize(authority, ids.GenerateTestID(), 250, 1))

	return New(logger, m, nil, cfg, l), authority
}

func TestFullLifecycleThreeSellersTwoBuyers(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)

	cheap := ids.GenerateTestID()
	mid := ids.GenerateTestID()
	expensive := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(cheap, 1000, 80, 30))
	require.NoError(t, e.CommitSupply(mid, 1000, 85, 40))
	require.NoError(t, e.CommitSupply(expensive, 1000, 95, 20))

	buyer1 := ids.GenerateTestID()
	buyer2 := ids.GenerateTestID()
	require.NoError(t, e.PlaceBid(buyer1, 1000, 100, 30, 1))
	require.NoError(t, e.PlaceBid(buyer2, 1000, 90, 20, 2))

	require.NoError(t, e.SealTimeslot(authority, 1000))
	require.NoError(t, e.ProcessSupplyBatch(1000, []ids.ID{cheap, mid, expensive}))
	require.NoError(t, e.ProcessBidBatch(1000, []uint32{0}))

	require.NoError(t, e.ExecuteAuctionClearing(1000))
	require.NoError(t, e.VerifyAuctionClearing(1000))

	rec := e.timeslots[1000]
	price := rec.auctionState.ClearingPrice
	qty := rec.auctionState.TotalClearedQuantity

	require.NoError(t, e.SettleTimeslot(authority, 1000, price, qty))

	sellerAllocs, err := e.CalculateSellerAllocations(1000)
	require.NoError(t, err)
	require.Len(t, sellerAllocs, 3)

	buyerAllocs, err := e.CalculateBuyerAllocations(1000)
	require.NoError(t, err)
	require.Len(t, buyerAllocs, 2)

	require.NoError(t, e.WithdrawProceeds(1000, cheap))
	require.NoError(t, e.WithdrawProceeds(1000, mid))
	require.NoError(t, e.RedeemEnergyAndRefund(1000, buyer1))
	require.NoError(t, e.RedeemEnergyAndRefund(1000, buyer2))

	require.NoError(t, e.ValidateSystemHealth(1000))
}

func TestSettleTimeslotRejectsMismatchedClearingOutcome(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)

	seller := ids.GenerateTestID()
	buyer := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(seller, 1000, 10, 10))
	require.NoError(t, e.PlaceBid(buyer, 1000, 10, 10, 1))

	require.NoError(t, e.SealTimeslot(authority, 1000))
	require.NoError(t, e.ProcessSupplyBatch(1000, []ids.ID{seller}))
	require.NoError(t, e.ProcessBidBatch(1000, []uint32{0}))
	require.NoError(t, e.ExecuteAuctionClearing(1000))

	require.ErrorIs(t, e.SettleTimeslot(authority, 1000, 999, 1), ErrClearingMismatch)
}

func TestCancelAuctionRefundsBuyersAndSellers(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)

	seller := ids.GenerateTestID()
	buyer := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(seller, 1000, 10, 10))
	require.NoError(t, e.PlaceBid(buyer, 1000, 10, 5, 1))

	require.NoError(t, e.CancelAuction(authority, 1000))
	require.NoError(t, e.RefundCancelledBuyers(1000, []uint32{0}))
	require.NoError(t, e.RefundCancelledSellers(1000, []ids.ID{seller}))

	rec := e.timeslots[1000]
	require.True(t, rec.cancellation.IsComplete())

	buyerVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1000, Owner: buyer}
	bal, err := e.ledger.Balance(buyerVault)
	require.NoError(t, err)
	require.Equal(t, uint64(50), bal)
}

func TestEmergencyPauseBlocksPlaceBid(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)
	require.NoError(t, e.Pause(authority, "incident", 42))

	buyer := ids.GenerateTestID()
	require.ErrorIs(t, e.PlaceBid(buyer, 1000, 10, 5, 1), config.ErrEmergencyPaused)

	require.NoError(t, e.Resume(authority))
	require.NoError(t, e.PlaceBid(buyer, 1000, 10, 5, 1))
}

func TestEmergencyPauseBlocksEverySettlementStage(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)

	seller := ids.GenerateTestID()
	buyer := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(seller, 1000, 10, 10))
	require.NoError(t, e.PlaceBid(buyer, 1000, 10, 10, 1))

	require.NoError(t, e.Pause(authority, "incident", 42))

	require.ErrorIs(t, e.SealTimeslot(authority, 1000), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.ProcessSupplyBatch(1000, []ids.ID{seller}), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.ProcessBidBatch(1000, []uint32{0}), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.ExecuteAuctionClearing(1000), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.VerifyAuctionClearing(1000), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.SettleTimeslot(authority, 1000, 10, 10), config.ErrEmergencyPaused)
	_, err = e.CalculateSellerAllocations(1000)
	require.ErrorIs(t, err, config.ErrEmergencyPaused)
	_, err = e.CalculateBuyerAllocations(1000)
	require.ErrorIs(t, err, config.ErrEmergencyPaused)
	require.ErrorIs(t, e.WithdrawProceeds(1000, seller), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.RedeemEnergyAndRefund(1000, buyer), config.ErrEmergencyPaused)
	require.ErrorIs(t, e.CancelAuction(authority, 1000), config.ErrEmergencyPaused)

	// Resuming unblocks the ordinary path again.
	require.NoError(t, e.Resume(authority))
	require.NoError(t, e.SealTimeslot(authority, 1000))
}

func TestCancelAuctionRejectsOnceSettlementPaidOut(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)

	seller := ids.GenerateTestID()
	buyer := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(seller, 1000, 10, 10))
	require.NoError(t, e.PlaceBid(buyer, 1000, 10, 10, 1))

	require.NoError(t, e.SealTimeslot(authority, 1000))
	require.NoError(t, e.ProcessSupplyBatch(1000, []ids.ID{seller}))
	require.NoError(t, e.ProcessBidBatch(1000, []uint32{0}))
	require.NoError(t, e.ExecuteAuctionClearing(1000))
	rec := e.timeslots[1000]
	require.NoError(t, e.SettleTimeslot(authority, 1000, rec.auctionState.ClearingPrice, rec.auctionState.TotalClearedQuantity))
	_, err = e.CalculateSellerAllocations(1000)
	require.NoError(t, err)
	_, err = e.CalculateBuyerAllocations(1000)
	require.NoError(t, err)

	require.NoError(t, e.WithdrawProceeds(1000, seller))

	require.ErrorIs(t, e.CancelAuction(authority, 1000), ErrCancelAfterSettlement)
}

func TestDeliveryShortfallAutoTriggersAndSlashes(t *testing.T) {
	e, authority := newTestEngine(t)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)

	seller := ids.GenerateTestID()
	buyer := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(seller, 1000, 10, 100))
	require.NoError(t, e.PlaceBid(buyer, 1000, 10, 100, 1))

	require.NoError(t, e.SealTimeslot(authority, 1000))
	require.NoError(t, e.ProcessSupplyBatch(1000, []ids.ID{seller}))
	require.NoError(t, e.ProcessBidBatch(1000, []uint32{0}))
	require.NoError(t, e.ExecuteAuctionClearing(1000))
	rec := e.timeslots[1000]
	require.NoError(t, e.SettleTimeslot(authority, 1000, rec.auctionState.ClearingPrice, rec.auctionState.TotalClearedQuantity))
	_, err = e.CalculateSellerAllocations(1000)
	require.NoError(t, err)
	require.NoError(t, e.WithdrawProceeds(1000, seller))

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	oracleID := ids.GenerateTestID()
	require.NoError(t, e.cfg.ApplyProposal(authority, config.Proposal{Kind: config.ProposalAddOracle, OracleID: oracleID}))

	report := delivery.DeliveryReport{
		Supplier:          seller,
		AllocatedQuantity: 100,
		DeliveredQuantity: 70, // 30% shortfall, above the auto-trigger threshold
		EvidenceHash:      []byte("site-meter-reading"),
		Timestamp:         1001,
		OracleID:          oracleID,
		OraclePublicKey:   pub,
	}
	sig, err := crypto.Sign(priv, report.SignedMessage())
	require.NoError(t, err)
	report.OracleSignature = sig

	state, err := e.SubmitDeliveryReport(1000, report)
	require.NoError(t, err)
	require.Equal(t, delivery.StatusAutoTriggered, state.Status)

	require.NoError(t, delivery.ConfirmIfExpired(state, 1001+4*24*3600))
	require.Equal(t, delivery.StatusConfirmed, state.Status)

	require.NoError(t, e.ExecuteSlashing(1000, seller))
	require.Greater(t, state.Penalty, uint64(0))
	require.NoError(t, e.ValidateSystemHealth(1000))

	fetched, ok := e.GetSlashingState(1000, seller)
	require.True(t, ok)
	require.Equal(t, delivery.StatusExecuted, fetched.Status)
}

func TestReadAccessorsReflectLifecycle(t *testing.T) {
	e, authority := newTestEngine(t)

	require.Empty(t, e.ListOpenTimeslots())
	_, ok := e.GetTimeslotSummary(1000)
	require.False(t, ok)

	_, err := e.OpenTimeslot(authority, 1000, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{1000}, e.ListOpenTimeslots())

	summary, ok := e.GetTimeslotSummary(1000)
	require.True(t, ok)
	require.Equal(t, int64(1000), summary.Timeslot.EpochTS)

	seller := ids.GenerateTestID()
	require.NoError(t, e.CommitSupply(seller, 1000, 10, 10))
	summary, ok = e.GetTimeslotSummary(1000)
	require.True(t, ok)
	require.Equal(t, 1, summary.SupplyCount)
}

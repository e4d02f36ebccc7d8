// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package invariant

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/pkg/allocation"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/market"
)

func TestCheckEnergyConservationHolds(t *testing.T) {
	l := ledger.New(log.NoOp())
	seller := ids.GenerateTestID()
	require.NoError(t, l.Deposit(ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: 1, Owner: seller}, 30))

	supplies := []*market.Supply{{Seller: seller, CommittedQuantity: 50}}
	require.NoError(t, CheckEnergyConservation(l, 1, supplies, 20))
}

func TestCheckEnergyConservationDetectsLeak(t *testing.T) {
	l := ledger.New(log.NoOp())
	seller := ids.GenerateTestID()
	require.NoError(t, l.Deposit(ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: 1, Owner: seller}, 30))

	supplies := []*market.Supply{{Seller: seller, CommittedQuantity: 50}}
	require.ErrorIs(t, CheckEnergyConservation(l, 1, supplies, 15), ErrEnergyConservation)
}

func TestCheckQuoteConservationHolds(t *testing.T) {
	l := ledger.New(log.NoOp())
	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1}
	require.NoError(t, l.Deposit(quoteEscrow, 400))

	page := market.NewBidPage(1, 0)
	require.NoError(t, page.Append(market.Bid{Price: 10, Quantity: 90, Status: market.BidActive}))
	require.NoError(t, page.Append(market.Bid{Price: 10, Quantity: 10, Status: market.BidCancelled}))

	require.NoError(t, CheckQuoteConservation(l, quoteEscrow, 100, 380, 20, []*market.BidPage{page}))
}

func TestCheckAllocationBound(t *testing.T) {
	sellerA := ids.GenerateTestID()
	allocs := []*allocation.SellerAllocation{{Seller: sellerA, AllocatedQuantity: 40}}
	supplies := []*market.Supply{{Seller: sellerA, CommittedQuantity: 60}}

	require.NoError(t, CheckAllocationBound(allocs, supplies, 40))
	require.ErrorIs(t, CheckAllocationBound(allocs, supplies, 41), ErrAllocationBound)
}

func TestCheckMeritOrderDetectsShortfallBeforeCursorExhausted(t *testing.T) {
	cheap := ids.GenerateTestID()
	expensive := ids.GenerateTestID()
	supplies := []*market.Supply{
		{Seller: expensive, ReservePrice: 95, CommittedQuantity: 20},
		{Seller: cheap, ReservePrice: 80, CommittedQuantity: 30},
	}

	correct := []*allocation.SellerAllocation{
		{Seller: cheap, AllocatedQuantity: 30},
		{Seller: expensive, AllocatedQuantity: 0},
	}
	require.NoError(t, CheckMeritOrder(supplies, correct, 90, 30))

	wrong := []*allocation.SellerAllocation{
		{Seller: cheap, AllocatedQuantity: 20}, // under-filled despite unfilled demand remaining
		{Seller: expensive, AllocatedQuantity: 0},
	}
	require.ErrorIs(t, CheckMeritOrder(supplies, wrong, 90, 30), ErrMeritOrder)
}

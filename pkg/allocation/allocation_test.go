// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package allocation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/market"
)

func TestCalculateSellerAllocationsMeritOrder(t *testing.T) {
	cheap := ids.GenerateTestID()
	mid := ids.GenerateTestID()
	expensive := ids.GenerateTestID()

	supplies := []*market.Supply{
		{Seller: expensive, ReservePrice: 95, CommittedQuantity: 20},
		{Seller: cheap, ReservePrice: 80, CommittedQuantity: 30},
		{Seller: mid, ReservePrice: 85, CommittedQuantity: 40},
	}

	allocs, err := CalculateSellerAllocations(1, supplies, 90, 50)
	require.NoError(t, err)
	require.Len(t, allocs, 3)

	byID := map[ids.ID]*SellerAllocation{}
	for _, a := range allocs {
		byID[a.Seller] = a
	}

	require.Equal(t, uint64(30), byID[cheap].AllocatedQuantity)
	require.Equal(t, uint64(20), byID[mid].AllocatedQuantity)
	require.Equal(t, uint64(0), byID[expensive].AllocatedQuantity) // reserve 95 > clearing 90
}

func TestCalculateBuyerAllocationsMultiSource(t *testing.T) {
	sellerA := ids.GenerateTestID()
	sellerB := ids.GenerateTestID()
	buyer := ids.GenerateTestID()

	sellerAllocs := []*SellerAllocation{
		{Seller: sellerA, AllocatedQuantity: 10},
		{Seller: sellerB, AllocatedQuantity: 10},
	}

	page := market.NewBidPage(1, 0)
	require.NoError(t, page.Append(market.Bid{Owner: buyer, Price: 100, Quantity: 15, Status: market.BidActive, PlacedAt: 1}))

	buyerAllocs, err := CalculateBuyerAllocations(1, []*market.BidPage{page}, 90, sellerAllocs)
	require.NoError(t, err)
	require.Len(t, buyerAllocs, 1)

	ba := buyerAllocs[0]
	require.Equal(t, uint64(15), ba.WonQuantity)
	require.Len(t, ba.EnergySources, 2)
	require.Equal(t, uint64(10), ba.EnergySources[0].DrawnAmount)
	require.Equal(t, uint64(5), ba.EnergySources[1].DrawnAmount)

	// bid cost = 100*15 = 1500; clearing cost = 90*15 = 1350; refund = 150
	require.Equal(t, uint64(150), ba.RefundAmount)
}

func TestCalculateBuyerAllocationsFullyRefundsAnAllLosingBuyer(t *testing.T) {
	buyer := ids.GenerateTestID()
	page := market.NewBidPage(1, 0)
	require.NoError(t, page.Append(market.Bid{Owner: buyer, Price: 50, Quantity: 10, Status: market.BidActive}))

	buyerAllocs, err := CalculateBuyerAllocations(1, []*market.BidPage{page}, 90, nil)
	require.NoError(t, err)
	require.Len(t, buyerAllocs, 1)

	ba := buyerAllocs[0]
	require.Equal(t, uint64(0), ba.WonQuantity)
	require.Empty(t, ba.EnergySources)
	require.Equal(t, uint64(500), ba.RefundAmount) // bid cost 50*10, no clearing cost
}

func TestCalculateBuyerAllocationsExcludesCancelledBidsButKeepsLosingOnes(t *testing.T) {
	sellerA := ids.GenerateTestID()
	buyer := ids.GenerateTestID()

	sellerAllocs := []*SellerAllocation{
		{Seller: sellerA, AllocatedQuantity: 10},
	}

	page := market.NewBidPage(1, 0)
	require.NoError(t, page.Append(market.Bid{Owner: buyer, Price: 100, Quantity: 10, Status: market.BidActive, PlacedAt: 1}))
	require.NoError(t, page.Append(market.Bid{Owner: buyer, Price: 50, Quantity: 5, Status: market.BidActive, PlacedAt: 2}))
	require.NoError(t, page.Append(market.Bid{Owner: buyer, Price: 100, Quantity: 5, Status: market.BidCancelled, PlacedAt: 3}))

	buyerAllocs, err := CalculateBuyerAllocations(1, []*market.BidPage{page}, 90, sellerAllocs)
	require.NoError(t, err)
	require.Len(t, buyerAllocs, 1)

	ba := buyerAllocs[0]
	require.Equal(t, uint64(10), ba.WonQuantity)
	// bid cost = 100*10 (winning) + 50*5 (losing) = 1250; the Cancelled bid's
	// 100*5 never enters the refund base at all. clearing cost = 90*10 = 900;
	// refund = 350.
	require.Equal(t, uint64(350), ba.RefundAmount)
}

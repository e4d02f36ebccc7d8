// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package allocation is the Allocation Pipeline: merit-order seller
// allocation, multi-source buyer allocation, and the proceeds-withdrawal /
// redemption operations that move escrowed value to participants net of
// protocol fee.
package allocation

import (
	"errors"
	"sort"

	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/market"
	"github.com/voltgrid/auction-core/pkg/safemath"
)

var (
	ErrAlreadyWithdrawn = errors.New("allocation: proceeds already withdrawn")
	ErrAlreadyRedeemed  = errors.New("allocation: already redeemed")
	ErrNoSuchSeller     = errors.New("allocation: seller has no allocation in this timeslot")
	ErrNoSuchBuyer      = errors.New("allocation: buyer has no allocation in this timeslot")
)

// SellerAllocation is the merit-order outcome for one (timeslot, seller).
type SellerAllocation struct {
	Timeslot          int64
	Seller            ids.ID
	AllocatedQuantity uint64
	AllocationPrice   uint64 // == clearing_price
	ProceedsWithdrawn bool
}

// EnergySource is one leg of a multi-seller delivery composing a buyer's
// allocation.
type EnergySource struct {
	Seller      ids.ID
	DrawnAmount uint64
}

// BuyerAllocation is the multi-source composition outcome for one
// (timeslot, buyer).
type BuyerAllocation struct {
	Timeslot      int64
	Buyer         ids.ID
	WonQuantity   uint64
	RefundAmount  uint64
	EnergySources []EnergySource
	Redeemed      bool
}

// sellerInput pairs a Supply record with its owner for sorting, since
// merit order is defined over (reserve_price, supplier identifier).
type sellerInput struct {
	seller   ids.ID
	reserve  uint64
	quantity uint64
}

// CalculateSellerAllocations iterates suppliers in ascending reserve_price
// (ties broken by supplier identifier), allocating against a cursor that
// starts at clearedQuantity. Suppliers with reserve_price > clearingPrice
// receive zero allocation.
func CalculateSellerAllocations(timeslot int64, supplies []*market.Supply, clearingPrice, clearedQuantity uint64) ([]*SellerAllocation, error) {
	inputs := make([]sellerInput, 0, len(supplies))
	for _, s := range supplies {
		inputs = append(inputs, sellerInput{seller: s.Seller, reserve: s.ReservePrice, quantity: s.CommittedQuantity})
	}
	sort.Slice(inputs, func(i, j int) bool {
		if inputs[i].reserve != inputs[j].reserve {
			return inputs[i].reserve < inputs[j].reserve
		}
		return inputs[i].seller.Less(inputs[j].seller)
	})

	remaining := clearedQuantity
	allocations := make([]*SellerAllocation, 0, len(inputs))
	for _, in := range inputs {
		alloc := &SellerAllocation{
			Timeslot:        timeslot,
			Seller:          in.seller,
			AllocationPrice: clearingPrice,
		}
		if in.reserve <= clearingPrice && remaining > 0 {
			want := in.quantity
			if want > remaining {
				want = remaining
			}
			alloc.AllocatedQuantity = want
			remaining -= want
		}
		allocations = append(allocations, alloc)
	}
	return allocations, nil
}

// winningBid pairs a bid with its arrival order within its page, the second
// tie-break key after placement timestamp.
type winningBid struct {
	owner        ids.ID
	price        uint64
	quantity     uint64
	placedAt     int64
	arrivalIndex int
}

// CalculateBuyerAllocations iterates winning bids price-descending (ties by
// placement timestamp, then arrival order, then owner bytes), greedily
// drawing from sellerAllocations in the same merit order, decrementing each
// seller's remaining-to-deliver counter. Every buyer with at least one
// non-Cancelled bid gets a BuyerAllocation record — including a buyer whose
// bids all lost — since a lost bid's escrow still has to round-trip back
// through refund_amount (spec §4.5); only Cancelled bids are excluded, since
// those already went through cancel's own refund path.
func CalculateBuyerAllocations(timeslot int64, pages []*market.BidPage, clearingPrice uint64, sellerAllocations []*SellerAllocation) ([]*BuyerAllocation, error) {
	remaining := make(map[ids.ID]uint64, len(sellerAllocations))
	order := make([]ids.ID, 0, len(sellerAllocations))
	for _, sa := range sellerAllocations {
		remaining[sa.Seller] = sa.AllocatedQuantity
		order = append(order, sa.Seller)
	}

	byBuyer := make(map[ids.ID]*BuyerAllocation)
	var buyerOrder []ids.ID
	bidCost := make(map[ids.ID]uint64) // sum(bid.price * bid.quantity) over every non-Cancelled bid, winning or not

	buyerAlloc := func(owner ids.ID) *BuyerAllocation {
		ba, exists := byBuyer[owner]
		if !exists {
			ba = &BuyerAllocation{Timeslot: timeslot, Buyer: owner}
			byBuyer[owner] = ba
			buyerOrder = append(buyerOrder, owner)
		}
		return ba
	}

	wins := make([]winningBid, 0)
	for _, page := range pages {
		for i, b := range page.Bids {
			if b.Status == market.BidCancelled {
				continue
			}
			buyerAlloc(b.Owner)
			cost, err := safemath.MulU64(b.Price, b.Quantity)
			if err != nil {
				return nil, err
			}
			bidCost[b.Owner] += cost

			if b.Price < clearingPrice {
				continue
			}
			wins = append(wins, winningBid{owner: b.Owner, price: b.Price, quantity: b.Quantity, placedAt: b.PlacedAt, arrivalIndex: i})
		}
	}

	sort.Slice(wins, func(i, j int) bool {
		if wins[i].price != wins[j].price {
			return wins[i].price > wins[j].price
		}
		if wins[i].placedAt != wins[j].placedAt {
			return wins[i].placedAt < wins[j].placedAt
		}
		if wins[i].arrivalIndex != wins[j].arrivalIndex {
			return wins[i].arrivalIndex < wins[j].arrivalIndex
		}
		return wins[i].owner.Less(wins[j].owner)
	})

	for _, w := range wins {
		want := w.quantity
		ba := byBuyer[w.owner]

		drawn := uint64(0)
		for _, sellerID := range order {
			if want == 0 {
				break
			}
			avail := remaining[sellerID]
			if avail == 0 {
				continue
			}
			take := avail
			if take > want {
				take = want
			}
			remaining[sellerID] -= take
			want -= take
			drawn += take
			ba.EnergySources = append(ba.EnergySources, EnergySource{Seller: sellerID, DrawnAmount: take})
		}

		ba.WonQuantity += drawn
	}

	result := make([]*BuyerAllocation, 0, len(buyerOrder))
	for _, buyer := range buyerOrder {
		ba := byBuyer[buyer]
		clearingCost, err := safemath.MulU64(ba.WonQuantity, clearingPrice)
		if err != nil {
			return nil, err
		}
		totalBidCost := bidCost[buyer]
		refund, err := safemath.SubU64(totalBidCost, clearingCost)
		if err != nil {
			return nil, err
		}
		ba.RefundAmount = refund
		result = append(result, ba)
	}
	return result, nil
}

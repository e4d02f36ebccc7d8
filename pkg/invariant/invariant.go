// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package invariant is the Invariant Guard: cross-cutting conservation
// assertions. This package only detects, it never mutates state itself. The
// only caller is pkg/engine's ValidateSystemHealth, which returns the first
// violation as an error; no operation boundary (seal, clearing, settle,
// cancel, withdrawal, redemption) runs these checks, and a violation does
// not move AuctionState to Failed.
package invariant

import (
	"errors"
	"sort"

	"github.com/voltgrid/auction-core/pkg/allocation"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/market"
	"github.com/voltgrid/auction-core/pkg/safemath"
)

var (
	ErrEnergyConservation = errors.New("invariant: energy conservation violated")
	ErrQuoteConservation  = errors.New("invariant: quote conservation violated")
	ErrAllocationBound    = errors.New("invariant: allocation bound violated")
	ErrMeritOrder         = errors.New("invariant: merit order violated")
)

// CheckEnergyConservation asserts Σ seller_escrow_balances + Σ
// energy_delivered_to_buyers == Σ committed_quantity for the given
// timeslot's Supply Set.
func CheckEnergyConservation(l *ledger.Ledger, timeslot int64, supplies []*market.Supply, energyDeliveredToBuyers uint64) error {
	escrowTotal := uint64(0)
	committedTotal := uint64(0)
	for _, s := range supplies {
		bal, err := l.Balance(ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: timeslot, Owner: s.Seller})
		if err != nil && !errors.Is(err, ledger.ErrVaultNotFound) {
			return err
		}
		sum, err := safemath.AddU64(escrowTotal, bal)
		if err != nil {
			return err
		}
		escrowTotal = sum

		sum, err = safemath.AddU64(committedTotal, s.CommittedQuantity)
		if err != nil {
			return err
		}
		committedTotal = sum
	}

	total, err := safemath.AddU64(escrowTotal, energyDeliveredToBuyers)
	if err != nil {
		return err
	}
	if total != committedTotal {
		return ErrEnergyConservation
	}
	return nil
}

// CheckQuoteConservation asserts quote_escrow_balance + Σ refunds_paid + Σ
// seller_net_paid + fee_collected == Σ(bid.price * bid.quantity) over every
// non-Cancelled bid across the given pages.
func CheckQuoteConservation(l *ledger.Ledger, quoteEscrow ledger.VaultRef, refundsPaid, sellerNetPaid, feeCollected uint64, pages []*market.BidPage) error {
	escrowBal, err := l.Balance(quoteEscrow)
	if err != nil && !errors.Is(err, ledger.ErrVaultNotFound) {
		return err
	}

	lhs, err := safemath.SumU64(escrowBal, refundsPaid, sellerNetPaid, feeCollected)
	if err != nil {
		return err
	}

	rhs := uint64(0)
	for _, page := range pages {
		for _, b := range page.Bids {
			if b.Status == market.BidCancelled {
				continue
			}
			cost, err := safemath.MulU64(b.Price, b.Quantity)
			if err != nil {
				return err
			}
			sum, err := safemath.AddU64(rhs, cost)
			if err != nil {
				return err
			}
			rhs = sum
		}
	}

	if lhs != rhs {
		return ErrQuoteConservation
	}
	return nil
}

// CheckAllocationBound asserts Σ allocated_quantity <= Σ committed_quantity
// and Σ allocated_quantity == clearedQuantity.
func CheckAllocationBound(sellerAllocs []*allocation.SellerAllocation, supplies []*market.Supply, clearedQuantity uint64) error {
	allocatedTotal := uint64(0)
	for _, a := range sellerAllocs {
		sum, err := safemath.AddU64(allocatedTotal, a.AllocatedQuantity)
		if err != nil {
			return err
		}
		allocatedTotal = sum
	}

	committedTotal := uint64(0)
	for _, s := range supplies {
		sum, err := safemath.AddU64(committedTotal, s.CommittedQuantity)
		if err != nil {
			return err
		}
		committedTotal = sum
	}

	if allocatedTotal > committedTotal {
		return ErrAllocationBound
	}
	if allocatedTotal != clearedQuantity {
		return ErrAllocationBound
	}
	return nil
}

// CheckMeritOrder replays the same ascending-reserve-price cursor
// CalculateSellerAllocations uses and asserts the recorded sellerAllocs
// agree with it exactly. This is precisely spec's requirement that every
// seller with reserve_price < clearingPrice and unfilled demand ahead of it
// in merit order received allocated_quantity == committed_quantity: any
// deviation from the recomputed cursor means some seller was short- or
// over-filled relative to merit order.
func CheckMeritOrder(supplies []*market.Supply, sellerAllocs []*allocation.SellerAllocation, clearingPrice, clearedQuantity uint64) error {
	byID := make(map[string]uint64, len(sellerAllocs))
	for _, a := range sellerAllocs {
		byID[a.Seller.String()] = a.AllocatedQuantity
	}

	ordered := make([]*market.Supply, len(supplies))
	copy(ordered, supplies)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ReservePrice != ordered[j].ReservePrice {
			return ordered[i].ReservePrice < ordered[j].ReservePrice
		}
		return ordered[i].Seller.Less(ordered[j].Seller)
	})

	remaining := clearedQuantity
	for _, s := range ordered {
		expected := uint64(0)
		if s.ReservePrice <= clearingPrice && remaining > 0 {
			expected = s.CommittedQuantity
			if expected > remaining {
				expected = remaining
			}
			remaining -= expected
		}
		if byID[s.Seller.String()] != expected {
			return ErrMeritOrder
		}
	}
	return nil
}

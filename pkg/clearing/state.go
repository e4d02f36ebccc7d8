// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clearing is the Clearing Engine: batched demand/supply
// aggregation over a sealed Timeslot's BidPages and Supply records,
// producing a uniform clearing price and a deterministic verification
// checksum.
package clearing

import (
	"errors"
	"sort"

	voltcrypto "github.com/voltgrid/auction-core/crypto"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/market"
)

// AuctionStatus is AuctionState's lifecycle: Processing -> Cleared ->
// Settled, with Failed terminal and reachable only via a checksum mismatch.
type AuctionStatus int

const (
	StatusProcessing AuctionStatus = iota
	StatusCleared
	StatusSettled
	StatusFailed
)

var (
	ErrPageAlreadyProcessed   = errors.New("clearing: page already processed")
	ErrSellerAlreadyProcessed = errors.New("clearing: seller already processed")
	ErrBatchNotComplete       = errors.New("clearing: not all pages/sellers processed")
	ErrNotCleared             = errors.New("clearing: auction state is not Cleared")
	ErrChecksumMismatch       = errors.New("clearing: verification checksum mismatch")

	// MaxPagesPerBatch / MaxSellersPerBatch bound the compute of a single
	// process_bid_batch / process_supply_batch call.
	ErrBatchTooLarge = errors.New("clearing: batch exceeds per-call bound")
)

const (
	MaxPagesPerBatch   = 10
	MaxSellersPerBatch = 50
)

// AuctionState is the per-timeslot clearing result.
type AuctionState struct {
	Timeslot int64
	Status   AuctionStatus

	ClearingPrice       uint64
	TotalClearedQuantity uint64

	ProcessedPages   map[uint32]struct{}
	ProcessedSellers map[ids.ID]struct{}

	Demand map[uint64]uint64 // price -> quantity, accumulated so far
	Supply map[uint64]uint64 // reserve price -> quantity, accumulated so far

	TotalPagesExpected   uint32
	TotalSellersExpected uint32

	Checksum []byte
}

// NewAuctionState creates an empty Processing AuctionState for a sealed
// timeslot, given the total page/seller counts recorded at seal time.
func NewAuctionState(timeslot int64, totalPages, totalSellers uint32) *AuctionState {
	return &AuctionState{
		Timeslot:             timeslot,
		Status:               StatusProcessing,
		ProcessedPages:       make(map[uint32]struct{}),
		ProcessedSellers:     make(map[ids.ID]struct{}),
		Demand:               make(map[uint64]uint64),
		Supply:                make(map[uint64]uint64),
		TotalPagesExpected:   totalPages,
		TotalSellersExpected: totalSellers,
	}
}

// ProcessBidBatch aggregates Active bids from the given pages into the
// running demand curve. Idempotent per page via ProcessedPages.
func (a *AuctionState) ProcessBidBatch(pages []*market.BidPage) error {
	if len(pages) > MaxPagesPerBatch {
		return ErrBatchTooLarge
	}
	for _, page := range pages {
		if _, done := a.ProcessedPages[page.PageIndex]; done {
			return ErrPageAlreadyProcessed
		}
	}
	for _, page := range pages {
		for _, bid := range page.Bids {
			if bid.Status != market.BidActive {
				continue
			}
			a.Demand[bid.Price] += bid.Quantity
		}
		a.ProcessedPages[page.PageIndex] = struct{}{}
	}
	return nil
}

// ProcessSupplyBatch aggregates the given Supply records into the running
// supply curve. Idempotent per seller via ProcessedSellers.
func (a *AuctionState) ProcessSupplyBatch(supplies []*market.Supply) error {
	if len(supplies) > MaxSellersPerBatch {
		return ErrBatchTooLarge
	}
	for _, s := range supplies {
		if _, done := a.ProcessedSellers[s.Seller]; done {
			return ErrSellerAlreadyProcessed
		}
	}
	for _, s := range supplies {
		a.Supply[s.ReservePrice] += s.CommittedQuantity
		a.ProcessedSellers[s.Seller] = struct{}{}
	}
	return nil
}

// isComplete reports whether every expected page and seller has been
// processed, the precondition for ExecuteClearing.
func (a *AuctionState) isComplete() bool {
	return uint32(len(a.ProcessedPages)) == a.TotalPagesExpected &&
		uint32(len(a.ProcessedSellers)) == a.TotalSellersExpected
}

// cumulativeDemandAtOrAbove returns D(p): total demand quantity bid at
// price >= p.
func cumulativeDemandAtOrAbove(demand map[uint64]uint64, p uint64) uint64 {
	var total uint64
	for price, qty := range demand {
		if price >= p {
			total += qty
		}
	}
	return total
}

// cumulativeSupplyAtOrBelow returns S(p): total supply quantity offered at
// reserve price <= p.
func cumulativeSupplyAtOrBelow(supply map[uint64]uint64, p uint64) uint64 {
	var total uint64
	for price, qty := range supply {
		if price <= p {
			total += qty
		}
	}
	return total
}

// distinctCandidatePrices returns every price level present in either curve,
// ascending, the scan order execute_auction_clearing walks.
func distinctCandidatePrices(demand, supply map[uint64]uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(demand)+len(supply))
	for p := range demand {
		seen[p] = struct{}{}
	}
	for p := range supply {
		seen[p] = struct{}{}
	}
	prices := make([]uint64, 0, len(seen))
	for p := range seen {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices
}

// ExecuteClearing runs the uniform-price clearing algorithm once every page
// and seller has been processed. Selects the maximum price p* such that
// S(p*) <= D(p*); among ties on cleared quantity it picks the lowest
// candidate price (buyer-favouring).
func (a *AuctionState) ExecuteClearing() error {
	if a.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	if !a.isComplete() {
		return ErrBatchNotComplete
	}

	if len(a.Demand) == 0 || len(a.Supply) == 0 {
		a.ClearingPrice = 1
		a.TotalClearedQuantity = 0
		a.Status = StatusCleared
		a.Checksum = a.computeChecksum()
		return nil
	}

	candidates := distinctCandidatePrices(a.Demand, a.Supply)

	var bestPrice, bestQty uint64
	found := false
	for _, p := range candidates {
		d := cumulativeDemandAtOrAbove(a.Demand, p)
		s := cumulativeSupplyAtOrBelow(a.Supply, p)
		if s > d {
			continue
		}
		qty := s
		if d < s {
			qty = d
		}
		if !found {
			bestPrice, bestQty, found = p, qty, true
			continue
		}
		// Prefer the higher price only when it does not reduce cleared
		// quantity; among equal quantities keep the lowest price already
		// recorded (candidates are visited ascending, so do nothing).
		if qty > bestQty {
			bestPrice, bestQty = p, qty
		}
	}

	if !found {
		a.ClearingPrice = 1
		a.TotalClearedQuantity = 0
	} else {
		a.ClearingPrice = bestPrice
		a.TotalClearedQuantity = bestQty
	}

	a.Status = StatusCleared
	a.Checksum = a.computeChecksum()
	return nil
}

// computeChecksum derives a deterministic commitment over the accumulated
// demand/supply curves and the resulting (p*, q*), so verify_auction_clearing
// can recompute and compare byte-for-byte.
func (a *AuctionState) computeChecksum() []byte {
	return voltcrypto.CreateCommitment(canonicalInputBytes(a))
}

// VerifyAuctionClearing recomputes the checksum from the immutable inputs
// and asserts equality with the recorded AuctionState. A mismatch
// transitions status to Failed, blocking settlement.
func (a *AuctionState) VerifyAuctionClearing() error {
	if a.Status != StatusCleared && a.Status != StatusSettled {
		return ErrNotCleared
	}
	recomputed := voltcrypto.CreateCommitment(canonicalInputBytes(a))
	if string(recomputed) != string(a.Checksum) {
		a.Status = StatusFailed
		return ErrChecksumMismatch
	}
	return nil
}

// canonicalInputBytes produces a deterministic byte encoding of the curves
// and outcome, sorted by price so map iteration order never affects the
// checksum.
func canonicalInputBytes(a *AuctionState) []byte {
	prices := distinctCandidatePrices(a.Demand, a.Supply)
	buf := make([]byte, 0, 16*len(prices)+16)
	for _, p := range prices {
		buf = appendU64(buf, p)
		buf = appendU64(buf, a.Demand[p])
		buf = appendU64(buf, a.Supply[p])
	}
	buf = appendU64(buf, a.ClearingPrice)
	buf = appendU64(buf, a.TotalClearedQuantity)
	return buf
}

func appendU64(buf []byte, v uint64) []byte {
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

var ErrInvalidTransition = errors.New("clearing: invalid auction state transition")

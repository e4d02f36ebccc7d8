// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"errors"

	"github.com/voltgrid/auction-core/pkg/ids"
)

// BidPageCapacity is the fixed per-page bid capacity. Pages form an implicit
// dense sequence: page i+1 may only be created once page i is full.
const BidPageCapacity = 150

var (
	ErrPageFull       = errors.New("market: bid page is at capacity")
	ErrPageOutOfOrder = errors.New("market: page index does not follow the dense sequence")
	ErrBidNotFound    = errors.New("market: bid not found")
	ErrBidNotActive   = errors.New("market: bid is not Active")
)

// BidStatus is a single bid's lifecycle state.
type BidStatus int

const (
	BidActive BidStatus = iota
	BidCancelled
	BidFilled
)

// Bid is one buyer order within a BidPage.
type Bid struct {
	Owner     ids.ID
	Price     uint64 // >0, tick-aligned
	Quantity  uint64 // >0, lot-aligned
	PlacedAt  int64  // placement timestamp, for tie-breaking
	Status    BidStatus
}

// BidPage is a capacity-bounded, append-only array of Bid records keyed by
// (timeslot, page_index).
type BidPage struct {
	Timeslot  int64
	PageIndex uint32
	Bids      []Bid
}

// NewBidPage creates an empty page. pageIndex must equal the count of pages
// already created for this timeslot (the dense-sequence invariant); callers
// enforce that by tracking the next expected index themselves (pkg/engine).
func NewBidPage(timeslot int64, pageIndex uint32) *BidPage {
	return &BidPage{
		Timeslot:  timeslot,
		PageIndex: pageIndex,
		Bids:      make([]Bid, 0, BidPageCapacity),
	}
}

// Append adds a bid to the page, failing once the page reaches
// BidPageCapacity — the caller must open a new page instead.
func (p *BidPage) Append(b Bid) error {
	if len(p.Bids) >= BidPageCapacity {
		return ErrPageFull
	}
	p.Bids = append(p.Bids, b)
	return nil
}

// IsFull reports whether the page has reached capacity and a subsequent
// page may be opened.
func (p *BidPage) IsFull() bool {
	return len(p.Bids) >= BidPageCapacity
}

// Cancel marks the bid at index idx as Cancelled. Fails if the bid is not
// currently Active. allocation.RefundCancelledBuyers refunds only Active
// bids, so a bid cancelled here is not refunded by it.
func (p *BidPage) Cancel(idx int) error {
	if idx < 0 || idx >= len(p.Bids) {
		return ErrBidNotFound
	}
	if p.Bids[idx].Status != BidActive {
		return ErrBidNotActive
	}
	p.Bids[idx].Status = BidCancelled
	return nil
}

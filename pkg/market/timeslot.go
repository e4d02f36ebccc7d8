// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package market holds the Timeslot, BidPage, and Supply Set records: the
// append-only, capacity-bounded inputs the Clearing Engine consumes once a
// timeslot is sealed.
package market

import (
	"errors"

	"github.com/voltgrid/auction-core/pkg/ids"
)

// Status is a Timeslot's monotone lifecycle state, per the core's staged
// pipeline: Pending -> Open -> Sealed -> Settled, with a side exit to
// Cancelled reachable from any non-terminal state.
type Status int

const (
	StatusPending Status = iota
	StatusOpen
	StatusSealed
	StatusSettled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusOpen:
		return "Open"
	case StatusSealed:
		return "Sealed"
	case StatusSettled:
		return "Settled"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

var (
	ErrInvalidTransition  = errors.New("market: invalid timeslot status transition")
	ErrZeroLotSize        = errors.New("market: lot_size must be > 0")
	ErrZeroPriceTick      = errors.New("market: price_tick must be > 0")
	ErrMisalignedTick     = errors.New("market: price is not an integer multiple of price_tick")
	ErrMisalignedLot      = errors.New("market: quantity is not an integer multiple of lot_size")
	ErrZeroQuantity       = errors.New("market: quantity must be > 0")
	ErrZeroPrice          = errors.New("market: price must be > 0")
	ErrDuplicateTimeslot  = errors.New("market: timeslot already exists for this epoch timestamp")
)

// Timeslot is the auction-round aggregate every bid, supply commitment, and
// downstream allocation hangs off of.
type Timeslot struct {
	EpochTS   int64 // uniqueness key
	Status    Status
	LotSize   uint64
	PriceTick uint64

	TotalSupply uint64 // monotonically non-decreasing until Sealed
	TotalBids   uint64 // monotonically non-decreasing until Sealed

	ClearingPrice     uint64
	TotalSoldQuantity uint64
	FeeCollected      uint64
}

// New creates a Pending Timeslot. open_timeslot transitions it to Open.
func New(epochTS int64, lotSize, priceTick uint64) (*Timeslot, error) {
	if lotSize == 0 {
		return nil, ErrZeroLotSize
	}
	if priceTick == 0 {
		return nil, ErrZeroPriceTick
	}
	return &Timeslot{
		EpochTS:   epochTS,
		Status:    StatusPending,
		LotSize:   lotSize,
		PriceTick: priceTick,
	}, nil
}

// ValidateTickAlignment checks price is an integer multiple of price_tick.
func (t *Timeslot) ValidateTickAlignment(price uint64) error {
	if price == 0 {
		return ErrZeroPrice
	}
	if price%t.PriceTick != 0 {
		return ErrMisalignedTick
	}
	return nil
}

// ValidateLotAlignment checks quantity is an integer multiple of lot_size.
func (t *Timeslot) ValidateLotAlignment(quantity uint64) error {
	if quantity == 0 {
		return ErrZeroQuantity
	}
	if quantity%t.LotSize != 0 {
		return ErrMisalignedLot
	}
	return nil
}

// Open transitions Pending -> Open.
func (t *Timeslot) Open() error {
	if t.Status != StatusPending {
		return ErrInvalidTransition
	}
	t.Status = StatusOpen
	return nil
}

// Seal transitions Open -> Sealed, freezing the totals recorded so far.
// No bid or supply record may be admitted after this point.
func (t *Timeslot) Seal() error {
	if t.Status != StatusOpen {
		return ErrInvalidTransition
	}
	t.Status = StatusSealed
	return nil
}

// Settle transitions Sealed -> Settled, recording the final clearing
// outcome.
func (t *Timeslot) Settle(clearingPrice, soldQuantity, feeCollected uint64) error {
	if t.Status != StatusSealed {
		return ErrInvalidTransition
	}
	t.Status = StatusSettled
	t.ClearingPrice = clearingPrice
	t.TotalSoldQuantity = soldQuantity
	t.FeeCollected = feeCollected
	return nil
}

// Cancel transitions to Cancelled from any status other than Cancelled
// (Pending, Open, Sealed, or Settled). A Settled
// timeslot is only a valid cancellation target while unredeemed — that
// check needs the allocation set this type doesn't hold, so it's enforced
// by the caller (pkg/engine.CancelAuction) before this method runs.
func (t *Timeslot) Cancel() error {
	if t.Status == StatusCancelled {
		return ErrInvalidTransition
	}
	t.Status = StatusCancelled
	return nil
}

// Supply is one record per (timeslot, seller): the Supply Set.
type Supply struct {
	Timeslot          int64
	Seller            ids.ID
	ReservePrice      uint64 // >0, tick-aligned
	CommittedQuantity uint64 // >0, lot-aligned
	ProceedsClaimed   bool
}

// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package delivery is the Delivery & Slashing state machine: it turns an
// oracle-signed DeliveryReport into a SlashingState that walks
// Reported/AutoTriggered -> UnderAppeal -> Confirmed -> Executed, or
// Reversed if an appeal succeeds, transferring the penalty out of the
// seller's withheld proceeds only once the state reaches Confirmed.
package delivery

import (
	"bytes"
	"errors"

	"github.com/voltgrid/auction-core/crypto"
	"github.com/voltgrid/auction-core/pkg/allocation"
	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/safemath"
)

var (
	ErrUnauthorizedOracle = errors.New("delivery: signer is not an authorized oracle")
	ErrInvalidSignature   = errors.New("delivery: oracle signature does not verify")
	ErrOutOfWindow        = errors.New("delivery: report timestamp outside delivery window")
	ErrAllocationMismatch = errors.New("delivery: report does not match recorded seller allocation")
	ErrInvalidTransition  = errors.New("delivery: invalid slashing state transition")
	ErrAppealWindowClosed = errors.New("delivery: appeal window has closed")
	ErrAppealWindowOpen   = errors.New("delivery: appeal window still open")
)

// autoTriggerThresholdBps is the shortfall-fraction threshold (10%) at or
// above which a report auto-escalates to the shorter appeal window.
const autoTriggerThresholdBps = 1000

const (
	manualAppealWindowSecs = 7 * 24 * 3600
	autoAppealWindowSecs   = 3 * 24 * 3600
)

// Status is a SlashingState's lifecycle stage.
type Status int

const (
	StatusReported Status = iota
	StatusAutoTriggered
	StatusUnderAppeal
	StatusConfirmed
	StatusExecuted
	StatusReversed
)

func (s Status) String() string {
	switch s {
	case StatusReported:
		return "Reported"
	case StatusAutoTriggered:
		return "AutoTriggered"
	case StatusUnderAppeal:
		return "UnderAppeal"
	case StatusConfirmed:
		return "Confirmed"
	case StatusExecuted:
		return "Executed"
	case StatusReversed:
		return "Reversed"
	default:
		return "Unknown"
	}
}

// DeliveryReport is what an authorized oracle submits after a timeslot
// settles: the observed delivered quantity against a seller's allocation,
// signed over (Supplier, AllocatedQuantity, DeliveredQuantity, EvidenceHash,
// Timestamp) with the oracle's private key.
type DeliveryReport struct {
	Supplier          ids.ID
	AllocatedQuantity uint64
	DeliveredQuantity uint64
	EvidenceHash      []byte
	Timestamp         int64
	OracleID          ids.ID
	OraclePublicKey   []byte
	OracleSignature   []byte
}

// SignedMessage reconstructs the byte sequence the oracle signed over, in
// the same field order every time so Verify is reproducible. Oracles call
// this to produce the bytes they sign; SubmitDeliveryReport calls it again
// to verify.
func (r *DeliveryReport) SignedMessage() []byte {
	var buf bytes.Buffer
	buf.Write(r.Supplier.Bytes())
	buf.Write(appendU64(r.AllocatedQuantity))
	buf.Write(appendU64(r.DeliveredQuantity))
	buf.Write(r.EvidenceHash)
	buf.Write(appendU64(uint64(r.Timestamp)))
	return buf.Bytes()
}

func appendU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// SlashingState is the per-(timeslot, seller) record a DeliveryReport
// opens and later transitions and executions mutate.
type SlashingState struct {
	Timeslot           int64
	Seller             ids.ID
	Status             Status
	ShortfallQuantity  uint64
	AllocationPrice    uint64
	Penalty            uint64
	UnrecoveredDeficit uint64
	EvidenceHash       []byte
	ReportedAt         int64
	AppealDeadline     int64
}

// SubmitDeliveryReport validates an oracle's report against the GlobalConfig
// oracle set and delivery window, cross-checks it against the recorded
// SellerAllocation, and opens a SlashingState in Reported or AutoTriggered
// depending on the shortfall fraction. A zero shortfall opens directly in
// Confirmed, since there is nothing to appeal.
func SubmitDeliveryReport(cfg *config.Manager, epochTS int64, alloc *allocation.SellerAllocation, report DeliveryReport) (*SlashingState, error) {
	snap, err := cfg.Snapshot()
	if err != nil {
		return nil, err
	}

	if _, ok := snap.AuthorizedOracles[report.OracleID]; !ok {
		return nil, ErrUnauthorizedOracle
	}
	if !crypto.Verify(report.OraclePublicKey, report.SignedMessage(), report.OracleSignature) {
		return nil, ErrInvalidSignature
	}
	if report.Timestamp < epochTS || report.Timestamp > epochTS+snap.DeliveryWindowSecs {
		return nil, ErrOutOfWindow
	}
	if report.Supplier != alloc.Seller || report.AllocatedQuantity != alloc.AllocatedQuantity {
		return nil, ErrAllocationMismatch
	}

	shortfall := uint64(0)
	if report.DeliveredQuantity < report.AllocatedQuantity {
		shortfall = report.AllocatedQuantity - report.DeliveredQuantity
	}

	state := &SlashingState{
		Timeslot:          epochTS,
		Seller:            alloc.Seller,
		ShortfallQuantity: shortfall,
		AllocationPrice:   alloc.AllocationPrice,
		EvidenceHash:      report.EvidenceHash,
		ReportedAt:        report.Timestamp,
	}

	if shortfall == 0 {
		state.Status = StatusConfirmed
		return state, nil
	}

	autoTriggered, err := isAutoTriggered(shortfall, report.AllocatedQuantity)
	if err != nil {
		return nil, err
	}

	if autoTriggered {
		state.Status = StatusAutoTriggered
		state.AppealDeadline = report.Timestamp + autoAppealWindowSecs
	} else {
		state.Status = StatusReported
		state.AppealDeadline = report.Timestamp + manualAppealWindowSecs
	}
	return state, nil
}

// isAutoTriggered reports whether shortfall/allocated >= 10%, computed as
// shortfall*10000 >= allocated*1000 to stay in integer arithmetic.
func isAutoTriggered(shortfall, allocated uint64) (bool, error) {
	lhs, err := safemath.MulU64(shortfall, 10_000)
	if err != nil {
		return false, err
	}
	rhs, err := safemath.MulU64(allocated, autoTriggerThresholdBps)
	if err != nil {
		return false, err
	}
	return lhs >= rhs, nil
}

// Appeal moves a Reported or AutoTriggered state to UnderAppeal, provided
// now is still before the appeal deadline.
func Appeal(s *SlashingState, now int64) error {
	if s.Status != StatusReported && s.Status != StatusAutoTriggered {
		return ErrInvalidTransition
	}
	if now >= s.AppealDeadline {
		return ErrAppealWindowClosed
	}
	s.Status = StatusUnderAppeal
	return nil
}

// ConfirmIfExpired moves a Reported or AutoTriggered state to Confirmed once
// now has passed the appeal deadline without an appeal having been filed.
func ConfirmIfExpired(s *SlashingState, now int64) error {
	if s.Status != StatusReported && s.Status != StatusAutoTriggered {
		return ErrInvalidTransition
	}
	if now < s.AppealDeadline {
		return ErrAppealWindowOpen
	}
	s.Status = StatusConfirmed
	return nil
}

// ResolveAppeal moves an UnderAppeal state to Reversed (appeal upheld, no
// penalty) or Confirmed (appeal rejected).
func ResolveAppeal(s *SlashingState, upheld bool) error {
	if s.Status != StatusUnderAppeal {
		return ErrInvalidTransition
	}
	if upheld {
		s.Status = StatusReversed
	} else {
		s.Status = StatusConfirmed
	}
	return nil
}

// Execute computes the penalty for a Confirmed state and transfers it out of
// the seller's withheld proceeds vault into the protocol penalty vault,
// clamping to whatever balance is actually available and recording the
// shortfall non-fatally as UnrecoveredDeficit. Transitions to Executed
// regardless of whether the full penalty was recovered.
func Execute(l *ledger.Ledger, slashingPenaltyBps uint32, s *SlashingState, sellerQuoteVault, penaltyVault ledger.VaultRef) error {
	if s.Status != StatusConfirmed {
		return ErrInvalidTransition
	}

	if s.ShortfallQuantity == 0 {
		s.Status = StatusExecuted
		return nil
	}

	shortfallValue, err := safemath.MulU64(s.ShortfallQuantity, s.AllocationPrice)
	if err != nil {
		return err
	}
	penalty, err := safemath.MulDivU64(shortfallValue, uint64(10_000+slashingPenaltyBps), 10_000)
	if err != nil {
		return err
	}

	available, err := l.Balance(sellerQuoteVault)
	if err != nil && !errors.Is(err, ledger.ErrVaultNotFound) {
		return err
	}

	recoverable := penalty
	if available < penalty {
		recoverable = available
	}

	if recoverable > 0 {
		if err := l.Transfer(sellerQuoteVault, penaltyVault, recoverable); err != nil {
			return err
		}
	}

	s.Penalty = recoverable
	s.UnrecoveredDeficit = penalty - recoverable
	s.Status = StatusExecuted
	return nil
}

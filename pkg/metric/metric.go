// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric wraps luxfi/metric (prometheus-backed) with the series this
// core's clearing/allocation/delivery pipeline emits.
package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics holds every counter/gauge/histogram the auction core emits.
type Metrics struct {
	metricsInstance metrics.Metrics

	// Bid book / supply set
	BidsPlaced       metrics.Counter
	SuppliesCommitted metrics.Counter
	BidRejections    metrics.CounterVec

	// Clearing engine
	TimeslotsCleared  metrics.Counter
	ClearingFailures  metrics.Counter
	VerificationFails metrics.Counter
	ClearingDuration  metrics.Histogram

	// Allocation / settlement
	ProceedsWithdrawn metrics.Counter
	RedemptionsPaid   metrics.Counter
	CancellationsPaid metrics.Counter

	// Delivery & slashing
	DeliveryReports   metrics.CounterVec
	SlashingExecuted  metrics.Counter
	UnrecoveredDeficit metrics.Counter

	// Invariant guard
	InvariantViolations metrics.CounterVec
}

// NewMetrics creates the metrics instance, registering every series once.
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	instance := factory.New("auction_core")

	m := &Metrics{metricsInstance: instance}

	m.BidsPlaced = instance.NewCounter("bids_placed_total", "Total bids accepted into the bid book")
	m.SuppliesCommitted = instance.NewCounter("supplies_committed_total", "Total seller supply commitments accepted")
	m.BidRejections = instance.NewCounterVec(
		"bid_rejections_total",
		"Bids rejected by reason",
		[]string{"reason"},
	)

	m.TimeslotsCleared = instance.NewCounter("timeslots_cleared_total", "Total timeslots that reached Cleared")
	m.ClearingFailures = instance.NewCounter("clearing_failures_total", "Total execute_auction_clearing calls that returned an error")
	m.VerificationFails = instance.NewCounter("verification_failures_total", "Total verify_auction_clearing mismatches")
	m.ClearingDuration = instance.NewHistogram(
		"clearing_duration_seconds",
		"Time to execute_auction_clearing for one timeslot",
		prometheus.DefBuckets,
	)

	m.ProceedsWithdrawn = instance.NewCounter("proceeds_withdrawn_total", "Total withdraw_proceeds calls")
	m.RedemptionsPaid = instance.NewCounter("redemptions_paid_total", "Total redeem_energy_and_refund calls")
	m.CancellationsPaid = instance.NewCounter("cancellation_refunds_total", "Total refund_cancelled_* batch calls")

	m.DeliveryReports = instance.NewCounterVec(
		"delivery_reports_total",
		"Delivery reports by outcome",
		[]string{"outcome"},
	)
	m.SlashingExecuted = instance.NewCounter("slashing_executed_total", "Total execute_slashing calls")
	m.UnrecoveredDeficit = instance.NewCounter("unrecovered_deficit_total", "Total slashing events with a clamped penalty shortfall")

	m.InvariantViolations = instance.NewCounterVec(
		"invariant_violations_total",
		"Invariant Guard failures by check name",
		[]string{"check"},
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export.
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer.
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}

// Snapshot is a point-in-time derived-ratio view, following the teacher's
// settlement.SettlementMetrics pattern of reporting ratios as decimal.Decimal
// rather than raw counters. It is computed from raw counts by NewSnapshot,
// not tracked incrementally; nothing in pkg/engine calls NewSnapshot.
type Snapshot struct {
	FillRate       decimal.Decimal `json:"fill_rate"`        // cleared_quantity / total_bid_quantity
	RefundRate     decimal.Decimal `json:"refund_rate"`      // refunded_quote / total_escrowed_quote
	SlashingRate   decimal.Decimal `json:"slashing_rate"`    // sellers_slashed / sellers_allocated
	UnrecoveredBps decimal.Decimal `json:"unrecovered_bps"`  // unrecovered_deficit / total_penalty, in bps
}

// NewSnapshot computes a Snapshot from raw totals, guarding every division by
// zero the way the teacher's updateSettlementMetrics does.
func NewSnapshot(clearedQty, totalBidQty, refundedQuote, totalQuote, sellersSlashed, sellersAllocated, unrecovered, totalPenalty uint64) Snapshot {
	ratio := func(num, den uint64) decimal.Decimal {
		if den == 0 {
			return decimal.Zero
		}
		return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
	}
	return Snapshot{
		FillRate:       ratio(clearedQty, totalBidQty),
		RefundRate:     ratio(refundedQuote, totalQuote),
		SlashingRate:   ratio(sellersSlashed, sellersAllocated),
		UnrecoveredBps: ratio(unrecovered, totalPenalty).Mul(decimal.NewFromInt(10000)),
	}
}

// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine is the orchestrator binding every subsystem package to the
// operation surface: a single struct holding every manager, guarded by one
// mutex per the core's single-threaded-atomic-unit execution model. It has
// no networking of its own — cmd/auctiond and cmd/auction-api expose it over
// the wire.
package engine

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/voltgrid/auction-core/pkg/allocation"
	"github.com/voltgrid/auction-core/pkg/clearing"
	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/delivery"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/invariant"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/market"
	"github.com/voltgrid/auction-core/pkg/metric"
	"github.com/voltgrid/auction-core/pkg/safemath"
	"github.com/voltgrid/auction-core/pkg/store"
)

var (
	ErrTimeslotNotFound       = errors.New("engine: timeslot not found")
	ErrSellerAlreadyCommitted = errors.New("engine: seller already committed supply this timeslot")
	ErrClearingMismatch       = errors.New("engine: caller-supplied clearing outcome does not match AuctionState")
	ErrSellerNotFound         = errors.New("engine: seller has no allocation in this timeslot")
	ErrBuyerNotFound          = errors.New("engine: buyer has no allocation in this timeslot")
	ErrSlashingNotFound       = errors.New("engine: no slashing state for this seller in this timeslot")
	ErrCancelAfterSettlement  = errors.New("engine: cannot cancel once proceeds withdrawn or energy redeemed")
)

// timeslotRecord is the per-timeslot working set every operation touches.
type timeslotRecord struct {
	slot         *market.Timeslot
	supplies     []*market.Supply
	pages        []*market.BidPage
	auctionState *clearing.AuctionState
	sellerAllocs []*allocation.SellerAllocation
	buyerAllocs  []*allocation.BuyerAllocation
	cancellation *allocation.CancellationState
	slashing     map[ids.ID]*delivery.SlashingState
}

// Engine holds every subsystem manager and the per-timeslot working set.
// Every exported method is a single-threaded atomic unit: it takes the
// engine-wide mutex, does its work against the in-process maps, and either
// commits every mutation or returns an error leaving state untouched.
type Engine struct {
	mu sync.Mutex

	log     log.Logger
	metrics *metric.Metrics
	store   *store.Store
	cfg     *config.Manager
	ledger  *ledger.Ledger

	timeslots map[int64]*timeslotRecord
}

// New wires together an Engine from already-constructed subsystem managers.
func New(logger log.Logger, metrics *metric.Metrics, st *store.Store, cfg *config.Manager, l *ledger.Ledger) *Engine {
	return &Engine{
		log:       logger,
		metrics:   metrics,
		store:     st,
		cfg:       cfg,
		ledger:    l,
		timeslots: make(map[int64]*timeslotRecord),
	}
}

// Initialize is the one-time bootstrap operation.
func (e *Engine) Initialize(authority, quoteAsset ids.ID, feeBps uint32, version uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Initialize(authority, quoteAsset, feeBps, version)
}

// ApplyProposal executes a governance-approved parameter change.
func (e *Engine) ApplyProposal(caller ids.ID, p config.Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	return e.cfg.ApplyProposal(caller, p)
}

// Pause / Resume / EmergencyWithdraw are the emergency carve-out operations:
// callable regardless of the pause flag's own state.
func (e *Engine) Pause(caller ids.ID, reason string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Pause(caller, reason, now)
}

func (e *Engine) Resume(caller ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Resume(caller)
}

// EmergencyWithdraw moves a vault's entire balance to a payout vault,
// bypassing the ordinary operation surface. Available even while paused.
func (e *Engine) EmergencyWithdraw(caller ids.ID, src, dst ledger.VaultRef) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireAuthority(caller); err != nil {
		return 0, err
	}
	bal, err := e.ledger.Balance(src)
	if err != nil {
		return 0, err
	}
	if bal == 0 {
		return 0, nil
	}
	if err := e.ledger.Transfer(src, dst, bal); err != nil {
		return 0, err
	}
	return bal, nil
}

func (e *Engine) record(epochTS int64) (*timeslotRecord, error) {
	rec, ok := e.timeslots[epochTS]
	if !ok {
		return nil, ErrTimeslotNotFound
	}
	return rec, nil
}

// OpenTimeslot creates and opens a new auction round.
func (e *Engine) OpenTimeslot(caller ids.ID, epochTS int64, lotSize, priceTick uint64) (*market.Timeslot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireAuthority(caller); err != nil {
		return nil, err
	}
	if err := e.cfg.RequireNotPaused(); err != nil {
		return nil, err
	}
	if _, exists := e.timeslots[epochTS]; exists {
		return nil, market.ErrDuplicateTimeslot
	}

	slot, err := market.New(epochTS, lotSize, priceTick)
	if err != nil {
		return nil, err
	}
	if err := slot.Open(); err != nil {
		return nil, err
	}

	e.timeslots[epochTS] = &timeslotRecord{slot: slot}
	e.persistTimeslot(slot)
	return slot, nil
}

// CommitSupply admits a first-time-per-seller Supply record and escrows the
// committed energy quantity into that seller's per-timeslot vault.
func (e *Engine) CommitSupply(caller ids.ID, epochTS int64, reservePrice, quantity uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.slot.Status != market.StatusOpen {
		return market.ErrInvalidTransition
	}
	if err := rec.slot.ValidateTickAlignment(reservePrice); err != nil {
		return err
	}
	if err := rec.slot.ValidateLotAlignment(quantity); err != nil {
		return err
	}
	for _, s := range rec.supplies {
		if s.Seller == caller {
			return ErrSellerAlreadyCommitted
		}
	}

	supply := &market.Supply{Timeslot: epochTS, Seller: caller, ReservePrice: reservePrice, CommittedQuantity: quantity}
	rec.supplies = append(rec.supplies, supply)
	rec.slot.TotalSupply += quantity

	vault := ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: epochTS, Owner: caller}
	if err := e.ledger.Deposit(vault, quantity); err != nil {
		return err
	}

	e.metrics.SuppliesCommitted.Inc()
	return nil
}

// activePage returns the last page in the dense sequence, opening a new one
// if it is absent or full.
func (e *Engine) activePage(rec *timeslotRecord) *market.BidPage {
	if len(rec.pages) == 0 || rec.pages[len(rec.pages)-1].IsFull() {
		page := market.NewBidPage(rec.slot.EpochTS, uint32(len(rec.pages)))
		rec.pages = append(rec.pages, page)
	}
	return rec.pages[len(rec.pages)-1]
}

// PlaceBid appends a bid to the active page and escrows price*quantity quote
// into the timeslot's shared quote escrow vault.
func (e *Engine) PlaceBid(caller ids.ID, epochTS int64, price, quantity uint64, placedAt int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.slot.Status != market.StatusOpen {
		e.metrics.BidRejections.WithLabelValues("timeslot_not_open").Inc()
		return market.ErrInvalidTransition
	}
	if err := rec.slot.ValidateTickAlignment(price); err != nil {
		e.metrics.BidRejections.WithLabelValues("tick_misaligned").Inc()
		return err
	}
	if err := rec.slot.ValidateLotAlignment(quantity); err != nil {
		e.metrics.BidRejections.WithLabelValues("lot_misaligned").Inc()
		return err
	}

	cost, err := safemath.MulU64(price, quantity)
	if err != nil {
		e.metrics.BidRejections.WithLabelValues("overflow").Inc()
		return err
	}

	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS}
	if err := e.ledger.Deposit(quoteEscrow, cost); err != nil {
		return err
	}

	page := e.activePage(rec)
	if err := page.Append(market.Bid{Owner: caller, Price: price, Quantity: quantity, PlacedAt: placedAt, Status: market.BidActive}); err != nil {
		return err
	}
	rec.slot.TotalBids += quantity

	e.metrics.BidsPlaced.Inc()
	return nil
}

// SealTimeslot freezes the bid/supply totals and opens an AuctionState.
func (e *Engine) SealTimeslot(caller ids.ID, epochTS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireAuthority(caller); err != nil {
		return err
	}
	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if err := rec.slot.Seal(); err != nil {
		return err
	}

	rec.auctionState = clearing.NewAuctionState(epochTS, uint32(len(rec.pages)), uint32(len(rec.supplies)))
	return nil
}

// ProcessSupplyBatch and ProcessBidBatch feed the Clearing Engine from the
// caller-supplied slice of the Supply Set / Bid Book.
func (e *Engine) ProcessSupplyBatch(epochTS int64, sellers []ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.auctionState == nil {
		return clearing.ErrInvalidTransition
	}

	bySeller := make(map[ids.ID]*market.Supply, len(rec.supplies))
	for _, s := range rec.supplies {
		bySeller[s.Seller] = s
	}
	batch := make([]*market.Supply, 0, len(sellers))
	for _, id := range sellers {
		s, ok := bySeller[id]
		if !ok {
			return ErrSellerNotFound
		}
		batch = append(batch, s)
	}
	return rec.auctionState.ProcessSupplyBatch(batch)
}

func (e *Engine) ProcessBidBatch(epochTS int64, pageIndexes []uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.auctionState == nil {
		return clearing.ErrInvalidTransition
	}

	batch := make([]*market.BidPage, 0, len(pageIndexes))
	for _, idx := range pageIndexes {
		if int(idx) >= len(rec.pages) {
			return market.ErrPageOutOfOrder
		}
		batch = append(batch, rec.pages[idx])
	}
	return rec.auctionState.ProcessBidBatch(batch)
}

// ExecuteAuctionClearing runs the clearing algorithm once every page and
// seller has been processed.
func (e *Engine) ExecuteAuctionClearing(epochTS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.auctionState == nil {
		return clearing.ErrInvalidTransition
	}
	if err := rec.auctionState.ExecuteClearing(); err != nil {
		e.metrics.ClearingFailures.Inc()
		return err
	}
	e.metrics.TimeslotsCleared.Inc()
	return nil
}

// VerifyAuctionClearing recomputes and compares the checksum.
func (e *Engine) VerifyAuctionClearing(epochTS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.auctionState == nil {
		return clearing.ErrInvalidTransition
	}
	if err := rec.auctionState.VerifyAuctionClearing(); err != nil {
		e.metrics.VerificationFails.Inc()
		return err
	}
	return nil
}

// AuctionState returns the current AuctionState for a timeslot, for callers
// (cmd/auctiond's WebSocket feed) that want to observe clearing progress
// without driving it.
func (e *Engine) AuctionState(epochTS int64) (*clearing.AuctionState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.timeslots[epochTS]
	if !ok || rec.auctionState == nil {
		return nil, false
	}
	return rec.auctionState, true
}

// TimeslotSummary is a read-only projection of a timeslot's working set,
// the shape cmd/auction-api renders to callers that must
// never drive a state transition themselves.
type TimeslotSummary struct {
	Timeslot       *market.Timeslot
	SupplyCount    int
	BidPageCount   int
	SellerAllocs   []*allocation.SellerAllocation
	BuyerAllocs    []*allocation.BuyerAllocation
	AuctionState   *clearing.AuctionState
}

// ListOpenTimeslots returns every epoch_ts this engine currently holds a
// working set for, in ascending order.
func (e *Engine) ListOpenTimeslots() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]int64, 0, len(e.timeslots))
	for epoch := range e.timeslots {
		out = append(out, epoch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetTimeslotSummary returns a read-only projection of a timeslot's working
// set, for query surfaces that must never drive a state transition.
func (e *Engine) GetTimeslotSummary(epochTS int64) (*TimeslotSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.timeslots[epochTS]
	if !ok {
		return nil, false
	}
	return &TimeslotSummary{
		Timeslot:     rec.slot,
		SupplyCount:  len(rec.supplies),
		BidPageCount: len(rec.pages),
		SellerAllocs: rec.sellerAllocs,
		BuyerAllocs:  rec.buyerAllocs,
		AuctionState: rec.auctionState,
	}, true
}

// GetSellerAllocation returns one seller's last-computed allocation for a
// timeslot, if calculate_seller_allocations has run.
func (e *Engine) GetSellerAllocation(epochTS int64, seller ids.ID) (*allocation.SellerAllocation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.timeslots[epochTS]
	if !ok {
		return nil, false
	}
	alloc := findSellerAlloc(rec.sellerAllocs, seller)
	return alloc, alloc != nil
}

// GetBuyerAllocation returns one buyer's last-computed allocation for a
// timeslot, if calculate_buyer_allocations has run.
func (e *Engine) GetBuyerAllocation(epochTS int64, buyer ids.ID) (*allocation.BuyerAllocation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.timeslots[epochTS]
	if !ok {
		return nil, false
	}
	alloc := findBuyerAlloc(rec.buyerAllocs, buyer)
	return alloc, alloc != nil
}

// GetSlashingState returns the SlashingState opened for (epochTS, seller),
// if a delivery report has been submitted.
func (e *Engine) GetSlashingState(epochTS int64, seller ids.ID) (*delivery.SlashingState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.timeslots[epochTS]
	if !ok {
		return nil, false
	}
	state, ok := rec.slashing[seller]
	return state, ok
}

// SettleTimeslot cross-checks the caller-supplied (p*, q*) against the
// stored AuctionState — per this core's resolution of the settle_timeslot
// Open Question — and transitions the Timeslot to Settled on a match.
func (e *Engine) SettleTimeslot(caller ids.ID, epochTS int64, clearingPrice, clearedQuantity uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireAuthority(caller); err != nil {
		return err
	}
	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.auctionState == nil || rec.auctionState.Status != clearing.StatusCleared {
		return clearing.ErrNotCleared
	}
	if rec.auctionState.ClearingPrice != clearingPrice || rec.auctionState.TotalClearedQuantity != clearedQuantity {
		return ErrClearingMismatch
	}

	snap, err := e.cfg.Snapshot()
	if err != nil {
		return err
	}
	gross, err := safemath.MulU64(clearingPrice, clearedQuantity)
	if err != nil {
		return err
	}
	fee, err := safemath.BpsOf(gross, snap.FeeBps)
	if err != nil {
		return err
	}

	if err := rec.slot.Settle(clearingPrice, clearedQuantity, fee); err != nil {
		return err
	}
	rec.auctionState.Status = clearing.StatusSettled
	e.persistTimeslot(rec.slot)
	return nil
}

// CalculateSellerAllocations writes the merit-order SellerAllocation set.
func (e *Engine) CalculateSellerAllocations(epochTS int64) ([]*allocation.SellerAllocation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return nil, err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return nil, err
	}
	if rec.slot.Status != market.StatusSettled {
		return nil, market.ErrInvalidTransition
	}
	allocs, err := allocation.CalculateSellerAllocations(epochTS, rec.supplies, rec.slot.ClearingPrice, rec.slot.TotalSoldQuantity)
	if err != nil {
		return nil, err
	}
	rec.sellerAllocs = allocs
	return allocs, nil
}

// CalculateBuyerAllocations writes the multi-source BuyerAllocation set.
func (e *Engine) CalculateBuyerAllocations(epochTS int64) ([]*allocation.BuyerAllocation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return nil, err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return nil, err
	}
	if rec.slot.Status != market.StatusSettled {
		return nil, market.ErrInvalidTransition
	}
	allocs, err := allocation.CalculateBuyerAllocations(epochTS, rec.pages, rec.slot.ClearingPrice, rec.sellerAllocs)
	if err != nil {
		return nil, err
	}
	rec.buyerAllocs = allocs
	return allocs, nil
}

// WithdrawProceeds pays out one seller's net proceeds and protocol fee.
func (e *Engine) WithdrawProceeds(epochTS int64, seller ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.slot.Status != market.StatusSettled {
		return market.ErrInvalidTransition
	}
	alloc := findSellerAlloc(rec.sellerAllocs, seller)
	if alloc == nil {
		return ErrSellerNotFound
	}
	snap, err := e.cfg.Snapshot()
	if err != nil {
		return err
	}

	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS}
	feeVault := ledger.VaultRef{Kind: ledger.VaultFeeVault}
	sellerQuoteVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS, Owner: seller}

	if err := allocation.WithdrawProceeds(e.ledger, epochTS, alloc, snap.FeeBps, quoteEscrow, feeVault, sellerQuoteVault); err != nil {
		return err
	}
	e.metrics.ProceedsWithdrawn.Inc()
	return nil
}

// RedeemEnergyAndRefund pays out one buyer's energy delivery and refund.
func (e *Engine) RedeemEnergyAndRefund(epochTS int64, buyer ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.slot.Status != market.StatusSettled {
		return market.ErrInvalidTransition
	}
	alloc := findBuyerAlloc(rec.buyerAllocs, buyer)
	if alloc == nil {
		return ErrBuyerNotFound
	}

	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS}
	buyerQuoteVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS, Owner: buyer}
	buyerEnergyVault := ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: epochTS, Owner: buyer}

	if err := allocation.RedeemEnergyAndRefund(e.ledger, epochTS, alloc, quoteEscrow, buyerQuoteVault, buyerEnergyVault); err != nil {
		return err
	}
	e.metrics.RedemptionsPaid.Inc()
	return nil
}

// CancelAuction transitions to Cancelled from any non-terminal status, or
// from Settled provided no seller has withdrawn proceeds and no buyer has
// redeemed yet, and installs a CancellationState sized to the recorded
// bid/seller totals.
func (e *Engine) CancelAuction(caller ids.ID, epochTS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireAuthority(caller); err != nil {
		return err
	}
	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	for _, sa := range rec.sellerAllocs {
		if sa.ProceedsWithdrawn {
			return ErrCancelAfterSettlement
		}
	}
	for _, ba := range rec.buyerAllocs {
		if ba.Redeemed {
			return ErrCancelAfterSettlement
		}
	}
	if err := rec.slot.Cancel(); err != nil {
		return err
	}

	totalBuyers := uint32(0)
	for _, page := range rec.pages {
		for _, b := range page.Bids {
			if b.Status == market.BidActive {
				totalBuyers++
			}
		}
	}
	rec.cancellation = &allocation.CancellationState{
		Timeslot:     epochTS,
		TotalBuyers:  totalBuyers,
		TotalSellers: uint32(len(rec.supplies)),
	}
	return nil
}

// RefundCancelledBuyers / RefundCancelledSellers drive the two
// CancellationState cursors over a caller-supplied bounded batch, mirroring
// ProcessBidBatch / ProcessSupplyBatch's sub-range shape so a single call
// stays a cost-bounded atomic unit regardless of book size.
func (e *Engine) RefundCancelledBuyers(epochTS int64, pageIndexes []uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.cancellation == nil {
		return allocation.ErrCancellationNotComplete
	}
	if len(pageIndexes) > clearing.MaxPagesPerBatch {
		return clearing.ErrBatchTooLarge
	}
	batch := make([]*market.BidPage, 0, len(pageIndexes))
	for _, idx := range pageIndexes {
		if int(idx) >= len(rec.pages) {
			return market.ErrPageOutOfOrder
		}
		batch = append(batch, rec.pages[idx])
	}
	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS}
	vaultFor := func(owner ids.ID) ledger.VaultRef {
		return ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS, Owner: owner}
	}
	if err := allocation.RefundCancelledBuyers(e.ledger, rec.cancellation, quoteEscrow, batch, vaultFor); err != nil {
		return err
	}
	e.metrics.CancellationsPaid.Inc()
	return nil
}

func (e *Engine) RefundCancelledSellers(epochTS int64, sellers []ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	if rec.cancellation == nil {
		return allocation.ErrCancellationNotComplete
	}
	if len(sellers) > clearing.MaxSellersPerBatch {
		return clearing.ErrBatchTooLarge
	}
	bySeller := make(map[ids.ID]*market.Supply, len(rec.supplies))
	for _, s := range rec.supplies {
		bySeller[s.Seller] = s
	}
	batch := make([]*market.Supply, 0, len(sellers))
	for _, id := range sellers {
		s, ok := bySeller[id]
		if !ok {
			return ErrSellerNotFound
		}
		batch = append(batch, s)
	}
	vaultFor := func(seller ids.ID) ledger.VaultRef {
		return ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS, Owner: seller}
	}
	if err := allocation.RefundCancelledSellers(e.ledger, rec.cancellation, epochTS, batch, vaultFor); err != nil {
		return err
	}
	e.metrics.CancellationsPaid.Inc()
	return nil
}

// SubmitDeliveryReport opens a SlashingState for (epochTS, report.Supplier).
func (e *Engine) SubmitDeliveryReport(epochTS int64, report delivery.DeliveryReport) (*delivery.SlashingState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return nil, err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return nil, err
	}
	alloc := findSellerAlloc(rec.sellerAllocs, report.Supplier)
	if alloc == nil {
		return nil, ErrSellerNotFound
	}

	state, err := delivery.SubmitDeliveryReport(e.cfg, epochTS, alloc, report)
	if err != nil {
		e.metrics.DeliveryReports.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if rec.slashing == nil {
		rec.slashing = make(map[ids.ID]*delivery.SlashingState)
	}
	rec.slashing[report.Supplier] = state
	e.metrics.DeliveryReports.WithLabelValues(state.Status.String()).Inc()
	return state, nil
}

// ExecuteSlashing transfers the penalty for a Confirmed SlashingState.
func (e *Engine) ExecuteSlashing(epochTS int64, seller ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.RequireNotPaused(); err != nil {
		return err
	}
	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}
	state := rec.slashing[seller]
	if state == nil {
		return ErrSlashingNotFound
	}
	snap, err := e.cfg.Snapshot()
	if err != nil {
		return err
	}

	sellerQuoteVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS, Owner: seller}
	penaltyVault := ledger.VaultRef{Kind: ledger.VaultPenaltyVault}

	if err := delivery.Execute(e.ledger, snap.SlashingPenaltyBps, state, sellerQuoteVault, penaltyVault); err != nil {
		return err
	}
	e.metrics.SlashingExecuted.Inc()
	if state.UnrecoveredDeficit > 0 {
		e.metrics.UnrecoveredDeficit.Inc()
	}
	return nil
}

// ValidateSystemHealth runs every Invariant Guard check against the current
// working set for a timeslot. Available even while paused.
func (e *Engine) ValidateSystemHealth(epochTS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(epochTS)
	if err != nil {
		return err
	}

	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: epochTS}

	energyDelivered := uint64(0)
	for _, ba := range rec.buyerAllocs {
		if ba.Redeemed {
			energyDelivered += ba.WonQuantity
		}
	}
	if err := invariant.CheckEnergyConservation(e.ledger, epochTS, rec.supplies, energyDelivered); err != nil {
		e.metrics.InvariantViolations.WithLabelValues("energy_conservation").Inc()
		return err
	}

	snap, err := e.cfg.Snapshot()
	if err != nil {
		return err
	}

	refundsPaid, sellerNetPaid, feeCollected := uint64(0), uint64(0), uint64(0)
	for _, ba := range rec.buyerAllocs {
		if ba.Redeemed {
			refundsPaid += ba.RefundAmount
		}
	}
	for _, sa := range rec.sellerAllocs {
		if !sa.ProceedsWithdrawn {
			continue
		}
		gross, err := safemath.MulU64(sa.AllocatedQuantity, sa.AllocationPrice)
		if err != nil {
			return err
		}
		fee, err := safemath.BpsOf(gross, snap.FeeBps)
		if err != nil {
			return err
		}
		net, err := safemath.SubU64(gross, fee)
		if err != nil {
			return err
		}
		sellerNetPaid += net
		feeCollected += fee
	}
	if err := invariant.CheckQuoteConservation(e.ledger, quoteEscrow, refundsPaid, sellerNetPaid, feeCollected, rec.pages); err != nil {
		e.metrics.InvariantViolations.WithLabelValues("quote_conservation").Inc()
		return err
	}

	if rec.sellerAllocs != nil {
		if err := invariant.CheckAllocationBound(rec.sellerAllocs, rec.supplies, rec.slot.TotalSoldQuantity); err != nil {
			e.metrics.InvariantViolations.WithLabelValues("allocation_bound").Inc()
			return err
		}
		if err := invariant.CheckMeritOrder(rec.supplies, rec.sellerAllocs, rec.slot.ClearingPrice, rec.slot.TotalSoldQuantity); err != nil {
			e.metrics.InvariantViolations.WithLabelValues("merit_order").Inc()
			return err
		}
	}
	return nil
}

func findSellerAlloc(allocs []*allocation.SellerAllocation, seller ids.ID) *allocation.SellerAllocation {
	for _, a := range allocs {
		if a.Seller == seller {
			return a
		}
	}
	return nil
}

func findBuyerAlloc(allocs []*allocation.BuyerAllocation, buyer ids.ID) *allocation.BuyerAllocation {
	for _, a := range allocs {
		if a.Buyer == buyer {
			return a
		}
	}
	return nil
}

func (e *Engine) persistTimeslot(slot *market.Timeslot) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(slot)
	if err != nil {
		e.log.Error("failed to marshal timeslot for persistence", "error", err)
		return
	}
	if err := e.store.Put(store.TimeslotKey(slot.EpochTS), data); err != nil {
		e.log.Error("failed to persist timeslot", "error", err)
	}
}

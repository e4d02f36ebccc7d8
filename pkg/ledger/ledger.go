// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger is the Escrow Ledger: per-timeslot quote-token vaults and
// per-seller energy-token vaults, each with a named owner-of-record. Every
// credit/debit/transfer routes through pkg/safemath so a balance can never
// silently wrap, and every transfer either fully succeeds or leaves both
// vaults untouched.
package ledger

import (
	"errors"
	"sync"

	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/safemath"
)

var (
	ErrVaultNotFound       = errors.New("ledger: vault not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient vault balance")
	ErrVaultAlreadyExists  = errors.New("ledger: vault already exists")
)

// VaultKind distinguishes a quote-token escrow from an energy-token escrow,
// since the two are never fungible with each other.
type VaultKind int

const (
	VaultQuoteEscrow VaultKind = iota
	VaultSellerEnergyEscrow
	VaultFeeVault
	VaultPenaltyVault
)

// VaultRef names a vault's owner-of-record: a timeslot-wide quote escrow
// (VaultQuoteEscrow, zero Owner), a participant's quote account within a
// timeslot (VaultQuoteEscrow with Owner set), a participant's energy vault
// for one timeslot (VaultSellerEnergyEscrow), or the singleton fee and
// penalty vaults (zero Timeslot and Owner).
type VaultRef struct {
	Kind     VaultKind
	Timeslot int64
	Owner    ids.ID
}

// Ledger is the mutex-guarded manager holding every vault balance in-process.
// Balances live only in memory; nothing persists them through pkg/store.
type Ledger struct {
	mu     sync.RWMutex
	vaults map[VaultRef]uint64
	log    log.Logger
}

// New creates an empty Ledger.
func New(logger log.Logger) *Ledger {
	return &Ledger{
		vaults: make(map[VaultRef]uint64),
		log:    logger,
	}
}

// OpenVault creates a zero-balance vault. Fails if the vault already exists.
// The Supply Set and Bid Book admission paths in pkg/engine do not call it;
// they open vaults implicitly through Deposit.
func (l *Ledger) OpenVault(ref VaultRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.vaults[ref]; exists {
		return ErrVaultAlreadyExists
	}
	l.vaults[ref] = 0
	return nil
}

// Balance returns a vault's current balance.
func (l *Ledger) Balance(ref VaultRef) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, exists := l.vaults[ref]
	if !exists {
		return 0, ErrVaultNotFound
	}
	return bal, nil
}

// Deposit credits amount into ref, opening the vault first if it does not
// yet exist (the Bid Book / Supply Set admission path).
func (l *Ledger) Deposit(ref VaultRef, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.vaults[ref]
	newBal, err := safemath.AddU64(bal, amount)
	if err != nil {
		return err
	}
	l.vaults[ref] = newBal
	return nil
}

// Withdraw debits amount from ref, failing if the vault is unknown or
// underfunded.
func (l *Ledger) Withdraw(ref VaultRef, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, exists := l.vaults[ref]
	if !exists {
		return ErrVaultNotFound
	}
	newBal, err := safemath.SubU64(bal, amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	l.vaults[ref] = newBal
	return nil
}

// Transfer moves amount from src to dst atomically: either both vaults are
// updated or neither is. This is the core's only primitive for moving value
// between escrows (allocation payouts, fee splits, cancellation refunds).
func (l *Ledger) Transfer(src, dst VaultRef, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	srcBal, exists := l.vaults[src]
	if !exists {
		return ErrVaultNotFound
	}
	newSrcBal, err := safemath.SubU64(srcBal, amount)
	if err != nil {
		return ErrInsufficientBalance
	}

	dstBal := l.vaults[dst] // zero value if dst not yet opened is acceptable; Deposit semantics
	newDstBal, err := safemath.AddU64(dstBal, amount)
	if err != nil {
		return err
	}

	l.vaults[src] = newSrcBal
	l.vaults[dst] = newDstBal
	return nil
}

// TotalBalance sums every vault currently tracked, failing closed on
// overflow. The Invariant Guard reads individual vault balances instead.
func (l *Ledger) TotalBalance() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	values := make([]uint64, 0, len(l.vaults))
	for _, v := range l.vaults {
		values = append(values, v)
	}
	return safemath.SumU64(values...)
}

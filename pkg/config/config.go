// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the process-wide GlobalConfig singleton, the
// EmergencyFlag, and the governance proposal executor that mutates both.
// Mutation paths are exactly three: Initialize, ApplyProposal, and
// Pause/Resume — nothing else reaches these fields.
package config

import (
	"errors"
	"sync"

	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/log"
)

var (
	ErrAlreadyInitialized = errors.New("config: already initialized")
	ErrNotInitialized     = errors.New("config: not initialized")
	ErrInvalidFeeBps      = errors.New("config: fee_bps out of range")
	ErrUnauthorized       = errors.New("config: caller is not the administrative authority")
	ErrOracleAlreadyKnown = errors.New("config: oracle already authorized")
	ErrOracleUnknown      = errors.New("config: oracle not authorized")
	ErrEmergencyPaused    = errors.New("config: operation blocked by emergency pause")
)

// GlobalConfig is the process-wide parameter singleton described by the
// core's bootstrap operation. All fields are read by every operation and
// written only through ApplyProposal or Initialize.
type GlobalConfig struct {
	Authority           ids.ID
	QuoteAsset          ids.ID
	FeeBps              uint32
	SlashingPenaltyBps  uint32
	MaxSellersPerSlot   uint32
	DeliveryWindowSecs  int64
	GovernanceCouncil   map[ids.ID]struct{}
	AuthorizedOracles   map[ids.ID]struct{}
	Version             uint64
}

// DefaultSlashingPenaltyBps is the spec's default: the seller forfeits 250%
// of shortfall value (100% base + 150% penalty).
const DefaultSlashingPenaltyBps = 15000

// Manager guards GlobalConfig and EmergencyFlag behind a single mutex,
// matching the mutex-guarded-manager shape the rest of this core's managers
// use.
type Manager struct {
	mu        sync.RWMutex
	cfg       *GlobalConfig
	emergency EmergencyFlag
	log       log.Logger
}

// EmergencyFlag is the process-wide pause switch. While Active, every
// state-mutating operation except emergency_resume, emergency_withdraw,
// refund_*, and validate_system_health must fail with ErrEmergencyPaused.
type EmergencyFlag struct {
	Active         bool
	PauseTimestamp int64
	Reason         string
}

// NewManager creates an uninitialized config Manager.
func NewManager(logger log.Logger) *Manager {
	return &Manager{log: logger}
}

// Initialize is the one-time bootstrap operation that creates GlobalConfig.
func (m *Manager) Initialize(authority, quoteAsset ids.ID, feeBps uint32, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg != nil {
		return ErrAlreadyInitialized
	}
	if feeBps > 1000 {
		return ErrInvalidFeeBps
	}

	m.cfg = &GlobalConfig{
		Authority:          authority,
		QuoteAsset:         quoteAsset,
		FeeBps:             feeBps,
		SlashingPenaltyBps: DefaultSlashingPenaltyBps,
		MaxSellersPerSlot:  150,
		DeliveryWindowSecs: int64(3 * 24 * 3600),
		GovernanceCouncil:  make(map[ids.ID]struct{}),
		AuthorizedOracles:  make(map[ids.ID]struct{}),
		Version:            version,
	}

	m.log.Info("global config initialized", "authority", authority, "fee_bps", feeBps)
	return nil
}

// Snapshot returns a copy of the current GlobalConfig for read-only use by
// other packages. Callers must not mutate the returned maps.
func (m *Manager) Snapshot() (GlobalConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cfg == nil {
		return GlobalConfig{}, ErrNotInitialized
	}
	return *m.cfg, nil
}

// RequireAuthority fails unless caller is the administrative authority.
func (m *Manager) RequireAuthority(caller ids.ID) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cfg == nil {
		return ErrNotInitialized
	}
	if m.cfg.Authority != caller {
		return ErrUnauthorized
	}
	return nil
}

// RequireNotPaused fails with ErrEmergencyPaused while the flag is set. Every
// state-mutating operation other than the emergency carve-out list calls
// this before doing any work.
func (m *Manager) RequireNotPaused() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.emergency.Active {
		return ErrEmergencyPaused
	}
	return nil
}

// Pause sets the emergency flag. Callable only by the administrative
// authority; unaffected by the pause it is setting.
func (m *Manager) Pause(caller ids.ID, reason string, now int64) error {
	if err := m.RequireAuthority(caller); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergency = EmergencyFlag{Active: true, PauseTimestamp: now, Reason: reason}
	m.log.Warn("emergency pause engaged", "reason", reason, "ts", now)
	return nil
}

// Resume clears the emergency flag.
func (m *Manager) Resume(caller ids.ID) error {
	if err := m.RequireAuthority(caller); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergency = EmergencyFlag{}
	m.log.Info("emergency pause cleared")
	return nil
}

// EmergencySnapshot returns a copy of the current EmergencyFlag.
func (m *Manager) EmergencySnapshot() EmergencyFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergency
}

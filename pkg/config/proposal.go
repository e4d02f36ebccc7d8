// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"

	"github.com/voltgrid/auction-core/pkg/ids"
)

// ProposalKind tags which GlobalConfig field a Proposal mutates. The core
// only specifies the callback this triggers; proposal/voting bookkeeping
// itself is the governance council's concern, out of scope here.
type ProposalKind int

const (
	ProposalFeeBps ProposalKind = iota
	ProposalMaxSellers
	ProposalSlashingBps
	ProposalDeliveryWindow
	ProposalAddOracle
	ProposalRemoveOracle
)

var ErrInvalidProposalValue = errors.New("config: proposal value out of range")

// Proposal is the tagged variant a governance-approved parameter update
// executes against GlobalConfig.
type Proposal struct {
	Kind     ProposalKind
	NewValue uint64 // interpreted per Kind; oracle ID proposals pack ids.ID via OracleID instead
	OracleID ids.ID // only set for ProposalAddOracle / ProposalRemoveOracle
}

// ApplyProposal executes a governance-approved Proposal against GlobalConfig.
// Every branch is bounds-validated before any field is mutated so a bad
// proposal can never partially apply.
func (m *Manager) ApplyProposal(caller ids.ID, p Proposal) error {
	if err := m.RequireAuthority(caller); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg == nil {
		return ErrNotInitialized
	}

	switch p.Kind {
	case ProposalFeeBps:
		if p.NewValue > 1000 {
			return ErrInvalidProposalValue
		}
		m.cfg.FeeBps = uint32(p.NewValue)

	case ProposalMaxSellers:
		if p.NewValue == 0 || p.NewValue > 1<<20 {
			return ErrInvalidProposalValue
		}
		m.cfg.MaxSellersPerSlot = uint32(p.NewValue)

	case ProposalSlashingBps:
		if p.NewValue > 100_000 {
			return ErrInvalidProposalValue
		}
		m.cfg.SlashingPenaltyBps = uint32(p.NewValue)

	case ProposalDeliveryWindow:
		if p.NewValue == 0 {
			return ErrInvalidProposalValue
		}
		m.cfg.DeliveryWindowSecs = int64(p.NewValue)

	case ProposalAddOracle:
		if _, exists := m.cfg.AuthorizedOracles[p.OracleID]; exists {
			return ErrOracleAlreadyKnown
		}
		m.cfg.AuthorizedOracles[p.OracleID] = struct{}{}

	case ProposalRemoveOracle:
		if _, exists := m.cfg.AuthorizedOracles[p.OracleID]; !exists {
			return ErrOracleUnknown
		}
		delete(m.cfg.AuthorizedOracles, p.OracleID)

	default:
		return ErrInvalidProposalValue
	}

	m.cfg.Version++
	m.log.Info("governance proposal applied", "kind", int(p.Kind), "version", m.cfg.Version)
	return nil
}

// IsAuthorizedOracle reports whether id is in the current authorized-oracle
// set, used by pkg/delivery to accept or reject a DeliveryReport's signer.
func (m *Manager) IsAuthorizedOracle(id ids.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cfg == nil {
		return false, ErrNotInitialized
	}
	_, ok := m.cfg.AuthorizedOracles[id]
	return ok, nil
}

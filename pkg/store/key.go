// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/binary"

	"github.com/voltgrid/auction-core/pkg/ids"
)

// Namespace tags the first element of every persisted key tuple.
type Namespace string

const (
	NamespaceTimeslot         Namespace = "timeslot"
	NamespaceSupply           Namespace = "supply"
	NamespaceSellerEscrow     Namespace = "seller_escrow"
	NamespaceBidPage          Namespace = "bid_page"
	NamespaceQuoteEscrow      Namespace = "quote_escrow"
	NamespaceAuctionState     Namespace = "auction_state"
	NamespaceAllocationTracker Namespace = "allocation_tracker"
	NamespaceSellerAllocation Namespace = "seller_allocation"
	NamespaceBuyerAllocation  Namespace = "buyer_allocation"
	NamespaceSlashingState    Namespace = "slashing_state"

	// Singleton keys.
	NamespaceGlobalConfig  Namespace = "global_config"
	NamespaceFeeVault      Namespace = "fee_vault"
	NamespaceEmergencyFlag Namespace = "emergency_flag"
)

// TimeslotKey encodes ("timeslot", epoch_ts_le64).
func TimeslotKey(epochTS int64) []byte {
	return tuple(NamespaceTimeslot, int64Bytes(epochTS))
}

// SupplyEscrowKey encodes ("supply"|"seller_escrow", timeslot, seller).
func SupplyEscrowKey(ns Namespace, epochTS int64, seller ids.ID) []byte {
	return tuple(ns, int64Bytes(epochTS), seller.Bytes())
}

// BidPageKey encodes ("bid_page", timeslot, page_index_le32).
func BidPageKey(epochTS int64, pageIndex uint32) []byte {
	return tuple(NamespaceBidPage, int64Bytes(epochTS), uint32Bytes(pageIndex))
}

// QuoteEscrowKey encodes ("quote_escrow", timeslot).
func QuoteEscrowKey(epochTS int64) []byte {
	return tuple(NamespaceQuoteEscrow, int64Bytes(epochTS))
}

// AuctionStateKey encodes ("auction_state"|"allocation_tracker", timeslot).
func AuctionStateKey(ns Namespace, epochTS int64) []byte {
	return tuple(ns, int64Bytes(epochTS))
}

// AllocationKey encodes ("seller_allocation"|"buyer_allocation", timeslot, party).
func AllocationKey(ns Namespace, epochTS int64, party ids.ID) []byte {
	return tuple(ns, int64Bytes(epochTS), party.Bytes())
}

// SlashingStateKey encodes ("slashing_state", timeslot, seller).
func SlashingStateKey(epochTS int64, seller ids.ID) []byte {
	return tuple(NamespaceSlashingState, int64Bytes(epochTS), seller.Bytes())
}

// SingletonKey encodes a fixed-key record: GlobalConfig, FeeVault,
// EmergencyFlag.
func SingletonKey(ns Namespace) []byte {
	return tuple(ns)
}

// TimeslotPrefix returns the prefix every supply/escrow/allocation key for a
// given timeslot shares, for prefix-scanned iteration.
func TimeslotPrefix(ns Namespace, epochTS int64) []byte {
	return tuple(ns, int64Bytes(epochTS))
}

func tuple(ns Namespace, parts ...[]byte) []byte {
	key := []byte(ns)
	for _, p := range parts {
		key = append(key, '/')
		key = append(key, p...)
	}
	return key
}

func int64Bytes(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package allocation

import (
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/safemath"
)

// WithdrawProceeds transfers gross = allocated * clearingPrice out of the
// timeslot quote escrow, splitting fee = gross * feeBps / 10000 to the fee
// vault and net = gross - fee to the seller's quote vault. Callable only
// after Settled and at most once per SellerAllocation.
func WithdrawProceeds(l *ledger.Ledger, timeslot int64, alloc *SellerAllocation, feeBps uint32, quoteEscrow, feeVault, sellerQuoteVault ledger.VaultRef) error {
	if alloc.ProceedsWithdrawn {
		return ErrAlreadyWithdrawn
	}

	gross, err := safemath.MulU64(alloc.AllocatedQuantity, alloc.AllocationPrice)
	if err != nil {
		return err
	}
	fee, err := safemath.BpsOf(gross, feeBps)
	if err != nil {
		return err
	}
	net, err := safemath.SubU64(gross, fee)
	if err != nil {
		return err
	}

	if err := l.Transfer(quoteEscrow, feeVault, fee); err != nil {
		return err
	}
	if err := l.Transfer(quoteEscrow, sellerQuoteVault, net); err != nil {
		return err
	}

	alloc.ProceedsWithdrawn = true
	return nil
}

// RedeemEnergyAndRefund transfers each (seller, qty) leg of energy_sources
// from the respective seller's energy vault to the buyer's energy vault,
// then transfers refund_amount quote from the timeslot quote escrow to the
// buyer's quote vault. Callable only after Settled and at most once per
// BuyerAllocation.
func RedeemEnergyAndRefund(l *ledger.Ledger, timeslot int64, alloc *BuyerAllocation, quoteEscrow, buyerQuoteVault, buyerEnergyVault ledger.VaultRef) error {
	if alloc.Redeemed {
		return ErrAlreadyRedeemed
	}

	for _, src := range alloc.EnergySources {
		sellerVault := ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: timeslot, Owner: src.Seller}
		if err := l.Transfer(sellerVault, buyerEnergyVault, src.DrawnAmount); err != nil {
			return err
		}
	}

	if alloc.RefundAmount > 0 {
		if err := l.Transfer(quoteEscrow, buyerQuoteVault, alloc.RefundAmount); err != nil {
			return err
		}
	}

	alloc.Redeemed = true
	return nil
}

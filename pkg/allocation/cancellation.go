// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package allocation

import (
	"errors"

	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/market"
	"github.com/voltgrid/auction-core/pkg/safemath"
)

var (
	ErrCancellationNotComplete = errors.New("allocation: cancellation refund cursors not yet complete")
	ErrBidAlreadyRefunded      = errors.New("allocation: bid already refunded")
)

// CancellationState tracks the batched inverse of allocation: two cursors
// counting refunded bids and refunded sellers so far against the totals
// recorded at cancel_auction time. The buyer cursor counts bids, so a buyer
// with several Active bids counts once per bid.
type CancellationState struct {
	Timeslot         int64
	BuyersRefunded   uint32
	SellersRefunded  uint32
	TotalBuyers      uint32
	TotalSellers     uint32
}

// IsComplete reports whether both cursors have reached their recorded
// totals.
func (c *CancellationState) IsComplete() bool {
	return c.BuyersRefunded == c.TotalBuyers && c.SellersRefunded == c.TotalSellers
}

// RefundCancelledBuyers scans bids in the given pages, returning
// price*quantity to each Active bid owner's quote vault and marking the bid
// Cancelled. A refund is always exactly equal to the original escrow.
func RefundCancelledBuyers(l *ledger.Ledger, c *CancellationState, quoteEscrow ledger.VaultRef, pages []*market.BidPage, buyerQuoteVault func(owner ids.ID) ledger.VaultRef) error {
	for _, page := range pages {
		for i := range page.Bids {
			bid := &page.Bids[i]
			if bid.Status != market.BidActive {
				continue
			}
			amount, err := safemath.MulU64(bid.Price, bid.Quantity)
			if err != nil {
				return err
			}
			if err := l.Transfer(quoteEscrow, buyerQuoteVault(bid.Owner), amount); err != nil {
				return err
			}
			bid.Status = market.BidCancelled
			c.BuyersRefunded++
		}
	}
	return nil
}

// RefundCancelledSellers returns each seller's full escrow balance to the
// seller's own energy vault's owner-of-record (the seller's account),
// modeled here as a transfer out of the seller escrow vault.
func RefundCancelledSellers(l *ledger.Ledger, c *CancellationState, timeslot int64, supplies []*market.Supply, sellerAccountVault func(seller ids.ID) ledger.VaultRef) error {
	for _, s := range supplies {
		escrowVault := ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: timeslot, Owner: s.Seller}
		bal, err := l.Balance(escrowVault)
		if err != nil {
			return err
		}
		if bal == 0 {
			c.SellersRefunded++
			continue
		}
		if err := l.Transfer(escrowVault, sellerAccountVault(s.Seller), bal); err != nil {
			return err
		}
		c.SellersRefunded++
	}
	return nil
}

// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package allocation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/market"
)

func TestWithdrawProceedsSplitsFee(t *testing.T) {
	l := ledger.New(log.NoOp())
	seller := ids.GenerateTestID()
	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1}
	feeVault := ledger.VaultRef{Kind: ledger.VaultFeeVault}
	sellerQuote := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1, Owner: seller}

	require.NoError(t, l.Deposit(quoteEscrow, 10_000))

	alloc := &SellerAllocation{Timeslot: 1, Seller: seller, AllocatedQuantity: 100, AllocationPrice: 10}
	require.NoError(t, WithdrawProceeds(l, 1, alloc, 250, quoteEscrow, feeVault, sellerQuote))

	require.True(t, alloc.ProceedsWithdrawn)
	feeBal, _ := l.Balance(feeVault)
	sellerBal, _ := l.Balance(sellerQuote)
	require.Equal(t, uint64(25), feeBal)   // 1000 gross * 2.5%
	require.Equal(t, uint64(975), sellerBal)

	require.ErrorIs(t, WithdrawProceeds(l, 1, alloc, 250, quoteEscrow, feeVault, sellerQuote), ErrAlreadyWithdrawn)
}

func TestRedeemEnergyAndRefund(t *testing.T) {
	l := ledger.New(log.NoOp())
	seller := ids.GenerateTestID()
	buyer := ids.GenerateTestID()

	sellerEnergyVault := ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: 1, Owner: seller}
	buyerEnergyVault := ledger.VaultRef{Kind: ledger.VaultSellerEnergyEscrow, Timeslot: 1, Owner: buyer}
	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1}
	buyerQuoteVault := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1, Owner: buyer}

	require.NoError(t, l.Deposit(sellerEnergyVault, 50))
	require.NoError(t, l.Deposit(quoteEscrow, 1000))

	alloc := &BuyerAllocation{
		Timeslot:     1,
		Buyer:        buyer,
		WonQuantity:  50,
		RefundAmount: 100,
		EnergySources: []EnergySource{{Seller: seller, DrawnAmount: 50}},
	}

	require.NoError(t, RedeemEnergyAndRefund(l, 1, alloc, quoteEscrow, buyerQuoteVault, buyerEnergyVault))
	require.True(t, alloc.Redeemed)

	buyerEnergyBal, _ := l.Balance(buyerEnergyVault)
	buyerQuoteBal, _ := l.Balance(buyerQuoteVault)
	require.Equal(t, uint64(50), buyerEnergyBal)
	require.Equal(t, uint64(100), buyerQuoteBal)

	require.ErrorIs(t, RedeemEnergyAndRefund(l, 1, alloc, quoteEscrow, buyerQuoteVault, buyerEnergyVault), ErrAlreadyRedeemed)
}

func TestRefundCancelledBuyers(t *testing.T) {
	l := ledger.New(log.NoOp())
	buyer := ids.GenerateTestID()
	quoteEscrow := ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1}
	require.NoError(t, l.Deposit(quoteEscrow, 1000))

	page := market.NewBidPage(1, 0)
	require.NoError(t, page.Append(market.Bid{Owner: buyer, Price: 10, Quantity: 5, Status: market.BidActive}))

	c := &CancellationState{Timeslot: 1, TotalBuyers: 1, TotalSellers: 0}
	vault := func(owner ids.ID) ledger.VaultRef {
		return ledger.VaultRef{Kind: ledger.VaultQuoteEscrow, Timeslot: 1, Owner: owner}
	}
	require.NoError(t, RefundCancelledBuyers(l, c, quoteEscrow, []*market.BidPage{page}, vault))

	require.Equal(t, uint32(1), c.BuyersRefunded)
	require.Equal(t, market.BidCancelled, page.Bids[0].Status)
	bal, _ := l.Balance(vault(buyer))
	require.Equal(t, uint64(50), bal)
	require.True(t, c.IsComplete())
}

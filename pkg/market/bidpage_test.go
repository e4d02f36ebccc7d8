// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voltgrid/auction-core/pkg/ids"
)

func TestBidPageAppendAndCapacity(t *testing.T) {
	page := NewBidPage(1000, 0)
	require.False(t, page.IsFull())

	for i := 0; i < BidPageCapacity; i++ {
		require.NoError(t, page.Append(Bid{Owner: ids.GenerateTestID(), Price: 10, Quantity: 5, Status: BidActive}))
	}
	require.True(t, page.IsFull())
	require.ErrorIs(t, page.Append(Bid{Owner: ids.GenerateTestID(), Price: 10, Quantity: 5, Status: BidActive}), ErrPageFull)
}

func TestBidPageCancel(t *testing.T) {
	page := NewBidPage(1000, 0)
	owner := ids.GenerateTestID()
	require.NoError(t, page.Append(Bid{Owner: owner, Price: 10, Quantity: 5, Status: BidActive}))

	require.NoError(t, page.Cancel(0))
	require.Equal(t, BidCancelled, page.Bids[0].Status)

	require.ErrorIs(t, page.Cancel(0), ErrBidNotActive)
	require.ErrorIs(t, page.Cancel(5), ErrBidNotFound)
}

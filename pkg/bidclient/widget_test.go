package bidclient

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	model "live-auction/internal/models"

	"github.com/stretchr/testify/require"
)

var widgetNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type staticAddress struct {
	err error
}

func (a staticAddress) ResolveAddress(context.Context) (Address, error) {
	if a.err != nil {
		return Address{}, a.err
	}
	return Address{ID: "addr1", Line1: "1 Market St", City: "Lagos", Phone: "+2340000000"}, nil
}

type fakeSubmitter struct {
	calls  int
	result BidResult
	err    error
}

func (f *fakeSubmitter) PlaceBid(_ context.Context, _ string, _ int64) (BidResult, error) {
	f.calls++
	return f.result, f.err
}

func liveListing() model.Listing {
	return model.Listing{
		ID:             "listing1",
		SellerID:       "seller",
		SaleType:       model.SaleTypeAuction,
		Price:          100000,
		AuctionEndTime: model.TimePtr(widgetNow.Add(10 * time.Minute)),
		IsActive:       true,
	}
}

func TestWidget_MinimumBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		current   *int64
		increment int64
		serverMin int64
		want      int64
	}{
		{name: "no_bids_uses_price", increment: 1000, want: 101000},
		{name: "current_bid", current: model.Int64Ptr(150000), increment: 1000, want: 151000},
		{name: "server_min_higher", current: model.Int64Ptr(150000), increment: 1000, serverMin: 160000, want: 160000},
		{name: "server_min_lower", current: model.Int64Ptr(150000), increment: 1000, serverMin: 120000, want: 151000},
		{name: "zero_increment_defaults", increment: 0, want: 100000 + model.MinIncrement},
		{name: "saturates_near_max", current: model.Int64Ptr(math.MaxInt64 - 10), increment: 1000, want: math.MaxInt64},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l := liveListing()
			l.CurrentBid = tc.current
			w := NewWidget(l, "alice", tc.increment)
			require.Equal(t, tc.want, w.MinimumBid(tc.serverMin))
		})
	}
}

func TestWidget_ApplyBidUpdate(t *testing.T) {
	t.Parallel()

	w := NewWidget(liveListing(), "alice", 1000)

	// alice takes the lead
	require.True(t, w.ApplyBidUpdate(model.BidUpdate{ListingID: "listing1", CurrentBid: 101000, TotalBids: 1, BidderID: "alice"}))
	s := w.State()
	require.True(t, s.IsHighest)
	require.True(t, s.HasBid)
	require.False(t, s.Outbid)
	require.Equal(t, int64(102000), s.MinimumBid)

	// bob outbids her and extends the auction
	newEnd := widgetNow.Add(12 * time.Minute)
	require.True(t, w.ApplyBidUpdate(model.BidUpdate{
		ListingID:            "listing1",
		CurrentBid:           105000,
		TotalBids:            2,
		BidderID:             "bob",
		PreviousHighBidderID: model.StringPtr("alice"),
		AuctionEndTime:       &newEnd,
		TimeExtended:         true,
	}))
	s = w.State()
	require.False(t, s.IsHighest)
	require.True(t, s.Outbid)
	require.True(t, s.Extended)
	require.Equal(t, newEnd, *s.EndTime)
	require.Equal(t, int64(105000), *s.CurrentBid)

	w.DismissOutbid()
	require.False(t, w.State().Outbid)
}

func TestWidget_IgnoresStaleAndForeignUpdates(t *testing.T) {
	t.Parallel()

	w := NewWidget(liveListing(), "alice", 1000)
	require.True(t, w.ApplyBidUpdate(model.BidUpdate{ListingID: "listing1", CurrentBid: 103000, TotalBids: 3, BidderID: "bob"}))

	require.False(t, w.ApplyBidUpdate(model.BidUpdate{ListingID: "listing1", CurrentBid: 102000, TotalBids: 2, BidderID: "carol"}))
	require.False(t, w.ApplyBidUpdate(model.BidUpdate{ListingID: "listing1", CurrentBid: 103000, TotalBids: 3, BidderID: "carol"}))
	require.False(t, w.ApplyBidUpdate(model.BidUpdate{ListingID: "listing2", CurrentBid: 900000, TotalBids: 9, BidderID: "carol"}))

	s := w.State()
	require.Equal(t, int64(103000), *s.CurrentBid)
	require.Equal(t, int64(3), s.TotalBids)
	require.False(t, s.Outbid)
}

func TestWidget_ApplyAuctionEnd(t *testing.T) {
	t.Parallel()

	w := NewWidget(liveListing(), "alice", 1000)
	require.True(t, w.Apply(Message{BidUpdate: &model.BidUpdate{ListingID: "listing1", CurrentBid: 101000, TotalBids: 1, BidderID: "alice"}}))
	require.False(t, w.Apply(Message{AuctionEnd: &model.AuctionEnd{ListingID: "listing2", Status: model.AuctionStatusNoBids}}))
	require.True(t, w.Apply(Message{AuctionEnd: &model.AuctionEnd{
		ListingID:  "listing1",
		Status:     model.AuctionStatusSold,
		WinnerID:   model.StringPtr("alice"),
		WinningBid: model.Int64Ptr(101000),
	}}))
	require.False(t, w.Apply(Message{Type: "subscribed"}))

	s := w.State()
	require.True(t, s.Ended)
	require.Equal(t, model.AuctionStatusSold, s.EndStatus)
	require.True(t, s.IsHighest)
	require.Equal(t, int64(101000), *s.WinningBid)

	sub := &fakeSubmitter{}
	_, err := w.Submit(context.Background(), 200000, staticAddress{}, sub)
	require.ErrorIs(t, err, ErrAuctionClosed)
	require.Zero(t, sub.calls)
}

func TestWidget_ApplyStatus(t *testing.T) {
	t.Parallel()

	w := NewWidget(liveListing(), "alice", 1000)
	w.ApplyStatus(model.BidStatus{HasBid: true, IsHighest: false})
	s := w.State()
	require.True(t, s.HasBid)
	require.True(t, s.Outbid)

	w.ApplyStatus(model.BidStatus{HasBid: true, IsHighest: true})
	require.False(t, w.State().Outbid)
}

func TestWidget_Submit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		addresses AddressResolver
		amount    int64
		sub       *fakeSubmitter
		wantErr   error
		wantCalls int
	}{
		{
			name:    "no_address_resolver",
			amount:  101000,
			sub:     &fakeSubmitter{},
			wantErr: ErrAddressRequired,
		},
		{
			name:      "address_cancelled",
			addresses: staticAddress{err: errors.New("user closed the sheet")},
			amount:    101000,
			sub:       &fakeSubmitter{},
			wantErr:   ErrAddressRequired,
		},
		{
			name:      "below_local_minimum",
			addresses: staticAddress{},
			amount:    100500,
			sub:       &fakeSubmitter{},
			wantErr:   ErrBelowMinimum,
		},
		{
			name:      "accepted",
			addresses: staticAddress{},
			amount:    101000,
			sub: &fakeSubmitter{result: BidResult{
				Success:    true,
				CurrentBid: 101000,
				TotalBids:  1,
				NewEndTime: model.TimePtr(widgetNow.Add(10 * time.Minute)),
			}},
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := NewWidget(liveListing(), "alice", 1000)

			res, err := w.Submit(context.Background(), tc.amount, tc.addresses, tc.sub)
			require.Equal(t, tc.wantCalls, tc.sub.calls)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.True(t, res.Success)

			s := w.State()
			require.True(t, s.IsHighest)
			require.True(t, s.HasBid)
			require.False(t, s.Pending)
			require.Equal(t, int64(102000), s.MinimumBid)
		})
	}
}

func TestWidget_SubmitRaisesFloorFromServer(t *testing.T) {
	t.Parallel()

	w := NewWidget(liveListing(), "alice", 1000)
	sub := &fakeSubmitter{err: &APIError{
		Status:  http.StatusBadRequest,
		Message: "bid too low",
		Reason:  "bid_too_low",
		MinBid:  130000,
	}}

	_, err := w.Submit(context.Background(), 101000, staticAddress{}, sub)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "bid_too_low", apiErr.Reason)

	s := w.State()
	require.Equal(t, int64(130000), s.MinimumBid)
	require.False(t, s.Pending)

	_, err = w.Submit(context.Background(), 120000, staticAddress{}, sub)
	require.ErrorIs(t, err, ErrBelowMinimum)
	require.Equal(t, 1, sub.calls)
}

func TestWidget_SubmitAtMaxBid(t *testing.T) {
	t.Parallel()

	l := liveListing()
	l.CurrentBid = model.Int64Ptr(math.MaxInt64 - 10)
	w := NewWidget(l, "alice", 1000)
	sub := &fakeSubmitter{}

	for _, amount := range []int64{1, math.MaxInt64} {
		_, err := w.Submit(context.Background(), amount, staticAddress{}, sub)
		require.ErrorIs(t, err, ErrBelowMinimum)
	}
	require.Zero(t, sub.calls)
	require.False(t, w.State().Pending)
}

package bidclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	model "live-auction/internal/models"
)

var (
	ErrAddressRequired = errors.New("a shipping address is required before bidding")
	ErrBelowMinimum    = errors.New("bid is below the current minimum")
	ErrAuctionClosed   = errors.New("auction has closed")
	ErrBidPending      = errors.New("a bid is already being submitted")
)

// Address is the shipping destination chosen before a bid is sent
type Address struct {
	ID    string
	Line1 string
	City  string
	Phone string
}

// AddressResolver yields the viewer's shipping address, prompting for one if needed
type AddressResolver interface {
	ResolveAddress(ctx context.Context) (Address, error)
}

// BidSubmitter sends a bid to the server; *Client implements it
type BidSubmitter interface {
	PlaceBid(ctx context.Context, listingID string, amount int64) (BidResult, error)
}

// State is a snapshot of what the widget displays
type State struct {
	ListingID  string
	CurrentBid *int64
	TotalBids  int64
	EndTime    *time.Time
	IsHighest  bool
	HasBid     bool
	Outbid     bool
	Extended   bool
	Pending    bool
	Ended      bool
	EndStatus  string
	WinnerID   *string
	WinningBid *int64
	MinimumBid int64
}

// Widget tracks one listing's live auction state for one viewer
type Widget struct {
	mu        sync.Mutex
	viewerID  string
	increment int64
	price     int64
	serverMin int64
	state     State
}

// NewWidget seeds the widget from the listing read model
func NewWidget(l model.Listing, viewerID string, increment int64) *Widget {
	if increment <= 0 {
		increment = model.MinIncrement
	}
	w := &Widget{
		viewerID:  viewerID,
		increment: increment,
		price:     l.Price,
		state: State{
			ListingID:  l.ID,
			CurrentBid: l.CurrentBid,
			TotalBids:  l.TotalBids,
			EndTime:    l.AuctionEndTime,
			IsHighest:  viewerID != "" && l.HighestBidderID != nil && *l.HighestBidderID == viewerID,
			Ended:      !l.IsActive,
		},
	}
	w.state.HasBid = w.state.IsHighest
	return w
}

// MinimumBid is the client-side floor: max(serverMin, (currentBid ?? price) + increment).
// The server stays authoritative.
func (w *Widget) MinimumBid(serverMin int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimumLocked(serverMin)
}

func (w *Widget) minimumLocked(serverMin int64) int64 {
	local, _ := w.floorLocked()
	if serverMin > local {
		return serverMin
	}
	return local
}

// floorLocked reports false once the current bid leaves no room for another increment
func (w *Widget) floorLocked() (int64, bool) {
	base := w.price
	if w.state.CurrentBid != nil {
		base = *w.state.CurrentBid
	}
	return model.NextBid(base, w.increment)
}

// ApplyBidUpdate folds a live bid_update into the widget. Updates for other
// listings or older than the displayed state are ignored.
func (w *Widget) ApplyBidUpdate(u model.BidUpdate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if u.ListingID != w.state.ListingID || u.TotalBids <= w.state.TotalBids {
		return false
	}

	w.state.CurrentBid = model.Int64Ptr(u.CurrentBid)
	w.state.TotalBids = u.TotalBids
	if u.AuctionEndTime != nil {
		w.state.EndTime = model.TimePtr(*u.AuctionEndTime)
	}
	w.state.Extended = u.TimeExtended

	mine := w.viewerID != "" && u.BidderID == w.viewerID
	wasHigh := w.viewerID != "" && u.PreviousHighBidderID != nil && *u.PreviousHighBidderID == w.viewerID
	switch {
	case mine:
		w.state.IsHighest = true
		w.state.HasBid = true
		w.state.Outbid = false
	case wasHigh || w.state.IsHighest:
		w.state.IsHighest = false
		w.state.Outbid = true
	}
	return true
}

// ApplyAuctionEnd marks the auction closed
func (w *Widget) ApplyAuctionEnd(e model.AuctionEnd) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.ListingID != w.state.ListingID {
		return false
	}
	w.state.Ended = true
	w.state.EndStatus = e.Status
	w.state.WinnerID = e.WinnerID
	w.state.WinningBid = e.WinningBid
	w.state.IsHighest = w.viewerID != "" && e.WinnerID != nil && *e.WinnerID == w.viewerID
	return true
}

// Apply dispatches a feed message to the matching handler
func (w *Widget) Apply(m Message) bool {
	switch {
	case m.BidUpdate != nil:
		return w.ApplyBidUpdate(*m.BidUpdate)
	case m.AuctionEnd != nil:
		return w.ApplyAuctionEnd(*m.AuctionEnd)
	}
	return false
}

// ApplyStatus restores the viewer's standing after a reload
func (w *Widget) ApplyStatus(s model.BidStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.HasBid = s.HasBid
	w.state.IsHighest = s.IsHighest
	w.state.Outbid = s.HasBid && !s.IsHighest
}

// DismissOutbid hides the outbid banner
func (w *Widget) DismissOutbid() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Outbid = false
}

func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.state
	s.MinimumBid = w.minimumLocked(w.serverMin)
	return s
}

// Submit resolves a shipping address, pre-validates amount and sends the bid.
// A bid_too_low rejection raises the widget's floor to the server's minimum.
func (w *Widget) Submit(ctx context.Context, amount int64, addresses AddressResolver, submitter BidSubmitter) (BidResult, error) {
	if addresses == nil {
		return BidResult{}, ErrAddressRequired
	}
	if _, err := addresses.ResolveAddress(ctx); err != nil {
		return BidResult{}, fmt.Errorf("%w: %v", ErrAddressRequired, err)
	}

	w.mu.Lock()
	switch {
	case w.state.Ended:
		w.mu.Unlock()
		return BidResult{}, ErrAuctionClosed
	case w.state.Pending:
		w.mu.Unlock()
		return BidResult{}, ErrBidPending
	case amount < w.minimumLocked(w.serverMin):
		floor := w.minimumLocked(w.serverMin)
		w.mu.Unlock()
		return BidResult{}, fmt.Errorf("%w: minimum is %d", ErrBelowMinimum, floor)
	}
	if _, ok := w.floorLocked(); !ok {
		w.mu.Unlock()
		return BidResult{}, fmt.Errorf("%w: no higher bid is possible", ErrBelowMinimum)
	}
	w.state.Pending = true
	listingID := w.state.ListingID
	w.mu.Unlock()

	res, err := submitter.PlaceBid(ctx, listingID, amount)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Pending = false

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.MinBid > 0 {
			w.serverMin = apiErr.MinBid
		}
		return BidResult{}, err
	}

	if res.TotalBids > w.state.TotalBids {
		w.state.CurrentBid = model.Int64Ptr(res.CurrentBid)
		w.state.TotalBids = res.TotalBids
		w.state.EndTime = res.NewEndTime
		w.state.Extended = res.Extended
		w.state.IsHighest = true
		w.state.Outbid = false
	}
	w.state.HasBid = true
	return res, nil
}

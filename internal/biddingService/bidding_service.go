package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/metrics"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/utils"
)

// EventPublisher receives auction state changes for realtime fan-out
type EventPublisher interface {
	PublishBidUpdate(ctx context.Context, u model.BidUpdate) error
	PublishAuctionEnd(ctx context.Context, e model.AuctionEnd) error
}

// Options tune the auction rules
type Options struct {
	MinIncrement     int64
	AntiSnipeWindow  time.Duration
	PublicBidderName string
}

// DefaultOptions returns the standard auction rules
func DefaultOptions() Options {
	return Options{
		MinIncrement:     model.MinIncrement,
		AntiSnipeWindow:  model.AntiSnipeWindow,
		PublicBidderName: "Bidder",
	}
}

// PlaceBidResult is the outcome of an accepted bid
type PlaceBidResult struct {
	Bid                  model.Bid
	CurrentBid           int64
	TotalBids            int64
	AuctionEndTime       *time.Time
	Extended             bool
	PreviousHighBidderID *string
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo      repository.AuctionDB
	publisher EventPublisher
	opts      Options
	locks     *keyedLock
}

// NewBiddingService creates a new BiddingService instance. publisher may be nil.
func NewBiddingService(repo repository.AuctionDB, publisher EventPublisher, opts Options) *BiddingService {
	def := DefaultOptions()
	if opts.MinIncrement <= 0 {
		opts.MinIncrement = def.MinIncrement
	}
	if opts.AntiSnipeWindow <= 0 {
		opts.AntiSnipeWindow = def.AntiSnipeWindow
	}
	if opts.PublicBidderName == "" {
		opts.PublicBidderName = def.PublicBidderName
	}
	return &BiddingService{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		locks:     newKeyedLock(),
	}
}

// MinIncrement reports the configured bid step
func (s *BiddingService) MinIncrement() int64 {
	return s.opts.MinIncrement
}

// PlaceBid validates and applies one bid to a listing. Acceptance is atomic per
// listing; a bid that loses a race is rejected against the updated minimum.
func (s *BiddingService) PlaceBid(ctx context.Context, listingID, userID string, amount int64, now time.Time) (PlaceBidResult, error) {
	if listingID == "" {
		return PlaceBidResult{}, s.rejected(biddingerrors.Reject(biddingerrors.ReasonNotFound), listingID, userID)
	}
	if userID == "" {
		return PlaceBidResult{}, s.rejected(biddingerrors.Reject(biddingerrors.ReasonUnauthenticated), listingID, userID)
	}

	bidder, err := s.repo.GetUser(ctx, userID)
	knownBidder := err == nil
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNotFound) {
		return PlaceBidResult{}, fmt.Errorf("service: failed to load bidder %s: %w", userID, err)
	}

	unlock := s.locks.Lock(listingID)
	defer unlock()

	var (
		extended bool
		previous *string
	)
	decide := func(l model.Listing) (model.Bid, model.Listing, error) {
		if rej := s.check(l, userID, bidder, knownBidder, amount, now); rej != nil {
			return model.Bid{}, model.Listing{}, rej
		}

		previous = l.HighestBidderID
		l.CurrentBid = model.Int64Ptr(amount)
		l.HighestBidderID = model.StringPtr(userID)
		l.TotalBids++
		if l.AuctionEndTime != nil && l.AuctionEndTime.Sub(now) < s.opts.AntiSnipeWindow {
			l.AuctionEndTime = model.TimePtr(now.Add(s.opts.AntiSnipeWindow))
			extended = true
		}

		bid := model.Bid{
			BidID:     utils.GenerateID(),
			ListingID: l.ID,
			UserID:    userID,
			Amount:    amount,
			CreatedAt: now,
		}
		return bid, l, nil
	}

	bid, listing, err := s.repo.RecordBid(ctx, listingID, decide)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrListingNotFound) {
			return PlaceBidResult{}, s.rejected(biddingerrors.Reject(biddingerrors.ReasonNotFound), listingID, userID)
		}
		if rej, ok := biddingerrors.AsRejection(err); ok {
			return PlaceBidResult{}, s.rejected(rej, listingID, userID)
		}
		return PlaceBidResult{}, fmt.Errorf("service: failed to record bid for listing %s by user %s: %w", listingID, userID, err)
	}

	metrics.BidAccepted(extended)
	utils.Info("bid accepted", map[string]any{
		"listing_id": listingID,
		"user_id":    userID,
		"amount":     amount,
		"total_bids": listing.TotalBids,
		"extended":   extended,
	})

	// published under the listing lock so local subscribers see acceptance order
	s.publishBidUpdate(ctx, listing, bid, previous, extended, now)
	unlock()

	s.notifyBidPlaced(ctx, listing, bid, previous, now)

	return PlaceBidResult{
		Bid:                  bid,
		CurrentBid:           amount,
		TotalBids:            listing.TotalBids,
		AuctionEndTime:       listing.AuctionEndTime,
		Extended:             extended,
		PreviousHighBidderID: previous,
	}, nil
}

// check applies the bid preconditions in their fixed order
func (s *BiddingService) check(l model.Listing, userID string, bidder model.User, knownBidder bool, amount int64, now time.Time) *biddingerrors.Rejection {
	switch {
	case l.SellerID == userID:
		return biddingerrors.Reject(biddingerrors.ReasonSelfBidNotAllowed)
	case l.SaleType != model.SaleTypeAuction:
		return biddingerrors.Reject(biddingerrors.ReasonNotAnAuction)
	case !l.IsActive:
		return biddingerrors.Reject(biddingerrors.ReasonAuctionInactive)
	case l.AuctionEndTime != nil && !now.Before(*l.AuctionEndTime):
		return biddingerrors.Reject(biddingerrors.ReasonAuctionEnded)
	case l.AuctionStartTime != nil && now.Before(*l.AuctionStartTime):
		return biddingerrors.Reject(biddingerrors.ReasonAuctionNotStarted)
	case !knownBidder:
		return biddingerrors.Reject(biddingerrors.ReasonUnauthenticated)
	case bidder.IsBanned:
		return biddingerrors.Reject(biddingerrors.ReasonBidderBanned)
	case requiresVerification(l.AllowedBidderType) && !bidder.PhoneVerified:
		return biddingerrors.Reject(biddingerrors.ReasonVerificationRequired)
	}

	if minBid, ok := l.MinimumBid(s.opts.MinIncrement); !ok || amount <= 0 || amount < minBid {
		return biddingerrors.RejectTooLow(minBid)
	}
	return nil
}

func requiresVerification(p model.BidderPolicy) bool {
	return p != model.BidderPolicyAny
}

func (s *BiddingService) rejected(rej *biddingerrors.Rejection, listingID, userID string) error {
	metrics.BidRejected(string(rej.Reason))
	utils.Info("bid rejected", map[string]any{
		"listing_id": listingID,
		"user_id":    userID,
		"reason":     rej.Reason,
	})
	return fmt.Errorf("service: %w", rej)
}

func (s *BiddingService) publishBidUpdate(ctx context.Context, l model.Listing, bid model.Bid, previous *string, extended bool, now time.Time) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishBidUpdate(ctx, model.BidUpdate{
		ListingID:            l.ID,
		CurrentBid:           bid.Amount,
		TotalBids:            l.TotalBids,
		BidderID:             bid.UserID,
		BidderName:           s.opts.PublicBidderName,
		PreviousHighBidderID: previous,
		AuctionEndTime:       l.AuctionEndTime,
		TimeExtended:         extended,
		Timestamp:            now,
	})
	if err != nil {
		utils.Warn("failed to publish bid update", map[string]any{"listing_id": l.ID, "error": err.Error()})
	}
}

func (s *BiddingService) notifyBidPlaced(ctx context.Context, l model.Listing, bid model.Bid, previous *string, now time.Time) {
	var notes []model.Notification
	if previous != nil && *previous != bid.UserID {
		notes = append(notes, model.Notification{
			UserID:  *previous,
			Type:    model.NotificationOutbid,
			Title:   "You have been outbid",
			Message: fmt.Sprintf("A higher bid of %d was placed on %q", bid.Amount, l.Title),
		})
	}
	notes = append(notes, model.Notification{
		UserID:  l.SellerID,
		Type:    model.NotificationNewBid,
		Title:   "New bid on your listing",
		Message: fmt.Sprintf("A bid of %d was placed on %q", bid.Amount, l.Title),
	})

	for _, n := range notes {
		n.ID = utils.GenerateID()
		n.RelatedID = l.ID
		n.CreatedAt = now
		if err := s.repo.CreateNotification(ctx, n); err != nil {
			utils.Warn("failed to create notification", map[string]any{
				"listing_id": l.ID,
				"user_id":    n.UserID,
				"type":       n.Type,
				"error":      err.Error(),
			})
		}
	}
}

// GetListing returns the listing read model used by clients to reconcile state
func (s *BiddingService) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	if listingID == "" {
		return model.Listing{}, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrInvalidBid)
	}

	l, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return model.Listing{}, fmt.Errorf("service: failed to get listing %s: %w", listingID, err)
	}
	return l, nil
}

// GetBidsForListing returns all bids for a listing in acceptance order
func (s *BiddingService) GetBidsForListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if listingID == "" {
		return nil, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for listing %s: %w", listingID, err)
	}
	return bids, nil
}

// GetBidsByUser returns every bid a user has placed, newest first
func (s *BiddingService) GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}

	bids, err := s.repo.GetBidsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for user %s: %w", userID, err)
	}
	return bids, nil
}

// GetUserBidStatus reports whether userID has bid on a listing and holds the high bid.
// Anonymous callers always get the zero status.
func (s *BiddingService) GetUserBidStatus(ctx context.Context, listingID, userID string) (model.BidStatus, error) {
	l, err := s.GetListing(ctx, listingID)
	if err != nil {
		return model.BidStatus{}, err
	}
	if userID == "" {
		return model.BidStatus{}, nil
	}

	bids, err := s.repo.GetBidsByListing(ctx, listingID)
	if err != nil {
		return model.BidStatus{}, fmt.Errorf("service: failed to get bids for listing %s: %w", listingID, err)
	}

	status := model.BidStatus{
		IsHighest: l.HighestBidderID != nil && *l.HighestBidderID == userID,
	}
	for _, b := range bids {
		if b.UserID == userID {
			status.HasBid = true
			break
		}
	}
	return status, nil
}

// GetNotifications returns a user's notifications, newest first
func (s *BiddingService) GetNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}

	notes, err := s.repo.GetNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get notifications for user %s: %w", userID, err)
	}
	return notes, nil
}

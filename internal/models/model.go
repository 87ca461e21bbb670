package models

import (
	"math"
	"time"
)

// Auction rule constants. Amounts are integer minor units of the listing currency.
const (
	MinIncrement    int64 = 1000
	AntiSnipeWindow       = 2 * time.Minute
)

// SaleType distinguishes fixed-price listings from auctions
type SaleType string

const (
	SaleTypeFixed   SaleType = "fixed"
	SaleTypeAuction SaleType = "auction"
)

// BidderPolicy gates who may bid on a listing
type BidderPolicy string

const (
	BidderPolicyVerifiedOnly BidderPolicy = "verified_only"
	BidderPolicyAny          BidderPolicy = "any"
)

// User represents a marketplace participant
type User struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	Phone         string `json:"phone,omitempty"`
	PhoneVerified bool   `json:"phone_verified"`
	IsBanned      bool   `json:"is_banned"`
}

// Listing is the auction-relevant view of a marketplace listing
type Listing struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	SellerID          string       `json:"sellerId"`
	SaleType          SaleType     `json:"saleType"`
	Price             int64        `json:"price"`
	CurrentBid        *int64       `json:"currentBid"`
	TotalBids         int64        `json:"totalBids"`
	HighestBidderID   *string      `json:"highestBidderId"`
	AuctionStartTime  *time.Time   `json:"auctionStartTime"`
	AuctionEndTime    *time.Time   `json:"auctionEndTime"`
	IsActive          bool         `json:"isActive"`
	AllowedBidderType BidderPolicy `json:"allowedBidderType"`
	DeletedAt         *time.Time   `json:"-"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// MinimumBid returns the lowest amount the next bid may carry. It saturates
// at math.MaxInt64; ok is false once no amount can clear the increment.
func (l Listing) MinimumBid(increment int64) (minBid int64, ok bool) {
	base := l.Price
	if l.CurrentBid != nil {
		base = *l.CurrentBid
	}
	return NextBid(base, increment)
}

// NextBid adds increment to base without wrapping past math.MaxInt64
func NextBid(base, increment int64) (int64, bool) {
	if base > math.MaxInt64-increment {
		return math.MaxInt64, false
	}
	return base + increment, true
}

// Bid is an immutable record of one accepted offer
type Bid struct {
	BidID     string    `json:"id"`
	ListingID string    `json:"listingId"`
	UserID    string    `json:"userId"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// BidStatus reports a user's standing on one listing
type BidStatus struct {
	HasBid    bool `json:"hasBid"`
	IsHighest bool `json:"isHighest"`
}

// Notification types written by the bidding flow and the sweeper
const (
	NotificationOutbid             = "outbid"
	NotificationNewBid             = "new_bid"
	NotificationAuctionWon         = "auction_won"
	NotificationAuctionSold        = "auction_sold"
	NotificationAuctionLost        = "auction_lost"
	NotificationAuctionEndedNoBids = "auction_ended_no_bids"
)

// Notification is an in-app message addressed to one user
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RelatedID string    `json:"relatedId"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// Int64Ptr is a convenience for populating nullable amounts
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr is a convenience for populating nullable references
func StringPtr(v string) *string { return &v }

// TimePtr is a convenience for populating nullable timestamps
func TimePtr(v time.Time) *time.Time { return &v }

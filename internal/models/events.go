package models

import "time"

// Realtime message types
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessageBidUpdate   = "bid_update"
	MessageAuctionEnd  = "auction_end"
	MessageError       = "error"
)

// Auction close outcomes
const (
	AuctionStatusSold   = "sold"
	AuctionStatusNoBids = "no_bids"
)

// BidUpdate is broadcast to every subscriber of a listing after an accepted bid
type BidUpdate struct {
	Type                 string     `json:"type"`
	ListingID            string     `json:"listingId"`
	CurrentBid           int64      `json:"currentBid"`
	TotalBids            int64      `json:"totalBids"`
	BidderID             string     `json:"bidderId"`
	BidderName           string     `json:"bidderName"`
	PreviousHighBidderID *string    `json:"previousHighBidderId"`
	AuctionEndTime       *time.Time `json:"auctionEndTime"`
	TimeExtended         bool       `json:"timeExtended"`
	Timestamp            time.Time  `json:"timestamp"`
}

// AuctionEnd is broadcast once when a listing's auction is closed
type AuctionEnd struct {
	Type       string  `json:"type"`
	ListingID  string  `json:"listingId"`
	Status     string  `json:"status"`
	WinnerID   *string `json:"winnerId"`
	WinnerName *string `json:"winnerName"`
	WinningBid *int64  `json:"winningBid"`
}

// ClientMessage is what a connected viewer sends over the socket
type ClientMessage struct {
	Type      string `json:"type"`
	ListingID string `json:"listingId"`
}

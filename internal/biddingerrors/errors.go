package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrUserNotFound    = errors.New("user not found")
)

// business logic errors
var (
	ErrInvalidBid           = errors.New("invalid bid")
	ErrSelfBid              = errors.New("sellers cannot bid on their own listing")
	ErrNotAnAuction         = errors.New("listing is not an auction")
	ErrAuctionInactive      = errors.New("auction is not active")
	ErrAuctionEnded         = errors.New("auction has ended")
	ErrAuctionNotStarted    = errors.New("auction has not started")
	ErrVerificationRequired = errors.New("phone verification required to bid")
	ErrBidderBanned         = errors.New("bidder account is banned")
	ErrBidTooLow            = errors.New("bid amount too low")
	ErrUnauthenticated      = errors.New("authentication required")
)

// Reason is the machine-readable code reported with every rejected bid
type Reason string

const (
	ReasonNotFound             Reason = "not_found"
	ReasonSelfBidNotAllowed    Reason = "self_bid_not_allowed"
	ReasonNotAnAuction         Reason = "not_an_auction"
	ReasonAuctionInactive      Reason = "auction_inactive"
	ReasonAuctionEnded         Reason = "auction_ended"
	ReasonAuctionNotStarted    Reason = "auction_not_started"
	ReasonVerificationRequired Reason = "verification_required"
	ReasonBidderBanned         Reason = "bidder_banned"
	ReasonBidTooLow            Reason = "bid_too_low"
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonInvalidBid           Reason = "invalid_bid"
)

var reasonErrors = map[Reason]error{
	ReasonNotFound:             ErrListingNotFound,
	ReasonSelfBidNotAllowed:    ErrSelfBid,
	ReasonNotAnAuction:         ErrNotAnAuction,
	ReasonAuctionInactive:      ErrAuctionInactive,
	ReasonAuctionEnded:         ErrAuctionEnded,
	ReasonAuctionNotStarted:    ErrAuctionNotStarted,
	ReasonVerificationRequired: ErrVerificationRequired,
	ReasonBidderBanned:         ErrBidderBanned,
	ReasonBidTooLow:            ErrBidTooLow,
	ReasonUnauthenticated:      ErrUnauthenticated,
	ReasonInvalidBid:           ErrInvalidBid,
}

// Rejection describes why a bid was refused. MinBid is set for ReasonBidTooLow.
type Rejection struct {
	Reason Reason
	MinBid int64
	err    error
}

// Reject builds a Rejection wrapping the sentinel error for reason
func Reject(reason Reason) *Rejection {
	return &Rejection{Reason: reason, err: reasonErrors[reason]}
}

// RejectTooLow builds a ReasonBidTooLow rejection carrying the computed floor
func RejectTooLow(minBid int64) *Rejection {
	return &Rejection{Reason: ReasonBidTooLow, MinBid: minBid, err: ErrBidTooLow}
}

func (r *Rejection) Error() string {
	if r.Reason == ReasonBidTooLow {
		return fmt.Sprintf("%s: minimum bid is %d", r.err, r.MinBid)
	}
	return r.err.Error()
}

func (r *Rejection) Unwrap() error {
	return r.err
}

// AsRejection extracts a Rejection from an error chain
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

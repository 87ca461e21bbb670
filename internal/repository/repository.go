package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"
)

// BidDecision runs against the locked listing snapshot. Returning an error aborts
// the write; otherwise the bid is persisted and the listing replaced atomically.
type BidDecision func(listing model.Listing) (model.Bid, model.Listing, error)

// AuctionDB defines the ledger storage interface for the auction system
type AuctionDB interface {
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)
	RecordBid(ctx context.Context, listingID string, decide BidDecision) (model.Bid, model.Listing, error)
	ListEndedAuctions(ctx context.Context, cutoff time.Time) ([]model.Listing, error)
	CloseAuction(ctx context.Context, listingID string, cutoff time.Time) (model.Listing, bool, error)
	CreateNotification(ctx context.Context, n model.Notification) error
	GetNotifications(ctx context.Context, userID string) ([]model.Notification, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu            sync.RWMutex
	listings      map[string]model.Listing        // key: listingID -> value: listing
	users         map[string]model.User           // key: userID -> value: user
	bids          map[string][]model.Bid          // key: listingID -> value: bids in acceptance order
	userBids      map[string][]model.Bid          // key: userID -> value: bids placed by the user
	notifications map[string][]model.Notification // key: userID -> value: notifications
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		listings:      make(map[string]model.Listing),
		users:         make(map[string]model.User),
		bids:          make(map[string][]model.Bid),
		userBids:      make(map[string][]model.Bid),
		notifications: make(map[string][]model.Notification),
	}
}

// GetListing returns a listing that has not been soft-deleted
func (r *MemoryRepo) GetListing(_ context.Context, listingID string) (model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[listingID]
	if !ok || l.DeletedAt != nil {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return cloneListing(l), nil
}

// GetUser returns a user by id
func (r *MemoryRepo) GetUser(_ context.Context, userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return u, nil
}

// GetBidsByListing returns all accepted bids for a listing, oldest first
func (r *MemoryRepo) GetBidsByListing(_ context.Context, listingID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if l, ok := r.listings[listingID]; !ok || l.DeletedAt != nil {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return append([]model.Bid{}, r.bids[listingID]...), nil
}

// GetBidsByUser returns every bid a user has placed, newest first
func (r *MemoryRepo) GetBidsByUser(_ context.Context, userID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.userBids[userID]
	out := make([]model.Bid, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

// RecordBid applies decide to the listing and persists its outcome while holding the write lock
func (r *MemoryRepo) RecordBid(_ context.Context, listingID string, decide BidDecision) (model.Bid, model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.listings[listingID]
	if !ok || current.DeletedAt != nil {
		return model.Bid{}, model.Listing{}, fmt.Errorf("record bid for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}

	bid, updated, err := decide(cloneListing(current))
	if err != nil {
		return model.Bid{}, model.Listing{}, err
	}
	if bid.ListingID != listingID {
		return model.Bid{}, model.Listing{}, fmt.Errorf("record bid for listing %s: bid targets %q: %w", listingID, bid.ListingID, biddingerrors.ErrInvalidBid)
	}

	r.bids[listingID] = append(r.bids[listingID], bid)
	r.userBids[bid.UserID] = append(r.userBids[bid.UserID], bid)
	r.listings[listingID] = cloneListing(updated)

	return bid, cloneListing(updated), nil
}

// ListEndedAuctions returns active auctions whose end time is before cutoff
func (r *MemoryRepo) ListEndedAuctions(_ context.Context, cutoff time.Time) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Listing
	for _, l := range r.listings {
		if auctionEndedBy(l, cutoff) {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionEndTime.Before(*out[j].AuctionEndTime) })
	return out, nil
}

// CloseAuction deactivates an ended auction. The bool reports whether this call performed the close.
func (r *MemoryRepo) CloseAuction(_ context.Context, listingID string, cutoff time.Time) (model.Listing, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[listingID]
	if !ok || l.DeletedAt != nil {
		return model.Listing{}, false, fmt.Errorf("close auction %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if !auctionEndedBy(l, cutoff) {
		return cloneListing(l), false, nil
	}

	l.IsActive = false
	r.listings[listingID] = l
	return cloneListing(l), true, nil
}

// CreateNotification stores a notification for its recipient
func (r *MemoryRepo) CreateNotification(_ context.Context, n model.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("create notification: empty recipient")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[n.UserID] = append(r.notifications[n.UserID], n)
	return nil
}

// GetNotifications returns a user's notifications, newest first
func (r *MemoryRepo) GetNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.notifications[userID]
	out := make([]model.Notification, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

// AddListing adds a listing to the repository. Used for seeding and tests.
func (r *MemoryRepo) AddListing(l model.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = cloneListing(l)
}

// AddUser adds a user to the repository. Used for seeding and tests.
func (r *MemoryRepo) AddUser(u model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.UserID] = u
}

func auctionEndedBy(l model.Listing, cutoff time.Time) bool {
	return l.IsActive &&
		l.DeletedAt == nil &&
		l.SaleType == model.SaleTypeAuction &&
		l.AuctionEndTime != nil &&
		l.AuctionEndTime.Before(cutoff)
}

// cloneListing detaches nullable fields so callers never share storage with the repo
func cloneListing(l model.Listing) model.Listing {
	if l.CurrentBid != nil {
		l.CurrentBid = model.Int64Ptr(*l.CurrentBid)
	}
	if l.HighestBidderID != nil {
		l.HighestBidderID = model.StringPtr(*l.HighestBidderID)
	}
	if l.AuctionStartTime != nil {
		l.AuctionStartTime = model.TimePtr(*l.AuctionStartTime)
	}
	if l.AuctionEndTime != nil {
		l.AuctionEndTime = model.TimePtr(*l.AuctionEndTime)
	}
	if l.DeletedAt != nil {
		l.DeletedAt = model.TimePtr(*l.DeletedAt)
	}
	return l
}

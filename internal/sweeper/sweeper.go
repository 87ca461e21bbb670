package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"live-auction/internal/metrics"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/utils"
)

// ErrSweepInProgress is returned when a cycle starts while the previous one is still running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Publisher receives the single auction_end event emitted per closed listing
type Publisher interface {
	PublishAuctionEnd(ctx context.Context, e model.AuctionEnd) error
}

// Options control the sweep cadence
type Options struct {
	Interval     time.Duration
	GracePeriod  time.Duration
	InitialDelay time.Duration
}

// DefaultOptions returns the standard cadence
func DefaultOptions() Options {
	return Options{
		Interval:     30 * time.Second,
		GracePeriod:  5 * time.Second,
		InitialDelay: 5 * time.Second,
	}
}

// Result describes one auction closed by this sweeper
type Result struct {
	ListingID  string
	Status     string
	WinnerID   *string
	WinningBid *int64
	TotalBids  int64
}

// Status is the processor report served on the admin endpoint
type Status struct {
	Running       bool       `json:"running"`
	Processing    bool       `json:"isProcessing"`
	IntervalMs    int64      `json:"intervalMs"`
	GracePeriodMs int64      `json:"gracePeriodMs"`
	LastRun       *time.Time `json:"lastRun"`
	LastClosed    int        `json:"lastClosed"`
}

// Sweeper closes auctions whose end time has passed and announces the outcome
type Sweeper struct {
	repo      repository.AuctionDB
	publisher Publisher
	opts      Options

	processing atomic.Bool
	running    atomic.Bool

	mu         sync.Mutex
	lastRun    *time.Time
	lastClosed int
}

// New creates a sweeper. publisher may be nil.
func New(repo repository.AuctionDB, publisher Publisher, opts Options) *Sweeper {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	return &Sweeper{repo: repo, publisher: publisher, opts: opts}
}

// Run sweeps once after the initial delay and then every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		utils.Warn("auction sweeper already running", nil)
		return
	}
	defer s.running.Store(false)

	utils.Info("auction sweeper started", map[string]any{
		"interval":     s.opts.Interval.String(),
		"grace_period": s.opts.GracePeriod.String(),
	})

	initial := time.NewTimer(s.opts.InitialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Info("auction sweeper stopped", nil)
			return
		case <-initial.C:
		case <-ticker.C:
		}

		// each cycle runs in its own goroutine so a slow ledger surfaces as skipped cycles
		go func() {
			if _, err := s.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, ErrSweepInProgress) {
				utils.Error("auction sweep failed", map[string]any{"error": err.Error()})
			}
		}()
	}
}

// RunOnce closes every auction that ended more than the grace period before now
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) ([]Result, error) {
	if !s.processing.CompareAndSwap(false, true) {
		utils.Warn("auction sweeper is already processing, skipping this cycle", nil)
		return nil, ErrSweepInProgress
	}
	defer s.processing.Store(false)

	cutoff := now.Add(-s.opts.GracePeriod)
	ended, err := s.repo.ListEndedAuctions(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweeper: failed to list ended auctions: %w", err)
	}

	var results []Result
	failed := 0
	for _, l := range ended {
		res, closed, err := s.closeAuction(ctx, l.ID, cutoff)
		if err != nil {
			failed++
			utils.Error("failed to close auction", map[string]any{"listing_id": l.ID, "error": err.Error()})
			continue
		}
		if closed {
			results = append(results, res)
		}
	}

	s.mu.Lock()
	s.lastRun = model.TimePtr(now)
	s.lastClosed = len(results)
	s.mu.Unlock()

	if len(ended) > 0 {
		utils.Info("auction sweep finished", map[string]any{
			"found":  len(ended),
			"closed": len(results),
			"failed": failed,
		})
	}
	return results, nil
}

// Status reports whether the loop is running and what the last cycle did
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:       s.running.Load(),
		Processing:    s.processing.Load(),
		IntervalMs:    s.opts.Interval.Milliseconds(),
		GracePeriodMs: s.opts.GracePeriod.Milliseconds(),
		LastClosed:    s.lastClosed,
	}
	if s.lastRun != nil {
		st.LastRun = model.TimePtr(*s.lastRun)
	}
	return st
}

func (s *Sweeper) closeAuction(ctx context.Context, listingID string, cutoff time.Time) (Result, bool, error) {
	l, closed, err := s.repo.CloseAuction(ctx, listingID, cutoff)
	if err != nil {
		return Result{}, false, err
	}
	if !closed {
		// extended by a late bid or closed elsewhere
		return Result{}, false, nil
	}

	res := Result{ListingID: l.ID, TotalBids: l.TotalBids, Status: model.AuctionStatusNoBids}
	end := model.AuctionEnd{ListingID: l.ID, Status: model.AuctionStatusNoBids}

	if l.HighestBidderID == nil {
		s.notify(ctx, model.Notification{
			UserID:    l.SellerID,
			Type:      model.NotificationAuctionEndedNoBids,
			Title:     "Auction ended without bids",
			Message:   fmt.Sprintf("Your auction %q ended with no bids", l.Title),
			RelatedID: l.ID,
		})
	} else {
		res.Status = model.AuctionStatusSold
		res.WinnerID = l.HighestBidderID
		res.WinningBid = l.CurrentBid

		end.Status = model.AuctionStatusSold
		end.WinnerID = l.HighestBidderID
		end.WinningBid = l.CurrentBid
		end.WinnerName = s.winnerName(ctx, *l.HighestBidderID)

		s.notifySold(ctx, l)
	}

	metrics.AuctionClosed(res.Status)
	utils.Info("auction closed", map[string]any{
		"listing_id": l.ID,
		"status":     res.Status,
		"total_bids": l.TotalBids,
	})

	if s.publisher != nil {
		if err := s.publisher.PublishAuctionEnd(ctx, end); err != nil {
			utils.Warn("failed to publish auction end", map[string]any{"listing_id": l.ID, "error": err.Error()})
		}
	}
	return res, true, nil
}

func (s *Sweeper) winnerName(ctx context.Context, userID string) *string {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		utils.Warn("winner lookup failed", map[string]any{"user_id": userID, "error": err.Error()})
		return nil
	}
	if u.DisplayName != "" {
		return model.StringPtr(u.DisplayName)
	}
	if u.Phone != "" {
		return model.StringPtr(u.Phone)
	}
	return nil
}

func (s *Sweeper) notifySold(ctx context.Context, l model.Listing) {
	winner, amount := *l.HighestBidderID, *l.CurrentBid

	s.notify(ctx, model.Notification{
		UserID:    winner,
		Type:      model.NotificationAuctionWon,
		Title:     "You won the auction",
		Message:   fmt.Sprintf("Your bid of %d won %q", amount, l.Title),
		RelatedID: l.ID,
	})
	s.notify(ctx, model.Notification{
		UserID:    l.SellerID,
		Type:      model.NotificationAuctionSold,
		Title:     "Your auction sold",
		Message:   fmt.Sprintf("%q sold for %d", l.Title, amount),
		RelatedID: l.ID,
	})

	bids, err := s.repo.GetBidsByListing(ctx, l.ID)
	if err != nil {
		utils.Warn("failed to load bids for losing bidders", map[string]any{"listing_id": l.ID, "error": err.Error()})
		return
	}
	seen := map[string]struct{}{winner: {}}
	for _, b := range bids {
		if _, ok := seen[b.UserID]; ok {
			continue
		}
		seen[b.UserID] = struct{}{}
		s.notify(ctx, model.Notification{
			UserID:    b.UserID,
			Type:      model.NotificationAuctionLost,
			Title:     "Auction ended",
			Message:   fmt.Sprintf("The auction for %q ended at %d", l.Title, amount),
			RelatedID: l.ID,
		})
	}
}

func (s *Sweeper) notify(ctx context.Context, n model.Notification) {
	n.ID = utils.GenerateID()
	n.CreatedAt = time.Now().UTC()
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		utils.Warn("failed to create notification", map[string]any{
			"user_id":    n.UserID,
			"type":       n.Type,
			"related_id": n.RelatedID,
			"error":      err.Error(),
		})
	}
}

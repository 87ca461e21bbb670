package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const listingColumns = `id, title, seller_id, sale_type, price, current_bid, total_bids, highest_bidder_id,
	auction_start_time, auction_end_time, is_active, allowed_bidder_type, deleted_at, created_at`

// PostgresRepo is the durable AuctionDB. Bid acceptance row-locks the listing so
// concurrent bids on one listing serialize across every server instance.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresRepo opens a pgx pool and verifies connectivity
func NewPostgresRepo(ctx context.Context, dsn string, maxConns int32) (*PostgresRepo, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// Close releases the pool
func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 AND deleted_at IS NULL`, listingID)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, err)
	}
	return l, nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	var phone *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, phone, phone_verified, is_banned FROM users WHERE id = $1`, userID,
	).Scan(&u.UserID, &u.DisplayName, &phone, &u.PhoneVerified, &u.IsBanned)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	if phone != nil {
		u.Phone = *phone
	}
	return u, nil
}

func (r *PostgresRepo) GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if _, err := r.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, listing_id, user_id, amount, created_at FROM bids WHERE listing_id = $1 ORDER BY created_at, amount`, listingID)
	if err != nil {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, err)
	}
	return collectBids(rows)
}

func (r *PostgresRepo) GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, listing_id, user_id, amount, created_at FROM bids WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get bids for user %s: %w", userID, err)
	}
	return collectBids(rows)
}

// RecordBid locks the listing row with SELECT ... FOR UPDATE for the whole decision
func (r *PostgresRepo) RecordBid(ctx context.Context, listingID string, decide BidDecision) (model.Bid, model.Listing, error) {
	var (
		bid     model.Bid
		updated model.Listing
	)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanListing(tx.QueryRow(ctx,
			`SELECT `+listingColumns+` FROM listings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, listingID))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("record bid for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock listing %s: %w", listingID, err)
		}

		bid, updated, err = decide(current)
		if err != nil {
			return err
		}
		if bid.ListingID != listingID {
			return fmt.Errorf("record bid for listing %s: bid targets %q: %w", listingID, bid.ListingID, biddingerrors.ErrInvalidBid)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO bids (id, listing_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4, $5)`,
			bid.BidID, bid.ListingID, bid.UserID, bid.Amount, bid.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE listings SET current_bid = $2, total_bids = $3, highest_bidder_id = $4, auction_end_time = $5 WHERE id = $1`,
			listingID, updated.CurrentBid, updated.TotalBids, updated.HighestBidderID, updated.AuctionEndTime,
		); err != nil {
			return fmt.Errorf("update listing: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Bid{}, model.Listing{}, err
	}
	return bid, updated, nil
}

func (r *PostgresRepo) ListEndedAuctions(ctx context.Context, cutoff time.Time) ([]model.Listing, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+listingColumns+` FROM listings
		WHERE is_active AND sale_type = 'auction' AND deleted_at IS NULL
		AND auction_end_time IS NOT NULL AND auction_end_time < $1
		ORDER BY auction_end_time`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list ended auctions: %w", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ended auction: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CloseAuction flips is_active with a conditional update so only one caller wins
func (r *PostgresRepo) CloseAuction(ctx context.Context, listingID string, cutoff time.Time) (model.Listing, bool, error) {
	row := r.pool.QueryRow(ctx, `UPDATE listings SET is_active = FALSE
		WHERE id = $1 AND is_active AND sale_type = 'auction' AND deleted_at IS NULL
		AND auction_end_time IS NOT NULL AND auction_end_time < $2
		RETURNING `+listingColumns, listingID, cutoff)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetListing(ctx, listingID)
		if getErr != nil {
			return model.Listing{}, false, fmt.Errorf("close auction %s: %w", listingID, getErr)
		}
		return current, false, nil
	}
	if err != nil {
		return model.Listing{}, false, fmt.Errorf("close auction %s: %w", listingID, err)
	}
	return l, true, nil
}

func (r *PostgresRepo) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, related_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.RelatedID, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *PostgresRepo) GetNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, title, message, related_id, is_read, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpsertUser writes a user row. Used for seeding and tests.
func (r *PostgresRepo) UpsertUser(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id, display_name, phone, phone_verified, is_banned)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, phone = EXCLUDED.phone,
		phone_verified = EXCLUDED.phone_verified, is_banned = EXCLUDED.is_banned`,
		u.UserID, u.DisplayName, u.Phone, u.PhoneVerified, u.IsBanned)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.UserID, err)
	}
	return nil
}

// UpsertListing writes a listing row. Used for seeding and tests.
func (r *PostgresRepo) UpsertListing(ctx context.Context, l model.Listing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, seller_id = EXCLUDED.seller_id,
		sale_type = EXCLUDED.sale_type, price = EXCLUDED.price, current_bid = EXCLUDED.current_bid,
		total_bids = EXCLUDED.total_bids, highest_bidder_id = EXCLUDED.highest_bidder_id,
		auction_start_time = EXCLUDED.auction_start_time, auction_end_time = EXCLUDED.auction_end_time,
		is_active = EXCLUDED.is_active, allowed_bidder_type = EXCLUDED.allowed_bidder_type,
		deleted_at = EXCLUDED.deleted_at`,
		l.ID, l.Title, l.SellerID, string(l.SaleType), l.Price, l.CurrentBid, l.TotalBids, l.HighestBidderID,
		l.AuctionStartTime, l.AuctionEndTime, l.IsActive, string(l.AllowedBidderType), l.DeletedAt, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	return nil
}

func scanListing(row pgx.Row) (model.Listing, error) {
	var (
		l            model.Listing
		saleType     string
		bidderPolicy string
	)
	err := row.Scan(&l.ID, &l.Title, &l.SellerID, &saleType, &l.Price, &l.CurrentBid, &l.TotalBids,
		&l.HighestBidderID, &l.AuctionStartTime, &l.AuctionEndTime, &l.IsActive, &bidderPolicy,
		&l.DeletedAt, &l.CreatedAt)
	if err != nil {
		return model.Listing{}, err
	}
	l.SaleType = model.SaleType(saleType)
	l.AllowedBidderType = model.BidderPolicy(bidderPolicy)
	return l, nil
}

func collectBids(rows pgx.Rows) ([]model.Bid, error) {
	defer rows.Close()

	out := []model.Bid{}
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.ListingID, &b.UserID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

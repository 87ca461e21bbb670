package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_handler.go -package=handler

import (
	"context"
	"net/http"
	"time"

	"live-auction/internal/auth"
	"live-auction/internal/biddingerrors"
	bidding "live-auction/internal/biddingService"
	model "live-auction/internal/models"
	"live-auction/services/bidding/helpers"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, listingID, userID string, amount int64, now time.Time) (bidding.PlaceBidResult, error)
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	GetBidsForListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)
	GetUserBidStatus(ctx context.Context, listingID, userID string) (model.BidStatus, error)
	GetNotifications(ctx context.Context, userID string) ([]model.Notification, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
	now     func() time.Time
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBidHandler handles POST /api/listings/:id/bid
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	listingID := c.Param("id")
	userID, ok := auth.UserID(c)
	if !ok {
		helpers.WriteError(c, biddingerrors.Reject(biddingerrors.ReasonUnauthenticated))
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}
	if req.ListingID != "" && req.ListingID != listingID {
		utils.JSONError(c, http.StatusBadRequest, "listingId does not match the request path", gin.H{"reason": biddingerrors.ReasonInvalidBid})
		return
	}

	res, err := h.service.PlaceBid(c.Request.Context(), listingID, userID, *req.Amount, h.now())
	if err != nil {
		status := helpers.WriteError(c, err)
		fields := map[string]any{
			"handler":    "PlaceBidHandler",
			"listing_id": listingID,
			"user_id":    userID,
			"amount":     *req.Amount,
			"error":      err.Error(),
		}
		if status >= http.StatusInternalServerError {
			utils.Error("PlaceBidHandler: failed to place bid", fields)
		} else {
			utils.Info("PlaceBidHandler: bid rejected", fields)
		}
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.PlaceBidResponse{
		Success:    true,
		Bid:        res.Bid,
		CurrentBid: res.CurrentBid,
		TotalBids:  res.TotalBids,
		Extended:   res.Extended,
		NewEndTime: res.AuctionEndTime,
	})
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     res.Bid.BidID,
		"listing_id": listingID,
		"user_id":    userID,
		"amount":     res.Bid.Amount,
		"extended":   res.Extended,
	})
}

// GetListingHandler handles GET /api/listings/:id
func (h *BiddingHandler) GetListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	listing, err := h.service.GetListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("GetListingHandler: error retrieving listing", map[string]any{"listing_id": listingID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, listing)
}

// GetBidsByListingHandler handles GET /api/listings/:id/bids
func (h *BiddingHandler) GetBidsByListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	bids, err := h.service.GetBidsForListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("GetBidsByListingHandler: error retrieving bids", map[string]any{"listing_id": listingID, "error": err.Error()})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids)
	helpers.LogSuccess("GetBidsByListingHandler", "bids retrieved successfully", map[string]any{
		"listing_id": listingID,
		"count":      len(bids),
	})
}

// GetUserBidStatusHandler handles GET /api/listings/:id/user-bid-status
func (h *BiddingHandler) GetUserBidStatusHandler(c *gin.Context) {
	listingID := c.Param("id")
	userID, _ := auth.UserID(c)

	status, err := h.service.GetUserBidStatus(c.Request.Context(), listingID, userID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("GetUserBidStatusHandler: error retrieving status", map[string]any{"listing_id": listingID, "user_id": userID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, status)
}

// GetMyBidsHandler handles GET /api/users/me/bids
func (h *BiddingHandler) GetMyBidsHandler(c *gin.Context) {
	userID, _ := auth.UserID(c)
	bids, err := h.service.GetBidsByUser(c.Request.Context(), userID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("GetMyBidsHandler: error retrieving bids", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids)
	helpers.LogSuccess("GetMyBidsHandler", "bids retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(bids),
	})
}

// GetNotificationsHandler handles GET /api/notifications
func (h *BiddingHandler) GetNotificationsHandler(c *gin.Context) {
	userID, _ := auth.UserID(c)
	notes, err := h.service.GetNotifications(c.Request.Context(), userID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("GetNotificationsHandler: error retrieving notifications", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	if notes == nil {
		notes = []model.Notification{}
	}

	utils.JSONResponse(c, http.StatusOK, notes)
}

package helpers

import (
	"time"

	model "live-auction/internal/models"
)

// Request/Response DTOs

// PlaceBidRequest carries Amount as a pointer so an explicit zero reaches the
// service's checks while a missing field is still a binding error.
type PlaceBidRequest struct {
	ListingID string `json:"listingId,omitempty"`
	Amount    *int64 `json:"amount" binding:"required"`
}

type PlaceBidResponse struct {
	Success    bool       `json:"success"`
	Bid        model.Bid  `json:"bid"`
	CurrentBid int64      `json:"currentBid"`
	TotalBids  int64      `json:"totalBids"`
	Extended   bool       `json:"extended"`
	NewEndTime *time.Time `json:"newEndTime"`
}

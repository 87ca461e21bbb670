package handler

import (
	"net/http"

	"live-auction/internal/sweeper"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

// ProcessorStatus is implemented by the auction sweeper
type ProcessorStatus interface {
	Status() sweeper.Status
}

// AuctionProcessorStatusHandler handles GET /api/admin/auction-processor/status
func AuctionProcessorStatusHandler(p ProcessorStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, p.Status())
	}
}

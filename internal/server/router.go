package server

import (
	"net/http"

	"live-auction/internal/auth"
	"live-auction/internal/metrics"
	handler "live-auction/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP surface is built from
type Deps struct {
	Service    handler.BiddingServiceInterface
	Tokens     *auth.TokenManager
	Realtime   http.Handler
	Processor  handler.ProcessorStatus
	BidsPerSec float64
	BidBurst   int
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(metrics.Middleware)

	biddingHandler := handler.NewBiddingHandler(d.Service)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())
	if d.Realtime != nil {
		router.GET("/ws", gin.WrapH(d.Realtime))
	}

	api := router.Group("/api")

	listings := api.Group("/listings")
	{
		listings.POST("/:id/bid", d.Tokens.RequireUser(), RateLimitBids(d.BidsPerSec, d.BidBurst), biddingHandler.PlaceBidHandler)
		listings.GET("/:id", biddingHandler.GetListingHandler)
		listings.GET("/:id/bids", biddingHandler.GetBidsByListingHandler)
		listings.GET("/:id/user-bid-status", d.Tokens.OptionalUser(), biddingHandler.GetUserBidStatusHandler)
	}

	users := api.Group("/users", d.Tokens.RequireUser())
	{
		users.GET("/me/bids", biddingHandler.GetMyBidsHandler)
	}

	api.GET("/notifications", d.Tokens.RequireUser(), biddingHandler.GetNotificationsHandler)

	if d.Processor != nil {
		api.GET("/admin/auction-processor/status", handler.AuctionProcessorStatusHandler(d.Processor))
	}

	return router
}

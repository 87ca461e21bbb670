package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-auction/internal/auth"
	"live-auction/internal/biddingerrors"
	bidding "live-auction/internal/biddingService"
	model "live-auction/internal/models"
	"live-auction/internal/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	router *gin.Engine
	mock   *MockBiddingServiceInterface
	token  string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockService := NewMockBiddingServiceInterface(ctrl)
	h := NewBiddingHandler(mockService)
	h.now = func() time.Time { return testNow }

	tokens := auth.NewTokenManager("test-secret", "live-auction", time.Hour)
	token, err := tokens.Issue("user1", time.Now())
	require.NoError(t, err)

	// Initialize Gin in test mode
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/listings/:id/bid", tokens.RequireUser(), h.PlaceBidHandler)
	router.GET("/api/listings/:id", h.GetListingHandler)
	router.GET("/api/listings/:id/bids", h.GetBidsByListingHandler)
	router.GET("/api/listings/:id/user-bid-status", tokens.OptionalUser(), h.GetUserBidStatusHandler)
	router.GET("/api/users/me/bids", tokens.RequireUser(), h.GetMyBidsHandler)
	router.GET("/api/notifications", tokens.RequireUser(), h.GetNotificationsHandler)

	return testEnv{router: router, mock: mockService, token: token}
}

func (e testEnv) do(t *testing.T, method, path, body string, authed bool) (int, map[string]any, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var obj map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &obj)
	return w.Code, obj, w.Body.Bytes()
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	env := newTestEnv(t)
	end := testNow.Add(2 * time.Minute)

	tests := []struct {
		name           string
		listingID      string
		body           string
		authed         bool
		mockSetup      func()
		expectedStatus int
		expectedReason string
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:      "success_extended",
			listingID: "listing1",
			body:      `{"amount":102000}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing1", "user1", int64(102000), testNow).
					Return(bidding.PlaceBidResult{
						Bid: model.Bid{
							BidID:     uuid.NewString(),
							ListingID: "listing1",
							UserID:    "user1",
							Amount:    102000,
							CreatedAt: testNow,
						},
						CurrentBid:     102000,
						TotalBids:      2,
						AuctionEndTime: &end,
						Extended:       true,
					}, nil)
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, true, resp["success"])
				require.Equal(t, 102000.0, resp["currentBid"])
				require.Equal(t, 2.0, resp["totalBids"])
				require.Equal(t, true, resp["extended"])
				require.Equal(t, end.Format(time.RFC3339), resp["newEndTime"])

				bid := resp["bid"].(map[string]any)
				_, parseErr := uuid.Parse(bid["id"].(string))
				require.NoError(t, parseErr, "bid id should be a valid UUID")
				require.Equal(t, "listing1", bid["listingId"])
				require.Equal(t, "user1", bid["userId"])
			},
		},
		{
			name:           "unauthenticated",
			listingID:      "listing2",
			body:           `{"amount":102000}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusUnauthorized,
			expectedReason: "unauthenticated",
		},
		{
			name:           "invalid_json",
			listingID:      "listing3",
			body:           `{invalid json}`,
			authed:         true,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "invalid_bid",
		},
		{
			name:           "missing_amount",
			listingID:      "listing4",
			body:           `{}`,
			authed:         true,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "invalid_bid",
		},
		{
			name:      "zero_amount_reaches_service",
			listingID: "listing13",
			body:      `{"amount":0}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing13", "user1", int64(0), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.RejectTooLow(101000))
			},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "bid_too_low",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, 101000.0, resp["minBid"])
			},
		},
		{
			name:      "zero_amount_from_seller",
			listingID: "listing14",
			body:      `{"amount":0}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing14", "user1", int64(0), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.Reject(biddingerrors.ReasonSelfBidNotAllowed))
			},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "self_bid_not_allowed",
			validate: func(t *testing.T, resp map[string]any) {
				require.NotContains(t, resp, "minBid")
			},
		},
		{
			name:      "zero_amount_unverified",
			listingID: "listing15",
			body:      `{"amount":0}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing15", "user1", int64(0), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.Reject(biddingerrors.ReasonVerificationRequired))
			},
			expectedStatus: http.StatusForbidden,
			expectedReason: "verification_required",
		},
		{
			name:           "fractional_amount",
			listingID:      "listing5",
			body:           `{"amount":101000.5}`,
			authed:         true,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "invalid_bid",
		},
		{
			name:           "listing_mismatch",
			listingID:      "listing6",
			body:           `{"listingId":"other","amount":101000}`,
			authed:         true,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "invalid_bid",
		},
		{
			name:      "bid_too_low",
			listingID: "listing7",
			body:      `{"listingId":"listing7","amount":100999}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing7", "user1", int64(100999), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.RejectTooLow(101000))
			},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "bid_too_low",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, 101000.0, resp["minBid"])
				require.Contains(t, resp["error"], "minimum bid is 101000")
			},
		},
		{
			name:      "verification_required",
			listingID: "listing8",
			body:      `{"amount":101000}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing8", "user1", int64(101000), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.Reject(biddingerrors.ReasonVerificationRequired))
			},
			expectedStatus: http.StatusForbidden,
			expectedReason: "verification_required",
		},
		{
			name:      "self_bid",
			listingID: "listing9",
			body:      `{"amount":101000}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing9", "user1", int64(101000), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.Reject(biddingerrors.ReasonSelfBidNotAllowed))
			},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "self_bid_not_allowed",
		},
		{
			name:      "auction_ended",
			listingID: "listing10",
			body:      `{"amount":101000}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing10", "user1", int64(101000), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.Reject(biddingerrors.ReasonAuctionEnded))
			},
			expectedStatus: http.StatusBadRequest,
			expectedReason: "auction_ended",
		},
		{
			name:      "not_found",
			listingID: "listing11",
			body:      `{"amount":101000}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing11", "user1", int64(101000), testNow).
					Return(bidding.PlaceBidResult{}, biddingerrors.Reject(biddingerrors.ReasonNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedReason: "not_found",
		},
		{
			name:      "service_generic_error",
			listingID: "listing12",
			body:      `{"amount":101000}`,
			authed:    true,
			mockSetup: func() {
				env.mock.EXPECT().
					PlaceBid(gomock.Any(), "listing12", "user1", int64(101000), testNow).
					Return(bidding.PlaceBidResult{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, "internal server error", resp["error"])
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			status, resp, _ := env.do(t, http.MethodPost, "/api/listings/"+tc.listingID+"/bid", tc.body, tc.authed)
			require.Equal(t, tc.expectedStatus, status)
			require.NotNil(t, resp)

			if tc.expectedStatus != http.StatusOK {
				require.NotEmpty(t, resp["error"])
				require.NotContains(t, resp, "success")
			}
			if tc.expectedReason != "" {
				require.Equal(t, tc.expectedReason, resp["reason"])
			}
			if tc.validate != nil {
				tc.validate(t, resp)
			}
		})
	}
}

func TestGetListingHandler(t *testing.T) {
	env := newTestEnv(t)

	listing := model.Listing{
		ID:              "listing1",
		SellerID:        "seller",
		SaleType:        model.SaleTypeAuction,
		Price:           100000,
		CurrentBid:      model.Int64Ptr(101000),
		TotalBids:       1,
		HighestBidderID: model.StringPtr("user1"),
		AuctionEndTime:  model.TimePtr(testNow.Add(time.Hour)),
		IsActive:        true,
	}
	env.mock.EXPECT().GetListing(gomock.Any(), "listing1").Return(listing, nil)
	env.mock.EXPECT().GetListing(gomock.Any(), "missing").Return(model.Listing{}, biddingerrors.ErrListingNotFound)

	status, resp, _ := env.do(t, http.MethodGet, "/api/listings/listing1", "", false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 101000.0, resp["currentBid"])
	require.Equal(t, 1.0, resp["totalBids"])
	require.Equal(t, "user1", resp["highestBidderId"])
	require.Equal(t, true, resp["isActive"])
	require.NotContains(t, resp, "deletedAt")

	status, resp, _ = env.do(t, http.MethodGet, "/api/listings/missing", "", false)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", resp["reason"])
}

func TestGetBidsByListingHandler(t *testing.T) {
	env := newTestEnv(t)

	bidsExample := []model.Bid{
		{BidID: "bid1", ListingID: "listing1", UserID: "user1", Amount: 101000, CreatedAt: testNow},
		{BidID: "bid2", ListingID: "listing1", UserID: "user2", Amount: 102000, CreatedAt: testNow.Add(time.Second)},
	}

	tests := []struct {
		name           string
		listingID      string
		mockSetup      func()
		expectedStatus int
		expectedCount  int
	}{
		{
			name:      "listing_with_bids",
			listingID: "listing1",
			mockSetup: func() {
				env.mock.EXPECT().GetBidsForListing(gomock.Any(), "listing1").Return(bidsExample, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:      "listing_without_bids",
			listingID: "listing2",
			mockSetup: func() {
				env.mock.EXPECT().GetBidsForListing(gomock.Any(), "listing2").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:      "unknown_listing",
			listingID: "missing",
			mockSetup: func() {
				env.mock.EXPECT().GetBidsForListing(gomock.Any(), "missing").Return(nil, biddingerrors.ErrListingNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			status, _, raw := env.do(t, http.MethodGet, "/api/listings/"+tc.listingID+"/bids", "", false)
			require.Equal(t, tc.expectedStatus, status)
			if status != http.StatusOK {
				return
			}

			var bids []model.Bid
			require.NoError(t, json.Unmarshal(raw, &bids))
			require.NotNil(t, bids)
			require.Len(t, bids, tc.expectedCount)
		})
	}
}

func TestGetUserBidStatusHandler(t *testing.T) {
	env := newTestEnv(t)

	env.mock.EXPECT().GetUserBidStatus(gomock.Any(), "listing1", "user1").Return(model.BidStatus{HasBid: true, IsHighest: true}, nil)
	env.mock.EXPECT().GetUserBidStatus(gomock.Any(), "listing1", "").Return(model.BidStatus{}, nil)

	status, resp, _ := env.do(t, http.MethodGet, "/api/listings/listing1/user-bid-status", "", true)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"hasBid": true, "isHighest": true}, resp)

	status, resp, _ = env.do(t, http.MethodGet, "/api/listings/listing1/user-bid-status", "", false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"hasBid": false, "isHighest": false}, resp)
}

func TestGetMyBidsHandler(t *testing.T) {
	env := newTestEnv(t)

	env.mock.EXPECT().GetBidsByUser(gomock.Any(), "user1").Return([]model.Bid{
		{BidID: "bid2", ListingID: "listing1", UserID: "user1", Amount: 102000},
	}, nil)

	status, _, raw := env.do(t, http.MethodGet, "/api/users/me/bids", "", true)
	require.Equal(t, http.StatusOK, status)
	var bids []model.Bid
	require.NoError(t, json.Unmarshal(raw, &bids))
	require.Len(t, bids, 1)

	status, resp, _ := env.do(t, http.MethodGet, "/api/users/me/bids", "", false)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthenticated", resp["reason"])
}

func TestGetNotificationsHandler(t *testing.T) {
	env := newTestEnv(t)

	env.mock.EXPECT().GetNotifications(gomock.Any(), "user1").Return(nil, nil)

	status, _, raw := env.do(t, http.MethodGet, "/api/notifications", "", true)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(raw))
}

type fixedStatus sweeper.Status

func (f fixedStatus) Status() sweeper.Status { return sweeper.Status(f) }

func TestAuctionProcessorStatusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/status", AuctionProcessorStatusHandler(fixedStatus{Running: true, IntervalMs: 30000, GracePeriodMs: 5000}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["running"])
	require.Equal(t, false, resp["isProcessing"])
	require.Equal(t, 30000.0, resp["intervalMs"])
	require.Equal(t, 5000.0, resp["gracePeriodMs"])
	require.Nil(t, resp["lastRun"])
}

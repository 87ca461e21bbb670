package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-auction/internal/auth"
	bidding "live-auction/internal/biddingService"
	model "live-auction/internal/models"
	"live-auction/internal/realtime"
	"live-auction/internal/repository"
	"live-auction/internal/server"
	"live-auction/internal/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestStack is the full in-memory auction server
type TestStack struct {
	Router  *gin.Engine
	Repo    *repository.MemoryRepo
	Tokens  *auth.TokenManager
	Hub     *realtime.Hub
	Sweeper *sweeper.Sweeper
	URL     string
}

// SetupTestStack wires ledger, hub, service, sweeper and router and serves them over httptest.
// Users seller, user1, user2 (verified), user3 (unverified) and banned are always present.
func SetupTestStack(t *testing.T, listings ...model.Listing) *TestStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	repo.AddUser(model.User{UserID: "seller", DisplayName: "Seller", PhoneVerified: true})
	repo.AddUser(model.User{UserID: "user1", DisplayName: "User One", PhoneVerified: true})
	repo.AddUser(model.User{UserID: "user2", DisplayName: "User Two", PhoneVerified: true})
	repo.AddUser(model.User{UserID: "user3", DisplayName: "User Three"})
	repo.AddUser(model.User{UserID: "banned", PhoneVerified: true, IsBanned: true})
	for _, l := range listings {
		repo.AddListing(l)
	}

	tokens := auth.NewTokenManager("integration-secret", "live-auction", time.Hour)
	hub := realtime.NewHub(realtime.DefaultConfig(), tokens.ViewerID)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	notifier := realtime.NewNotifier(realtime.NewLocalBroker(hub))
	service := bidding.NewBiddingService(repo, notifier, bidding.DefaultOptions())
	sw := sweeper.New(repo, notifier, sweeper.DefaultOptions())

	router := server.SetupRouter(server.Deps{
		Service:   service,
		Tokens:    tokens,
		Realtime:  hub,
		Processor: sw,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &TestStack{Router: router, Repo: repo, Tokens: tokens, Hub: hub, Sweeper: sw, URL: srv.URL}
}

// LiveAuction returns an active auction that started an hour ago and ends in endsIn
func LiveAuction(id string, price int64, endsIn time.Duration) model.Listing {
	now := time.Now().UTC()
	return model.Listing{
		ID:               id,
		Title:            "title " + id,
		SellerID:         "seller",
		SaleType:         model.SaleTypeAuction,
		Price:            price,
		AuctionStartTime: model.TimePtr(now.Add(-time.Hour)),
		AuctionEndTime:   model.TimePtr(now.Add(endsIn)),
		IsActive:         true,
		CreatedAt:        now,
	}
}

// Bearer returns an Authorization header value for userID
func (s *TestStack) Bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.Tokens.Issue(userID, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func (s *TestStack) ExecuteRequest(t *testing.T, method, url string, body []byte, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request and decodes the JSON body into out
func (s *TestStack) ExecuteRequestAndParse(t *testing.T, method, url string, body any, authHeader string, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	w := s.ExecuteRequest(t, method, url, reqBody, authHeader)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

// Subscribe opens a socket as userID (anonymous when empty) and subscribes to listingID
func (s *TestStack) Subscribe(t *testing.T, userID, listingID string) *websocket.Conn {
	t.Helper()

	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	if userID != "" {
		token, err := s.Tokens.Issue(userID, time.Now())
		require.NoError(t, err)
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(model.ClientMessage{Type: model.MessageSubscribe, ListingID: listingID}))
	ack := ReadMessage(t, conn)
	require.Equal(t, realtime.MessageSubscribed, ack["type"])
	return conn
}

// ReadMessage reads one JSON message with a deadline
func ReadMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

package bidclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	model "live-auction/internal/models"

	"github.com/gorilla/websocket"
)

// BidResult is the body of a successful bid submission
type BidResult struct {
	Success    bool       `json:"success"`
	Bid        model.Bid  `json:"bid"`
	CurrentBid int64      `json:"currentBid"`
	TotalBids  int64      `json:"totalBids"`
	Extended   bool       `json:"extended"`
	NewEndTime *time.Time `json:"newEndTime"`
}

// APIError is a non-2xx response from the bidding API
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Reason  string `json:"reason"`
	MinBid  int64  `json:"minBid"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bidding api: %d %s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("bidding api: %d: %s", e.Status, e.Message)
}

// Client talks to one bidding server on behalf of one viewer
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient returns a client for baseURL. token may be empty for anonymous viewing.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
}

// PlaceBid submits amount for listingID
func (c *Client) PlaceBid(ctx context.Context, listingID string, amount int64) (BidResult, error) {
	body, err := json.Marshal(map[string]any{"listingId": listingID, "amount": amount})
	if err != nil {
		return BidResult{}, err
	}
	var res BidResult
	err = c.do(ctx, http.MethodPost, "/api/listings/"+url.PathEscape(listingID)+"/bid", body, &res)
	return res, err
}

// GetListing fetches the listing read model, used to reconcile after reconnecting
func (c *Client) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	var l model.Listing
	err := c.do(ctx, http.MethodGet, "/api/listings/"+url.PathEscape(listingID), nil, &l)
	return l, err
}

// GetUserBidStatus fetches the viewer's standing on a listing
func (c *Client) GetUserBidStatus(ctx context.Context, listingID string) (model.BidStatus, error) {
	var s model.BidStatus
	err := c.do(ctx, http.MethodGet, "/api/listings/"+url.PathEscape(listingID)+"/user-bid-status", nil, &s)
	return s, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bidding api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bidding api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bidding api: decode response: %w", err)
	}
	return nil
}

// Message is one decoded server message from the live feed
type Message struct {
	Type       string
	ListingID  string
	BidUpdate  *model.BidUpdate
	AuctionEnd *model.AuctionEnd
	Error      string
	Raw        json.RawMessage
}

// Feed is a live socket connection to the realtime endpoint
type Feed struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan Message
	done    chan struct{}
	closing chan struct{}
	once    sync.Once
	err     error
}

// Connect opens the live feed. The bearer token, when set, is passed as a query parameter.
func (c *Client) Connect(ctx context.Context) (*Feed, error) {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bidding feed: dial: %w", err)
	}

	f := &Feed{
		conn:    conn,
		events:  make(chan Message, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go f.read()
	return f, nil
}

// Subscribe starts delivery of a listing's events
func (f *Feed) Subscribe(listingID string) error {
	return f.send(model.ClientMessage{Type: model.MessageSubscribe, ListingID: listingID})
}

// Unsubscribe stops delivery of a listing's events
func (f *Feed) Unsubscribe(listingID string) error {
	return f.send(model.ClientMessage{Type: model.MessageUnsubscribe, ListingID: listingID})
}

// Events yields decoded messages until the connection closes
func (f *Feed) Events() <-chan Message {
	return f.events
}

// Err reports why the feed stopped, once Events is closed
func (f *Feed) Err() error {
	<-f.done
	return f.err
}

func (f *Feed) Close() error {
	f.once.Do(func() { close(f.closing) })
	f.writeMu.Lock()
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	f.writeMu.Unlock()
	return f.conn.Close()
}

func (f *Feed) send(msg model.ClientMessage) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteJSON(msg)
}

func (f *Feed) read() {
	defer close(f.done)
	defer close(f.events)

	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				f.err = err
			}
			return
		}
		msg, err := decodeMessage(data)
		if err != nil {
			continue
		}
		select {
		case f.events <- msg:
		case <-f.closing:
			return
		}
	}
}

func decodeMessage(data []byte) (Message, error) {
	var head struct {
		Type      string `json:"type"`
		ListingID string `json:"listingId"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Message{}, err
	}

	msg := Message{Type: head.Type, ListingID: head.ListingID, Error: head.Error, Raw: append(json.RawMessage{}, data...)}
	switch head.Type {
	case model.MessageBidUpdate:
		var u model.BidUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return Message{}, err
		}
		msg.BidUpdate = &u
	case model.MessageAuctionEnd:
		var e model.AuctionEnd
		if err := json.Unmarshal(data, &e); err != nil {
			return Message{}, err
		}
		msg.AuctionEnd = &e
	}
	return msg, nil
}

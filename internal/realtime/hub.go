package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"live-auction/internal/metrics"
	model "live-auction/internal/models"
	"live-auction/utils"

	"github.com/gorilla/websocket"
)

// Acknowledgement sent after a subscribe/unsubscribe has been applied
const (
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
)

// Config holds socket timing and buffering settings
type Config struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		PingPeriod:     30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 4096,
		CheckOrigin:    func(*http.Request) bool { return true },
	}
}

// Event is one serialized server message scoped to a listing. Seq orders
// bid_update events per listing and is zero for everything else.
type Event struct {
	ListingID string
	Type      string
	Seq       int64
	Payload   []byte
}

type command struct {
	client *Client
	msg    model.ClientMessage
}

type countQuery struct {
	listingID string
	reply     chan int
}

// Hub owns the per-listing subscriber registry. All registry state is touched
// only by the run loop, so events for a listing reach every subscriber in the
// order Deliver was called.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	viewer   func(*http.Request) string

	clients  map[*Client]struct{}
	listings map[string]map[*Client]struct{}
	lastSeq  map[string]int64

	register   chan *Client
	unregister chan *Client
	commands   chan command
	deliver    chan Event
	counts     chan countQuery
	done       chan struct{}
}

// NewHub creates a hub. viewer, if non-nil, names the connecting user for logs.
func NewHub(cfg Config, viewer func(*http.Request) string) *Hub {
	def := DefaultConfig()
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = def.CheckOrigin
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.PingPeriod <= 0 || cfg.PongWait <= 0 {
		cfg.PingPeriod, cfg.PongWait = def.PingPeriod, def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		viewer:     viewer,
		clients:    make(map[*Client]struct{}),
		listings:   make(map[string]map[*Client]struct{}),
		lastSeq:    make(map[string]int64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan command, 64),
		deliver:    make(chan Event, 256),
		counts:     make(chan countQuery),
		done:       make(chan struct{}),
	}
}

// Run processes registry changes and deliveries until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.ConnectionOpened()
			utils.Debug("realtime: client connected", map[string]any{"viewer_id": c.viewerID, "clients": len(h.clients)})
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				utils.Debug("realtime: client disconnected", map[string]any{"viewer_id": c.viewerID, "clients": len(h.clients)})
			}
		case cmd := <-h.commands:
			h.handle(cmd)
		case ev := <-h.deliver:
			h.fanout(ev)
		case q := <-h.counts:
			q.reply <- len(h.listings[q.listingID])
		}
	}
}

// Deliver queues an event for local subscribers. It is a no-op once the hub has stopped.
func (h *Hub) Deliver(ev Event) {
	select {
	case h.deliver <- ev:
	case <-h.done:
	}
}

// Subscribers reports how many local connections follow a listing
func (h *Hub) Subscribers(listingID string) int {
	q := countQuery{listingID: listingID, reply: make(chan int, 1)}
	select {
	case h.counts <- q:
		return <-q.reply
	case <-h.done:
		return 0
	}
}

// ServeHTTP upgrades the request and starts the connection pumps
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("realtime: websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		listings: make(map[string]struct{}),
	}
	if h.viewer != nil {
		c.viewerID = h.viewer(r)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) handle(cmd command) {
	c := cmd.client
	if _, ok := h.clients[c]; !ok {
		return
	}

	listingID := cmd.msg.ListingID
	switch {
	case listingID == "" && (cmd.msg.Type == model.MessageSubscribe || cmd.msg.Type == model.MessageUnsubscribe):
		h.reply(c, errorMessage("listingId is required"))

	case cmd.msg.Type == model.MessageSubscribe:
		subs := h.listings[listingID]
		if subs == nil {
			subs = make(map[*Client]struct{})
			h.listings[listingID] = subs
		}
		subs[c] = struct{}{}
		c.listings[listingID] = struct{}{}
		h.reply(c, ackMessage(MessageSubscribed, listingID))

	case cmd.msg.Type == model.MessageUnsubscribe:
		h.removeSubscription(c, listingID)
		h.reply(c, ackMessage(MessageUnsubscribed, listingID))

	default:
		h.reply(c, errorMessage("unknown message type"))
	}
}

func (h *Hub) fanout(ev Event) {
	subs := h.listings[ev.ListingID]
	if len(subs) == 0 {
		delete(h.lastSeq, ev.ListingID)
		return
	}
	if ev.Type == model.MessageBidUpdate && ev.Seq > 0 {
		if ev.Seq <= h.lastSeq[ev.ListingID] {
			utils.Warn("realtime: dropping stale bid update", map[string]any{
				"listing_id": ev.ListingID,
				"seq":        ev.Seq,
				"last_seq":   h.lastSeq[ev.ListingID],
			})
			return
		}
		h.lastSeq[ev.ListingID] = ev.Seq
	}
	if ev.Type == model.MessageAuctionEnd {
		delete(h.lastSeq, ev.ListingID)
	}

	for c := range subs {
		h.reply(c, ev.Payload)
	}
	utils.Debug("realtime: broadcast", map[string]any{"listing_id": ev.ListingID, "type": ev.Type, "clients": len(subs)})
}

// reply queues payload on the client. A client too slow to drain its buffer is
// disconnected and must reconcile by refetching the listing.
func (h *Hub) reply(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		metrics.MessageDropped()
		utils.Warn("realtime: send buffer full, disconnecting client", map[string]any{"viewer_id": c.viewerID})
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for listingID := range c.listings {
		h.removeSubscription(c, listingID)
	}
	delete(h.clients, c)
	close(c.send)
	metrics.ConnectionClosed()
}

func (h *Hub) removeSubscription(c *Client, listingID string) {
	delete(c.listings, listingID)
	if subs, ok := h.listings[listingID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.listings, listingID)
			delete(h.lastSeq, listingID)
		}
	}
}

func ackMessage(kind, listingID string) []byte {
	b, _ := json.Marshal(model.ClientMessage{Type: kind, ListingID: listingID})
	return b
}

func errorMessage(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"type": model.MessageError, "error": msg})
	return b
}

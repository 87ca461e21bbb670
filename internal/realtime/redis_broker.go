package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"live-auction/utils"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared pub/sub broker
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisBroker publishes every event on a per-listing channel and delivers
// whatever any instance publishes to the local hub.
type RedisBroker struct {
	client *redis.Client
	prefix string
	hub    Deliverer
	pubsub *redis.PubSub
	done   chan struct{}
}

type wireEvent struct {
	ListingID string          `json:"listingId"`
	Type      string          `json:"type"`
	Seq       int64           `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRedisBroker connects and verifies the server with PING
func NewRedisBroker(ctx context.Context, opts RedisOptions, hub Deliverer) (*RedisBroker, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	utils.Info("redis broker initialized", map[string]any{"addr": opts.Addr, "db": opts.DB})

	return &RedisBroker{
		client: client,
		prefix: opts.Prefix,
		hub:    hub,
		done:   make(chan struct{}),
	}, nil
}

func (b *RedisBroker) channel(listingID string) string {
	return b.prefix + "listing:" + listingID
}

// Publish sends ev to every subscribed instance, including this one
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(wireEvent{ListingID: ev.ListingID, Type: ev.Type, Seq: ev.Seq, Payload: ev.Payload})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(ev.ListingID), data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Start subscribes to every listing channel and returns once the subscription is confirmed
func (b *RedisBroker) Start(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"listing:*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redis subscribe failed: %w", err)
	}
	b.pubsub = pubsub

	go b.consume(pubsub.Channel())
	return nil
}

func (b *RedisBroker) consume(ch <-chan *redis.Message) {
	defer close(b.done)
	for msg := range ch {
		var ev wireEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			utils.Warn("redis broker: malformed event", map[string]any{"channel": msg.Channel, "error": err.Error()})
			continue
		}
		if ev.ListingID == "" {
			ev.ListingID = strings.TrimPrefix(msg.Channel, b.prefix+"listing:")
		}
		b.hub.Deliver(Event{ListingID: ev.ListingID, Type: ev.Type, Seq: ev.Seq, Payload: ev.Payload})
	}
}

// Close stops the subscription and releases the client
func (b *RedisBroker) Close() error {
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			return err
		}
		<-b.done
	}
	return b.client.Close()
}

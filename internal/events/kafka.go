package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"live-auction/internal/metrics"
	model "live-auction/internal/models"
	"live-auction/utils"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink appends auction events to a topic keyed by listing id, so every
// event for one listing lands on the same partition in acceptance order.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		// bids are published under the listing lock; delivery errors surface in Completion
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err == nil {
				return
			}
			metrics.PublishFailed("kafka")
			utils.Warn("kafka delivery failed", map[string]any{"messages": len(msgs), "error": err.Error()})
		},
	})
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) PublishBidUpdate(ctx context.Context, u model.BidUpdate) error {
	u.Type = model.MessageBidUpdate
	return k.send(ctx, u.ListingID, u.Type, u)
}

func (k *KafkaSink) PublishAuctionEnd(ctx context.Context, e model.AuctionEnd) error {
	e.Type = model.MessageAuctionEnd
	return k.send(ctx, e.ListingID, e.Type, e)
}

func (k *KafkaSink) send(ctx context.Context, listingID, kind string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", kind, err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(listingID),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(kind)}},
	})
	if err != nil {
		return fmt.Errorf("events: write %s for listing %s: %w", kind, listingID, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

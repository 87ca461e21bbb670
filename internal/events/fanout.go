package events

import (
	"context"

	"live-auction/internal/metrics"
	model "live-auction/internal/models"
	"live-auction/utils"
)

// Publisher is anything that consumes auction events
type Publisher interface {
	PublishBidUpdate(ctx context.Context, u model.BidUpdate) error
	PublishAuctionEnd(ctx context.Context, e model.AuctionEnd) error
}

type sink struct {
	name string
	pub  Publisher
}

// Fanout forwards every event to each registered sink in registration order.
// Every sink is attempted; the first error is returned.
type Fanout struct {
	sinks []sink
}

func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink under a name used in logs and metrics
func (f *Fanout) Add(name string, p Publisher) *Fanout {
	if p != nil {
		f.sinks = append(f.sinks, sink{name: name, pub: p})
	}
	return f
}

func (f *Fanout) PublishBidUpdate(ctx context.Context, u model.BidUpdate) error {
	return f.each(func(p Publisher) error { return p.PublishBidUpdate(ctx, u) }, model.MessageBidUpdate, u.ListingID)
}

func (f *Fanout) PublishAuctionEnd(ctx context.Context, e model.AuctionEnd) error {
	return f.each(func(p Publisher) error { return p.PublishAuctionEnd(ctx, e) }, model.MessageAuctionEnd, e.ListingID)
}

func (f *Fanout) each(publish func(Publisher) error, kind, listingID string) error {
	var first error
	for _, s := range f.sinks {
		if err := publish(s.pub); err != nil {
			metrics.PublishFailed(s.name)
			utils.Warn("event sink failed", map[string]any{
				"sink":       s.name,
				"type":       kind,
				"listing_id": listingID,
				"error":      err.Error(),
			})
			if first == nil {
				first = err
			}
		}
	}
	return first
}

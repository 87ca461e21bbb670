package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	model "live-auction/internal/models"
)

// Broker carries events from the instance that produced them to every instance's hub
type Broker interface {
	Publish(ctx context.Context, ev Event) error
}

// Deliverer receives events for local connections; *Hub implements it
type Deliverer interface {
	Deliver(ev Event)
}

// LocalBroker delivers straight to the in-process hub. Suitable for a single instance.
type LocalBroker struct {
	hub Deliverer
}

func NewLocalBroker(hub Deliverer) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, ev Event) error {
	b.hub.Deliver(ev)
	return nil
}

// Notifier turns auction events into broker messages
type Notifier struct {
	broker Broker
}

func NewNotifier(broker Broker) *Notifier {
	return &Notifier{broker: broker}
}

func (n *Notifier) PublishBidUpdate(ctx context.Context, u model.BidUpdate) error {
	u.Type = model.MessageBidUpdate
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode bid update: %w", err)
	}
	return n.broker.Publish(ctx, Event{ListingID: u.ListingID, Type: u.Type, Seq: u.TotalBids, Payload: payload})
}

func (n *Notifier) PublishAuctionEnd(ctx context.Context, e model.AuctionEnd) error {
	e.Type = model.MessageAuctionEnd
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode auction end: %w", err)
	}
	return n.broker.Publish(ctx, Event{ListingID: e.ListingID, Type: e.Type, Payload: payload})
}

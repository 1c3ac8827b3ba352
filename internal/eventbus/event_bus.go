package eventbus

import (
	"context"

	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/libs/service"
	"github.com/unwalled/unwalled/types"
)

// Subscription is a proxy interface for a pubsub Subscription.
type Subscription interface {
	ID() string
	Next(context.Context) (pubsub.Message, error)
}

// EventBus is a common bus for all events going through the system.
// It is a type-aware wrapper around an underlying pubsub server.
// All events should be published via the bus.
type EventBus struct {
	service.BaseService
	pubsub *pubsub.Server
}

// NewDefault returns a new event bus with default options.
func NewDefault(l log.Logger) *EventBus {
	logger := l.With("module", "eventbus")
	b := &EventBus{pubsub: pubsub.NewServer(logger)}
	b.BaseService = *service.NewBaseService(logger, "EventBus", b)
	return b
}

func (b *EventBus) OnStart(ctx context.Context) error {
	return b.pubsub.Start(ctx)
}

func (b *EventBus) OnStop() {
	_ = b.pubsub.Stop()
}

func (b *EventBus) NumClients() int {
	return b.pubsub.NumClients()
}

func (b *EventBus) NumClientSubscriptions(clientID string) int {
	return b.pubsub.NumClientSubscriptions(clientID)
}

func (b *EventBus) SubscribeWithArgs(ctx context.Context, args pubsub.SubscribeArgs) (Subscription, error) {
	sub, err := b.pubsub.SubscribeWithArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *EventBus) Unsubscribe(ctx context.Context, args pubsub.UnsubscribeArgs) error {
	return b.pubsub.Unsubscribe(ctx, args)
}

func (b *EventBus) UnsubscribeAll(ctx context.Context, subscriber string) error {
	return b.pubsub.UnsubscribeAll(ctx, subscriber)
}

// PublishEventTx publishes a delivered tx tagged with its type and the
// attributes of its result.
func (b *EventBus) PublishEventTx(data types.EventDataTx) error {
	// no explicit deadline for publishing events
	ctx := context.Background()

	events := data.Events()
	events[types.EventTypeKey] = []string{types.EventTx}
	return b.pubsub.PublishWithEvents(ctx, data, events)
}

// PublishEventMatch publishes a match tagged with its auction and both
// counterparties.
func (b *EventBus) PublishEventMatch(data types.EventDataMatch) error {
	ctx := context.Background()

	events := map[string][]string{
		types.EventTypeKey:       {types.EventMatch},
		types.TxHashKey:          {data.TxHash.String()},
		types.MatchAuctionKey:    {data.Match.AuctionID.String()},
		types.MatchAdvertiserKey: {data.Match.AdvertiserAddress.String()},
		types.MatchPublisherKey:  {data.Match.PublisherAddress.String()},
	}
	return b.pubsub.PublishWithEvents(ctx, data, events)
}

//-----------------------------------------------------------------------------

// NopEventBus discards all events.
type NopEventBus struct{}

func (NopEventBus) PublishEventTx(types.EventDataTx) error {
	return nil
}

func (NopEventBus) PublishEventMatch(types.EventDataMatch) error {
	return nil
}

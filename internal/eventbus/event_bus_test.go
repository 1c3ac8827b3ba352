package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/internal/eventbus"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/types"
)

func newEventBus(t *testing.T) *eventbus.EventBus {
	t.Helper()
	bus := eventbus.NewDefault(log.TestingLogger())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop() })
	return bus
}

func next(t *testing.T, sub eventbus.Subscription) pubsub.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestEventBusPublishEventTx(t *testing.T) {
	bus := newEventBus(t)
	ctx := context.Background()

	signer := factory.Address("alice")
	res := types.TxResult{Height: 3, Hash: []byte{0xab, 0xcd}, Kind: types.TxKindPlaceBid, Signer: signer}

	sub, err := bus.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{
		ClientID: "test",
		Query:    query.MustNew("event.type = 'Tx' AND tx.hash = 'abcd' AND tx.code = '0'"),
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishEventTx(types.EventDataTx{TxResult: res}))
	msg := next(t, sub)
	require.Equal(t, types.EventDataTx{TxResult: res}, msg.Data())
	require.Equal(t, []string{signer.String()}, msg.Events()[types.TxSignerKey])
}

func TestEventBusDeliversApplierMatches(t *testing.T) {
	bus := newEventBus(t)
	ctx := context.Background()

	adv, pub := factory.Key("advertiser"), factory.Key("publisher")
	pubAddr := factory.Address("publisher")

	sub, err := bus.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{
		ClientID: "publisher-dashboard",
		Query:    query.MustNew("event.type = 'Match' AND match.publisher = '" + pubAddr.String() + "'"),
	})
	require.NoError(t, err)

	a, err := state.NewApplier(log.TestingLogger(), dbm.NewMemDB(), state.WithEventPublisher(bus))
	require.NoError(t, err)
	require.NoError(t, a.InitChain(factory.GenesisDoc(t, 1000, "advertiser", "publisher")))

	bid := types.NewBid(factory.BidID(7), 30, "<ad/>", "sports")
	auction := types.NewAuctionTrigger(uuid.New(), 10, "sports")
	a.Deliver(factory.PlaceBidTx(t, adv, bid, 0, 1))
	a.Deliver(factory.TriggerAuctionTx(t, pub, auction, 0, 1))

	data, ok := next(t, sub).Data().(types.EventDataMatch)
	require.True(t, ok)
	require.Equal(t, auction.ID, data.Match.AuctionID)
	require.Equal(t, bid.ID, data.Match.BidID)
	require.True(t, data.Match.Settled)
	require.EqualValues(t, 2, data.Height)
}

func TestNopEventBus(t *testing.T) {
	var p state.EventPublisher = eventbus.NopEventBus{}
	require.NoError(t, p.PublishEventTx(types.EventDataTx{}))
	require.NoError(t, p.PublishEventMatch(types.EventDataMatch{}))
}

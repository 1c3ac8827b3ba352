package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/libs/pubsub/query"
)

const clientID = "test-client"

func newTestServer(t *testing.T) *pubsub.Server {
	t.Helper()
	s := pubsub.NewServer(log.TestingLogger())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func mustReceive(ctx context.Context, t *testing.T, sub *pubsub.Subscription, want interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, want, msg.Data())
	require.Equal(t, sub.ID(), msg.SubscriptionID())
}

func TestSubscribeAndPublish(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sub, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.All})
	require.NoError(t, err)
	require.Equal(t, 1, s.NumClients())
	require.Equal(t, 1, s.NumClientSubscriptions(clientID))

	require.NoError(t, s.Publish(ctx, "Ka-Zar"))
	mustReceive(ctx, t, sub, "Ka-Zar")
}

func TestQueryFiltersMessages(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sub, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{
		ClientID: clientID,
		Query:    query.MustNew("event.type = 'Match'"),
	})
	require.NoError(t, err)

	require.NoError(t, s.PublishWithEvents(ctx, "tx", map[string][]string{"event.type": {"Tx"}}))
	require.NoError(t, s.Publish(ctx, "bare"))
	require.NoError(t, s.PublishWithEvents(ctx, "match", map[string][]string{"event.type": {"Match"}}))
	mustReceive(ctx, t, sub, "match")
}

func TestDuplicateSubscription(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	q := query.MustNew("tx.hash = 'x'")

	_, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: q})
	require.NoError(t, err)
	_, err = s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.MustNew("tx.hash='x'")})
	require.ErrorIs(t, err, pubsub.ErrAlreadySubscribed)
}

func TestInvalidSubscribeArgs(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{Query: query.All})
	assert.Error(t, err)
	_, err = s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID})
	assert.Error(t, err)
	_, err = s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.All, Limit: -1})
	assert.Error(t, err)
}

func TestSlowSubscriberIsTerminated(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sub, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.All, Limit: 1})
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, 1))
	require.NoError(t, s.Publish(ctx, 2))
	// a third publish can only be accepted once the second was processed
	require.NoError(t, s.Publish(ctx, 3))

	mustReceive(ctx, t, sub, 1)
	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, pubsub.ErrTerminated)
	require.Equal(t, 0, s.NumClients())
}

func TestUnsubscribe(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	q := query.MustNew("event.type = 'Tx'")

	sub, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: q})
	require.NoError(t, err)
	require.NoError(t, s.Unsubscribe(ctx, pubsub.UnsubscribeArgs{ClientID: clientID, Query: q}))

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, pubsub.ErrUnsubscribed)

	err = s.Unsubscribe(ctx, pubsub.UnsubscribeArgs{ClientID: clientID, Query: q})
	require.ErrorIs(t, err, pubsub.ErrSubscriptionNotFound)
	require.ErrorIs(t, s.UnsubscribeAll(ctx, clientID), pubsub.ErrSubscriptionNotFound)
}

func TestUnsubscribeAll(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sub1, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.MustNew("event.type = 'Tx'")})
	require.NoError(t, err)
	sub2, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.All})
	require.NoError(t, err)

	require.NoError(t, s.UnsubscribeAll(ctx, clientID))
	require.ErrorIs(t, sub1.Err(), pubsub.ErrUnsubscribed)
	require.ErrorIs(t, sub2.Err(), pubsub.ErrUnsubscribed)
	require.Equal(t, 0, s.NumClients())
}

func TestStopCancelsSubscriptions(t *testing.T) {
	defer leaktest.Check(t)()
	s := pubsub.NewServer(log.NewNopLogger())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	sub, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.All})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, pubsub.ErrServerStopped)
	require.ErrorIs(t, s.Publish(ctx, "late"), pubsub.ErrServerStopped)
	_, err = s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{ClientID: clientID, Query: query.All})
	require.ErrorIs(t, err, pubsub.ErrServerStopped)
}

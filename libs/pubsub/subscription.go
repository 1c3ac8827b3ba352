package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/unwalled/unwalled/libs/pubsub/query"
)

var (
	// ErrUnsubscribed is returned by Next when the client unsubscribed.
	ErrUnsubscribed = errors.New("client unsubscribed")

	// ErrTerminated is returned by Next when the subscription was dropped
	// because the client was not reading messages fast enough.
	ErrTerminated = errors.New("subscription terminated")
)

// A Subscription is a client's registration for one query.
type Subscription struct {
	id       string
	clientID string
	query    *query.Query

	out      chan Message
	canceled chan struct{}

	mtx sync.Mutex
	err error
}

func newSubscription(clientID string, q *query.Query, limit int) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		clientID: clientID,
		query:    q,
		out:      make(chan Message, limit),
		canceled: make(chan struct{}),
	}
}

// ID returns the unique identifier of the subscription.
func (s *Subscription) ID() string { return s.id }

// Query returns the query of the subscription.
func (s *Subscription) Query() *query.Query { return s.query }

// Next blocks until a message is available, ctx ends, or the subscription
// is canceled. Buffered messages are still delivered after cancellation.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.out:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.out:
		return msg, nil
	case <-s.canceled:
		select {
		case msg := <-s.out:
			return msg, nil
		default:
		}
		return Message{}, s.Err()
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Err returns why the subscription was canceled, or nil while it is live.
func (s *Subscription) Err() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.err
}

func (s *Subscription) offer(msg Message) bool {
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscription) cancel(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.canceled)
}

// Message glues published data and its events together.
type Message struct {
	subID  string
	data   interface{}
	events map[string][]string
}

// SubscriptionID returns the id of the subscription that received the message.
func (msg Message) SubscriptionID() string { return msg.subID }

// Data returns the published data.
func (msg Message) Data() interface{} { return msg.data }

// Events returns the events the message was published with.
func (msg Message) Events() map[string][]string { return msg.events }

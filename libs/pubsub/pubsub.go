// Package pubsub implements a publish-subscribe server with a single
// publisher and many subscribers.
//
// Subscribers register a query and receive every published message whose
// events match it. Publishing never blocks on a subscriber: a subscriber
// whose buffer is full is terminated with ErrTerminated and must resubscribe.
//
//	sub, err := s.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{
//		ClientID: "indexer",
//		Query:    query.MustNew("event.type = 'Match'"),
//	})
//	for {
//		msg, err := sub.Next(ctx)
//		if err != nil {
//			return err
//		}
//		// handle msg.Data()
//	}
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/libs/service"
)

var (
	// ErrSubscriptionNotFound is returned when a client tries to unsubscribe
	// from a subscription that does not exist.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrAlreadySubscribed is returned when a client tries to subscribe twice
	// with the same query.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrServerStopped is returned when the server is not running.
	ErrServerStopped = errors.New("pubsub server is stopped")
)

// SubscribeArgs are the parameters of a subscription.
type SubscribeArgs struct {
	ClientID string
	Query    *query.Query

	// Limit is the number of undelivered messages a subscriber may buffer
	// before it is terminated. Zero selects DefaultLimit.
	Limit int
}

// DefaultLimit is the buffer size of a subscription without a Limit.
const DefaultLimit = 100

// UnsubscribeArgs identify a subscription to cancel.
type UnsubscribeArgs struct {
	ClientID string
	Query    *query.Query
}

type item struct {
	data   interface{}
	events map[string][]string
}

// Server routes published messages to matching subscriptions.
type Server struct {
	service.BaseService
	logger log.Logger

	queue chan item
	done  chan struct{}

	mtx  sync.RWMutex
	subs map[string]map[string]*Subscription // client -> query -> sub
}

// Option sets a parameter for the server.
type Option func(*Server)

// BufferCapacity sets the capacity of the publish queue.
func BufferCapacity(cap int) Option {
	return func(s *Server) {
		if cap > 0 {
			s.queue = make(chan item, cap)
		}
	}
}

// NewServer returns a new server. The publish queue is unbuffered unless
// BufferCapacity is given.
func NewServer(logger log.Logger, options ...Option) *Server {
	s := &Server{
		logger: logger,
		queue:  make(chan item),
		done:   make(chan struct{}),
		subs:   make(map[string]map[string]*Subscription),
	}
	s.BaseService = *service.NewBaseService(logger, "PubSub", s)
	for _, opt := range options {
		opt(s)
	}
	return s
}

// NumClients returns the number of clients with at least one subscription.
func (s *Server) NumClients() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.subs)
}

// NumClientSubscriptions returns the number of subscriptions of clientID.
func (s *Server) NumClientSubscriptions(clientID string) int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.subs[clientID])
}

// SubscribeWithArgs creates a subscription for args.ClientID.
func (s *Server) SubscribeWithArgs(ctx context.Context, args SubscribeArgs) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args.ClientID == "" {
		return nil, errors.New("empty client id")
	}
	if args.Query == nil {
		return nil, errors.New("nil query")
	}
	if args.Limit < 0 {
		return nil, fmt.Errorf("negative limit %d", args.Limit)
	}
	if args.Limit == 0 {
		args.Limit = DefaultLimit
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	select {
	case <-s.done:
		return nil, ErrServerStopped
	default:
	}
	qs := args.Query.String()
	if _, ok := s.subs[args.ClientID][qs]; ok {
		return nil, ErrAlreadySubscribed
	}

	sub := newSubscription(args.ClientID, args.Query, args.Limit)
	if s.subs[args.ClientID] == nil {
		s.subs[args.ClientID] = make(map[string]*Subscription)
	}
	s.subs[args.ClientID][qs] = sub
	return sub, nil
}

// Unsubscribe cancels the subscription of args.ClientID to args.Query.
func (s *Server) Unsubscribe(_ context.Context, args UnsubscribeArgs) error {
	if args.Query == nil {
		return errors.New("nil query")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	qs := args.Query.String()
	sub, ok := s.subs[args.ClientID][qs]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.removeLocked(sub, ErrUnsubscribed)
	return nil
}

// UnsubscribeAll cancels every subscription of clientID.
func (s *Server) UnsubscribeAll(_ context.Context, clientID string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	subs, ok := s.subs[clientID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	for _, sub := range subs {
		s.removeLocked(sub, ErrUnsubscribed)
	}
	return nil
}

func (s *Server) removeLocked(sub *Subscription, reason error) {
	qs := sub.query.String()
	delete(s.subs[sub.clientID], qs)
	if len(s.subs[sub.clientID]) == 0 {
		delete(s.subs, sub.clientID)
	}
	sub.cancel(reason)
}

// Publish publishes data with no events. Only subscriptions to the empty
// query receive it.
func (s *Server) Publish(ctx context.Context, data interface{}) error {
	return s.PublishWithEvents(ctx, data, nil)
}

// PublishWithEvents publishes data tagged with events, a map from composite
// attribute key (e.g. "tx.hash") to its values.
func (s *Server) PublishWithEvents(ctx context.Context, data interface{}, events map[string][]string) error {
	select {
	case <-s.done:
		return ErrServerStopped
	default:
	}

	select {
	case s.queue <- item{data: data, events: events}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrServerStopped
	}
}

// OnStart implements service.Implementation.
func (s *Server) OnStart(context.Context) error {
	go s.run()
	return nil
}

// OnStop implements service.Implementation by terminating all subscriptions.
func (s *Server) OnStop() {
	close(s.done)

	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, subs := range s.subs {
		for _, sub := range subs {
			s.removeLocked(sub, ErrServerStopped)
		}
	}
}

func (s *Server) run() {
	for {
		select {
		case it := <-s.queue:
			s.send(it)
		case <-s.done:
			return
		}
	}
}

func (s *Server) send(it item) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, subs := range s.subs {
		for _, sub := range subs {
			if !sub.query.Matches(it.events) {
				continue
			}
			msg := Message{subID: sub.id, data: it.data, events: it.events}
			if !sub.offer(msg) {
				s.logger.Error("terminating slow subscriber",
					"client", sub.clientID, "query", sub.query.String())
				s.removeLocked(sub, ErrTerminated)
			}
		}
	}
}

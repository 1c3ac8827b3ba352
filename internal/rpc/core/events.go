package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/rpc/coretypes"
	rpctypes "github.com/unwalled/unwalled/rpc/jsonrpc/types"
)

const (
	// Buffer on the server side to allow some slowness in clients.
	subBufferSize = 100

	// maxQueryLength is the maximum length of a query string that will be
	// accepted. This is just a safety check to avoid outlandish queries.
	maxQueryLength = 512
)

// Subscribe for events via WebSocket.
func (env *Environment) Subscribe(ctx context.Context, req *coretypes.RequestSubscribe) (*coretypes.ResultSubscribe, error) {
	callInfo := rpctypes.GetCallInfo(ctx)
	if callInfo == nil || callInfo.WSConn == nil {
		return nil, errors.New("subscribe is only available over websocket")
	}
	addr := callInfo.RemoteAddr()

	if env.EventBus.NumClients() >= env.Config.MaxSubscriptionClients {
		return nil, fmt.Errorf("max_subscription_clients %d reached", env.Config.MaxSubscriptionClients)
	} else if env.EventBus.NumClientSubscriptions(addr) >= env.Config.MaxSubscriptionsPerClient {
		return nil, fmt.Errorf("max_subscriptions_per_client %d reached", env.Config.MaxSubscriptionsPerClient)
	} else if len(req.Query) > maxQueryLength {
		return nil, errors.New("maximum query length exceeded")
	}

	env.Logger.Info("Subscribe to query", "remote", addr, "query", req.Query)

	q, err := query.New(req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	subCtx, cancel := context.WithTimeout(ctx, SubscribeTimeout)
	defer cancel()

	sub, err := env.EventBus.SubscribeWithArgs(subCtx, pubsub.SubscribeArgs{
		ClientID: addr,
		Query:    q,
		Limit:    subBufferSize,
	})
	if err != nil {
		return nil, err
	}

	// Capture the current ID, since it can change in the future.
	subscriptionID := callInfo.RPCRequest.ID
	go func() {
		opctx := callInfo.WSConn.Context()
		for {
			msg, err := sub.Next(opctx)
			if errors.Is(err, pubsub.ErrUnsubscribed) || errors.Is(err, context.Canceled) {
				// The subscription was removed by the client, or the
				// connection went away.
				return
			} else if err != nil {
				// The subscription was terminated by the publisher.
				resp := callInfo.RPCRequest.MakeError(err)
				if ok := callInfo.WSConn.TryWriteRPCResponse(opctx, resp); !ok {
					env.Logger.Info("Unable to write response (slow client)",
						"to", addr, "subscriptionID", subscriptionID, "err", err)
				}
				return
			}

			data, err := json.Marshal(msg.Data())
			if err != nil {
				env.Logger.Error("Unable to encode event", "err", err)
				continue
			}

			// We have a message to deliver to the client.
			resp := callInfo.RPCRequest.MakeResponse(&coretypes.ResultEvent{
				SubscriptionID: msg.SubscriptionID(),
				Query:          req.Query,
				Data:           data,
				Events:         msg.Events(),
			})
			wctx, cancel := context.WithTimeout(opctx, 10*time.Second)
			err = callInfo.WSConn.WriteRPCResponse(wctx, resp)
			cancel()
			if err != nil {
				env.Logger.Info("Unable to write response (slow client)",
					"to", addr, "subscriptionID", subscriptionID, "err", err)
			}
		}
	}()

	return &coretypes.ResultSubscribe{}, nil
}

// Unsubscribe from events via WebSocket.
func (env *Environment) Unsubscribe(ctx context.Context, req *coretypes.RequestUnsubscribe) (*coretypes.ResultUnsubscribe, error) {
	addr := rpctypes.GetCallInfo(ctx).RemoteAddr()
	env.Logger.Info("Unsubscribe from query", "remote", addr, "subscription", req.Query)

	q, err := query.New(req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	err = env.EventBus.Unsubscribe(ctx, pubsub.UnsubscribeArgs{ClientID: addr, Query: q})
	if err != nil {
		return nil, err
	}
	return &coretypes.ResultUnsubscribe{}, nil
}

// UnsubscribeAll from all events via WebSocket.
func (env *Environment) UnsubscribeAll(ctx context.Context, _ *coretypes.RequestUnsubscribe) (*coretypes.ResultUnsubscribe, error) {
	addr := rpctypes.GetCallInfo(ctx).RemoteAddr()
	env.Logger.Info("Unsubscribe from all", "remote", addr)
	err := env.EventBus.UnsubscribeAll(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &coretypes.ResultUnsubscribe{}, nil
}

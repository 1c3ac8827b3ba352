package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/eventbus"
	"github.com/unwalled/unwalled/internal/mempool"
	"github.com/unwalled/unwalled/internal/settlement"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/rpc/coretypes"
	rpcserver "github.com/unwalled/unwalled/rpc/jsonrpc/server"
	"github.com/unwalled/unwalled/types"
)

const (
	// see README
	defaultPerPage = 30
	maxPerPage     = 100

	// maxBroadcastBatch caps the txs accepted by one broadcast_tx_batch call.
	maxBroadcastBatch = 100

	// SubscribeTimeout is the maximum time we wait to subscribe for an event.
	// must be less than the server's write timeout (see rpcserver.DefaultConfig)
	SubscribeTimeout = 5 * time.Second
)

// ----------------------------------------------
// Environment contains objects and interfaces used by the RPC. It is expected
// to be setup once during startup.
type Environment struct {
	// objects
	Applier    *state.Applier
	Mempool    *mempool.TxMempool
	EventBus   *eventbus.EventBus // thread safe
	EventSinks []indexer.EventSink
	// Bridge serves the unsafe settlement routes; nil disables them.
	Bridge *settlement.Bridge

	GenDoc  *types.GenesisDoc
	Signer  types.Address
	Moniker string

	Logger log.Logger

	Config config.RPCConfig
}

//----------------------------------------------

func validatePage(pagePtr *int, perPage, totalCount int) (int, error) {
	// this can only happen if we haven't first run validatePerPage
	if perPage < 1 {
		panic(fmt.Errorf("%w (%d)", coretypes.ErrZeroOrNegativePerPage, perPage))
	}

	if pagePtr == nil { // no page parameter
		return 1, nil
	}

	pages := ((totalCount - 1) / perPage) + 1
	if pages == 0 {
		pages = 1 // one page (even if it's empty)
	}
	page := *pagePtr
	if page <= 0 || page > pages {
		return 1, fmt.Errorf("%w expected range: [1, %d], given %d", coretypes.ErrPageOutOfRange, pages, page)
	}

	return page, nil
}

func validatePerPage(perPagePtr *int) int {
	if perPagePtr == nil { // no per_page parameter
		return defaultPerPage
	}

	perPage := *perPagePtr
	if perPage < 1 {
		return defaultPerPage
	} else if perPage > maxPerPage {
		return maxPerPage
	}
	return perPage
}

func validateSkipCount(page, perPage int) int {
	skipCount := (page - 1) * perPage
	if skipCount < 0 {
		return 0
	}

	return skipCount
}

// StartService serves the RPC routes on the configured listen address until
// ctx ends. The returned channel receives the serve error, if any, and is
// closed once the server has stopped.
func (env *Environment) StartService(ctx context.Context) (net.Listener, <-chan error, error) {
	cfg := env.Config
	routes := NewRoutesMap(env, &RouteOptions{Unsafe: cfg.Unsafe})

	rpcLogger := env.Logger.With("module", "rpc-server")
	mux := http.NewServeMux()
	wmLogger := rpcLogger.With("protocol", "websocket")
	wm := rpcserver.NewWebsocketManager(wmLogger, routes,
		rpcserver.OnDisconnect(func(remoteAddr string) {
			err := env.EventBus.UnsubscribeAll(context.Background(), remoteAddr)
			if err != nil && !errors.Is(err, pubsub.ErrSubscriptionNotFound) {
				wmLogger.Error("Failed to unsubscribe addr from events", "addr", remoteAddr, "err", err)
			}
		}),
		rpcserver.ReadLimit(cfg.MaxBodyBytes),
	)
	mux.HandleFunc("/websocket", wm.WebsocketHandler)
	rpcserver.RegisterRPCFuncs(mux, routes, rpcLogger)

	scfg := rpcserver.DefaultConfig()
	scfg.MaxOpenConnections = cfg.MaxOpenConnections
	scfg.MaxBodyBytes = cfg.MaxBodyBytes
	scfg.MaxHeaderBytes = cfg.MaxHeaderBytes
	// If necessary adjust global WriteTimeout to ensure it's greater than
	// TimeoutBroadcastTxCommit.
	if scfg.WriteTimeout <= cfg.TimeoutBroadcastTxCommit {
		scfg.WriteTimeout = cfg.TimeoutBroadcastTxCommit + 1*time.Second
	}

	listener, err := rpcserver.Listen(cfg.ListenAddress, scfg.MaxOpenConnections)
	if err != nil {
		return nil, nil, err
	}

	var rootHandler http.Handler = mux
	if cfg.IsCorsEnabled() {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: cfg.CORSAllowedMethods,
			AllowedHeaders: cfg.CORSAllowedHeaders,
		})
		rootHandler = corsMiddleware.Handler(mux)
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := rpcserver.Serve(ctx, listener, rootHandler, rpcLogger, scfg); err != nil {
			rpcLogger.Error("error serving server", "err", err)
			errc <- err
		}
	}()

	return listener, errc, nil
}

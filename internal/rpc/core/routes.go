package core

import (
	"context"

	"github.com/unwalled/unwalled/rpc/coretypes"
	rpc "github.com/unwalled/unwalled/rpc/jsonrpc/server"
)

type RoutesMap map[string]*rpc.RPCFunc

// RouteOptions provide optional settings to NewRoutesMap.  A nil *RouteOptions
// is ready for use and provides defaults as specified.
type RouteOptions struct {
	Unsafe bool // include "unsafe" methods (default false)
}

// NewRoutesMap constructs an RPC routing map for the given service
// implementation. If svc implements RPCUnsafe and opts.Unsafe is true, the
// "unsafe" methods will also be added to the map. The caller may also edit the
// map after construction; each call to NewRoutesMap returns a fresh map.
func NewRoutesMap(svc RPCService, opts *RouteOptions) RoutesMap {
	if opts == nil {
		opts = new(RouteOptions)
	}
	out := RoutesMap{
		// Event subscription. Note that subscribe, unsubscribe, and
		// unsubscribe_all are only available via the websocket endpoint.
		"subscribe":       rpc.NewWSRPCFunc(svc.Subscribe, "query"),
		"unsubscribe":     rpc.NewWSRPCFunc(svc.Unsubscribe, "query"),
		"unsubscribe_all": rpc.NewWSRPCFunc(svc.UnsubscribeAll),

		// info API
		"health":              rpc.NewRPCFuncNoArgs(svc.Health),
		"status":              rpc.NewRPCFuncNoArgs(svc.Status),
		"genesis":             rpc.NewRPCFuncNoArgs(svc.Genesis),
		"account":             rpc.NewRPCFunc(svc.Account, "address"),
		"bid":                 rpc.NewRPCFunc(svc.Bid, "id"),
		"tx":                  rpc.NewRPCFunc(svc.Tx, "hash"),
		"tx_search":           rpc.NewRPCFunc(svc.TxSearch, "query", "page", "per_page", "order_by"),
		"num_unconfirmed_txs": rpc.NewRPCFuncNoArgs(svc.NumUnconfirmedTxs),
		"rank_bids":           rpc.NewRPCFunc(svc.RankBids, "attributes", "floor", "per_page"),

		// tx broadcast API
		"broadcast_tx_commit": rpc.NewRPCFunc(svc.BroadcastTxCommit, "tx"),
		"broadcast_tx_sync":   rpc.NewRPCFunc(svc.BroadcastTxSync, "tx"),
		"broadcast_tx_batch":  rpc.NewRPCFunc(svc.BroadcastTxBatch, "txs"),
	}
	if u, ok := svc.(RPCUnsafe); ok && opts.Unsafe {
		out["unsafe_onboard"] = rpc.NewRPCFunc(u.UnsafeOnboard, "address", "amount", "ref")
		out["unsafe_offboard"] = rpc.NewRPCFunc(u.UnsafeOffboard, "address", "amount", "ref")
		out["unsafe_flush_mempool"] = rpc.NewRPCFuncNoArgs(u.UnsafeFlushMempool)
	}
	return out
}

// RPCService defines the set of methods exported by the RPC service
// implementation, for use in constructing a routing table.
type RPCService interface {
	Account(ctx context.Context, req *coretypes.RequestAccount) (*coretypes.ResultAccount, error)
	Bid(ctx context.Context, req *coretypes.RequestBid) (*coretypes.ResultBid, error)
	BroadcastTxCommit(ctx context.Context, req *coretypes.RequestBroadcastTx) (*coretypes.ResultBroadcastTxCommit, error)
	BroadcastTxSync(ctx context.Context, req *coretypes.RequestBroadcastTx) (*coretypes.ResultBroadcastTx, error)
	BroadcastTxBatch(ctx context.Context, req *coretypes.RequestBroadcastTxBatch) (*coretypes.ResultBroadcastTxBatch, error)
	Genesis(ctx context.Context) (*coretypes.ResultGenesis, error)
	Health(ctx context.Context) (*coretypes.ResultHealth, error)
	NumUnconfirmedTxs(ctx context.Context) (*coretypes.ResultUnconfirmedTxs, error)
	RankBids(ctx context.Context, req *coretypes.RequestRankBids) (*coretypes.ResultRankBids, error)
	Status(ctx context.Context) (*coretypes.ResultStatus, error)
	Subscribe(ctx context.Context, req *coretypes.RequestSubscribe) (*coretypes.ResultSubscribe, error)
	Tx(ctx context.Context, req *coretypes.RequestTx) (*coretypes.ResultTx, error)
	TxSearch(ctx context.Context, req *coretypes.RequestTxSearch) (*coretypes.ResultTxSearch, error)
	Unsubscribe(ctx context.Context, req *coretypes.RequestUnsubscribe) (*coretypes.ResultUnsubscribe, error)
	UnsubscribeAll(ctx context.Context, req *coretypes.RequestUnsubscribe) (*coretypes.ResultUnsubscribe, error)
}

// RPCUnsafe defines the set of "unsafe" methods that may optionally be
// exported by the RPC service.
type RPCUnsafe interface {
	UnsafeFlushMempool(ctx context.Context) (*coretypes.ResultUnsafeFlushMempool, error)
	UnsafeOnboard(ctx context.Context, req *coretypes.RequestSettlement) (*coretypes.ResultSettlement, error)
	UnsafeOffboard(ctx context.Context, req *coretypes.RequestSettlement) (*coretypes.ResultSettlement, error)
}

var (
	_ RPCService = (*Environment)(nil)
	_ RPCUnsafe  = (*Environment)(nil)
)

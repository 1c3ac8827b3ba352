// Package http provides a typed client for the node's JSON-RPC API.
package http

import (
	"context"
	"net/http"

	"github.com/unwalled/unwalled/libs/bytes"
	"github.com/unwalled/unwalled/rpc/coretypes"
	jsonrpcclient "github.com/unwalled/unwalled/rpc/jsonrpc/client"
	"github.com/unwalled/unwalled/types"
)

/*
HTTP is a Client implementation that communicates with a node over JSON-RPC
and POST HTTP requests.

Request batching and websocket subscriptions are not supported.

Example:

	c, err := http.New("http://127.0.0.1:26657")
	if err != nil {
		// handle error
	}

	res, err := c.Status(ctx)
	if err != nil {
		// handle error
	}
*/
type HTTP struct {
	caller *jsonrpcclient.Client
}

// New takes a remote endpoint in the form <protocol>://<host>:<port>. An
// error is returned on invalid remote.
func New(remote string) (*HTTP, error) {
	c, err := jsonrpcclient.DefaultHTTPClient(remote)
	if err != nil {
		return nil, err
	}
	return NewWithClient(remote, c)
}

// NewWithClient allows you to set a custom http client. An error is returned
// on invalid remote. The function panics when client is nil.
func NewWithClient(remote string, c *http.Client) (*HTTP, error) {
	rc, err := jsonrpcclient.NewWithHTTPClient(remote, c)
	if err != nil {
		return nil, err
	}
	return &HTTP{caller: rc}, nil
}

func (c *HTTP) Status(ctx context.Context) (*coretypes.ResultStatus, error) {
	result := new(coretypes.ResultStatus)
	if err := c.caller.Call(ctx, "status", map[string]interface{}{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) Health(ctx context.Context) (*coretypes.ResultHealth, error) {
	result := new(coretypes.ResultHealth)
	if err := c.caller.Call(ctx, "health", map[string]interface{}{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) Account(ctx context.Context, addr types.Address) (*coretypes.ResultAccount, error) {
	result := new(coretypes.ResultAccount)
	if err := c.caller.Call(ctx, "account", &coretypes.RequestAccount{Address: addr}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) Bid(ctx context.Context, id string) (*coretypes.ResultBid, error) {
	result := new(coretypes.ResultBid)
	if err := c.caller.Call(ctx, "bid", &coretypes.RequestBid{ID: id}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) BroadcastTxCommit(ctx context.Context, tx []byte) (*coretypes.ResultBroadcastTxCommit, error) {
	result := new(coretypes.ResultBroadcastTxCommit)
	if err := c.caller.Call(ctx, "broadcast_tx_commit", &coretypes.RequestBroadcastTx{Tx: tx}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) BroadcastTxSync(ctx context.Context, tx []byte) (*coretypes.ResultBroadcastTx, error) {
	result := new(coretypes.ResultBroadcastTx)
	if err := c.caller.Call(ctx, "broadcast_tx_sync", &coretypes.RequestBroadcastTx{Tx: tx}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) BroadcastTxBatch(ctx context.Context, txs [][]byte) (*coretypes.ResultBroadcastTxBatch, error) {
	result := new(coretypes.ResultBroadcastTxBatch)
	args := &coretypes.RequestBroadcastTxBatch{Txs: make([]bytes.HexBytes, len(txs))}
	for i, tx := range txs {
		args.Txs[i] = tx
	}
	if err := c.caller.Call(ctx, "broadcast_tx_batch", args, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) RankBids(ctx context.Context, attributes []string, floor uint64, perPage *int) (*coretypes.ResultRankBids, error) {
	result := new(coretypes.ResultRankBids)
	args := &coretypes.RequestRankBids{Attributes: attributes, Floor: floor, PerPage: perPage}
	if err := c.caller.Call(ctx, "rank_bids", args, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) NumUnconfirmedTxs(ctx context.Context) (*coretypes.ResultUnconfirmedTxs, error) {
	result := new(coretypes.ResultUnconfirmedTxs)
	if err := c.caller.Call(ctx, "num_unconfirmed_txs", map[string]interface{}{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) Tx(ctx context.Context, hash bytes.HexBytes) (*coretypes.ResultTx, error) {
	result := new(coretypes.ResultTx)
	if err := c.caller.Call(ctx, "tx", &coretypes.RequestTx{Hash: hash}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) TxSearch(
	ctx context.Context,
	query string,
	page,
	perPage *int,
	orderBy string,
) (*coretypes.ResultTxSearch, error) {
	result := new(coretypes.ResultTxSearch)
	args := &coretypes.RequestTxSearch{
		Query:   query,
		Page:    page,
		PerPage: perPage,
		OrderBy: orderBy,
	}
	if err := c.caller.Call(ctx, "tx_search", args, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTP) Genesis(ctx context.Context) (*coretypes.ResultGenesis, error) {
	result := new(coretypes.ResultGenesis)
	if err := c.caller.Call(ctx, "genesis", map[string]interface{}{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

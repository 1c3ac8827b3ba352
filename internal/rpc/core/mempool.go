package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unwalled/unwalled/internal/mempool"
	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/rpc/coretypes"
	"github.com/unwalled/unwalled/types"
)

//-----------------------------------------------------------------------------
// NOTE: the signature is checked by the mempool; nonce and balance are only
// checked when the tx is delivered.

// BroadcastTxSync returns with the outcome of the mempool check. Does not
// wait for the tx to be delivered.
func (env *Environment) BroadcastTxSync(ctx context.Context, req *coretypes.RequestBroadcastTx) (*coretypes.ResultBroadcastTx, error) {
	hash := types.TxHash(req.Tx)
	err := env.Mempool.CheckTx(ctx, req.Tx)
	if mempool.IsPreCheckError(err) {
		return &coretypes.ResultBroadcastTx{
			Code: types.CodeOf(err),
			Log:  err.Error(),
			Hash: hash,
		}, nil
	} else if err != nil {
		return nil, err
	}
	return &coretypes.ResultBroadcastTx{Code: types.CodeOK, Hash: hash}, nil
}

// BroadcastTxBatch runs the mempool check over several txs at once and
// returns one result per tx, in request order. Accepted txs are queued in
// request order. Does not wait for delivery.
func (env *Environment) BroadcastTxBatch(ctx context.Context, req *coretypes.RequestBroadcastTxBatch) (*coretypes.ResultBroadcastTxBatch, error) {
	if len(req.Txs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", coretypes.ErrInvalidRequest)
	}
	if len(req.Txs) > maxBroadcastBatch {
		return nil, fmt.Errorf("%w: batch of %d txs exceeds %d", coretypes.ErrInvalidRequest, len(req.Txs), maxBroadcastBatch)
	}

	txs := make([][]byte, len(req.Txs))
	for i, tx := range req.Txs {
		txs[i] = tx
	}
	errs := env.Mempool.CheckTxs(ctx, txs)

	results := make([]coretypes.ResultBroadcastTx, len(txs))
	for i, err := range errs {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		results[i] = coretypes.ResultBroadcastTx{Code: types.CodeOK, Hash: types.TxHash(txs[i])}
		if err != nil {
			results[i].Code = types.CodeOf(err)
			results[i].Log = err.Error()
		}
	}
	return &coretypes.ResultBroadcastTxBatch{Results: results}, nil
}

// BroadcastTxCommit returns with the outcome of the mempool check and, if
// the tx was accepted, of its delivery. It waits up to
// TimeoutBroadcastTxCommit for the delivery.
func (env *Environment) BroadcastTxCommit(ctx context.Context, req *coretypes.RequestBroadcastTx) (*coretypes.ResultBroadcastTxCommit, error) {
	if env.EventBus.NumClients() >= env.Config.MaxSubscriptionClients {
		return nil, fmt.Errorf("max_subscription_clients %d reached", env.Config.MaxSubscriptionClients)
	}

	hash := types.TxHash(req.Tx)

	// Subscribe before checking, so the delivery event cannot be missed.
	subscriber := fmt.Sprintf("mempool-%x", hash)
	q := query.MustNew(fmt.Sprintf("%s = '%s' AND %s = '%x'",
		types.EventTypeKey, types.EventTx, types.TxHashKey, hash))
	subCtx, cancel := context.WithTimeout(ctx, SubscribeTimeout)
	defer cancel()
	sub, err := env.EventBus.SubscribeWithArgs(subCtx, pubsub.SubscribeArgs{
		ClientID: subscriber,
		Query:    q,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to tx: %w", err)
	}
	defer func() {
		if err := env.EventBus.Unsubscribe(context.Background(), pubsub.UnsubscribeArgs{
			ClientID: subscriber, Query: q,
		}); err != nil {
			env.Logger.Error("Error unsubscribing from eventBus", "err", err)
		}
	}()

	checkRes, err := env.BroadcastTxSync(ctx, req)
	if err != nil {
		return nil, err
	}
	if !checkRes.Code.IsOK() {
		return &coretypes.ResultBroadcastTxCommit{CheckTx: *checkRes, Hash: hash}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, env.Config.TimeoutBroadcastTxCommit)
	defer cancel()
	start := time.Now()
	msg, err := sub.Next(waitCtx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		env.Logger.Error("Error on broadcastTxCommit",
			"duration", time.Since(start),
			"err", err)
		return &coretypes.ResultBroadcastTxCommit{CheckTx: *checkRes, Hash: hash},
			fmt.Errorf("%w after %s", coretypes.ErrTimedOutWaitingForTx, env.Config.TimeoutBroadcastTxCommit)
	case err != nil:
		return &coretypes.ResultBroadcastTxCommit{CheckTx: *checkRes, Hash: hash},
			fmt.Errorf("waiting for tx: %w", err)
	}

	data, ok := msg.Data().(types.EventDataTx)
	if !ok {
		return nil, fmt.Errorf("unexpected event data %T", msg.Data())
	}
	res := data.TxResult
	return &coretypes.ResultBroadcastTxCommit{
		CheckTx:  *checkRes,
		TxResult: &res,
		Hash:     hash,
		Height:   res.Height,
	}, nil
}

// NumUnconfirmedTxs gets number of txs waiting in the mempool.
func (env *Environment) NumUnconfirmedTxs(ctx context.Context) (*coretypes.ResultUnconfirmedTxs, error) {
	return &coretypes.ResultUnconfirmedTxs{
		Count:      env.Mempool.Size(),
		TotalBytes: env.Mempool.SizeBytes(),
	}, nil
}

// UnsafeFlushMempool removes all transactions from the mempool.
func (env *Environment) UnsafeFlushMempool(ctx context.Context) (*coretypes.ResultUnsafeFlushMempool, error) {
	env.Mempool.Flush()
	return &coretypes.ResultUnsafeFlushMempool{}, nil
}

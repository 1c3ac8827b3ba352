package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/rpc/coretypes"
)

// Tx allows you to query the transaction results. `nil` could mean the
// transaction is in the mempool, invalidated, or was not sent in the first
// place.
func (env *Environment) Tx(ctx context.Context, req *coretypes.RequestTx) (*coretypes.ResultTx, error) {
	for _, sink := range env.EventSinks {
		if sink.Type() != indexer.KV {
			continue
		}
		res, err := sink.GetTxByHash(req.Hash)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("%w: %X", coretypes.ErrTxNotFound, []byte(req.Hash))
		}
		return res, nil
	}
	return nil, coretypes.ErrTxIndexingDisabled
}

// TxSearch allows you to query for multiple transactions results and returns
// a paginated slice of them ordered by height.
func (env *Environment) TxSearch(ctx context.Context, req *coretypes.RequestTxSearch) (*coretypes.ResultTxSearch, error) {
	if !indexer.KVSinkEnabled(env.EventSinks) {
		return nil, coretypes.ErrTxIndexingDisabled
	} else if len(req.Query) > maxQueryLength {
		return nil, errors.New("maximum query length exceeded")
	}

	q, err := query.New(req.Query)
	if err != nil {
		return nil, err
	}

	for _, sink := range env.EventSinks {
		if sink.Type() != indexer.KV {
			continue
		}
		results, err := sink.SearchTxEvents(ctx, q)
		if err != nil {
			return nil, err
		}

		// results are in ascending height order
		switch req.OrderBy {
		case "desc", "":
			sort.SliceStable(results, func(i, j int) bool {
				return results[i].Height > results[j].Height
			})
		case "asc":
		default:
			return nil, fmt.Errorf("expected order_by to be either `asc` or `desc` or empty: %w", coretypes.ErrInvalidRequest)
		}

		// paginate results
		totalCount := len(results)
		perPage := validatePerPage(req.PerPage)

		page, err := validatePage(req.Page, perPage, totalCount)
		if err != nil {
			return nil, err
		}

		skipCount := validateSkipCount(page, perPage)
		pageSize := perPage
		if rest := totalCount - skipCount; rest < pageSize {
			pageSize = rest
		}

		return &coretypes.ResultTxSearch{
			Txs:        results[skipCount : skipCount+pageSize],
			TotalCount: totalCount,
		}, nil
	}

	return nil, coretypes.ErrTxIndexingDisabled
}

package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/unwalled/unwalled/internal/inventory"
	"github.com/unwalled/unwalled/internal/ledger"
	"github.com/unwalled/unwalled/internal/matching"
	"github.com/unwalled/unwalled/rpc/coretypes"
	"github.com/unwalled/unwalled/types"
)

// Account returns the balance and next expected nonce of an address. Unknown
// addresses have a zero balance and nonce.
func (env *Environment) Account(ctx context.Context, req *coretypes.RequestAccount) (*coretypes.ResultAccount, error) {
	if err := req.Address.ValidateBasic(); err != nil {
		return nil, err
	}
	acc, err := ledger.GetAccount(env.Applier.Store(), req.Address)
	if err != nil {
		return nil, err
	}
	return &coretypes.ResultAccount{
		Address:   acc.Address,
		Balance:   acc.Balance,
		NextNonce: acc.NextNonce,
	}, nil
}

// Bid returns an open bid by id.
func (env *Environment) Bid(ctx context.Context, req *coretypes.RequestBid) (*coretypes.ResultBid, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid bid id: %w", err)
	}
	ob, err := inventory.Get(env.Applier.Store(), id)
	if err != nil {
		return nil, err
	}
	if ob == nil {
		return nil, fmt.Errorf("%w: %s", coretypes.ErrBidNotFound, id)
	}
	return &coretypes.ResultBid{Bid: ob.Bid, Advertiser: ob.Advertiser, Seq: ob.Seq}, nil
}

// RankBids returns the open bids that an auction with the given attributes
// and floor would consider, best first. The first entry is the bid that
// auction would match. Nothing is modified.
func (env *Environment) RankBids(ctx context.Context, req *coretypes.RequestRankBids) (*coretypes.ResultRankBids, error) {
	auction := &types.AuctionTrigger{
		BidFloor:   req.Floor,
		Attributes: types.NewStringSet(req.Attributes...),
	}
	if err := auction.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("%w: %v", coretypes.ErrInvalidRequest, err)
	}

	ranked, err := matching.Rank(env.Applier.Store(), auction)
	if err != nil {
		return nil, err
	}

	perPage := validatePerPage(req.PerPage)
	if len(ranked) < perPage {
		perPage = len(ranked)
	}
	bids := make([]coretypes.ResultBid, 0, perPage)
	for _, ob := range ranked[:perPage] {
		bids = append(bids, coretypes.ResultBid{Bid: ob.Bid, Advertiser: ob.Advertiser, Seq: ob.Seq})
	}
	return &coretypes.ResultRankBids{Bids: bids, Total: len(ranked)}, nil
}

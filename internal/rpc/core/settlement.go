package core

import (
	"context"

	"github.com/unwalled/unwalled/rpc/coretypes"
)

// UnsafeOnboard credits an address with funds deposited on the settlement
// chain.
func (env *Environment) UnsafeOnboard(ctx context.Context, req *coretypes.RequestSettlement) (*coretypes.ResultSettlement, error) {
	if env.Bridge == nil {
		return nil, coretypes.ErrSettlementDisabled
	}
	return env.Bridge.Onboard(ctx, req.Address, req.Amount, req.Ref)
}

// UnsafeOffboard debits an address and hands the withdrawal to the
// settlement chain.
func (env *Environment) UnsafeOffboard(ctx context.Context, req *coretypes.RequestSettlement) (*coretypes.ResultSettlement, error) {
	if env.Bridge == nil {
		return nil, coretypes.ErrSettlementDisabled
	}
	return env.Bridge.Offboard(ctx, req.Address, req.Amount, req.Ref)
}

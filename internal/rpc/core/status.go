package core

import (
	"context"

	"github.com/unwalled/unwalled/rpc/coretypes"
	"github.com/unwalled/unwalled/version"
)

// Health gets node health. Returns empty result (200 OK) on success, no
// response - in case of an error.
func (env *Environment) Health(ctx context.Context) (*coretypes.ResultHealth, error) {
	return &coretypes.ResultHealth{}, nil
}

// Status returns the applier's position in the transaction stream and the
// node's identity.
func (env *Environment) Status(ctx context.Context) (*coretypes.ResultStatus, error) {
	info := env.Applier.Info()
	return &coretypes.ResultStatus{
		Moniker: env.Moniker,
		Version: version.Version,
		Signer:  env.Signer,
		SyncInfo: coretypes.SyncInfo{
			ChainID:    info.ChainID,
			Height:     info.Height,
			AppHash:    info.AppHash,
			MempoolTxs: env.Mempool.Size(),
		},
	}, nil
}

// Genesis returns the genesis document.
func (env *Environment) Genesis(ctx context.Context) (*coretypes.ResultGenesis, error) {
	return &coretypes.ResultGenesis{Genesis: env.GenDoc}, nil
}

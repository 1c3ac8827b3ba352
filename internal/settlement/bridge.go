package settlement

import (
	"context"
	"errors"
	"fmt"

	uwbytes "github.com/unwalled/unwalled/libs/bytes"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/types"
)

// ErrZeroAmount is returned for an onboard or offboard of nothing.
var ErrZeroAmount = errors.New("amount must be positive")

// Ledger is the applier's settlement entry point. Both operations are
// serialized with delivered transactions and chained into the app hash.
type Ledger interface {
	Onboard(addr types.Address, amount uint64, ref []byte) (*types.TxResult, error)
	Offboard(addr types.Address, amount uint64, ref []byte) (*types.TxResult, error)
}

// Withdrawal is handed to the settlement layer after an offboard debit has
// been committed.
type Withdrawal struct {
	Address types.Address    `json:"address"`
	Amount  uint64           `json:"amount"`
	Ref     uwbytes.HexBytes `json:"ref"`
	Height  uint64           `json:"height"`
	Hash    uwbytes.HexBytes `json:"hash"`
}

// Withdrawer releases offboarded funds on the settlement layer.
type Withdrawer interface {
	Withdraw(ctx context.Context, w Withdrawal) error
}

// Bridge moves funds between the settlement layer and the exchange ledger.
type Bridge struct {
	logger     log.Logger
	ledger     Ledger
	withdrawer Withdrawer
}

// NewBridge returns a bridge crediting and debiting ledger. Offboarded funds
// are released through w.
func NewBridge(logger log.Logger, ledger Ledger, w Withdrawer) *Bridge {
	return &Bridge{
		logger:     logger,
		ledger:     ledger,
		withdrawer: w,
	}
}

// Onboard credits amount to addr for a deposit identified by ref.
func (b *Bridge) Onboard(ctx context.Context, addr types.Address, amount uint64, ref []byte) (*types.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	return b.ledger.Onboard(addr, amount, ref)
}

// Offboard debits amount from addr and then asks the Withdrawer to release
// it. The debit is final once committed: if the Withdrawer fails, the result
// is returned together with the error so the withdrawal can be retried from
// the result.
func (b *Bridge) Offboard(ctx context.Context, addr types.Address, amount uint64, ref []byte) (*types.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	res, err := b.ledger.Offboard(addr, amount, ref)
	if err != nil {
		return nil, err
	}

	w := Withdrawal{
		Address: addr,
		Amount:  amount,
		Ref:     ref,
		Height:  res.Height,
		Hash:    res.Hash,
	}
	if err := b.withdrawer.Withdraw(ctx, w); err != nil {
		b.logger.Error("withdrawal not released", "address", addr, "amount", amount, "height", res.Height, "err", err)
		return res, fmt.Errorf("releasing withdrawal at height %d: %w", res.Height, err)
	}
	return res, nil
}

// LogWithdrawer only logs withdrawals. It is used when no settlement layer
// is attached.
type LogWithdrawer struct {
	Logger log.Logger
}

func (lw LogWithdrawer) Withdraw(_ context.Context, w Withdrawal) error {
	lw.Logger.Info("withdrawal", "address", w.Address, "amount", w.Amount, "ref", w.Ref, "height", w.Height)
	return nil
}

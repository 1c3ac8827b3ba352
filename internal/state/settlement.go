package state

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/unwalled/unwalled/internal/ledger"
	"github.com/unwalled/unwalled/internal/store"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/types"
)

// SettlementOp is a balance change requested by the settlement layer.
type SettlementOp uint8

const (
	OpOnboard  SettlementOp = 1
	OpOffboard SettlementOp = 2
)

func (op SettlementOp) String() string {
	if op == OpOnboard {
		return "onboard"
	}
	return "offboard"
}

// Onboard credits amount to addr for funds deposited on the settlement layer.
// ref identifies the deposit and is folded into the app hash.
func (a *Applier) Onboard(addr types.Address, amount uint64, ref []byte) (*types.TxResult, error) {
	return a.settle(OpOnboard, addr, amount, ref)
}

// Offboard debits amount from addr for funds leaving to the settlement
// layer. It fails with types.ErrInsufficientFunds, changing nothing, if the
// balance is too small.
func (a *Applier) Offboard(addr types.Address, amount uint64, ref []byte) (*types.TxResult, error) {
	return a.settle(OpOffboard, addr, amount, ref)
}

// settle runs a settlement operation through the same serialized, atomic
// commit path as delivered transactions, so it is ordered with them and
// chained into the app hash.
func (a *Applier) settle(op SettlementOp, addr types.Address, amount uint64, ref []byte) (*types.TxResult, error) {
	if err := addr.ValidateBasic(); err != nil {
		return nil, err
	}

	a.mtx.Lock()
	defer a.mtx.Unlock()

	stx := a.store.NewTx()
	var err error
	if op == OpOnboard {
		err = ledger.Credit(stx, addr, amount)
	} else {
		err = ledger.Debit(stx, addr, amount)
	}
	if err != nil {
		if errors.Is(err, types.ErrStorageFault) {
			a.halt(err)
		}
		return nil, err
	}

	hash := settlementHash(op, addr, amount, ref)
	height := a.height + 1
	appHash := nextAppHash(a.appHash, hash, types.CodeOK)
	stx.Set(store.MetaKey(store.MetaHeight), uint64Bytes(height))
	stx.Set(store.MetaKey(store.MetaAppHash), appHash)
	if err := stx.Commit(); err != nil {
		a.halt(err)
		return nil, err
	}
	a.height, a.appHash = height, appHash
	a.metrics.Height.Set(float64(height))

	a.logger.Info("settled", "op", op, "address", addr, "amount", amount, "ref", log.Hexadecimal(ref), "height", height)
	return &types.TxResult{Height: height, Hash: hash, Signer: addr, Code: types.CodeOK}, nil
}

func settlementHash(op SettlementOp, addr types.Address, amount uint64, ref []byte) []byte {
	h := sha256.New()
	h.Write([]byte{byte(op)})
	h.Write([]byte(addr))
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], amount)
	h.Write(amt[:])
	h.Write(ref)
	return h.Sum(nil)
}

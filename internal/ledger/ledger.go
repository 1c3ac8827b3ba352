// Package ledger keeps account balances and replay nonces.
//
// Every operation works against a store.ReadWriter, normally the applier's
// per-transaction overlay, so that balance and nonce changes commit together
// with the rest of the transaction's effects.
package ledger

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/unwalled/unwalled/internal/store"
	"github.com/unwalled/unwalled/types"
)

// accountSize is the length of an encoded account record:
// balance (u64 LE) | next_nonce (u64 LE).
const accountSize = 16

// Account is the ledger state of one address. Unknown addresses have a zero
// balance and expect nonce 0.
type Account struct {
	Address   types.Address `json:"address"`
	Balance   uint64        `json:"balance"`
	NextNonce uint64        `json:"next_nonce"`
}

func (a Account) bytes() []byte {
	bz := make([]byte, accountSize)
	binary.LittleEndian.PutUint64(bz[:8], a.Balance)
	binary.LittleEndian.PutUint64(bz[8:], a.NextNonce)
	return bz
}

func decodeAccount(addr types.Address, bz []byte) (Account, error) {
	acc := Account{Address: addr}
	if bz == nil {
		return acc, nil
	}
	if len(bz) != accountSize {
		return acc, types.StorageFault("decode account",
			fmt.Errorf("record for %s is %d bytes, want %d", addr, len(bz), accountSize))
	}
	acc.Balance = binary.LittleEndian.Uint64(bz[:8])
	acc.NextNonce = binary.LittleEndian.Uint64(bz[8:])
	return acc, nil
}

// GetAccount loads the account at addr.
func GetAccount(r store.Reader, addr types.Address) (Account, error) {
	bz, err := r.Get(store.AccountKey(addr))
	if err != nil {
		return Account{Address: addr}, err
	}
	return decodeAccount(addr, bz)
}

// GetBalance returns the balance of addr, 0 if the account is unknown.
func GetBalance(r store.Reader, addr types.Address) (uint64, error) {
	acc, err := GetAccount(r, addr)
	return acc.Balance, err
}

// NextNonce returns the nonce the next transaction from addr must carry.
func NextNonce(r store.Reader, addr types.Address) (uint64, error) {
	acc, err := GetAccount(r, addr)
	return acc.NextNonce, err
}

func put(rw store.ReadWriter, acc Account) {
	rw.Set(store.AccountKey(acc.Address), acc.bytes())
}

// Credit adds amount to the balance of addr. It fails with
// types.ErrBalanceOverflow rather than wrap.
func Credit(rw store.ReadWriter, addr types.Address, amount uint64) error {
	acc, err := GetAccount(rw, addr)
	if err != nil {
		return err
	}
	if acc.Balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: crediting %d to %s", types.ErrBalanceOverflow, amount, addr)
	}
	acc.Balance += amount
	put(rw, acc)
	return nil
}

// Debit subtracts amount from the balance of addr. It fails with
// types.ErrInsufficientFunds, leaving the balance unchanged, if the balance
// is smaller than amount.
func Debit(rw store.ReadWriter, addr types.Address, amount uint64) error {
	acc, err := GetAccount(rw, addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", types.ErrInsufficientFunds, addr, acc.Balance, amount)
	}
	acc.Balance -= amount
	put(rw, acc)
	return nil
}

// Transfer moves amount from one account to another. On error neither
// balance changes.
func Transfer(rw store.ReadWriter, from, to types.Address, amount uint64) error {
	if from == to {
		bal, err := GetBalance(rw, from)
		if err != nil {
			return err
		}
		if bal < amount {
			return fmt.Errorf("%w: %s has %d, needs %d", types.ErrInsufficientFunds, from, bal, amount)
		}
		return nil
	}

	toBal, err := GetBalance(rw, to)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-amount {
		return fmt.Errorf("%w: crediting %d to %s", types.ErrBalanceOverflow, amount, to)
	}
	if err := Debit(rw, from, amount); err != nil {
		return err
	}
	return Credit(rw, to, amount)
}

// GetAndIncrementNonce returns the current next nonce of addr and advances
// it by one.
func GetAndIncrementNonce(rw store.ReadWriter, addr types.Address) (uint64, error) {
	acc, err := GetAccount(rw, addr)
	if err != nil {
		return 0, err
	}
	if acc.NextNonce == math.MaxUint64 {
		return 0, fmt.Errorf("%w: nonce space of %s is exhausted", types.ErrReplayedOrOutOfOrderNonce, addr)
	}
	n := acc.NextNonce
	acc.NextNonce++
	put(rw, acc)
	return n, nil
}

// Iterate calls fn for every stored account in address order until fn
// returns false.
func Iterate(r store.Reader, fn func(Account) bool) error {
	var decodeErr error
	err := r.Iterate(store.AccountPrefix(), func(key, value []byte) bool {
		addr, err := store.DecodeAccountKey(key)
		if err != nil {
			decodeErr = types.StorageFault("decode account key", err)
			return false
		}
		acc, err := decodeAccount(addr, value)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(acc)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// TotalSupply sums every balance on the ledger.
func TotalSupply(r store.Reader) (uint64, error) {
	var (
		total    uint64
		overflow bool
	)
	err := Iterate(r, func(acc Account) bool {
		if total > math.MaxUint64-acc.Balance {
			overflow = true
			return false
		}
		total += acc.Balance
		return true
	})
	if err == nil && overflow {
		err = types.ErrBalanceOverflow
	}
	return total, err
}

package factory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/crypto/ed25519"
	"github.com/unwalled/unwalled/types"
)

// Key returns a deterministic key derived from name.
func Key(name string) ed25519.PrivKey {
	return ed25519.GenPrivKeyFromSecret([]byte(name))
}

// Address returns the address of Key(name).
func Address(name string) types.Address {
	return types.AddressFromPubKey(Key(name).PubKey().Bytes())
}

// BidID returns a deterministic bid id whose last byte is n.
func BidID(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}

// PlaceBidTx signs a PlaceBid with key and returns its wire bytes.
func PlaceBidTx(t testing.TB, key ed25519.PrivKey, bid *types.Bid, nonce, fee uint64) []byte {
	t.Helper()
	tx := types.NewPlaceBidTx(bid, nonce, fee)
	require.NoError(t, tx.Sign(key))
	return tx.Bytes()
}

// TriggerAuctionTx signs a TriggerAuction with key and returns its wire bytes.
func TriggerAuctionTx(t testing.TB, key ed25519.PrivKey, a *types.AuctionTrigger, nonce, fee uint64) []byte {
	t.Helper()
	tx := types.NewTriggerAuctionTx(a, nonce, fee)
	require.NoError(t, tx.Sign(key))
	return tx.Bytes()
}

// GenesisDoc returns a validated genesis funding each named key with balance.
func GenesisDoc(t testing.TB, balance uint64, names ...string) *types.GenesisDoc {
	t.Helper()
	doc := &types.GenesisDoc{
		ChainID:     "test-chain",
		GenesisTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, name := range names {
		doc.Accounts = append(doc.Accounts, types.GenesisAccount{
			Address: Address(name),
			Balance: balance,
		})
	}
	require.NoError(t, doc.ValidateAndComplete())
	return doc
}

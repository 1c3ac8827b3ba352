package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/crypto/ed25519"
	"github.com/unwalled/unwalled/types"
)

func TestBidCanonicalBytes(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bid := types.NewBid(id, 100, "ad", "sports", "news", "sports")

	want := []byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, // id
		100, 0, 0, 0, 0, 0, 0, 0, // price
		2, 0, 0, 0, // set size
		4, 0, 0, 0, 'n', 'e', 'w', 's',
		6, 0, 0, 0, 's', 'p', 'o', 'r', 't', 's',
		2, 0, 0, 0, 'a', 'd',
	}
	require.Equal(t, want, bid.CanonicalBytes())

	decoded, err := types.DecodeBid(want)
	require.NoError(t, err)
	if diff := cmp.Diff(bid, decoded); diff != "" {
		t.Fatalf("decoded bid mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBidRejectsNonCanonical(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	canonical := types.NewBid(id, 1, "", "a", "b").CanonicalBytes()

	unsorted := &types.Bid{ID: id, Price: 1, Targeting: types.StringSet{"b", "a"}}
	dup := &types.Bid{ID: id, Price: 1, Targeting: types.StringSet{"a", "a"}}
	empty := &types.Bid{ID: id, Price: 1, Targeting: types.StringSet{""}}
	// "e" followed by a combining acute accent is not NFC.
	decomposed := &types.Bid{ID: id, Price: 1, Targeting: types.StringSet{"cafe\u0301"}}

	testCases := map[string][]byte{
		"trailing byte":  append(append([]byte{}, canonical...), 0),
		"truncated":      canonical[:len(canonical)-1],
		"unsorted set":   unsorted.CanonicalBytes(),
		"duplicate tag":  dup.CanonicalBytes(),
		"empty tag":      empty.CanonicalBytes(),
		"not nfc":        decomposed.CanonicalBytes(),
		"empty input":    {},
		"huge set count": append(append([]byte{}, canonical[:24]...), 0xff, 0xff, 0xff, 0xff),
	}

	for name, bz := range testCases {
		bz := bz
		t.Run(name, func(t *testing.T) {
			_, err := types.DecodeBid(bz)
			require.Error(t, err)
		})
	}
}

func TestNewStringSetNormalizes(t *testing.T) {
	set := types.NewStringSet("news", "sports", "", "news", "cafe\u0301", "Sports")
	require.Equal(t, types.StringSet{"Sports", "caf\u00e9", "news", "sports"}, set)
	require.NoError(t, set.ValidateBasic())
	require.True(t, set.Contains("news"))
	require.False(t, set.Contains("NEWS"))
}

func TestStringSetIntersects(t *testing.T) {
	testCases := []struct {
		a, b types.StringSet
		want bool
	}{
		{types.NewStringSet("sports"), types.NewStringSet("sports", "news"), true},
		{types.NewStringSet("sports"), types.NewStringSet("Sports"), false},
		{types.NewStringSet("a", "c", "e"), types.NewStringSet("b", "d", "e"), true},
		{types.NewStringSet("a", "c"), types.NewStringSet("b", "d"), false},
		{types.NewStringSet(), types.NewStringSet("a"), false},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, tc.a.Intersects(tc.b), "%v ∩ %v", tc.a, tc.b)
		require.Equal(t, tc.want, tc.b.Intersects(tc.a), "%v ∩ %v", tc.b, tc.a)
	}
}

func TestTxWireRoundTrip(t *testing.T) {
	priv := ed25519.GenPrivKeyFromSecret([]byte("publisher"))

	trigger := types.NewTriggerAuctionTx(types.NewAuctionTrigger(uuid.New(), 40, "sports"), 3, 2)
	require.NoError(t, trigger.Sign(priv))

	bz := trigger.Bytes()
	require.Equal(t, byte(types.TxKindTriggerAuction), bz[0])

	tx, err := types.DecodeTx(bz)
	require.NoError(t, err)
	decoded, ok := tx.(*types.TriggerAuctionTx)
	require.True(t, ok)
	require.Equal(t, trigger.Payload, decoded.Payload)
	require.Equal(t, uint64(3), decoded.GetNonce())
	require.Equal(t, uint64(2), decoded.GetFee())
	require.True(t, decoded.Verify())
	require.Equal(t, bz, decoded.Bytes())
}

func TestDecodeTxMalformed(t *testing.T) {
	priv := ed25519.GenPrivKeyFromSecret([]byte("advertiser"))
	tx := types.NewPlaceBidTx(types.NewBid(uuid.New(), 10, "", "news"), 0, 0)
	require.NoError(t, tx.Sign(priv))
	good := tx.Bytes()

	unknownKind := append([]byte{}, good...)
	unknownKind[0] = 9

	testCases := map[string][]byte{
		"empty":        nil,
		"kind only":    {byte(types.TxKindPlaceBid)},
		"unknown kind": unknownKind,
		"trailing":     append(append([]byte{}, good...), 0),
		"truncated":    good[:len(good)-3],
		"oversized":    make([]byte, types.MaxTxBytes+1),
	}
	for name, bz := range testCases {
		bz := bz
		t.Run(name, func(t *testing.T) {
			_, err := types.DecodeTx(bz)
			require.ErrorIs(t, err, types.ErrMalformedTx)
			require.Equal(t, types.CodeMalformedTx, types.CodeOf(err))
		})
	}
}

func TestAddressFromPubKey(t *testing.T) {
	priv := ed25519.GenPrivKeyFromSecret([]byte("x"))
	addr := types.AddressFromPubKey(priv.PubKey().Bytes())
	require.Len(t, addr, 64)
	require.NoError(t, addr.ValidateBasic())

	pub, err := addr.PubKey()
	require.NoError(t, err)
	require.True(t, priv.PubKey().Equals(pub))

	require.NoError(t, types.FeePoolAddress.ValidateBasic())
	require.Error(t, types.Address("ABCD").ValidateBasic())
	_, err = types.FeePoolAddress.PubKey()
	require.Error(t, err)
}

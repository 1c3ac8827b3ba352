package ed25519_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/crypto"
	"github.com/unwalled/unwalled/crypto/ed25519"
)

func TestSignAndValidateEd25519(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	pubKey := privKey.PubKey()

	msg := crypto.CRandBytes(128)
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)

	// Test the signature
	assert.True(t, pubKey.VerifySignature(msg, sig))

	// Mutate the signature, just one bit.
	sig[7] ^= byte(0x01)

	assert.False(t, pubKey.VerifySignature(msg, sig))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	privKey := ed25519.GenPrivKeyFromSecret([]byte("advertiser"))
	msg := []byte("bid")
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)

	pub := privKey.PubKey().(ed25519.PubKey)

	testCases := map[string]struct {
		pub ed25519.PubKey
		sig []byte
	}{
		"short key":       {pub: pub[:31], sig: sig},
		"long key":        {pub: append(append([]byte{}, pub...), 0), sig: sig},
		"empty key":       {pub: nil, sig: sig},
		"short signature": {pub: pub, sig: sig[:63]},
		"empty signature": {pub: pub, sig: nil},
		"all-ones key":    {pub: ed25519.PubKey(bytesOf(0xff, ed25519.PubKeySize)), sig: sig},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				require.False(t, tc.pub.VerifySignature(msg, tc.sig))
			})
		})
	}
}

func TestGenPrivKeyFromSecretIsDeterministic(t *testing.T) {
	a := ed25519.GenPrivKeyFromSecret([]byte("publisher"))
	b := ed25519.GenPrivKeyFromSecret([]byte("publisher"))
	c := ed25519.GenPrivKeyFromSecret([]byte("advertiser"))

	require.True(t, a.Equals(b))
	require.False(t, a.Equals(c))
	require.True(t, a.PubKey().Equals(b.PubKey()))

	fromSeed, err := ed25519.PrivKeyFromSeed(a.Seed())
	require.NoError(t, err)
	require.True(t, a.Equals(fromSeed))

	_, err = ed25519.PrivKeyFromSeed([]byte{1, 2, 3})
	require.Error(t, err)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

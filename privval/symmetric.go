package privval

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/unwalled/unwalled/crypto"
)

const (
	nonceLen  = 24
	secretLen = 32
	saltLen   = 16

	// scrypt parameters recommended for interactive logins
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var errDecrypt = errors.New("ciphertext decryption failed")

// deriveSecret stretches passphrase into a secretbox key.
func deriveSecret(passphrase, salt []byte) ([]byte, error) {
	return scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, secretLen)
}

// encryptSymmetric seals plaintext under secret. The random nonce is
// prepended to the ciphertext.
func encryptSymmetric(plaintext []byte, secret []byte) []byte {
	if len(secret) != secretLen {
		panic(fmt.Sprintf("secret must be 32 bytes long, got len %v", len(secret)))
	}
	var nonce [nonceLen]byte
	copy(nonce[:], crypto.CRandBytes(nonceLen))
	var key [secretLen]byte
	copy(key[:], secret)
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key)
}

// decryptSymmetric opens a ciphertext produced by encryptSymmetric.
func decryptSymmetric(ciphertext []byte, secret []byte) ([]byte, error) {
	if len(secret) != secretLen {
		panic(fmt.Sprintf("secret must be 32 bytes long, got len %v", len(secret)))
	}
	if len(ciphertext) <= secretbox.Overhead+nonceLen {
		return nil, errors.New("ciphertext is too short")
	}
	var nonce [nonceLen]byte
	copy(nonce[:], ciphertext[:nonceLen])
	var key [secretLen]byte
	copy(key[:], secret)
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceLen:], &nonce, &key)
	if !ok {
		return nil, errDecrypt
	}
	return plaintext, nil
}

package privval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/unwalled/unwalled/crypto"
	"github.com/unwalled/unwalled/crypto/ed25519"
	uwos "github.com/unwalled/unwalled/libs/os"
	"github.com/unwalled/unwalled/types"
)

// ErrPassphraseRequired is returned when loading an encrypted key file
// without a passphrase.
var ErrPassphraseRequired = errors.New("key file is encrypted, passphrase required")

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of FilePV.
type FilePVKey struct {
	Address types.Address
	PubKey  ed25519.PubKey
	PrivKey ed25519.PrivKey

	filePath string
}

// filePVKeyJSON is the on-disk form. Exactly one of PrivKey and
// EncryptedPrivKey is set.
type filePVKeyJSON struct {
	Address          types.Address  `json:"address"`
	PubKey           ed25519.PubKey `json:"pub_key"`
	PrivKey          []byte         `json:"priv_key,omitempty"`
	KDF              string         `json:"kdf,omitempty"`
	Salt             []byte         `json:"salt,omitempty"`
	EncryptedPrivKey []byte         `json:"encrypted_priv_key,omitempty"`
}

// Save persists the FilePVKey to its filePath in plain text.
func (pvKey FilePVKey) Save() error {
	return pvKey.save(nil)
}

// SaveEncrypted persists the FilePVKey to its filePath with the private key
// sealed under passphrase.
func (pvKey FilePVKey) SaveEncrypted(passphrase []byte) error {
	if len(passphrase) == 0 {
		return errors.New("empty passphrase")
	}
	return pvKey.save(passphrase)
}

func (pvKey FilePVKey) save(passphrase []byte) error {
	outFile := pvKey.filePath
	if outFile == "" {
		return errors.New("cannot save key: filePath not set")
	}

	key := filePVKeyJSON{Address: pvKey.Address, PubKey: pvKey.PubKey}
	if passphrase == nil {
		key.PrivKey = pvKey.PrivKey
	} else {
		key.KDF = "scrypt"
		key.Salt = crypto.CRandBytes(saltLen)
		secret, err := deriveSecret(passphrase, key.Salt)
		if err != nil {
			return err
		}
		key.EncryptedPrivKey = encryptSymmetric(pvKey.PrivKey, secret)
	}

	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}
	return uwos.WriteFileAtomic(outFile, data, 0600)
}

//-------------------------------------------------------------------------------

// FilePV implements types.Signer using an ed25519 key persisted to disk.
type FilePV struct {
	Key FilePVKey
}

var _ types.Signer = (*FilePV)(nil)

// NewFilePV generates a new signer from privKey, with the key file at the
// given path.
func NewFilePV(privKey ed25519.PrivKey, keyFilePath string) *FilePV {
	pubKey := privKey.PubKey().(ed25519.PubKey)
	return &FilePV{
		Key: FilePVKey{
			Address:  types.AddressFromPubKey(pubKey),
			PubKey:   pubKey,
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV generates a new signer with a randomly generated private key.
// It does not persist the key.
func GenFilePV(keyFilePath string) *FilePV {
	return NewFilePV(ed25519.GenPrivKey(), keyFilePath)
}

// LoadFilePV loads a plain text key file.
func LoadFilePV(keyFilePath string) (*FilePV, error) {
	return LoadFilePVWithPassphrase(keyFilePath, nil)
}

// LoadFilePVWithPassphrase loads a key file, decrypting the private key with
// passphrase if the file is encrypted.
func LoadFilePVWithPassphrase(keyFilePath string, passphrase []byte) (*FilePV, error) {
	keyJSONBytes, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	var key filePVKeyJSON
	if err := json.Unmarshal(keyJSONBytes, &key); err != nil {
		return nil, fmt.Errorf("error reading key from %v: %w", keyFilePath, err)
	}

	privKey := key.PrivKey
	if key.EncryptedPrivKey != nil {
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		if key.KDF != "scrypt" {
			return nil, fmt.Errorf("unsupported kdf %q", key.KDF)
		}
		secret, err := deriveSecret(passphrase, key.Salt)
		if err != nil {
			return nil, err
		}
		if privKey, err = decryptSymmetric(key.EncryptedPrivKey, secret); err != nil {
			return nil, fmt.Errorf("error decrypting key from %v: %w", keyFilePath, err)
		}
	}
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key file %v holds a %d byte private key", keyFilePath, len(privKey))
	}

	pv := NewFilePV(ed25519.PrivKey(privKey), keyFilePath)
	// the stored public key and address must match the private key
	if !pv.Key.PubKey.Equals(key.PubKey) || pv.Key.Address != key.Address {
		return nil, fmt.Errorf("key file %v: public key does not match private key", keyFilePath)
	}
	return pv, nil
}

// LoadFilePVAddress reads the address of a key file without touching the
// private key, so it works for encrypted files too.
func LoadFilePVAddress(keyFilePath string) (types.Address, error) {
	keyJSONBytes, err := os.ReadFile(keyFilePath)
	if err != nil {
		return "", err
	}
	var key filePVKeyJSON
	if err := json.Unmarshal(keyJSONBytes, &key); err != nil {
		return "", fmt.Errorf("error reading key from %v: %w", keyFilePath, err)
	}
	if key.Address != types.AddressFromPubKey(key.PubKey) {
		return "", fmt.Errorf("key file %v: address does not match public key", keyFilePath)
	}
	return key.Address, nil
}

// LoadOrGenFilePV loads a FilePV from the given path, or else generates and
// saves a new one.
func LoadOrGenFilePV(keyFilePath string) (*FilePV, error) {
	if uwos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv := GenFilePV(keyFilePath)
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

// Address returns the account address of the signer.
func (pv *FilePV) Address() types.Address {
	return pv.Key.Address
}

// PubKey returns the public key of the signer.
func (pv *FilePV) PubKey() crypto.PubKey {
	return pv.Key.PubKey
}

// Sign signs msg with the private key.
func (pv *FilePV) Sign(msg []byte) ([]byte, error) {
	return pv.Key.PrivKey.Sign(msg)
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() error {
	return pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf("PrivKey{%v}", pv.Address())
}

// Package keys derives custodial destination-chain wallets for source-chain
// players and protects them at rest.
//
// Derivation is deterministic: HMAC-SHA256 over the lowercased source
// address, keyed with an operator secret, gives the secp256k1 private key.
// The same player always maps to the same wallet, so no key material needs
// to be backed up beyond the two operator secrets.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Derivation errors
var (
	ErrNoDerivationSecret = errors.New("derivation secret not configured")
	ErrNoEncryptionKey    = errors.New("encryption key not configured")
)

// A tiny fraction of HMAC outputs fall outside the secp256k1 scalar
// range; those are rehashed until a valid key emerges.
const maxDeriveAttempts = 8

// Manager derives and protects per-player keys.
type Manager struct {
	derivationSecret []byte
	aesKey           []byte
}

// NewManager creates a key manager. Both secrets are required; an empty
// derivation secret would make every player's key guessable.
func NewManager(derivationSecret, encryptionKey string) (*Manager, error) {
	if derivationSecret == "" {
		return nil, ErrNoDerivationSecret
	}
	if encryptionKey == "" {
		return nil, ErrNoEncryptionKey
	}

	// Stretch the passphrase to a fixed 32-byte AES-256 key.
	aesKey := sha256.Sum256([]byte(encryptionKey))

	return &Manager{
		derivationSecret: []byte(derivationSecret),
		aesKey:           aesKey[:],
	}, nil
}

// Derive returns the secp256k1 private key for a source-chain address.
// The mapping is deterministic and case-insensitive in the address.
func (m *Manager) Derive(sourceAddress string) (*ecdsa.PrivateKey, error) {
	mac := hmac.New(sha256.New, m.derivationSecret)
	mac.Write([]byte(strings.ToLower(sourceAddress)))
	candidate := mac.Sum(nil)

	for i := 0; i < maxDeriveAttempts; i++ {
		key, err := crypto.ToECDSA(candidate)
		if err == nil {
			return key, nil
		}
		candidate = crypto.Keccak256(candidate)
	}

	return nil, fmt.Errorf("no valid key after %d attempts for %s", maxDeriveAttempts, sourceAddress)
}

// Address returns the destination-chain address for a source-chain address.
func (m *Manager) Address(sourceAddress string) (string, error) {
	key, err := m.Derive(sourceAddress)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// EncryptedKey holds an AES-256-GCM encrypted private key, split into
// its components as hex strings for storage.
type EncryptedKey struct {
	IV      string
	AuthTag string
	Data    string
}

// Encrypt seals a private key for storage.
func (m *Manager) Encrypt(key *ecdsa.PrivateKey) (*EncryptedKey, error) {
	block, err := aes.NewCipher(m.aesKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	plaintext := crypto.FromECDSA(key)
	sealed := gcm.Seal(nil, iv, plaintext, nil)

	// GCM appends the auth tag to the ciphertext; store it separately.
	tagStart := len(sealed) - gcm.Overhead()

	return &EncryptedKey{
		IV:      hex.EncodeToString(iv),
		AuthTag: hex.EncodeToString(sealed[tagStart:]),
		Data:    hex.EncodeToString(sealed[:tagStart]),
	}, nil
}

// Decrypt opens a stored private key. Any tampering with the ciphertext
// or components fails authentication.
func (m *Manager) Decrypt(enc *EncryptedKey) (*ecdsa.PrivateKey, error) {
	iv, err := hex.DecodeString(enc.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	tag, err := hex.DecodeString(enc.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("decode auth tag: %w", err)
	}
	data, err := hex.DecodeString(enc.Data)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(m.aesKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, append(data, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}

	return crypto.ToECDSA(plaintext)
}

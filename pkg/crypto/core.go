// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	luxcrypto "github.com/luxfi/crypto"
	"golang.org/x/crypto/hkdf"
)

// Core provides unified cryptographic operations using LuxFi crypto.
type Core struct{}

// NewCore creates a new Core crypto instance.
func NewCore() *Core {
	return &Core{}
}

// GenerateKeyPair generates an ECDSA key pair using LuxFi crypto. Used for
// oracle and authority identities.
func (c *Core) GenerateKeyPair() (privateKey, publicKey []byte, err error) {
	privKey, err := luxcrypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	pubKeyBytes := luxcrypto.FromECDSAPub(&privKey.PublicKey)
	privKeyBytes := luxcrypto.FromECDSA(privKey)

	return privKeyBytes, pubKeyBytes, nil
}

// Hash computes SHA256 hash.
func (c *Core) Hash(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// HashHex computes SHA256 and returns hex string.
func (c *Core) HashHex(data []byte) string {
	return hex.EncodeToString(c.Hash(data))
}

// CreateCommitment creates a cryptographic commitment (SHA-256 of data).
// The AuctionState checksum is computed by the root crypto package, not here.
func (c *Core) CreateCommitment(data []byte) []byte {
	return c.Hash(data)
}

// DeriveKey derives a deterministic key of the given length from secret,
// salt and info using HKDF-SHA256. The Escrow Ledger does not call it; its
// vaults are keyed by ledger.VaultRef.
func (c *Core) DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := h.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// RandomBytes generates secure random bytes.
func (c *Core) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ValidateKeySize checks if key has expected size.
func (c *Core) ValidateKeySize(key []byte, expectedSize int) error {
	if len(key) != expectedSize {
		return ErrInvalidKeySize
	}
	return nil
}

// Global functions for backward compatibility.

var defaultCore = NewCore()

// GenerateKeyPair generates an ECDSA key pair.
func GenerateKeyPair() (privateKey, publicKey []byte, err error) {
	return defaultCore.GenerateKeyPair()
}

// Hash computes SHA256 hash.
func Hash(data []byte) []byte {
	return defaultCore.Hash(data)
}

// CreateCommitment creates a cryptographic commitment.
func CreateCommitment(data []byte) []byte {
	return defaultCore.CreateCommitment(data)
}

// DeriveKey derives a key using HKDF.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	return defaultCore.DeriveKey(secret, salt, info, length)
}

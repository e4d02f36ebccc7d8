// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/ecdsa"
	"errors"
)

var (
	// ErrInvalidKeySize indicates the key size is incorrect.
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrInvalidSignature indicates the signature verification failed.
	ErrInvalidSignature = errors.New("invalid signature")
)

// KeyPair represents a public/private key pair.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Signer provides signing and signature verification operations. No type
// in this module implements it; delivery reports are verified through the
// root crypto package.
type Signer interface {
	// Sign creates a signature for the given message.
	Sign(privateKey *ecdsa.PrivateKey, message []byte) ([]byte, error)
	// Verify checks if a signature is valid.
	Verify(publicKey *ecdsa.PublicKey, message, signature []byte) bool
}

// Hasher provides cryptographic hash operations for commitments and
// deterministic checksums. No type in this module implements it.
type Hasher interface {
	// Hash computes a cryptographic hash.
	Hash(data []byte) []byte
	// HashWithSalt computes a salted hash.
	HashWithSalt(data, salt []byte) []byte
}

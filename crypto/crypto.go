// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto signs and verifies delivery reports: oracle identities
// sign with Sign and the Delivery & Slashing pipeline verifies with Verify.
// CreateCommitment produces the AuctionState verification checksum.
package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"

	luxcrypto "github.com/luxfi/crypto"
	"github.com/luxfi/crypto/hashing"
)

// CreateCommitment creates a cryptographic commitment using luxfi's hashing.
func CreateCommitment(data []byte) []byte {
	return hashing.ComputeHash256(data)
}

// HashData hashes data using SHA256.
func HashData(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// GenerateKeyPair generates a new key pair using luxfi's crypto.
func GenerateKeyPair() (privateKey, publicKey []byte, err error) {
	privKey, err := luxcrypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	pubKeyBytes := luxcrypto.FromECDSAPub(&privKey.PublicKey)
	privKeyBytes := luxcrypto.FromECDSA(privKey)

	return privKeyBytes, pubKeyBytes, nil
}

// Sign signs a message with a private key.
func Sign(privateKey, message []byte) ([]byte, error) {
	privKey, err := luxcrypto.ToECDSA(privateKey)
	if err != nil {
		return nil, err
	}

	hash := luxcrypto.Keccak256(message)

	return luxcrypto.Sign(hash, privKey)
}

// Verify verifies a signature over a message against a public key.
func Verify(publicKey, message, signature []byte) bool {
	hash := luxcrypto.Keccak256(message)

	// Remove recovery ID if present.
	if len(signature) > 64 {
		signature = signature[:64]
	}

	return luxcrypto.VerifySignature(publicKey, hash, signature)
}

// RecoverPublicKey recovers the public key from a signature.
func RecoverPublicKey(hash, signature []byte) (*ecdsa.PublicKey, error) {
	return luxcrypto.SigToPub(hash, signature)
}

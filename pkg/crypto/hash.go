// Package crypto provides the cryptographic primitives consensus
// depends on: SHA-256 family hashing and ECDSA over secp256k1.
package crypto

import (
	"crypto/sha256"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by HASH160, no stdlib equivalent
)

// Hash computes a single SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes SHA256(SHA256(data)), the identity hash used for
// transaction and block-header hashes.
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HASH160 computes RIPEMD160(SHA256(data)), the digest used for
// P2PKH script pubkeys and address derivation.
func HASH160(data []byte) [20]byte {
	sha := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sha[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

// AddressFromPubKey derives the 20-byte pubkey hash from a compressed
// public key: HASH160(compressed_pubkey).
func AddressFromPubKey(pubKey []byte) [20]byte {
	return HASH160(pubKey)
}

// HashConcat hashes the concatenation of two hashes with double-SHA256.
// Used for building merkle trees (§4.3).
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return DoubleHash(buf[:])
}

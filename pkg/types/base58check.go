package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// checksumLen is the length, in bytes, of the Base58Check checksum
// appended to the version byte and payload (§4.1).
const checksumLen = 4

// EncodeBase58Check encodes a version byte and payload into a
// Base58Check string: base58(version ‖ payload ‖ checksum), where
// checksum is the first 4 bytes of double-SHA256(version ‖ payload).
func EncodeBase58Check(version byte, payload []byte) (string, error) {
	buf := make([]byte, 0, 1+len(payload)+checksumLen)
	buf = append(buf, version)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf)...)
	return base58.Encode(buf), nil
}

// DecodeBase58Check decodes a Base58Check string, verifying its
// checksum, and returns the version byte and payload.
func DecodeBase58Check(s string) (version byte, payload []byte, err error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("base58check: invalid base58: %w", err)
	}
	if len(decoded) < 1+checksumLen {
		return 0, nil, fmt.Errorf("base58check: too short")
	}
	body := decoded[:len(decoded)-checksumLen]
	sum := decoded[len(decoded)-checksumLen:]
	want := checksum(body)
	for i := range want {
		if want[i] != sum[i] {
			return 0, nil, fmt.Errorf("base58check: invalid checksum")
		}
	}
	return body[0], body[1:], nil
}

// checksum computes the first 4 bytes of double-SHA256(data).
func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}

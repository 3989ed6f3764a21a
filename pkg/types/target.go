package types

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// CompactBits is the 4-byte compact encoding of a proof-of-work target
// (§3): the first byte is an exponent, the remaining three bytes are a
// mantissa. Stored as a uint32 in the same big-endian byte order the
// 8-hex-digit form implies (e.g. "1f00ffff" -> 0x1f00ffff).
type CompactBits uint32

// MaxTargetBits is the compact encoding of MAX_TARGET, derived from the
// genesis parameters: mantissa 0x7fffff, exponent 0x20.
const MaxTargetBits CompactBits = 0x207fffff

// Bytes returns the 4-byte big-endian encoding used in the block-header
// preimage (§4.2: "bits(4 bytes from hex)").
func (b CompactBits) Bytes() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(b))
	return buf
}

// String renders the compact bits as an 8-hex-digit string.
func (b CompactBits) String() string {
	return hex.EncodeToString(b.Bytes())
}

// MarshalJSON encodes the compact bits as an 8-hex-digit string, the
// canonical wire form (§6).
func (b CompactBits) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes an 8-hex-digit compact-bits string.
func (b *CompactBits) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := BitsFromHex(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// BitsFromHex parses an 8-hex-digit compact-bits string.
func BitsFromHex(s string) (CompactBits, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("bits: invalid hex: %w", err)
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("bits: must be 4 bytes, got %d", len(raw))
	}
	return CompactBits(binary.BigEndian.Uint32(raw)), nil
}

// maxTarget is MAX_TARGET: mantissa 0x7fffff at exponent 0x20, computed
// once and reused as the cap applied during retarget and decoding.
var maxTarget = expandTarget(0x7fffff, 0x20)

// Target returns the numeric upper bound that a valid block hash,
// interpreted as a big-endian integer, must not exceed: m * 2^(8*(e-3)),
// capped at MAX_TARGET.
func (b CompactBits) Target() *big.Int {
	exponent := byte(b >> 24)
	mantissa := int64(b & 0x00ffffff)
	t := expandTarget(mantissa, exponent)
	if t.Cmp(maxTarget) > 0 {
		return new(big.Int).Set(maxTarget)
	}
	return t
}

// expandTarget computes mantissa * 2^(8*(exponent-3)).
func expandTarget(mantissa int64, exponent byte) *big.Int {
	t := big.NewInt(mantissa)
	shift := 8 * (int(exponent) - 3)
	if shift > 0 {
		t.Lsh(t, uint(shift))
	} else if shift < 0 {
		t.Rsh(t, uint(-shift))
	}
	return t
}

// TargetToBits re-compresses a numeric target into compact-bits form,
// normalizing to the mantissa's 23 bits of precision the way
// bits_to_target/target_to_bits round-trips (up to that lossy
// normalization).
func TargetToBits(target *big.Int) CompactBits {
	if target.Sign() <= 0 {
		return 0
	}
	t := new(big.Int).Set(target)
	if t.Cmp(maxTarget) > 0 {
		t = new(big.Int).Set(maxTarget)
	}

	size := (t.BitLen() + 7) / 8
	var mantissa int64
	if size <= 3 {
		mantissa = t.Int64() << uint(8*(3-size))
	} else {
		shifted := new(big.Int).Rsh(t, uint(8*(size-3)))
		mantissa = shifted.Int64()
	}

	// If the high bit of the mantissa's top byte is set, it would be
	// read back as a sign bit; shift right and bump the exponent.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	bits := uint32(size)<<24 | uint32(mantissa&0x007fffff)
	return CompactBits(bits)
}

// HashMeetsTarget reports whether hash, interpreted as a big-endian
// integer, is less than or equal to target: int(block_hash) <= target(bits).
func HashMeetsTarget(h Hash, target *big.Int) bool {
	hv := new(big.Int).SetBytes(h[:])
	return hv.Cmp(target) <= 0
}

package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Index        uint32            `json:"index"`
	Timestamp    int64             `json:"timestamp"`
	PreviousHash types.Hash        `json:"previous_hash"`
	Bits         types.CompactBits `json:"bits"`
	MerkleRoot   types.Hash        `json:"merkle_root"`
	Nonce        uint32            `json:"nonce"`
}

// Hash computes the block header hash: double-SHA256 of the canonical
// preimage (§4.2).
func (h *Header) Hash() types.Hash {
	return crypto.DoubleHash(h.SigningBytes())
}

// SigningBytes returns the canonical preimage bytes for hashing.
// Format: index(4 LE) | previous_hash(32) | merkle_root(32) | timestamp(8 LE) | bits(4) | nonce(4 LE)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 4+32+32+8+4+4)
	buf = binary.LittleEndian.AppendUint32(buf, h.Index)
	buf = append(buf, h.PreviousHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.Timestamp))
	buf = append(buf, h.Bits.Bytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	return buf
}

// MeetsTarget reports whether this header's hash satisfies its own
// declared proof-of-work target: int(block_hash) <= target(bits).
func (h *Header) MeetsTarget() bool {
	return types.HashMeetsTarget(h.Hash(), h.Bits.Target())
}

package block

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ComputeMerkleRoot calculates the merkle root of transaction hashes (§4.3).
//
// Algorithm:
//   - 0 hashes: returns double_sha256("")
//   - 1 hash: returns that hash
//   - Otherwise: pairwise hash, duplicating the last element if odd count,
//     then recurse on the resulting layer until one hash remains.
func ComputeMerkleRoot(txHashes []types.Hash) types.Hash {
	if len(txHashes) == 0 {
		return crypto.DoubleHash(nil)
	}
	if len(txHashes) == 1 {
		return txHashes[0]
	}

	// Work on a copy so we don't mutate the caller's slice.
	level := make([]types.Hash, len(txHashes))
	copy(level, txHashes)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
	}

	return level[0]
}

// ProofStep is one step of a merkle inclusion proof: the sibling hash
// and which side it sits on relative to the running hash.
type ProofStep struct {
	Left    bool
	Sibling types.Hash
}

// BuildProof returns the inclusion proof for the hash at index target,
// or nil if target is out of range.
func BuildProof(txHashes []types.Hash, target int) []ProofStep {
	if target < 0 || target >= len(txHashes) {
		return nil
	}
	if len(txHashes) == 1 {
		return []ProofStep{}
	}

	level := make([]types.Hash, len(txHashes))
	copy(level, txHashes)
	idx := target

	var proof []ProofStep
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		var sibling types.Hash
		var left bool
		if idx%2 == 0 {
			sibling = level[idx+1]
			left = false
		} else {
			sibling = level[idx-1]
			left = true
		}
		proof = append(proof, ProofStep{Left: left, Sibling: sibling})

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
		idx /= 2
	}
	return proof
}

// VerifyProof folds proof against txHash and compares to root.
func VerifyProof(txHash types.Hash, root types.Hash, proof []ProofStep) bool {
	running := txHash
	for _, step := range proof {
		if step.Left {
			running = crypto.HashConcat(step.Sibling, running)
		} else {
			running = crypto.HashConcat(running, step.Sibling)
		}
	}
	return running == root
}

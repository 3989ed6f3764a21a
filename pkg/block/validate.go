package block

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/errs"
)

// Static validation errors (§4.10). Rules requiring UTXO access
// (transaction authorization, coinbase subsidy cap, intra-block
// double-spend) live in the consensus package.
var (
	ErrNilHeader      = errs.New(errs.Format, "block has nil header")
	ErrNoTransactions = errs.New(errs.Format, "block has no transactions")
	ErrBadMerkleRoot  = errs.New(errs.Rules, "merkle root mismatch")
	ErrBadBlockHash   = errs.New(errs.Rules, "block hash does not match header preimage")
	ErrPoWNotMet      = errs.New(errs.Rules, "block hash does not meet declared target")
	ErrTooManyTxs     = errs.New(errs.Rules, "too many transactions in block")
)

// Validate checks the block's static, UTXO-independent structure (§4.10):
//  1. the header is present
//  2. the transaction list is non-empty and at most config.MaxBlockTxs long
//  3. the header's computed hash satisfies the declared proof-of-work target
//  4. the merkle root matches the transaction hashes
//
// The header carries no separate block-hash field, so there is no
// declared hash to compare with the computed one; ErrBadBlockHash is
// never returned.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}

	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	if !b.Header.MeetsTarget() {
		return fmt.Errorf("%w: hash=%s bits=%s", ErrPoWNotMet, b.Header.Hash(), b.Header.Bits)
	}

	expectedRoot := ComputeMerkleRoot(b.TxHashes())
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	return nil
}

// Package miner implements candidate block assembly and proof-of-work
// sealing (§4.16).
package miner

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrNoTip is returned when ProduceBlock is called before a genesis block
// exists; the caller must construct the genesis block independently
// (chain.CreateGenesisBlock), not through the miner.
var ErrNoTip = errs.New(errs.Chain, "no chain tip: genesis must be created separately")

// ChainReader is the read-only view of chain state the miner needs.
type ChainReader interface {
	Height() uint64
	TipHash() types.Hash
	GetBlock(hash types.Hash) (*block.Block, error)
	GetBlockByHeight(height uint64) (*block.Block, error)
}

// MempoolSelector selects pending transactions for block inclusion.
type MempoolSelector interface {
	SelectForBlock(maxCount int) []*tx.Transaction
}

// Miner assembles and seals candidate blocks for a configured payout
// address (§4.16).
type Miner struct {
	chain   ChainReader
	pool    MempoolSelector
	pow     *consensus.PoW
	payout  [20]byte
	subsidy uint64
	halving uint64
}

// New creates a block builder. subsidy and halving parameterize the
// emission schedule (§4.9); payout is the 20-byte HASH160 of the miner's
// public key.
func New(chain ChainReader, pool MempoolSelector, pow *consensus.PoW, payout [20]byte, subsidy, halving uint64) *Miner {
	return &Miner{chain: chain, pool: pool, pow: pow, payout: payout, subsidy: subsidy, halving: halving}
}

// ProduceBlock assembles, seals, and returns a new candidate block
// extending the current tip, using the current time as the block
// timestamp. It does not apply the block; callers must still run it
// through the chain's consensus orchestrator. Returns ctx.Err() if
// cancelled before a nonce is found.
func (m *Miner) ProduceBlock(ctx context.Context) (*block.Block, error) {
	height := m.chain.Height() + 1
	tip, err := m.chain.GetBlock(m.chain.TipHash())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTip, err)
	}

	bits, err := m.nextBits(height, tip.Header)
	if err != nil {
		return nil, fmt.Errorf("computing required bits: %w", err)
	}

	selected := m.pool.SelectForBlock(config.MaxTxPerBlockSelection)
	var fees uint64
	for _, t := range selected {
		fees += t.Fee
	}
	reward := consensus.Subsidy(height, m.subsidy, m.halving) + fees

	timestamp := time.Now().Unix()
	coinbase := BuildCoinbase(m.payout, reward, height, timestamp)
	txs := make([]*tx.Transaction, 0, 1+len(selected))
	txs = append(txs, coinbase)
	txs = append(txs, selected...)

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.Hash()
	}

	header := &block.Header{
		Index:        uint32(height),
		PreviousHash: tip.Hash(),
		MerkleRoot:   block.ComputeMerkleRoot(txHashes),
		Timestamp:    timestamp,
		Bits:         bits,
		Nonce:        0,
	}
	blk := block.NewBlock(header, txs)

	if err := m.pow.Seal(ctx, blk); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return blk, nil
}

// nextBits implements §4.16 step 2: retarget exactly on a retarget
// boundary, otherwise carry the tip's bits forward.
func (m *Miner) nextBits(height uint64, tip *block.Header) (types.CompactBits, error) {
	if !m.pow.ShouldRetarget(height) {
		return tip.Bits, nil
	}
	interval := uint64(m.pow.RetargetInterval)
	if interval > height {
		return tip.Bits, nil
	}
	first, err := m.chain.GetBlockByHeight(height - interval)
	if err != nil {
		return 0, fmt.Errorf("loading retarget window start: %w", err)
	}
	return m.pow.NextBits(first.Header, tip), nil
}

// BuildCoinbase creates a coinbase transaction paying reward to payout,
// with the block height encoded as a 4-byte little-endian value in the
// coinbase input's script_sig so that coinbases at different heights
// never collide on hash (BIP34-like, Open Question resolution #1).
func BuildCoinbase(payout [20]byte, reward, height uint64, timestamp int64) *tx.Transaction {
	heightTag := make([]byte, 4)
	binary.LittleEndian.PutUint32(heightTag, uint32(height))

	return &tx.Transaction{
		Timestamp: timestamp,
		Inputs: []tx.TxIn{{
			PreviousTxHash: types.Hash{},
			OutputIndex:    tx.CoinbaseOutputIndex,
			ScriptSig:      heightTag,
		}},
		Outputs: []tx.TxOut{{
			Value:        reward,
			ScriptPubKey: script.BuildP2PKHScriptPubKey(payout),
		}},
	}
}

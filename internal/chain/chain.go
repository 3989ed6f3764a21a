// Package chain implements the blockchain state machine.
package chain

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/utxo"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Chain is the consensus orchestrator (§4.14): it is the single
// serialization point for block application, holding the chain's tip
// state, block store, UTXO set, and mempool under one mutex so that a
// block's effect on all three is atomic to every other reader.
type Chain struct {
	mu sync.Mutex

	blocks  *BlockStore
	utxos   utxo.Set
	mempool *mempool.Pool
	rules   *consensus.BlockRules
	pow     *consensus.PoW

	genesisHash types.Hash
	state       State
}

// New constructs a Chain over existing storage, recovering tip state and
// resuming any reorg that was interrupted by a crash.
func New(blocks *BlockStore, utxos utxo.Set, mp *mempool.Pool, rules *consensus.BlockRules, pow *consensus.PoW) (*Chain, error) {
	c := &Chain{
		blocks:  blocks,
		utxos:   utxos,
		mempool: mp,
		rules:   rules,
		pow:     pow,
	}

	tipHash, height, supply, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recovering tip: %w", err)
	}
	c.state = State{Height: height, TipHash: tipHash, Supply: supply}

	if gen, err := blocks.GetBlockByHeight(0); err == nil {
		c.genesisHash = gen.Hash()
	}

	if forkHeight, pending := blocks.GetReorgCheckpoint(); pending {
		if err := c.resumeReorg(forkHeight); err != nil {
			return nil, fmt.Errorf("resuming interrupted reorg: %w", err)
		}
	}

	return c, nil
}

// InitFromGenesis computes and applies the genesis block, which must not
// already exist.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsGenesis() {
		return fmt.Errorf("chain already initialized at height %d", c.state.Height)
	}

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("creating genesis block: %w", err)
	}
	return c.applyGenesis(blk)
}

// State returns a snapshot of the current tip state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Height returns the current tip height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// TipHash returns the current tip block hash.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipHash
}

// Supply returns the current circulating supply.
func (c *Chain) Supply() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Supply
}

// GetBlock retrieves a block by hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a block by height on the canonical chain.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	return c.blocks.GetBlockByHeight(height)
}

// GetTransaction locates a transaction by hash and returns it along with
// the block that contains it.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, *block.Block, error) {
	_, blockHash, err := c.blocks.GetTxLocation(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("locating transaction: %w", err)
	}
	blk, err := c.blocks.GetBlock(blockHash)
	if err != nil {
		return nil, nil, fmt.Errorf("loading block: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return t, blk, nil
		}
	}
	return nil, nil, fmt.Errorf("transaction %s indexed but not found in block %s", hash, blockHash)
}

// utxoProviderAdapter bridges utxo.Set's error-returning Get to the
// three-return-value shape pkg/tx.UTXOProvider expects.
type utxoProviderAdapter struct{ utxos utxo.Set }

func (a utxoProviderAdapter) GetUTXO(outpoint types.Outpoint) (value uint64, scriptPubKey []byte, ok bool) {
	u, err := a.utxos.Get(outpoint)
	if err != nil {
		return 0, nil, false
	}
	return u.Output.Value, u.Output.ScriptPubKey, true
}

func (c *Chain) utxoProvider() tx.UTXOProvider {
	return utxoProviderAdapter{utxos: c.utxos}
}

// applyBlockToUTXOSet computes a block's UTXO effects (spend every
// non-coinbase input, create every output) and applies them to utxos.
// It is the pure state-transition at the core of applyBlock, factored
// out so the same transition can be replayed against a throwaway set
// during candidate-chain validation (reorg.go) without touching the
// chain's real UTXO set or mempool.
func applyBlockToUTXOSet(utxos utxo.Set, blk *block.Block) error {
	var adds []*utxo.UTXO
	var spent []types.Outpoint

	for i, t := range blk.Transactions {
		txHash := t.Hash()
		if i > 0 {
			for _, in := range t.Inputs {
				spent = append(spent, types.Outpoint{TxID: in.PreviousTxHash, Index: in.OutputIndex})
			}
		}
		for idx, out := range t.Outputs {
			adds = append(adds, &utxo.UTXO{
				Outpoint: types.Outpoint{TxID: txHash, Index: uint32(idx)},
				Output:   out,
			})
		}
	}

	return utxos.ApplyBatch(adds, spent)
}

// applyBlock applies a block's transactions to the UTXO set and removes
// them from the mempool. This is the "apply to state" operation from
// §4.14: for each non-coinbase transaction, spend its inputs and create
// its outputs; for the coinbase, only create outputs.
func (c *Chain) applyBlock(blk *block.Block) error {
	if err := applyBlockToUTXOSet(c.utxos, blk); err != nil {
		return fmt.Errorf("apply utxo batch: %w", err)
	}
	if c.mempool != nil {
		c.mempool.RemoveMined(blk.Transactions)
	}
	return nil
}

// applyGenesis validates and applies the genesis block. Caller holds c.mu.
func (c *Chain) applyGenesis(blk *block.Block) error {
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("genesis static validation: %w", err)
	}
	if err := c.rules.Validate(blk, 0, c.utxoProvider()); err != nil {
		return fmt.Errorf("genesis rules validation: %w", err)
	}
	if err := c.applyBlock(blk); err != nil {
		return err
	}
	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("persisting genesis block: %w", err)
	}

	supply, err := c.utxos.TotalSupply()
	if err != nil {
		return fmt.Errorf("computing supply: %w", err)
	}

	hash := blk.Hash()
	c.genesisHash = hash
	c.state = State{Height: 0, TipHash: hash, Supply: supply, TipTimestamp: blk.Header.Timestamp}
	return c.blocks.SetTip(hash, 0, supply)
}

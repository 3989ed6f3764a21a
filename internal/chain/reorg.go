package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/utxo"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrGenesisReorg is returned if a candidate branch would require
// replacing the genesis block, which can never be a legitimate fork.
var ErrGenesisReorg = errs.New(errs.Chain, "reorg would replace genesis block")

// ErrPrevNotFound means a candidate branch's ancestry walk hit a
// previous-hash link with no matching block in the store at all
// (distinct from ErrOrphan, which is about the block just received;
// this is about a gap discovered while assembling its ancestry).
var ErrPrevNotFound = errs.New(errs.Chain, "missing ancestor block while assembling candidate chain")

// MaxReorgDepth bounds how far back a fork point can be assembled, as a
// safety limit against pathological backward walks.
const MaxReorgDepth = 1000

// reorg implements chain reorganization (§4.15) for a candidate block
// known to extend a branch longer than the local tip. Caller holds c.mu.
func (c *Chain) reorg(candidateTip *block.Block) error {
	forkHeight, candidateChain, err := c.validateBranch(candidateTip)
	if err != nil {
		return fmt.Errorf("validating candidate chain: %w", err)
	}

	orphanedTxs := c.collectOrphanedTxs(forkHeight)

	for _, blk := range candidateChain {
		if err := c.blocks.PutBlock(blk); err != nil {
			return fmt.Errorf("committing candidate block %s: %w", blk.Hash(), err)
		}
	}
	newHeight := uint64(candidateTip.Header.Index)

	if err := c.blocks.PutReorgCheckpoint(forkHeight); err != nil {
		return fmt.Errorf("writing reorg checkpoint: %w", err)
	}

	if err := c.rebuildUTXOSet(newHeight); err != nil {
		return fmt.Errorf("rebuilding utxo set: %w", err)
	}

	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("clearing reorg checkpoint: %w", err)
	}

	c.restoreMempool(orphanedTxs)
	return nil
}

// buildCandidateChain walks backward from the candidate tip via
// previous-hash links until it reaches a block already on the canonical
// chain at the matching height, which is the fork point. The returned
// chain is ordered oldest-to-newest, ready to be committed in order.
// This reaches the same fork point §4.15 describes via a forward scan
// from height 0, since the candidate's ancestry above the fork point is
// by definition absent from the canonical height index.
func (c *Chain) buildCandidateChain(tip *block.Block) (forkHeight uint64, chain []*block.Block, err error) {
	chain = []*block.Block{tip}
	cur := tip

	for depth := 0; ; depth++ {
		if depth > MaxReorgDepth {
			return 0, nil, fmt.Errorf("candidate branch exceeds max reorg depth %d", MaxReorgDepth)
		}
		if cur.Header.Index == 0 {
			return 0, nil, ErrGenesisReorg
		}

		parentHash := cur.Header.PreviousHash
		parentHeight := uint64(cur.Header.Index) - 1

		if canonical, cErr := c.blocks.GetBlockByHeight(parentHeight); cErr == nil && canonical.Hash() == parentHash {
			return parentHeight, chain, nil
		}

		parent, pErr := c.blocks.GetBlock(parentHash)
		if pErr != nil {
			return 0, nil, fmt.Errorf("ancestor %s at height %d: %w", parentHash, parentHeight, ErrPrevNotFound)
		}
		chain = append([]*block.Block{parent}, chain...)
		cur = parent
	}
}

// replaySimulated replays the canonical chain from genesis through
// toHeight into utxos without touching c.utxos or the mempool. toHeight
// is always at or below the local canonical tip, so every block in this
// range already passed rules.Validate when it first extended the tip;
// this is a trusted replay, not a re-validation.
func (c *Chain) replaySimulated(utxos utxo.Set, toHeight uint64) error {
	for h := uint64(0); h <= toHeight; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("loading block at height %d: %w", h, err)
		}
		if err := applyBlockToUTXOSet(utxos, blk); err != nil {
			return fmt.Errorf("replaying block at height %d: %w", h, err)
		}
	}
	return nil
}

// validateBranch assembles candidateTip's ancestry back to the fork
// point (buildCandidateChain) and then runs consensus.BlockRules.Validate
// on every candidate block, oldest first, against a throwaway UTXO set
// seeded by replaying the canonical chain up to the fork point. Nothing
// here touches c.utxos, c.blocks, or c.mempool, so a validation failure
// leaves chain state completely unchanged: this must run, and succeed,
// before a caller commits any candidate block via PutBlock. This closes
// the gap where a weak or strong fork block was previously adopted (or
// stored ready to be built on) after only blk.Validate()'s static checks,
// mirroring how the ground-truth implementation's consensus orchestrator
// runs full rules validation on every incoming block before classifying
// it as a fork at all.
func (c *Chain) validateBranch(candidateTip *block.Block) (forkHeight uint64, chain []*block.Block, err error) {
	forkHeight, chain, err = c.buildCandidateChain(candidateTip)
	if err != nil {
		return 0, nil, err
	}

	sim := utxo.NewStore(storage.NewMemory())
	if err := c.replaySimulated(sim, forkHeight); err != nil {
		return 0, nil, fmt.Errorf("seeding validation state at fork height %d: %w", forkHeight, err)
	}

	provider := utxoProviderAdapter{utxos: sim}
	for i, blk := range chain {
		height := forkHeight + 1 + uint64(i)
		if err := c.rules.Validate(blk, height, provider); err != nil {
			return 0, nil, fmt.Errorf("rules validation for candidate block %s at height %d: %w", blk.Hash(), height, err)
		}
		if err := applyBlockToUTXOSet(sim, blk); err != nil {
			return 0, nil, fmt.Errorf("applying candidate block %s at height %d to validation state: %w", blk.Hash(), height, err)
		}
	}
	return forkHeight, chain, nil
}

// collectOrphanedTxs gathers the non-coinbase transactions of every local
// block above forkHeight, best-effort: a block that can't be read is
// skipped rather than failing the whole collection.
func (c *Chain) collectOrphanedTxs(forkHeight uint64) []*tx.Transaction {
	var orphaned []*tx.Transaction
	for h := forkHeight + 1; h <= c.state.Height; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			continue
		}
		for i, t := range blk.Transactions {
			if i == 0 {
				continue // coinbase never rejoins the mempool
			}
			orphaned = append(orphaned, t)
		}
	}
	return orphaned
}

// restoreMempool re-admits orphaned transactions, counting how many were
// accepted. No re-validation beyond what Add already performs is
// required; lazily-invalid entries are rejected later at block-selection
// time.
func (c *Chain) restoreMempool(txs []*tx.Transaction) int {
	if c.mempool == nil {
		return 0
	}
	restored := 0
	for _, t := range txs {
		if ok, _ := c.mempool.Add(t); ok {
			restored++
		}
	}
	return restored
}

// rebuildUTXOSet implements §4.15 step 4: clear the UTXO set, then replay
// every block of the canonical chain from genesis through toHeight. It is
// also the only reorg path there is: the teacher's undo-log fast path and
// its full-rebuild fallback collapse into this single algorithm, since the
// spec describes no undo-log at all. Every block replayed here was already
// rules-validated by validateBranch before reorg committed it via PutBlock
// (or, for blocks at or below the prior fork height, when it first
// extended the tip), so this replay does not re-run rules.Validate.
func (c *Chain) rebuildUTXOSet(toHeight uint64) error {
	if err := c.utxos.Clear(); err != nil {
		return fmt.Errorf("clearing utxo set: %w", err)
	}

	var tipHash types.Hash
	var tipTimestamp int64
	for h := uint64(0); h <= toHeight; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("loading block at height %d: %w", h, err)
		}
		if err := c.applyBlock(blk); err != nil {
			return fmt.Errorf("replaying block at height %d: %w", h, err)
		}
		tipHash = blk.Hash()
		tipTimestamp = blk.Header.Timestamp
	}

	supply, err := c.utxos.TotalSupply()
	if err != nil {
		return fmt.Errorf("computing supply: %w", err)
	}

	c.state = State{Height: toHeight, TipHash: tipHash, Supply: supply, TipTimestamp: tipTimestamp}
	return c.blocks.SetTip(tipHash, toHeight, supply)
}

// resumeReorg recovers from a crash that happened between committing a
// new chain (step 3) and finishing the UTXO rebuild (step 4). The new
// chain is already durable, so the actual new tip height is found by
// scanning the height index upward from the recorded fork height, and
// the rebuild is simply re-run in full; it is idempotent.
func (c *Chain) resumeReorg(forkHeight uint64) error {
	height := forkHeight
	for {
		if _, err := c.blocks.GetBlockByHeight(height + 1); err != nil {
			break
		}
		height++
	}
	if err := c.rebuildUTXOSet(height); err != nil {
		return err
	}
	return c.blocks.DeleteReorgCheckpoint()
}

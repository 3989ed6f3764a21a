package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Errors returned by ProcessBlock (§4.14). Each is a taxonomy-driven
// *errs.Error so callers (p2p gossip, in particular) can switch on kind
// at the boundary instead of matching message strings.
var (
	// ErrBlockKnown means the block is already stored; callers should
	// treat this as a no-op, not a failure.
	ErrBlockKnown = errs.New(errs.Chain, "block already known")
	// ErrOrphan means the block's parent is not in the store. The caller
	// must request a sync from the peer that sent it; the block itself
	// is not buffered.
	ErrOrphan = errs.New(errs.Chain, "orphan block: parent not found, sync required")
	// ErrWeakFork means the block was accepted and stored by hash so a
	// later continuation can still find it, but it does not overtake
	// the local tip: the tip and UTXO set are untouched and it must not
	// be rebroadcast.
	ErrWeakFork = errs.New(errs.Chain, "weak fork: block stored but not adopted")
	// ErrBadDifficulty means the block's bits field does not match the
	// difficulty the retarget schedule requires at its height.
	ErrBadDifficulty = errs.New(errs.Rules, "block bits do not match required difficulty")
)

// ProcessBlock runs a received block through the consensus orchestrator
// state machine (§4.14): Genesis, Extension, Orphan, Weak fork, Strong
// fork, or Invalid.
func (c *Chain) ProcessBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := blk.Hash()
	if known, err := c.blocks.HasBlock(hash); err == nil && known {
		return ErrBlockKnown
	}

	if err := blk.Validate(); err != nil {
		return fmt.Errorf("static validation: %w", err)
	}

	switch {
	case c.state.IsGenesis():
		if blk.Header.Index != 0 {
			return ErrOrphan
		}
		return c.applyGenesis(blk)

	case blk.Header.PreviousHash == c.state.TipHash && uint64(blk.Header.Index) == c.state.Height+1:
		return c.extendTip(blk)

	default:
		parentExists, err := c.blocks.HasBlock(blk.Header.PreviousHash)
		if err != nil {
			return fmt.Errorf("parent lookup: %w", err)
		}
		if !parentExists {
			return ErrOrphan
		}
		if uint64(blk.Header.Index) <= c.state.Height {
			// Weak fork: does not overtake the local tip. Its whole
			// branch back to the fork point still has to pass
			// consensus.BlockRules.Validate — against the UTXO state
			// that branch would produce, not the canonical one — before
			// it is stored, or a later block could extend it into a
			// strong fork built on an invalid chain. Validation touches
			// only a throwaway UTXO set; the real tip and UTXO set stay
			// untouched either way, and nothing is rebroadcast.
			if _, _, err := c.validateBranch(blk); err != nil {
				return fmt.Errorf("weak fork validation: %w", err)
			}
			if err := c.blocks.StoreBlock(blk); err != nil {
				return fmt.Errorf("storing weak fork block: %w", err)
			}
			return ErrWeakFork
		}
		// Strong fork: longer than the local tip with a known parent.
		return c.reorg(blk)
	}
}

// extendTip validates and applies a block that extends the current tip by
// exactly one height. Caller holds c.mu.
func (c *Chain) extendTip(blk *block.Block) error {
	height := c.state.Height + 1

	expected, err := c.expectedBits(height)
	if err != nil {
		return fmt.Errorf("computing expected difficulty: %w", err)
	}
	if blk.Header.Bits != expected {
		return ErrBadDifficulty
	}

	if err := c.rules.Validate(blk, height, c.utxoProvider()); err != nil {
		return fmt.Errorf("rules validation: %w", err)
	}
	if err := c.applyBlock(blk); err != nil {
		return err
	}
	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("persisting block: %w", err)
	}

	supply, err := c.utxos.TotalSupply()
	if err != nil {
		return fmt.Errorf("computing supply: %w", err)
	}

	hash := blk.Hash()
	c.state = State{Height: height, TipHash: hash, Supply: supply, TipTimestamp: blk.Header.Timestamp}
	return c.blocks.SetTip(hash, height, supply)
}

// expectedBits returns the bits value a block at height must carry: the
// retargeted value on a retarget boundary, otherwise the tip's bits
// carried forward unchanged (§4.8).
func (c *Chain) expectedBits(height uint64) (types.CompactBits, error) {
	tip, err := c.blocks.GetBlock(c.state.TipHash)
	if err != nil {
		return 0, fmt.Errorf("loading tip: %w", err)
	}
	if !c.pow.ShouldRetarget(height) {
		return tip.Header.Bits, nil
	}

	interval := uint64(c.pow.RetargetInterval)
	if interval > height {
		return tip.Header.Bits, nil
	}
	first, err := c.blocks.GetBlockByHeight(height - interval)
	if err != nil {
		return 0, fmt.Errorf("loading retarget window start: %w", err)
	}
	return c.pow.NextBits(first.Header, tip.Header), nil
}

// Package consensus implements proof-of-work mining, difficulty retarget,
// subsidy halving, and the UTXO-dependent block validation rules.
package consensus

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrNonceSpaceExhausted is returned when a single-threaded or per-goroutine
// nonce search wraps around uint32 without finding a solution.
var ErrNonceSpaceExhausted = errs.New(errs.Rules, "nonce space exhausted")

// PoW mines and verifies block headers against a compact-bits target and
// computes the retarget schedule.
type PoW struct {
	RetargetInterval int // N: blocks between difficulty retargets (0 disables retargeting)
	TargetBlockTime  int // target seconds between blocks

	// Threads controls the number of parallel mining goroutines used by
	// Seal. 0 or 1 means single-threaded.
	Threads int
}

// NewPoW creates a PoW engine with the given retarget schedule.
func NewPoW(retargetInterval, targetBlockTime int) *PoW {
	return &PoW{RetargetInterval: retargetInterval, TargetBlockTime: targetBlockTime}
}

// ShouldRetarget reports whether height is a retarget boundary.
func (p *PoW) ShouldRetarget(height uint64) bool {
	return p.RetargetInterval > 0 && height > 0 && height%uint64(p.RetargetInterval) == 0
}

// NextBits computes the bits field for the epoch opened after first/last,
// per the retarget formula: new_target = current_target * actual/target,
// clamped to [timespan/4, timespan*4] and capped at MAX_TARGET. Outside a
// retarget boundary callers should carry last.Bits forward unchanged.
func (p *PoW) NextBits(first, last *block.Header) types.CompactBits {
	targetTimespan := int64(p.RetargetInterval) * int64(p.TargetBlockTime)
	if targetTimespan <= 0 {
		return last.Bits
	}

	actualTimespan := last.Timestamp - first.Timestamp
	minSpan := targetTimespan / 4
	maxSpan := targetTimespan * 4
	switch {
	case actualTimespan < minSpan:
		actualTimespan = minSpan
	case actualTimespan > maxSpan:
		actualTimespan = maxSpan
	}

	newTarget := new(big.Int).Mul(last.Bits.Target(), big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))

	if newTarget.Cmp(types.MaxTargetBits.Target()) > 0 {
		return types.MaxTargetBits
	}
	return types.TargetToBits(newTarget)
}

// VerifyHeader checks that header's hash meets its own declared target.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if !header.MeetsTarget() {
		return fmt.Errorf("hash %s does not meet target for bits %s", header.Hash(), header.Bits)
	}
	return nil
}

// Seal mines blk by searching for a nonce whose header hash meets the
// target already encoded in blk.Header.Bits, mutating Header.Nonce in
// place. It returns ctx.Err() if cancelled before a solution is found.
func (p *PoW) Seal(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if p.Threads <= 1 {
		return sealSingle(ctx, blk.Header)
	}
	return sealParallel(ctx, blk.Header, p.Threads)
}

func sealSingle(ctx context.Context, h *block.Header) error {
	for nonce := uint32(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		h.Nonce = nonce
		if h.MeetsTarget() {
			return nil
		}
		if nonce == ^uint32(0) {
			return ErrNonceSpaceExhausted
		}
	}
}

// sealParallel searches the nonce space with multiple goroutines, each
// scanning a strided partition (goroutine i starts at i, step=threads).
func sealParallel(ctx context.Context, h *block.Header, threads int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan uint32, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := uint32(i)
		stride := uint32(threads)
		go func() {
			defer wg.Done()
			local := *h
			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}
				local.Nonce = nonce
				if local.MeetsTarget() {
					select {
					case found <- nonce:
					default:
					}
					cancel()
					return
				}
				if nonce > ^uint32(0)-stride {
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case nonce, ok := <-found:
		if !ok {
			return ErrNonceSpaceExhausted
		}
		h.Nonce = nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

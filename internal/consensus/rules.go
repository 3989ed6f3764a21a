package consensus

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Block-level validation errors (§4.12, §4.13). Per-transaction errors are
// returned as-is from pkg/tx.
var (
	ErrNotCoinbase           = errs.New(errs.Rules, "first transaction is not coinbase")
	ErrUnexpectedCoinbase    = errs.New(errs.Rules, "non-first transaction is marked coinbase")
	ErrIntraBlockDoubleSpend = errs.New(errs.Rules, "input spent twice within block")
	ErrCoinbaseOverpays      = errs.New(errs.Rules, "coinbase output exceeds subsidy plus fees")
)

// BlockRules validates a candidate block's transactions against a read-only
// UTXO view, on top of the block's own UTXO-independent checks
// (pkg/block.Block.Validate, §4.10).
type BlockRules struct {
	InitialSubsidy  uint64
	HalvingInterval uint64
}

// Validate runs §4.11-§4.13 against blk at the given height using utxos for
// input resolution. Callers must run blk.Validate() (§4.10) first; Validate
// here covers only the rules that need UTXO access.
func (r *BlockRules) Validate(blk *block.Block, height uint64, utxos tx.UTXOProvider) error {
	if len(blk.Transactions) == 0 {
		return block.ErrNoTransactions
	}

	coinbase := blk.Transactions[0]
	if !coinbase.IsCoinbase() {
		return ErrNotCoinbase
	}
	if err := coinbase.Validate(); err != nil {
		return fmt.Errorf("coinbase: %w", err)
	}

	spentInBlock := make(map[types.Outpoint]struct{}, len(blk.Transactions))
	var totalFees uint64

	for _, t := range blk.Transactions[1:] {
		if t.IsCoinbase() {
			return ErrUnexpectedCoinbase
		}
		if _, err := t.ValidateWithUTXOs(utxos); err != nil {
			return fmt.Errorf("tx %s: %w", t.Hash(), err)
		}
		for _, in := range t.Inputs {
			op := types.Outpoint{TxID: in.PreviousTxHash, Index: in.OutputIndex}
			if _, dup := spentInBlock[op]; dup {
				return fmt.Errorf("%w: %s", ErrIntraBlockDoubleSpend, op)
			}
			spentInBlock[op] = struct{}{}
		}
		totalFees += t.Fee
	}

	subsidy := Subsidy(height, r.InitialSubsidy, r.HalvingInterval)
	maxReward := subsidy + totalFees
	if coinbase.Outputs[0].Value > maxReward {
		return fmt.Errorf("%w: claims %d, max %d", ErrCoinbaseOverpays, coinbase.Outputs[0].Value, maxReward)
	}

	return nil
}

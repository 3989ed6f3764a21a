package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Structural validation errors. These are UTXO-independent sanity
// checks; the substantive rules of §4.11/§4.12 live in
// ValidateWithUTXOs and the consensus package, which require a UTXO view.
var (
	ErrNoOutputs          = errs.New(errs.Format, "transaction has no outputs")
	ErrDuplicateInput     = errs.New(errs.Format, "duplicate input within transaction")
	ErrOutputOverflow     = errs.New(errs.Rules, "output values overflow")
	ErrEmptyScriptPubKey  = errs.New(errs.Format, "output script_pubkey is empty")
	ErrCoinbaseNonZeroFee = errs.New(errs.Rules, "coinbase transaction must have fee == 0")
	ErrCoinbaseOutputs    = errs.New(errs.Rules, "coinbase transaction must have exactly one output")
	ErrTooManyInputs      = errs.New(errs.Format, "too many inputs")
	ErrTooManyOutputs     = errs.New(errs.Format, "too many outputs")
	ErrScriptDataTooLarge = errs.New(errs.Format, "script data too large")
	ErrBadTxHash          = errs.New(errs.Format, "tx_hash does not match canonical preimage")
)

// Validate checks transaction structure independent of the UTXO set.
func (t *Transaction) Validate() error {
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		op := types.Outpoint{TxID: in.PreviousTxHash, Index: in.OutputIndex}
		if seen[op] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[op] = true
	}

	var totalOutput uint64
	for i, out := range t.Outputs {
		if len(out.ScriptPubKey) == 0 {
			return fmt.Errorf("output %d: %w", i, ErrEmptyScriptPubKey)
		}
		if len(out.ScriptPubKey) > config.MaxScriptData {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrScriptDataTooLarge, len(out.ScriptPubKey), config.MaxScriptData)
		}
		if totalOutput > ^uint64(0)-out.Value {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Value
	}

	if t.IsCoinbase() {
		if t.Fee != 0 {
			return ErrCoinbaseNonZeroFee
		}
		if len(t.Outputs) != 1 {
			return ErrCoinbaseOutputs
		}
	}

	return nil
}

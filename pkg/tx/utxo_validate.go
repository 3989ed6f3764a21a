package tx

import (
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// UTXO-aware validation errors (§4.11).
var (
	ErrInputNotFound     = errs.New(errs.Chain, "input UTXO not found")
	ErrInputOverflow     = errs.New(errs.Rules, "input values overflow")
	ErrScriptAuthFailed  = errs.New(errs.Script, "script authorization failed")
	ErrInsufficientFunds = errs.New(errs.Rules, "outputs plus fee exceed inputs")
	ErrZeroSpend         = errs.New(errs.Rules, "outputs plus fee must be greater than zero")
)

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (value uint64, scriptPubKey []byte, ok bool)
}

// ValidateWithUTXOs performs the non-coinbase transaction rules of §4.11:
// UTXO resolution, script authorization via the injected script engine,
// and the monetary balance check. Returns the computed sum of inputs.
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider) (sumIn uint64, err error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	digest := t.SignaturePreimageHash()

	for i, in := range t.Inputs {
		outpoint := types.Outpoint{TxID: in.PreviousTxHash, Index: in.OutputIndex}
		value, scriptPubKey, ok := provider.GetUTXO(outpoint)
		if !ok {
			return 0, fmt.Errorf("input %d (%s): %w", i, outpoint, ErrInputNotFound)
		}

		verifier := func(sig, pubKey []byte) bool {
			return crypto.VerifySignature(digest[:], sig, pubKey)
		}
		if !script.Execute(in.ScriptSig, scriptPubKey, verifier) {
			return 0, fmt.Errorf("input %d (%s): %w", i, outpoint, ErrScriptAuthFailed)
		}

		if sumIn > math.MaxUint64-value {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		sumIn += value
	}

	sumOut, err := t.TotalOutputValue()
	if err != nil {
		return 0, err
	}

	if sumOut > math.MaxUint64-t.Fee {
		return 0, ErrOutputOverflow
	}
	spend := sumOut + t.Fee
	if spend == 0 {
		return 0, ErrZeroSpend
	}
	if spend > sumIn {
		return 0, fmt.Errorf("%w: sum_out+fee=%d sum_in=%d", ErrInsufficientFunds, spend, sumIn)
	}

	return sumIn, nil
}

package tx

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestTransaction_Validate_Valid(t *testing.T) {
	if err := coinbaseTx().Validate(); err != nil {
		t.Errorf("valid coinbase should pass: %v", err)
	}
}

func TestTransaction_Validate_NoOutputs(t *testing.T) {
	tx := &Transaction{Inputs: []TxIn{{PreviousTxHash: types.Hash{0x01}}}}
	if !errors.Is(tx.Validate(), ErrNoOutputs) {
		t.Error("expected ErrNoOutputs")
	}
}

func TestTransaction_Validate_DuplicateInput(t *testing.T) {
	prev := types.Hash{0x01}
	tx := &Transaction{
		Inputs: []TxIn{
			{PreviousTxHash: prev, OutputIndex: 0},
			{PreviousTxHash: prev, OutputIndex: 0},
		},
		Outputs: []TxOut{{Value: 1, ScriptPubKey: []byte{0x01}}},
	}
	if !errors.Is(tx.Validate(), ErrDuplicateInput) {
		t.Error("expected ErrDuplicateInput")
	}
}

func TestTransaction_Validate_EmptyScriptPubKey(t *testing.T) {
	tx := &Transaction{
		Inputs:  []TxIn{{PreviousTxHash: types.Hash{0x01}}},
		Outputs: []TxOut{{Value: 1, ScriptPubKey: nil}},
	}
	if !errors.Is(tx.Validate(), ErrEmptyScriptPubKey) {
		t.Error("expected ErrEmptyScriptPubKey")
	}
}

func TestTransaction_Validate_CoinbaseNonZeroFee(t *testing.T) {
	tx := coinbaseTx()
	tx.Fee = 1
	if !errors.Is(tx.Validate(), ErrCoinbaseNonZeroFee) {
		t.Error("expected ErrCoinbaseNonZeroFee")
	}
}

func TestTransaction_Validate_CoinbaseMultipleOutputs(t *testing.T) {
	tx := coinbaseTx()
	tx.Outputs = append(tx.Outputs, TxOut{Value: 1, ScriptPubKey: []byte{0x01}})
	if !errors.Is(tx.Validate(), ErrCoinbaseOutputs) {
		t.Error("expected ErrCoinbaseOutputs")
	}
}

func TestTransaction_Validate_NonCoinbaseAllowsAnyOutputCount(t *testing.T) {
	tx := &Transaction{
		Inputs: []TxIn{{PreviousTxHash: types.Hash{0x01}}},
		Outputs: []TxOut{
			{Value: 1, ScriptPubKey: []byte{0x01}},
			{Value: 2, ScriptPubKey: []byte{0x01}},
		},
	}
	if err := tx.Validate(); err != nil {
		t.Errorf("non-coinbase with multiple outputs should be valid: %v", err)
	}
}

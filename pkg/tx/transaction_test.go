package tx

import (
	"encoding/json"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func coinbaseTx() *Transaction {
	return &Transaction{
		Timestamp: 1700000000,
		Inputs: []TxIn{{
			PreviousTxHash: types.Hash{},
			OutputIndex:    CoinbaseOutputIndex,
			ScriptSig:      []byte{0x04, 0x01, 0x00, 0x00, 0x00}, // height=1 LE
		}},
		Outputs: []TxOut{{Value: 5_000_000_000, ScriptPubKey: make([]byte, 25)}},
	}
}

func TestTransaction_IsCoinbase(t *testing.T) {
	if !coinbaseTx().IsCoinbase() {
		t.Error("coinbaseTx() should be coinbase")
	}

	regular := &Transaction{
		Inputs:  []TxIn{{PreviousTxHash: types.Hash{0x01}, OutputIndex: 0}},
		Outputs: []TxOut{{Value: 1, ScriptPubKey: []byte{0x01}}},
	}
	if regular.IsCoinbase() {
		t.Error("transaction with real previous_tx_hash should not be coinbase")
	}

	wrongIndex := &Transaction{
		Inputs: []TxIn{{PreviousTxHash: types.Hash{}, OutputIndex: 0}},
	}
	if wrongIndex.IsCoinbase() {
		t.Error("null hash with index 0 should not be coinbase")
	}
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	tx := coinbaseTx()
	h1 := tx.Hash()
	h2 := tx.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithFields(t *testing.T) {
	tx1 := coinbaseTx()
	tx2 := coinbaseTx()
	tx2.Outputs[0].Value++

	if tx1.Hash() == tx2.Hash() {
		t.Error("different output values should produce different hashes")
	}
}

func TestTransaction_SignaturePreimageHash_IgnoresScriptSig(t *testing.T) {
	tx := &Transaction{
		Timestamp: 100,
		Inputs: []TxIn{
			{PreviousTxHash: types.Hash{0x01}, OutputIndex: 0, ScriptSig: []byte{0x01, 0x02}},
		},
		Outputs: []TxOut{{Value: 10, ScriptPubKey: []byte{0xaa}}},
	}
	h1 := tx.SignaturePreimageHash()

	tx.Inputs[0].ScriptSig = []byte{0xff, 0xff, 0xff}
	h2 := tx.SignaturePreimageHash()

	if h1 != h2 {
		t.Error("SignaturePreimageHash should not depend on script_sig contents")
	}
}

func TestTransaction_SignaturePreimageHash_DiffersFromHash(t *testing.T) {
	tx := &Transaction{
		Timestamp: 100,
		Inputs: []TxIn{
			{PreviousTxHash: types.Hash{0x01}, OutputIndex: 0, ScriptSig: []byte{0x01, 0x02, 0x03}},
		},
		Outputs: []TxOut{{Value: 10, ScriptPubKey: []byte{0xaa}}},
	}
	if tx.Hash() == tx.SignaturePreimageHash() {
		t.Error("tx_hash (includes script_sig) should differ from signature preimage hash (excludes it)")
	}
}

func TestTransaction_TotalOutputValue(t *testing.T) {
	tx := &Transaction{
		Outputs: []TxOut{
			{Value: 100, ScriptPubKey: []byte{0x01}},
			{Value: 200, ScriptPubKey: []byte{0x01}},
		},
	}
	total, err := tx.TotalOutputValue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 300 {
		t.Errorf("total = %d, want 300", total)
	}
}

func TestTransaction_JSON_RoundTrip(t *testing.T) {
	tx := coinbaseTx()
	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Hash() != tx.Hash() {
		t.Error("JSON round trip should preserve tx_hash")
	}
}

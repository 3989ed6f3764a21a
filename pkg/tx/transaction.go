// Package tx defines transaction types, canonical serialization, and
// validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// CoinbaseOutputIndex is the output_index that, paired with a null
// previous_tx_hash, marks an input as the coinbase input (§3).
const CoinbaseOutputIndex = types.CoinbaseIndex

// TxIn references an output being spent.
type TxIn struct {
	PreviousTxHash types.Hash `json:"previous_tx_hash"`
	OutputIndex    uint32     `json:"output_index"`
	ScriptSig      []byte     `json:"script_sig"`
}

// txInJSON hex-encodes the script_sig byte field.
type txInJSON struct {
	PreviousTxHash types.Hash `json:"previous_tx_hash"`
	OutputIndex    uint32     `json:"output_index"`
	ScriptSig      string     `json:"script_sig"`
}

// MarshalJSON encodes the input with a hex-encoded script_sig.
func (in TxIn) MarshalJSON() ([]byte, error) {
	return json.Marshal(txInJSON{
		PreviousTxHash: in.PreviousTxHash,
		OutputIndex:    in.OutputIndex,
		ScriptSig:      hex.EncodeToString(in.ScriptSig),
	})
}

// UnmarshalJSON decodes an input with a hex-encoded script_sig.
func (in *TxIn) UnmarshalJSON(data []byte) error {
	var j txInJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PreviousTxHash = j.PreviousTxHash
	in.OutputIndex = j.OutputIndex
	if j.ScriptSig != "" {
		b, err := hex.DecodeString(j.ScriptSig)
		if err != nil {
			return err
		}
		in.ScriptSig = b
	}
	return nil
}

// IsCoinbase reports whether this input is the coinbase marker: a null
// previous_tx_hash with output_index 0xFFFFFFFF.
func (in TxIn) IsCoinbase() bool {
	return types.Outpoint{TxID: in.PreviousTxHash, Index: in.OutputIndex}.IsCoinbase()
}

// TxOut defines a new UTXO.
type TxOut struct {
	Value        uint64 `json:"value"`
	ScriptPubKey []byte `json:"script_pubkey"`
}

// txOutJSON hex-encodes the script_pubkey byte field.
type txOutJSON struct {
	Value        uint64 `json:"value"`
	ScriptPubKey string `json:"script_pubkey"`
}

// MarshalJSON encodes the output with a hex-encoded script_pubkey.
func (out TxOut) MarshalJSON() ([]byte, error) {
	return json.Marshal(txOutJSON{
		Value:        out.Value,
		ScriptPubKey: hex.EncodeToString(out.ScriptPubKey),
	})
}

// UnmarshalJSON decodes an output with a hex-encoded script_pubkey.
func (out *TxOut) UnmarshalJSON(data []byte) error {
	var j txOutJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	out.Value = j.Value
	if j.ScriptPubKey != "" {
		b, err := hex.DecodeString(j.ScriptPubKey)
		if err != nil {
			return err
		}
		out.ScriptPubKey = b
	}
	return nil
}

// Transaction represents a blockchain transaction (§3).
type Transaction struct {
	Timestamp int64   `json:"timestamp"`
	Inputs    []TxIn  `json:"inputs"`
	Outputs   []TxOut `json:"outputs"`
	Fee       uint64  `json:"fee"`
}

// IsCoinbase reports whether the transaction is the single block
// reward transaction: exactly one input, marked coinbase.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].IsCoinbase()
}

// Hash computes tx_hash: double-SHA256 of the canonical preimage (§4.2).
func (t *Transaction) Hash() types.Hash {
	return crypto.DoubleHash(t.preimage(nil))
}

// SigningBytes returns the canonical preimage bytes used to compute
// tx_hash. Exposed for block-size accounting and tests.
func (t *Transaction) SigningBytes() []byte {
	return t.preimage(nil)
}

// SignaturePreimageHash computes the digest an input's signature must
// cover (§4.2 SIGHASH_ALL analogue): the tx-hash of this transaction
// with every script_sig field emptied.
func (t *Transaction) SignaturePreimageHash() types.Hash {
	return crypto.DoubleHash(t.preimage(emptyScriptSigs))
}

// emptyScriptSigs clears every input's script_sig on a copy of inputs.
func emptyScriptSigs(inputs []TxIn) []TxIn {
	out := make([]TxIn, len(inputs))
	for i, in := range inputs {
		out[i] = TxIn{PreviousTxHash: in.PreviousTxHash, OutputIndex: in.OutputIndex}
	}
	return out
}

// preimage builds the canonical serialization (§4.2). If transform is
// non-nil it is applied to the input list before serializing, used to
// build the signature preimage.
func (t *Transaction) preimage(transform func([]TxIn) []TxIn) []byte {
	inputs := t.Inputs
	if transform != nil {
		inputs = transform(inputs)
	}

	buf := make([]byte, 0, 64+64*len(inputs)+64*len(t.Outputs))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Timestamp))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(inputs)))
	for _, in := range inputs {
		buf = append(buf, in.PreviousTxHash[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.OutputIndex)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.ScriptSig)))
		buf = append(buf, in.ScriptSig...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.ScriptPubKey)))
		buf = append(buf, out.ScriptPubKey...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, t.Fee)
	return buf
}

// TotalOutputValue returns the sum of all output values, erroring on overflow.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}

package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder with the given timestamp.
func NewBuilder(timestamp int64) *Builder {
	return &Builder{tx: &Transaction{Timestamp: timestamp}}
}

// AddInput adds an input referencing a previous output. The script_sig
// is left empty until Sign is called.
func (b *Builder) AddInput(prevTxHash types.Hash, outputIndex uint32) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, TxIn{PreviousTxHash: prevTxHash, OutputIndex: outputIndex})
	return b
}

// AddOutput adds an output paying value to the given script_pubkey.
func (b *Builder) AddOutput(value uint64, scriptPubKey []byte) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, TxOut{Value: value, ScriptPubKey: scriptPubKey})
	return b
}

// SetFee sets the declared transaction fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.tx.Fee = fee
	return b
}

// Sign signs every non-coinbase input with the same private key
// (single-key spending), building the standard P2PKH unlock script for
// each (§4.4). The signature covers SignaturePreimageHash, computed
// with every script_sig empty.
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	digest := b.tx.SignaturePreimageHash()
	sig, err := key.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := key.PublicKey()

	scriptSig, err := script.BuildP2PKHScriptSig(sig, pubKey)
	if err != nil {
		return fmt.Errorf("build script_sig: %w", err)
	}

	for i := range b.tx.Inputs {
		if b.tx.Inputs[i].IsCoinbase() {
			continue
		}
		b.tx.Inputs[i].ScriptSig = scriptSig
	}
	return nil
}

// Build returns the constructed transaction. Does NOT validate — call
// tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}

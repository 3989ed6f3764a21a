// Package utxo manages the unspent transaction output set.
package utxo

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// UTXO is an unspent output together with the outpoint that produced it.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Output   tx.TxOut       `json:"output"`
}

// Set is the interface for UTXO storage (§4.5). Outputs are indexed
// secondarily by their raw script_pubkey bytes, not by a derived address:
// callers look up "balance of address A" by building A's standard P2PKH
// script_pubkey and searching for outputs matching it exactly.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Add(u *UTXO) error
	Remove(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
	GetByScriptPubKey(scriptPubKey []byte) ([]*UTXO, error)
	ApplyBatch(adds []*UTXO, spent []types.Outpoint) error
	TotalSupply() (uint64, error)
	Clear() error
	ForEach(fn func(*UTXO) error) error
}

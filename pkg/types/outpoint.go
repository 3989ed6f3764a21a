package types

import "fmt"

// CoinbaseIndex is the output_index value that, combined with a null
// previous_tx_hash, marks a transaction input as the coinbase input (§3).
const CoinbaseIndex = 0xFFFFFFFF

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsCoinbase returns true if this outpoint is the coinbase marker:
// a null previous_tx_hash with output_index == 0xFFFFFFFF.
func (o Outpoint) IsCoinbase() bool {
	return o.TxID.IsZero() && o.Index == CoinbaseIndex
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

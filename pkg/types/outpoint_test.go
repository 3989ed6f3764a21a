package types

import (
	"strings"
	"testing"
)

func TestOutpoint_IsCoinbase(t *testing.T) {
	coinbase := Outpoint{TxID: Hash{}, Index: CoinbaseIndex}
	if !coinbase.IsCoinbase() {
		t.Error("outpoint with null txid and index 0xFFFFFFFF should be coinbase")
	}

	nonZeroTxID := Outpoint{TxID: Hash{0x01}, Index: CoinbaseIndex}
	if nonZeroTxID.IsCoinbase() {
		t.Error("outpoint with non-zero txid should not be coinbase even with index 0xFFFFFFFF")
	}

	zeroIndex := Outpoint{TxID: Hash{}, Index: 0}
	if zeroIndex.IsCoinbase() {
		t.Error("outpoint with null txid and index 0 should not be coinbase")
	}

	var zero Outpoint
	if zero.IsCoinbase() {
		t.Error("zero-value outpoint (index 0) should not be coinbase")
	}
}

func TestOutpoint_String(t *testing.T) {
	o := Outpoint{
		TxID:  Hash{0xab},
		Index: 3,
	}
	s := o.String()

	if !strings.HasPrefix(s, "ab") {
		t.Errorf("String() should start with txid hex, got %s", s)
	}
	if !strings.HasSuffix(s, ":3") {
		t.Errorf("String() should end with ':3', got %s", s)
	}

	var zero Outpoint
	zs := zero.String()
	if !strings.HasSuffix(zs, ":0") {
		t.Errorf("zero Outpoint String() should end with ':0', got %s", zs)
	}
}

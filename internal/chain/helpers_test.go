package chain

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// mineNextBlock assembles and mines a block extending ch's current tip,
// including extraTxs alongside a coinbase paying the subsidy plus their
// fees to key.
func mineNextBlock(t *testing.T, ch *Chain, key *crypto.PrivateKey, extraTxs []*tx.Transaction, timestamp int64) *block.Block {
	t.Helper()
	tip, err := ch.GetBlock(ch.TipHash())
	if err != nil {
		t.Fatalf("GetBlock(tip): %v", err)
	}
	return mineBlockOn(t, tip, key, extraTxs, timestamp)
}

// mineBlockOn assembles and mines a block extending an arbitrary parent
// block, letting tests build competing branches.
func mineBlockOn(t *testing.T, parent *block.Block, key *crypto.PrivateKey, extraTxs []*tx.Transaction, timestamp int64) *block.Block {
	t.Helper()
	height := uint64(parent.Header.Index) + 1

	var fees uint64
	for _, tr := range extraTxs {
		fees += tr.Fee
	}
	reward := consensus.Subsidy(height, testSubsidy, 210000) + fees

	pubKeyHash := crypto.HASH160(key.PublicKey())
	lockScript := script.BuildP2PKHScriptPubKey(pubKeyHash)

	heightTag := make([]byte, 4)
	binary.LittleEndian.PutUint32(heightTag, uint32(height))

	coinbase := &tx.Transaction{
		Timestamp: timestamp,
		Inputs: []tx.TxIn{{
			OutputIndex: tx.CoinbaseOutputIndex,
			ScriptSig:   heightTag,
		}},
		Outputs: []tx.TxOut{{Value: reward, ScriptPubKey: lockScript}},
	}

	txs := append([]*tx.Transaction{coinbase}, extraTxs...)

	header := &block.Header{
		Index:        uint32(height),
		PreviousHash: parent.Hash(),
		Bits:         parent.Header.Bits,
		MerkleRoot:   block.ComputeMerkleRoot(txHashesOf(txs)),
		Timestamp:    timestamp,
		Nonce:        0,
	}
	blk := block.NewBlock(header, txs)
	mineHeader(t, blk)
	return blk
}

func txHashesOf(txs []*tx.Transaction) []types.Hash {
	hashes := make([]types.Hash, len(txs))
	for i, tr := range txs {
		hashes[i] = tr.Hash()
	}
	return hashes
}

// mineHeader recomputes the merkle root for blk's current transaction
// list and finds a nonce satisfying its declared bits.
func mineHeader(t *testing.T, blk *block.Block) {
	t.Helper()
	blk.Header.MerkleRoot = block.ComputeMerkleRoot(txHashesOf(blk.Transactions))
	pow := &consensus.PoW{Threads: 1}
	if err := pow.Seal(context.Background(), blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
}

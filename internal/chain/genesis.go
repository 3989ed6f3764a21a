package chain

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration
// (§6.3). The genesis block has index 0, a zero previous hash, and a single
// coinbase transaction paying the configured initial subsidy to the
// configured payout address with the configured message as its script_sig.
// Every node must compute a byte-identical genesis, so the nonce is found
// by a deterministic single-threaded search starting at 0.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis config: %w", err)
	}

	coinbase, err := buildGenesisCoinbase(gen)
	if err != nil {
		return nil, fmt.Errorf("build coinbase: %w", err)
	}

	txHashes := []types.Hash{coinbase.Hash()}
	merkle := block.ComputeMerkleRoot(txHashes)

	header := &block.Header{
		Index:        0,
		PreviousHash: types.Hash{},
		MerkleRoot:   merkle,
		Timestamp:    gen.Timestamp,
		Bits:         gen.InitialBits,
		Nonce:        0,
	}

	blk := block.NewBlock(header, []*tx.Transaction{coinbase})

	pow := &consensus.PoW{Threads: 1}
	if err := pow.Seal(context.Background(), blk); err != nil {
		return nil, fmt.Errorf("mining genesis block: %w", err)
	}

	return blk, nil
}

// buildGenesisCoinbase builds the single coinbase transaction paying the
// genesis subsidy to the configured payout address.
func buildGenesisCoinbase(gen *config.Genesis) (*tx.Transaction, error) {
	addr, err := types.ParseAddress(gen.PayoutAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid payout_address %q: %w", gen.PayoutAddress, err)
	}

	scriptPubKey := script.BuildP2PKHScriptPubKey([20]byte(addr))

	return &tx.Transaction{
		Timestamp: gen.Timestamp,
		Inputs: []tx.TxIn{{
			PreviousTxHash: types.Hash{},
			OutputIndex:    tx.CoinbaseOutputIndex,
			ScriptSig:      []byte(gen.CoinbaseMessage),
		}},
		Outputs: []tx.TxOut{{
			Value:        gen.InitialSubsidy,
			ScriptPubKey: scriptPubKey,
		}},
		Fee: 0,
	}, nil
}

package p2p

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/Klingon-tech/klingnet-chain/internal/chain"
	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/utxo"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ChainOrchestrator is the subset of internal/chain.Chain the gossip
// layer drives: running received blocks through consensus, answering
// sync requests, and locating a transaction's containing block for the
// Merkle-proof service (§4.18).
type ChainOrchestrator interface {
	ProcessBlock(blk *block.Block) error
	Height() uint64
	TipHash() types.Hash
	GetBlock(hash types.Hash) (*block.Block, error)
	GetBlockByHeight(height uint64) (*block.Block, error)
	GetTransaction(hash types.Hash) (*tx.Transaction, *block.Block, error)
}

// MempoolAdmitter is the subset of internal/mempool.Pool the gossip layer
// drives: admitting relayed transactions.
type MempoolAdmitter interface {
	Add(transaction *tx.Transaction) (bool, error)
}

// UTXOQuerier is the subset of internal/utxo.Set the gossip layer
// answers GET_UTXOS requests from (§4.18's address balance query).
type UTXOQuerier interface {
	GetByScriptPubKey(scriptPubKey []byte) ([]*utxo.UTXO, error)
}

// Gossip wires a transport Node to chain consensus and mempool admission,
// implementing the block/transaction propagation, sync, and SPV query
// protocol of §4.18.
type Gossip struct {
	node  *Node
	chain ChainOrchestrator
	pool  MempoolAdmitter
	utxos UTXOQuerier
	bans  *BanManager
}

// NewGossip creates a Gossip handler bound to node, chain, pool, and
// UTXO set, and registers itself as the node's frame handler and connect
// hook.
func NewGossip(node *Node, chain ChainOrchestrator, pool MempoolAdmitter, utxos UTXOQuerier, bans *BanManager) *Gossip {
	g := &Gossip{node: node, chain: chain, pool: pool, utxos: utxos, bans: bans}
	node.RegisterHandler(g.handle)
	node.RegisterOnConnect(g.sendHandshake)
	return g
}

func (g *Gossip) handle(env Envelope, from PeerID) {
	switch env.Type {
	case MsgHandshake:
		g.handleHandshake(env.Payload, from)
	case MsgBlock:
		g.handleBlock(env.Payload, from)
	case MsgTransaction:
		g.handleTransaction(env.Payload, from)
	case MsgSyncRequest:
		g.handleSyncRequest(env.Payload, from)
	case MsgSyncBatch:
		g.handleSyncBatch(env.Payload, from)
	case MsgGetHeaders:
		g.handleGetHeaders(env.Payload, from)
	case MsgHeaders:
		// Header-range responses are informational (SPV); the full node
		// drives sync via SYNC_REQUEST/SYNC_BATCH instead.
	case MsgGetMerkleProof:
		g.handleGetMerkleProof(env.Payload, from)
	case MsgMerkleProof:
		// Informational response to an SPV client's own request; this
		// node has no pending-proof state to resolve it against.
	case MsgGetUTXOs:
		g.handleGetUTXOs(env.Payload, from)
	case MsgUTXOSet:
		// Informational response to an SPV client's own balance query.
	}
}

// handleBlock implements §4.18: decode, hand to the orchestrator, and
// either rebroadcast on acceptance or resync on an unknown parent.
func (g *Gossip) handleBlock(raw json.RawMessage, from PeerID) {
	var blk block.Block
	if err := json.Unmarshal(raw, &blk); err != nil || blk.Header == nil {
		return
	}

	err := g.chain.ProcessBlock(&blk)
	switch {
	case err == nil:
		g.node.Broadcast(Envelope{Type: MsgBlock, Payload: raw}, from)
	case isOrphanErr(err):
		start := uint64(blk.Header.Index)
		if start > SyncOffsetBack {
			start -= SyncOffsetBack
		} else {
			start = 0
		}
		g.requestSync(from, start)
	case isBlockKnownErr(err), isWeakForkErr(err):
		// already have it, or stored but not adopted: neither is an
		// offense and neither is rebroadcast.
	default:
		if g.bans != nil {
			g.bans.RecordOffense(from, PenaltyInvalidBlock, err.Error())
		}
	}
}

// handleTransaction implements §4.18: decode, admit to the mempool
// (which validates against the current UTXO set), and rebroadcast on
// success. Invalid transactions are dropped silently.
func (g *Gossip) handleTransaction(raw json.RawMessage, from PeerID) {
	var transaction tx.Transaction
	if err := json.Unmarshal(raw, &transaction); err != nil {
		return
	}
	added, err := g.pool.Add(&transaction)
	if err != nil || !added {
		return
	}
	g.node.Broadcast(Envelope{Type: MsgTransaction, Payload: raw}, from)
}

type syncRequestPayload struct {
	StartIndex uint64 `json:"start_index"`
}

type syncBatchPayload struct {
	Blocks []*block.Block `json:"blocks"`
}

// requestSync sends a SYNC_REQUEST for blocks starting at startIndex.
func (g *Gossip) requestSync(to PeerID, startIndex uint64) {
	payload, err := json.Marshal(syncRequestPayload{StartIndex: startIndex})
	if err != nil {
		return
	}
	g.node.Send(to, Envelope{Type: MsgSyncRequest, Payload: payload})
}

// handleSyncRequest answers with up to SyncBatchSize blocks starting at
// the requested index, sorted ascending.
func (g *Gossip) handleSyncRequest(raw json.RawMessage, from PeerID) {
	var req syncRequestPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	tipHeight := g.chain.Height()
	blocks := make([]*block.Block, 0, SyncBatchSize)
	for h := req.StartIndex; h <= tipHeight && len(blocks) < SyncBatchSize; h++ {
		blk, err := g.chain.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, blk)
	}

	payload, err := json.Marshal(syncBatchPayload{Blocks: blocks})
	if err != nil {
		return
	}
	g.node.Send(from, Envelope{Type: MsgSyncBatch, Payload: payload})
}

// handleSyncBatch applies each received block via the orchestrator, in
// ascending order, and requests the next batch if this one was full
// (driving initial block download to completion).
func (g *Gossip) handleSyncBatch(raw json.RawMessage, from PeerID) {
	var batch syncBatchPayload
	if err := json.Unmarshal(raw, &batch); err != nil {
		return
	}

	sort.Slice(batch.Blocks, func(i, j int) bool {
		return batch.Blocks[i].Header.Index < batch.Blocks[j].Header.Index
	})

	imported := 0
	for _, blk := range batch.Blocks {
		err := g.chain.ProcessBlock(blk)
		if err != nil && !isBlockKnownErr(err) && !isWeakForkErr(err) {
			klog.WithComponent("p2p").Debug().Err(err).Str("peer", string(from)).Msg("sync batch block rejected")
			break
		}
		imported++
	}

	if imported == SyncBatchSize {
		g.requestSync(from, g.chain.Height()+1)
	}
}

type getHeadersPayload struct {
	StartHash types.Hash `json:"start_hash"`
	Limit     int        `json:"limit"`
}

type headersPayload struct {
	Headers []*block.Header `json:"headers"`
}

// handleGetHeaders answers with up to MaxHeadersLimit headers starting
// just after start_hash, walking forward by height.
func (g *Gossip) handleGetHeaders(raw json.RawMessage, from PeerID) {
	var req getHeadersPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > MaxHeadersLimit {
		limit = MaxHeadersLimit
	}

	start, err := g.chain.GetBlock(req.StartHash)
	if err != nil {
		return
	}

	headers := make([]*block.Header, 0, limit)
	tipHeight := g.chain.Height()
	for h := uint64(start.Header.Index) + 1; h <= tipHeight && len(headers) < limit; h++ {
		blk, err := g.chain.GetBlockByHeight(h)
		if err != nil {
			break
		}
		headers = append(headers, blk.Header)
	}

	payload, err := json.Marshal(headersPayload{Headers: headers})
	if err != nil {
		return
	}
	g.node.Send(from, Envelope{Type: MsgHeaders, Payload: payload})
}

type getMerkleProofPayload struct {
	TxHash types.Hash `json:"tx_hash"`
}

type merkleProofPayload struct {
	Found      bool              `json:"found"`
	TxHash     types.Hash        `json:"tx_hash"`
	BlockHash  types.Hash        `json:"block_hash"`
	MerkleRoot types.Hash        `json:"merkle_root"`
	Proof      []block.ProofStep `json:"proof"`
}

// handleGetMerkleProof answers an SPV peer's request for tx_hash's
// inclusion proof (§4.18): locate the transaction's containing block,
// rebuild that block's leaf order, and return the Merkle path from the
// transaction's hash to the block's merkle_root. Drops the request
// silently, symmetric to handleGetHeaders, if the transaction is unknown.
func (g *Gossip) handleGetMerkleProof(raw json.RawMessage, from PeerID) {
	var req getMerkleProofPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}

	transaction, blk, err := g.chain.GetTransaction(req.TxHash)
	if err != nil {
		return
	}

	hashes := make([]types.Hash, len(blk.Transactions))
	index := -1
	for i, t := range blk.Transactions {
		hashes[i] = t.Hash()
		if hashes[i] == req.TxHash {
			index = i
		}
	}
	if index < 0 {
		return
	}

	resp := merkleProofPayload{
		Found:      true,
		TxHash:     transaction.Hash(),
		BlockHash:  blk.Hash(),
		MerkleRoot: blk.Header.MerkleRoot,
		Proof:      block.BuildProof(hashes, index),
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	g.node.Send(from, Envelope{Type: MsgMerkleProof, Payload: payload})
}

type getUTXOsPayload struct {
	Address types.Address `json:"address"`
}

type utxoEntry struct {
	TxHash types.Hash `json:"tx_hash"`
	Index  uint32     `json:"index"`
	Value  uint64     `json:"value"`
}

type utxoSetPayload struct {
	Address types.Address `json:"address"`
	UTXOs   []utxoEntry   `json:"utxos"`
	Balance uint64        `json:"balance"`
}

// handleGetUTXOs answers an SPV peer's address-balance query (§4.18):
// the address is translated to its P2PKH script_pubkey (§4.5) and every
// UTXO matching it exactly is returned, plus their summed value.
func (g *Gossip) handleGetUTXOs(raw json.RawMessage, from PeerID) {
	var req getUTXOsPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if g.utxos == nil {
		return
	}

	scriptPubKey := script.BuildP2PKHScriptPubKey(req.Address)
	matches, err := g.utxos.GetByScriptPubKey(scriptPubKey)
	if err != nil {
		return
	}

	entries := make([]utxoEntry, 0, len(matches))
	var balance uint64
	for _, u := range matches {
		entries = append(entries, utxoEntry{TxHash: u.Outpoint.TxID, Index: u.Outpoint.Index, Value: u.Output.Value})
		balance += u.Output.Value
	}

	payload, err := json.Marshal(utxoSetPayload{Address: req.Address, UTXOs: entries, Balance: balance})
	if err != nil {
		return
	}
	g.node.Send(from, Envelope{Type: MsgUTXOSet, Payload: payload})
}

// BroadcastBlock publishes a newly mined or accepted block to every peer.
func (g *Gossip) BroadcastBlock(blk *block.Block) error {
	payload, err := json.Marshal(blk)
	if err != nil {
		return err
	}
	g.node.Broadcast(Envelope{Type: MsgBlock, Payload: payload}, "")
	return nil
}

// BroadcastTransaction publishes a transaction to every peer.
func (g *Gossip) BroadcastTransaction(transaction *tx.Transaction) error {
	payload, err := json.Marshal(transaction)
	if err != nil {
		return err
	}
	g.node.Broadcast(Envelope{Type: MsgTransaction, Payload: payload}, "")
	return nil
}

func isOrphanErr(err error) bool {
	return errors.Is(err, chain.ErrOrphan)
}

func isBlockKnownErr(err error) bool {
	return errors.Is(err, chain.ErrBlockKnown)
}

func isWeakForkErr(err error) bool {
	return errors.Is(err, chain.ErrWeakFork)
}

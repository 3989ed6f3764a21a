package p2p

import (
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/internal/chain"
	"github.com/Klingon-tech/klingnet-chain/internal/utxo"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/script"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// mockChain is a minimal ChainOrchestrator for gossip tests: it does not
// validate blocks, it just records what was handed to it.
type mockChain struct {
	height    uint64
	processed []*block.Block
	byHeight  map[uint64]*block.Block
	nextErr   error
	errRepeat bool // if true, nextErr is returned on every call instead of once
}

func newMockChain(height uint64) *mockChain {
	return &mockChain{height: height, byHeight: make(map[uint64]*block.Block)}
}

func (c *mockChain) ProcessBlock(blk *block.Block) error {
	if c.nextErr != nil {
		err := c.nextErr
		if !c.errRepeat {
			c.nextErr = nil
		}
		return err
	}
	c.processed = append(c.processed, blk)
	c.byHeight[uint64(blk.Header.Index)] = blk
	if uint64(blk.Header.Index) > c.height {
		c.height = uint64(blk.Header.Index)
	}
	return nil
}

func (c *mockChain) Height() uint64      { return c.height }
func (c *mockChain) TipHash() types.Hash { return types.Hash{} }

func (c *mockChain) GetBlock(h types.Hash) (*block.Block, error) {
	for _, blk := range c.byHeight {
		if blk.Hash() == h {
			return blk, nil
		}
	}
	return nil, errors.New("not found")
}
func (c *mockChain) GetBlockByHeight(h uint64) (*block.Block, error) {
	blk, ok := c.byHeight[h]
	if !ok {
		return nil, errors.New("not found")
	}
	return blk, nil
}

func (c *mockChain) GetTransaction(hash types.Hash) (*tx.Transaction, *block.Block, error) {
	for _, blk := range c.byHeight {
		for _, t := range blk.Transactions {
			if t.Hash() == hash {
				return t, blk, nil
			}
		}
	}
	return nil, nil, errors.New("not found")
}

type mockPool struct {
	admitted []*tx.Transaction
	reject   bool
}

func (p *mockPool) Add(transaction *tx.Transaction) (bool, error) {
	if p.reject {
		return false, errors.New("rejected")
	}
	p.admitted = append(p.admitted, transaction)
	return true, nil
}

// mockUTXOs is a minimal UTXOQuerier for gossip tests: a fixed set of
// UTXOs keyed by their exact script_pubkey bytes.
type mockUTXOs struct {
	byScript map[string][]*utxo.UTXO
}

func newMockUTXOs() *mockUTXOs {
	return &mockUTXOs{byScript: make(map[string][]*utxo.UTXO)}
}

func (m *mockUTXOs) GetByScriptPubKey(scriptPubKey []byte) ([]*utxo.UTXO, error) {
	return m.byScript[string(scriptPubKey)], nil
}

func testBlockAt(index uint32) *block.Block {
	return block.NewBlock(&block.Header{Index: index, Timestamp: 1700000000 + int64(index)}, []*tx.Transaction{
		{Timestamp: 1700000000, Outputs: []tx.TxOut{{Value: 1, ScriptPubKey: make([]byte, 25)}}},
	})
}

func newTestGossip(t *testing.T, c *mockChain, p *mockPool) (*Gossip, *Node) {
	t.Helper()
	n := NewNode(Config{Host: "127.0.0.1", Port: 0}, nil)
	g := NewGossip(n, c, p, newMockUTXOs(), nil)
	return g, n
}

func TestGossip_HandleBlock_AcceptedRebroadcasts(t *testing.T) {
	c := newMockChain(0)
	p := &mockPool{}
	g, n := newTestGossip(t, c, p)

	peerConn, _ := net.Pipe()
	defer peerConn.Close()
	other := &Peer{ID: PeerID("peer-b"), conn: peerConn, outbox: make(chan []byte, 8), done: make(chan struct{})}
	n.mu.Lock()
	n.peers[other.ID] = other
	n.mu.Unlock()

	blk := testBlockAt(1)
	raw, _ := json.Marshal(blk)
	g.handleBlock(raw, PeerID("peer-a"))

	if len(c.processed) != 1 {
		t.Fatalf("processed %d blocks, want 1", len(c.processed))
	}
	if c.processed[0].Header.Index != 1 {
		t.Errorf("Index = %d, want 1", c.processed[0].Header.Index)
	}

	select {
	case frame := <-other.outbox:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if env.Type != MsgBlock {
			t.Errorf("Type = %q, want %q", env.Type, MsgBlock)
		}
	default:
		t.Fatal("expected the accepted block to be rebroadcast to peer-b")
	}
}

func TestGossip_HandleBlock_OrphanTriggersSync(t *testing.T) {
	c := newMockChain(10)
	c.nextErr = chain.ErrOrphan
	p := &mockPool{}
	g, n := newTestGossip(t, c, p)

	peerConn, _ := net.Pipe()
	defer peerConn.Close()
	// Built directly rather than via newPeer: we want to read frames off
	// the outbox ourselves, not race the real writeLoop for them.
	pr := &Peer{ID: PeerID("peer-a"), conn: peerConn, outbox: make(chan []byte, 8), done: make(chan struct{})}
	n.mu.Lock()
	n.peers[pr.ID] = pr
	n.mu.Unlock()

	blk := testBlockAt(20)
	raw, _ := json.Marshal(blk)
	g.handleBlock(raw, pr.ID)

	if len(c.processed) != 0 {
		t.Fatalf("orphan block should not be recorded as processed, got %d", len(c.processed))
	}

	select {
	case frame := <-pr.outbox:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if env.Type != MsgSyncRequest {
			t.Fatalf("Type = %q, want %q", env.Type, MsgSyncRequest)
		}
		var req syncRequestPayload
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.StartIndex != 20-SyncOffsetBack {
			t.Errorf("StartIndex = %d, want %d", req.StartIndex, uint64(20-SyncOffsetBack))
		}
	default:
		t.Fatal("expected a queued SYNC_REQUEST frame")
	}
}

func TestGossip_HandleBlock_KnownIsSilent(t *testing.T) {
	c := newMockChain(5)
	c.nextErr = chain.ErrBlockKnown
	p := &mockPool{}
	g, _ := newTestGossip(t, c, p)

	blk := testBlockAt(3)
	raw, _ := json.Marshal(blk)
	g.handleBlock(raw, "peer-a")

	if len(c.processed) != 0 {
		t.Fatalf("known block should not be appended to processed, got %d", len(c.processed))
	}
}

func TestGossip_HandleBlock_OtherErrorBansPeer(t *testing.T) {
	c := newMockChain(5)
	c.nextErr = errors.New("bad proof of work")
	c.errRepeat = true
	p := &mockPool{}
	bans := NewBanManager(nil, nil)
	n := NewNode(Config{}, nil)
	g := NewGossip(n, c, p, newMockUTXOs(), bans)

	blk := testBlockAt(6)
	raw, _ := json.Marshal(blk)
	// PenaltyInvalidBlock (50) is below BanThreshold (100); two offenses
	// are needed to cross it.
	g.handleBlock(raw, PeerID("bad-peer"))
	g.handleBlock(raw, PeerID("bad-peer"))

	if !bans.IsBanned(PeerID("bad-peer")) {
		t.Error("peer sending repeated invalid blocks should accumulate to a ban")
	}
}

func TestGossip_HandleTransaction_AdmittedAndRejected(t *testing.T) {
	c := newMockChain(0)
	accepted := &mockPool{}
	g, _ := newTestGossip(t, c, accepted)

	transaction := &tx.Transaction{Timestamp: 1700000000, Outputs: []tx.TxOut{{Value: 1, ScriptPubKey: make([]byte, 25)}}}
	raw, _ := json.Marshal(transaction)
	g.handleTransaction(raw, "peer-a")
	if len(accepted.admitted) != 1 {
		t.Fatalf("admitted %d txs, want 1", len(accepted.admitted))
	}

	rejecting := &mockPool{reject: true}
	g2, _ := newTestGossip(t, c, rejecting)
	g2.handleTransaction(raw, "peer-a")
	if len(rejecting.admitted) != 0 {
		t.Fatalf("rejected tx should not be admitted, got %d", len(rejecting.admitted))
	}
}

func TestGossip_HandleSyncRequest_ReturnsAscendingBatch(t *testing.T) {
	c := newMockChain(3)
	for i := uint32(1); i <= 3; i++ {
		c.byHeight[uint64(i)] = testBlockAt(i)
	}
	p := &mockPool{}
	g, n := newTestGossip(t, c, p)

	// Register a fake peer directly so Send succeeds and we can capture
	// the outgoing frame via its outbox.
	peerConn, otherConn := net.Pipe()
	defer peerConn.Close()
	defer otherConn.Close()
	pr := &Peer{ID: PeerID("requester"), conn: peerConn, outbox: make(chan []byte, 8), done: make(chan struct{})}
	n.mu.Lock()
	n.peers[pr.ID] = pr
	n.mu.Unlock()

	req, _ := json.Marshal(syncRequestPayload{StartIndex: 1})
	g.handleSyncRequest(req, pr.ID)

	select {
	case frame := <-pr.outbox:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if env.Type != MsgSyncBatch {
			t.Fatalf("Type = %q, want %q", env.Type, MsgSyncBatch)
		}
		var batch syncBatchPayload
		if err := json.Unmarshal(env.Payload, &batch); err != nil {
			t.Fatalf("unmarshal batch: %v", err)
		}
		if len(batch.Blocks) != 3 {
			t.Fatalf("got %d blocks, want 3", len(batch.Blocks))
		}
	default:
		t.Fatal("expected a queued SYNC_BATCH frame")
	}
}

func TestGossip_HandleSyncBatch_AppliesAscending(t *testing.T) {
	c := newMockChain(0)
	p := &mockPool{}
	g, _ := newTestGossip(t, c, p)

	batch := syncBatchPayload{Blocks: []*block.Block{testBlockAt(3), testBlockAt(1), testBlockAt(2)}}
	raw, _ := json.Marshal(batch)
	g.handleSyncBatch(raw, "peer-a")

	if len(c.processed) != 3 {
		t.Fatalf("processed %d blocks, want 3", len(c.processed))
	}
	for i, blk := range c.processed {
		if blk.Header.Index != uint32(i+1) {
			t.Errorf("processed[%d].Index = %d, want %d", i, blk.Header.Index, i+1)
		}
	}
}

// registerTestPeer wires a fake peer with its own outbox into n so a
// handler's response can be captured without racing the real writeLoop.
func registerTestPeer(t *testing.T, n *Node, id PeerID) *Peer {
	t.Helper()
	peerConn, _ := net.Pipe()
	t.Cleanup(func() { peerConn.Close() })
	pr := &Peer{ID: id, conn: peerConn, outbox: make(chan []byte, 8), done: make(chan struct{})}
	n.mu.Lock()
	n.peers[pr.ID] = pr
	n.mu.Unlock()
	return pr
}

func TestGossip_HandleGetMerkleProof_ReturnsValidProof(t *testing.T) {
	c := newMockChain(1)
	tx1 := &tx.Transaction{Timestamp: 1700000000, Outputs: []tx.TxOut{{Value: 1, ScriptPubKey: make([]byte, 25)}}}
	tx2 := &tx.Transaction{Timestamp: 1700000001, Outputs: []tx.TxOut{{Value: 2, ScriptPubKey: make([]byte, 25)}}}
	hashes := []types.Hash{tx1.Hash(), tx2.Hash()}
	blk := block.NewBlock(&block.Header{Index: 1, Timestamp: 1700000000, MerkleRoot: block.ComputeMerkleRoot(hashes)}, []*tx.Transaction{tx1, tx2})
	c.byHeight[1] = blk

	p := &mockPool{}
	g, n := newTestGossip(t, c, p)
	pr := registerTestPeer(t, n, PeerID("spv-peer"))

	req, _ := json.Marshal(getMerkleProofPayload{TxHash: tx2.Hash()})
	g.handleGetMerkleProof(req, pr.ID)

	select {
	case frame := <-pr.outbox:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if env.Type != MsgMerkleProof {
			t.Fatalf("Type = %q, want %q", env.Type, MsgMerkleProof)
		}
		var resp merkleProofPayload
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			t.Fatalf("unmarshal proof: %v", err)
		}
		if !resp.Found {
			t.Fatal("expected Found = true")
		}
		if !block.VerifyProof(tx2.Hash(), blk.Header.MerkleRoot, resp.Proof) {
			t.Error("proof should verify against the block's merkle root")
		}
	default:
		t.Fatal("expected a queued MERKLE_PROOF frame")
	}
}

func TestGossip_HandleGetMerkleProof_UnknownTxIsSilent(t *testing.T) {
	c := newMockChain(0)
	p := &mockPool{}
	g, n := newTestGossip(t, c, p)
	pr := registerTestPeer(t, n, PeerID("spv-peer"))

	req, _ := json.Marshal(getMerkleProofPayload{TxHash: types.Hash{0xAB}})
	g.handleGetMerkleProof(req, pr.ID)

	select {
	case <-pr.outbox:
		t.Fatal("unknown transaction should not produce a response frame")
	default:
	}
}

func TestGossip_HandleGetUTXOs_ReturnsBalance(t *testing.T) {
	c := newMockChain(0)
	p := &mockPool{}
	n := NewNode(Config{Host: "127.0.0.1", Port: 0}, nil)

	addr := types.Address{0x01, 0x02, 0x03}
	scriptPubKey := script.BuildP2PKHScriptPubKey(addr)
	mocked := newMockUTXOs()
	mocked.byScript[string(scriptPubKey)] = []*utxo.UTXO{
		{Outpoint: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, Output: tx.TxOut{Value: 10, ScriptPubKey: scriptPubKey}},
		{Outpoint: types.Outpoint{TxID: types.Hash{0x02}, Index: 1}, Output: tx.TxOut{Value: 15, ScriptPubKey: scriptPubKey}},
	}
	g := NewGossip(n, c, p, mocked, nil)
	pr := registerTestPeer(t, n, PeerID("spv-peer"))

	req, _ := json.Marshal(getUTXOsPayload{Address: addr})
	g.handleGetUTXOs(req, pr.ID)

	select {
	case frame := <-pr.outbox:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if env.Type != MsgUTXOSet {
			t.Fatalf("Type = %q, want %q", env.Type, MsgUTXOSet)
		}
		var resp utxoSetPayload
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			t.Fatalf("unmarshal utxo set: %v", err)
		}
		if resp.Balance != 25 {
			t.Errorf("Balance = %d, want 25", resp.Balance)
		}
		if len(resp.UTXOs) != 2 {
			t.Errorf("got %d utxos, want 2", len(resp.UTXOs))
		}
	default:
		t.Fatal("expected a queued UTXO_SET frame")
	}
}

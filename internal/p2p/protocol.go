package p2p

import "encoding/json"

// ProtocolVersion is the gossip protocol version advertised during
// handshake (§4.18).
const ProtocolVersion uint32 = 1

// Message types exchanged over the wire (§4.18). Each frame is a single
// UTF-8 JSON object terminated by '\n'.
const (
	MsgHandshake      = "HANDSHAKE"
	MsgBlock          = "BLOCK"
	MsgTransaction    = "TRANSACTION"
	MsgSyncRequest    = "SYNC_REQUEST"
	MsgSyncBatch      = "SYNC_BATCH"
	MsgGetHeaders     = "GET_HEADERS"
	MsgHeaders        = "HEADERS"
	MsgGetMerkleProof = "GET_MERKLE_PROOF"
	MsgMerkleProof    = "MERKLE_PROOF"
	MsgGetUTXOs       = "GET_UTXOS"
	MsgUTXOSet        = "UTXO_SET"
)

// SyncBatchSize is the max number of blocks returned per SYNC_BATCH
// (§4.18).
const SyncBatchSize = 500

// SyncOffsetBack is how far behind an unknown-parent BLOCK message
// requests a resync from, to tolerate small gaps (§4.18).
const SyncOffsetBack = 5

// MaxHeadersLimit is the max number of headers a single GET_HEADERS
// request may return (§4.18).
const MaxHeadersLimit = 2000

// Envelope is the outer shape of every frame: a message type tag, a
// type-specific JSON payload, and the Unix timestamp the frame was sent
// (_net_t, §6.1/§4.18). NetT is stamped by encodeFrame at send time;
// callers building an Envelope literal never need to set it themselves.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	NetT    int64           `json:"_net_t"`
}

package p2p

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Agent is the software identifier advertised during handshake.
const Agent = "klingnet-chain"

// HandshakePayload is the body of a HANDSHAKE frame (§4.18).
type HandshakePayload struct {
	Version   uint32 `json:"version"`
	Height    uint64 `json:"height"`
	NodeID    string `json:"node_id"`
	Agent     string `json:"agent"`
	Timestamp int64  `json:"timestamp"`
}

// NodeID is a per-process random identifier sent in every handshake, used
// only for diagnostics; it is not part of consensus.
var NodeID = uuid.NewString()

func (g *Gossip) sendHandshake(id PeerID) {
	payload, err := json.Marshal(HandshakePayload{
		Version:   ProtocolVersion,
		Height:    g.chain.Height(),
		NodeID:    NodeID,
		Agent:     Agent,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return
	}
	g.node.Send(id, Envelope{Type: MsgHandshake, Payload: payload})
}

// handleHandshake implements §4.18: if the peer reports a height greater
// than ours, kick off a block-range sync starting just past our tip.
func (g *Gossip) handleHandshake(raw json.RawMessage, from PeerID) {
	var hs HandshakePayload
	if err := json.Unmarshal(raw, &hs); err != nil {
		if g.bans != nil {
			g.bans.RecordOffense(from, PenaltyHandshakeFail, "malformed handshake")
		}
		return
	}
	if hs.Version != ProtocolVersion {
		if g.bans != nil {
			g.bans.RecordOffense(from, PenaltyHandshakeFail, "protocol version mismatch")
		}
		return
	}
	if hs.Height > g.chain.Height() {
		g.requestSync(from, g.chain.Height()+1)
	}
}

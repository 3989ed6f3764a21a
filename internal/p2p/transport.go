// Package p2p implements the raw-TCP gossip transport described in
// §4.17/§4.18: newline-delimited JSON frames, a per-peer registry for
// broadcast and targeted send, and offense-scored banning.
package p2p

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
)

// Config holds the settings a Node needs to listen and dial (§4.17, §6.5).
type Config struct {
	Host          string
	Port          int
	Seeds         []string
	MaxPeers      int
	MaxBufferSize int
}

// Handler processes a decoded frame from a peer. It must not block for
// long: slow handling delays that peer's reader, not the whole node.
type Handler func(env Envelope, from PeerID)

// Node is a TCP peer-to-peer endpoint: it accepts inbound connections up
// to MaxPeers, dials outbound connections to seeds or explicitly
// requested addresses, and dispatches framed JSON messages to a single
// registered Handler.
type Node struct {
	cfg Config

	listener net.Listener

	mu        sync.RWMutex
	peers     map[PeerID]*Peer
	handler   Handler
	onConnect func(PeerID)

	bans *BanManager

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewNode creates a Node that is not yet listening. Call Start to begin
// accepting connections.
func NewNode(cfg Config, bans *BanManager) *Node {
	return &Node{
		cfg:     cfg,
		peers:   make(map[PeerID]*Peer),
		bans:    bans,
		stopped: make(chan struct{}),
	}
}

// RegisterHandler installs the frame handler. Must be called before
// Start.
func (n *Node) RegisterHandler(fn Handler) {
	n.mu.Lock()
	n.handler = fn
	n.mu.Unlock()
}

// RegisterOnConnect installs a callback fired synchronously, right after
// a peer (inbound or outbound) is registered, so a handshake can be sent
// immediately as §4.18 requires. Must be called before Start.
func (n *Node) RegisterOnConnect(fn func(PeerID)) {
	n.mu.Lock()
	n.onConnect = fn
	n.mu.Unlock()
}

// Start binds the listener and begins accepting inbound connections, and
// dials every configured seed.
func (n *Node) Start() error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	n.listener = ln

	n.wg.Add(1)
	go n.acceptLoop()

	for _, seed := range n.cfg.Seeds {
		host, portStr, err := net.SplitHostPort(seed)
		if err != nil {
			klog.WithComponent("p2p").Warn().Str("seed", seed).Msg("skipping malformed seed address")
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			klog.WithComponent("p2p").Warn().Str("seed", seed).Msg("skipping seed with non-numeric port")
			continue
		}
		go func(host string, port int) {
			if err := n.Connect(host, port); err != nil {
				klog.WithComponent("p2p").Warn().Str("seed", net.JoinHostPort(host, strconv.Itoa(port))).Err(err).Msg("seed dial failed")
			}
		}(host, port)
	}

	klog.WithComponent("p2p").Info().Str("addr", addr).Msg("p2p listening")
	return nil
}

// Stop closes the listener and every active peer connection, and waits
// for all reader goroutines to exit.
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopped)
		if n.listener != nil {
			err = n.listener.Close()
		}
		n.mu.Lock()
		for _, p := range n.peers {
			p.Close()
		}
		n.mu.Unlock()
	})
	n.wg.Wait()
	return err
}

// Connect dials an outbound connection to ip:port and registers it as a
// peer. The handshake is the caller's handler's responsibility to send
// once the peer is registered; transport only establishes the pipe.
func (n *Node) Connect(ip string, port int) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	n.adopt(conn, PeerID(addr))
	return nil
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopped:
				return
			default:
				klog.WithComponent("p2p").Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		if n.cfg.MaxPeers > 0 && n.PeerCount() >= n.cfg.MaxPeers {
			conn.Close()
			continue
		}

		id := PeerID(conn.RemoteAddr().String())
		if n.bans != nil && n.bans.IsBanned(id) {
			conn.Close()
			continue
		}

		n.adopt(conn, id)
	}
}

// adopt wraps conn in a Peer, registers it, and starts its reader.
func (n *Node) adopt(conn net.Conn, id PeerID) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(30 * time.Second)
	}

	p := newPeer(id, conn)

	n.mu.Lock()
	n.peers[id] = p
	onConnect := n.onConnect
	n.mu.Unlock()

	n.wg.Add(1)
	go n.readLoop(p)

	if onConnect != nil {
		onConnect(id)
	}
}

func (n *Node) removePeer(id PeerID) {
	n.mu.Lock()
	delete(n.peers, id)
	n.mu.Unlock()
}

// DisconnectPeer forcibly closes and deregisters a peer, used by the ban
// manager when an offense score crosses the threshold.
func (n *Node) DisconnectPeer(id PeerID) {
	n.mu.RLock()
	p, ok := n.peers[id]
	n.mu.RUnlock()
	if !ok {
		return
	}
	p.Close()
}

// Addr returns the bound listener address, or "" if Start hasn't been
// called yet. Useful for tests that bind to port 0.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

func (n *Node) Peers() []PeerID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]PeerID, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

// readLoop assembles newline-delimited JSON frames from a peer and
// dispatches each to the registered handler. A frame exceeding
// MaxBufferSize disconnects the peer as a DoS guard. A handler panic is
// recovered so it cannot tear down the reader or the connection.
func (n *Node) readLoop(p *Peer) {
	defer n.wg.Done()
	defer func() {
		p.Close()
		n.removePeer(p.ID)
	}()

	maxBuf := n.cfg.MaxBufferSize
	if maxBuf <= 0 {
		maxBuf = 5 * 1024 * 1024
	}

	reader := bufio.NewReaderSize(p.conn, 4096)
	var buf []byte
	for {
		line, err := readLine(reader, maxBuf)
		if err != nil {
			if err != io.EOF {
				klog.WithComponent("p2p").Debug().Str("peer", string(p.ID)).Err(err).Msg("peer read error")
			}
			return
		}
		buf = append(buf[:0], line...)

		var env Envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			if n.bans != nil {
				n.bans.RecordOffense(p.ID, PenaltyInvalidTx, "malformed frame")
			}
			continue
		}

		n.dispatch(env, p.ID)
	}
}

// readLine reads up to and including the next '\n', erroring if more
// than maxBuf bytes are read before one is found.
func readLine(r *bufio.Reader, maxBuf int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxBuf {
			return nil, fmt.Errorf("frame exceeds max_buffer_size (%d bytes)", maxBuf)
		}
		if err == nil {
			return line[:len(line)-1], nil
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return nil, err
	}
}

func (n *Node) dispatch(env Envelope, from PeerID) {
	n.mu.RLock()
	h := n.handler
	n.mu.RUnlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			klog.WithComponent("p2p").Error().Interface("panic", r).Str("peer", string(from)).Msg("handler panic recovered")
		}
	}()
	h(env, from)
}

// Send encodes env and delivers it to a single peer by ID, returning
// false if the peer is unknown or its outbox is full.
func (n *Node) Send(id PeerID, env Envelope) bool {
	n.mu.RLock()
	p, ok := n.peers[id]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	frame, err := encodeFrame(env)
	if err != nil {
		return false
	}
	return p.enqueue(frame)
}

// Broadcast delivers env to every connected peer except exclude (pass ""
// to exclude none).
func (n *Node) Broadcast(env Envelope, exclude PeerID) {
	frame, err := encodeFrame(env)
	if err != nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id, p := range n.peers {
		if id == exclude {
			continue
		}
		p.enqueue(frame)
	}
}

func encodeFrame(env Envelope) ([]byte, error) {
	env.NetT = time.Now().Unix()
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return append(data, '\n'), nil
}

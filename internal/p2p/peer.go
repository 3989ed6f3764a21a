package p2p

import (
	"bufio"
	"net"
	"sync"
)

// PeerID identifies a peer by its "host:port" address (§4.17).
type PeerID string

func (id PeerID) String() string { return string(id) }

// Peer is a single established connection, with a dedicated writer queue
// so a slow reader on one side never blocks a broadcast to others.
type Peer struct {
	ID   PeerID
	conn net.Conn

	writeMu sync.Mutex
	outbox  chan []byte
	done    chan struct{}
	closeOnce sync.Once
}

func newPeer(id PeerID, conn net.Conn) *Peer {
	p := &Peer{
		ID:     id,
		conn:   conn,
		outbox: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// writeLoop serializes writes to the connection from the outbox queue.
func (p *Peer) writeLoop() {
	w := bufio.NewWriter(p.conn)
	for {
		select {
		case frame, ok := <-p.outbox:
			if !ok {
				return
			}
			p.writeMu.Lock()
			_, err := w.Write(frame)
			if err == nil {
				err = w.Flush()
			}
			p.writeMu.Unlock()
			if err != nil {
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// enqueue queues a frame for delivery, dropping it if the peer's outbox
// is full rather than blocking the caller (a slow peer shouldn't stall
// broadcast to everyone else).
func (p *Peer) enqueue(frame []byte) bool {
	select {
	case p.outbox <- frame:
		return true
	default:
		return false
	}
}

// Close tears down the connection and stops the writer goroutine. Safe
// to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// Package tcp implements the stream transport profile: per-peer ordered,
// length-prefixed delivery, a background reconnector, and the
// lower-id-dials/higher-id-accepts rule that avoids duplicate connections
// without any runtime negotiation. Generalized from the teacher's
// internal/election/bully.go TCP server/dial loop (which hardcoded a
// single "ELECTION"/"OK"/"LEADER" string protocol); this version frames
// the full protocol.Message set over the shared tagged-envelope codec.
package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/transport"
	"github.com/clustervote/clustervote/internal/types"
)

// reconnectInterval is the fixed retry cadence of the background
// reconnector. No backoff: peers in a static cluster come back, and a 2s
// probe against a dead address costs nothing.
const reconnectInterval = 2 * time.Second

const dialTimeout = 2 * time.Second

// conn wraps one outbound or inbound socket with a write mutex: writes
// must not interleave because messages are length-prefixed.
type conn struct {
	mu sync.Mutex
	nc net.Conn
}

func (c *conn) write(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteFrame(c.nc, msg)
}

func (c *conn) close() {
	_ = c.nc.Close()
}

// Transport is the stream-profile implementation of transport.Interface.
type Transport struct {
	selfID types.NodeID
	peers  map[types.NodeID]string // NodeID -> address, static for process lifetime

	mu    sync.Mutex
	conns map[types.NodeID]*conn

	inbound  chan transport.Inbound
	listener net.Listener

	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a listener on bindAddr and begins the reconnection loop for
// every configured peer with a higher NodeID than self. It returns immediately; dialing
// and accepting happen in the background.
func New(ctx context.Context, selfID types.NodeID, bindAddr string, peers map[types.NodeID]string, log *logrus.Entry) (*Transport, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", bindAddr)
	}

	cctx, cancel := context.WithCancel(ctx)
	t := &Transport{
		selfID:   selfID,
		peers:    peers,
		conns:    make(map[types.NodeID]*conn),
		inbound:  make(chan transport.Inbound, 256),
		listener: listener,
		log:      log.WithField("component", "transport.tcp"),
		ctx:      cctx,
		cancel:   cancel,
	}

	t.wg.Add(2)
	go t.acceptLoop()
	go t.reconnectLoop()

	return t, nil
}

func (t *Transport) Inbound() <-chan transport.Inbound { return t.inbound }

// Send writes msg to peer's current connection, if one exists.
func (t *Transport) Send(ctx context.Context, peer types.NodeID, msg protocol.Message) error {
	t.mu.Lock()
	c, ok := t.conns[peer]
	t.mu.Unlock()
	if !ok {
		return transport.ErrDisconnected
	}
	if err := c.write(msg); err != nil {
		t.log.WithError(err).Debugf("send to node %d failed, dropping connection", peer)
		t.dropConn(peer, c)
		return transport.ErrDisconnected
	}
	return nil
}

func (t *Transport) Close() error {
	t.cancel()
	_ = t.listener.Close()
	t.mu.Lock()
	for id, c := range t.conns {
		c.close()
		delete(t.conns, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

// acceptLoop accepts inbound connections from lower-id peers; the higher
// id is always the acceptor in an ordered pair.
func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		nc, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.log.WithError(err).Warn("accept failed")
			continue
		}
		t.wg.Add(1)
		go t.handleAccepted(nc)
	}
}

// handleAccepted reads the first frame to learn the peer's identity,
// binds the connection to that peer's slot, and then reads frames until
// the connection drops.
func (t *Transport) handleAccepted(nc net.Conn) {
	defer t.wg.Done()

	msg, err := protocol.ReadFrame(nc)
	if err != nil {
		t.log.WithError(err).Debug("failed to read handshake frame from accepted connection")
		_ = nc.Close()
		return
	}

	peerID := msg.Sender()
	c := &conn{nc: nc}
	t.bindConn(peerID, c)
	t.deliver(peerID, msg)
	t.readLoop(peerID, c)
}

// bindConn installs c as the active connection for peerID, replacing any
// stale connection already bound to that slot.
func (t *Transport) bindConn(peerID types.NodeID, c *conn) {
	t.mu.Lock()
	if old, ok := t.conns[peerID]; ok {
		old.close()
	}
	t.conns[peerID] = c
	t.mu.Unlock()
}

func (t *Transport) dropConn(peerID types.NodeID, stale *conn) {
	t.mu.Lock()
	if cur, ok := t.conns[peerID]; ok && cur == stale {
		delete(t.conns, peerID)
	}
	t.mu.Unlock()
}

func (t *Transport) readLoop(peerID types.NodeID, c *conn) {
	for {
		msg, err := protocol.ReadFrame(c.nc)
		if err != nil {
			t.log.WithError(err).Debugf("connection to node %d closed", peerID)
			t.dropConn(peerID, c)
			return
		}
		t.deliver(peerID, msg)
	}
}

func (t *Transport) deliver(from types.NodeID, msg protocol.Message) {
	select {
	case t.inbound <- transport.Inbound{From: from, Msg: msg}:
	case <-t.ctx.Done():
	}
}

// reconnectLoop dials every peer with a strictly greater NodeID than
// self on a fixed cadence, for any slot currently missing a connection.
// Peers with a smaller NodeID are expected to dial us; we only ever
// accept from them. Smaller-dials-larger keeps every ordered pair down
// to exactly one connection without any runtime negotiation.
func (t *Transport) reconnectLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	t.tryDialMissing()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tryDialMissing()
		}
	}
}

func (t *Transport) tryDialMissing() {
	for id, addr := range t.peers {
		if id <= t.selfID {
			continue
		}
		t.mu.Lock()
		_, connected := t.conns[id]
		t.mu.Unlock()
		if connected {
			continue
		}
		t.dial(id, addr)
	}
}

func (t *Transport) dial(peerID types.NodeID, addr string) {
	nc, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		t.log.WithError(err).Debugf("dial node %d at %s failed", peerID, addr)
		return
	}

	c := &conn{nc: nc}
	// Announce ourselves so the acceptor can bind this connection to our
	// slot; a Discovery probe always serves as the handshake frame.
	if err := c.write(handshake(t.selfID)); err != nil {
		t.log.WithError(err).Debugf("handshake to node %d failed", peerID)
		_ = nc.Close()
		return
	}

	t.bindConn(peerID, c)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(peerID, c)
	}()
}

func handshake(self types.NodeID) protocol.Message {
	return protocol.Discovery{SenderID: self, Timestamp: time.Now().Unix()}
}

var _ transport.Interface = (*Transport)(nil)

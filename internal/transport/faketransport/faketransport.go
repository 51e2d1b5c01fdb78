// Package faketransport is an in-memory transport.Interface used by
// internal/election and internal/membership unit tests, so the
// Bully/heartbeat logic can be exercised deterministically without real
// sockets.
package faketransport

import (
	"context"
	"sync"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/transport"
	"github.com/clustervote/clustervote/internal/types"
)

// Network is the shared medium a set of Transports is wired into.
type Network struct {
	mu    sync.Mutex
	nodes map[types.NodeID]*Transport
}

// NewNetwork creates an empty fake network.
func NewNetwork() *Network {
	return &Network{nodes: make(map[types.NodeID]*Transport)}
}

// Transport is one node's endpoint on a Network.
type Transport struct {
	id      types.NodeID
	net     *Network
	inbound chan transport.Inbound

	mu      sync.Mutex
	dropped map[types.NodeID]bool
	closed  bool
}

// NewTransport registers id on net and returns its Transport endpoint.
func (n *Network) NewTransport(id types.NodeID) *Transport {
	t := &Transport{
		id:      id,
		net:     n,
		inbound: make(chan transport.Inbound, 256),
		dropped: make(map[types.NodeID]bool),
	}
	n.mu.Lock()
	n.nodes[id] = t
	n.mu.Unlock()
	return t
}

// Partition marks peer as unreachable from t (simulating a dead or
// partitioned node) until Heal is called.
func (t *Transport) Partition(peer types.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped[peer] = true
}

// Heal undoes a prior Partition.
func (t *Transport) Heal(peer types.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dropped, peer)
}

func (t *Transport) Inbound() <-chan transport.Inbound { return t.inbound }

// Send hands msg directly to peer's inbound channel, unless either side
// has partitioned the other or the transport has been closed.
func (t *Transport) Send(ctx context.Context, peer types.NodeID, msg protocol.Message) error {
	t.mu.Lock()
	blocked := t.dropped[peer]
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrDisconnected
	}
	if blocked {
		return transport.ErrDisconnected
	}

	t.net.mu.Lock()
	dst, ok := t.net.nodes[peer]
	t.net.mu.Unlock()
	if !ok {
		return transport.ErrDisconnected
	}

	dst.mu.Lock()
	peerBlocked := dst.dropped[t.id]
	peerClosed := dst.closed
	dst.mu.Unlock()
	if peerBlocked || peerClosed {
		return transport.ErrDisconnected
	}

	select {
	case dst.inbound <- transport.Inbound{From: t.id, Msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Non-blocking: a full inbound buffer behaves like a dropped
		// datagram rather than deadlocking the sender.
		return transport.ErrDisconnected
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

var _ transport.Interface = (*Transport)(nil)

// Package udp implements the datagram transport profile: best-effort,
// unordered, possibly-duplicating delivery with no connection state. The
// election engine is written to treat every handler as idempotent and
// lean on heartbeats for liveness, so this profile needs nothing beyond a
// single shared socket. Grounded on the UDP-based gossip/SWIM style
// transports retrieved alongside this spec (datagram peer loops that read
// one packet at a time and dispatch by decoded message kind).
package udp

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/transport"
	"github.com/clustervote/clustervote/internal/types"
)

// maxDatagram is large enough for any wire message this protocol defines.
const maxDatagram = 4096

// Transport is the datagram-profile implementation of transport.Interface.
type Transport struct {
	peers map[types.NodeID]string

	conn *net.UDPConn

	inbound chan transport.Inbound
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens a UDP socket on bindAddr and starts the receive loop.
func New(ctx context.Context, bindAddr string, peers map[types.NodeID]string, log *logrus.Entry) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve bind address %s", bindAddr)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen udp on %s", bindAddr)
	}

	cctx, cancel := context.WithCancel(ctx)
	t := &Transport{
		peers:   peers,
		conn:    conn,
		inbound: make(chan transport.Inbound, 256),
		log:     log.WithField("component", "transport.udp"),
		ctx:     cctx,
		cancel:  cancel,
	}

	t.wg.Add(1)
	go t.receiveLoop()
	return t, nil
}

func (t *Transport) Inbound() <-chan transport.Inbound { return t.inbound }

// Send marshals msg and fires it at peer's configured address. There is
// no acknowledgment at the transport level; delivery failure is
// indistinguishable from packet loss, and the heartbeat loop is what
// actually notices a dead peer.
func (t *Transport) Send(ctx context.Context, peer types.NodeID, msg protocol.Message) error {
	addrStr, ok := t.peers[peer]
	if !ok {
		return transport.ErrDisconnected
	}
	addr, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		return errors.Wrapf(err, "resolve address for node %d", peer)
	}
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		return errors.Wrapf(err, "write to node %d", peer)
	}
	return nil
}

func (t *Transport) Close() error {
	t.cancel()
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.log.WithError(err).Warn("udp read failed")
			continue
		}
		msg, err := protocol.Unmarshal(buf[:n])
		if err != nil {
			t.log.WithError(err).Warn("dropping malformed datagram")
			continue
		}
		select {
		case t.inbound <- transport.Inbound{From: msg.Sender(), Msg: msg}:
		case <-t.ctx.Done():
			return
		}
	}
}

var _ transport.Interface = (*Transport)(nil)

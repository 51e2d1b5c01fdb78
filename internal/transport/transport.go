// Package transport defines the channel abstraction the election engine
// is written against: frame, send, and receive typed protocol.Message
// values to/from each peer, surfacing connection loss but never
// interpreting message contents. Two concrete profiles satisfy it —
// internal/transport/tcp (stream, ordered, reconnecting) and
// internal/transport/udp (datagram, best-effort) — plus
// internal/transport/faketransport for tests.
package transport

import (
	"context"
	"errors"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/types"
)

// ErrDisconnected is returned by Send when no connection to the target
// peer currently exists. The election engine never treats this as a hard
// error: a missing delivery is indistinguishable from a slow or dead peer,
// and the failure detector's heartbeat timeout is what actually matters.
var ErrDisconnected = errors.New("transport: peer disconnected")

// Inbound pairs a decoded message with the peer it arrived from.
type Inbound struct {
	From types.NodeID
	Msg  protocol.Message
}

// Interface is the contract every transport profile implements. Call
// sites import a concrete profile (tcp.Transport, udp.Transport,
// faketransport.Transport) and hold it as this interface type.
type Interface interface {
	// Send delivers msg to peer. It returns ErrDisconnected if no
	// connection/route to peer currently exists, or a wrapped I/O error on
	// a write failure. Neither is ever surfaced to the election engine as
	// a hard failure; see internal/election.
	Send(ctx context.Context, peer types.NodeID, msg protocol.Message) error

	// Inbound is the stream of messages decoded from any peer.
	Inbound() <-chan Inbound

	// Close releases all sockets and stops background goroutines.
	Close() error
}

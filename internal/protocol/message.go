// Package protocol defines the wire messages the clustervote engine
// recognizes and a transport-agnostic, tagged-envelope codec for them.
// Any transport implementation must preserve these variants verbatim; the
// transport itself never interprets the payload.
package protocol

import "github.com/clustervote/clustervote/internal/types"

// Kind tags the variant carried by an envelope. Kept as a string so the
// wire encoding is self-describing without a side-channel schema.
type Kind string

const (
	KindDiscovery      Kind = "discovery"
	KindLeaderAnnounce Kind = "leader_announce"
	KindElection       Kind = "election"
	KindElectionOk     Kind = "election_ok"
	KindCoordinator    Kind = "coordinator"
	KindHeartbeat      Kind = "heartbeat"
	KindHeartbeatAck   Kind = "heartbeat_ack"
)

// Message is implemented by every wire variant. Kind identifies the
// variant for the tagged envelope; Sender is used on the stream profile
// to bind a freshly accepted connection to a peer slot, since the first
// message on a new connection is the only way the acceptor learns who
// dialed it.
type Message interface {
	Kind() Kind
	Sender() types.NodeID
}

// Discovery probes for a leader at startup.
type Discovery struct {
	SenderID  types.NodeID `json:"sender_id"`
	Timestamp int64        `json:"timestamp"`
}

func (m Discovery) Kind() Kind           { return KindDiscovery }
func (m Discovery) Sender() types.NodeID { return m.SenderID }

// LeaderAnnounce is the leader's unicast reply to a Discovery.
type LeaderAnnounce struct {
	LeaderID  types.NodeID `json:"leader_id"`
	Timestamp int64        `json:"timestamp"`
}

func (m LeaderAnnounce) Kind() Kind           { return KindLeaderAnnounce }
func (m LeaderAnnounce) Sender() types.NodeID { return m.LeaderID }

// Election is the Bully election probe.
type Election struct {
	SenderID  types.NodeID `json:"sender_id"`
	Timestamp int64        `json:"timestamp"`
}

func (m Election) Kind() Kind           { return KindElection }
func (m Election) Sender() types.NodeID { return m.SenderID }

// ElectionOk means "I'm alive and higher than you; stand down."
type ElectionOk struct {
	SenderID  types.NodeID `json:"sender_id"`
	Timestamp int64        `json:"timestamp"`
}

func (m ElectionOk) Kind() Kind           { return KindElectionOk }
func (m ElectionOk) Sender() types.NodeID { return m.SenderID }

// Coordinator is broadcast by the winner of an election.
type Coordinator struct {
	LeaderID  types.NodeID `json:"leader_id"`
	Timestamp int64        `json:"timestamp"`
}

func (m Coordinator) Kind() Kind           { return KindCoordinator }
func (m Coordinator) Sender() types.NodeID { return m.LeaderID }

// Heartbeat is the periodic leader -> peers liveness signal. SuccessorID
// is nil when the leader currently has no other live peer to designate.
type Heartbeat struct {
	LeaderID    types.NodeID  `json:"leader_id"`
	SuccessorID *types.NodeID `json:"successor_id,omitempty"`
	Timestamp   int64         `json:"timestamp"`
}

func (m Heartbeat) Kind() Kind           { return KindHeartbeat }
func (m Heartbeat) Sender() types.NodeID { return m.LeaderID }

// HeartbeatAck is a peer's acknowledgment of a Heartbeat, feeding the
// leader's successor computation.
type HeartbeatAck struct {
	SenderID  types.NodeID `json:"sender_id"`
	Timestamp int64        `json:"timestamp"`
}

func (m HeartbeatAck) Kind() Kind           { return KindHeartbeatAck }
func (m HeartbeatAck) Sender() types.NodeID { return m.SenderID }

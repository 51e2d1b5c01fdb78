package election

import "github.com/clustervote/clustervote/internal/types"

// clusterState is the node's view of the cluster: role, leader,
// successor hint, election guard. It is mutated only from inside
// Engine.run's single goroutine; every external reader goes through
// Engine's published snapshot instead (see engine.go).
type clusterState struct {
	role Role

	// currentLeader is nil when "no leader known; an election must be
	// started."
	currentLeader *types.NodeID

	// successor is the leader's designated fast-failover candidate, or
	// (on a follower) the latest value learned from a heartbeat.
	successor *types.NodeID

	// electionInProgress guards against reentrant elections on this node.
	electionInProgress bool
}

// Role is an alias kept local to the package so call sites read
// election.Role instead of reaching into internal/types for it.
type Role = types.Role

const (
	Follower  = types.Follower
	Candidate = types.Candidate
	Leader    = types.Leader
)

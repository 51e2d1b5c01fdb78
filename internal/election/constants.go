package election

import "time"

// Timing knobs for the election and heartbeat loops. They are
// configuration, not algorithm constants — Config lets a caller override
// every one of them; these are just the defaults.
const (
	// DefaultHeartbeatInterval is H: how often the leader emits a
	// Heartbeat.
	DefaultHeartbeatInterval = 2 * time.Second

	// DefaultFailTimeout is T_fail ≈ 2.5·H: how long a follower waits
	// without a heartbeat before declaring the leader dead.
	DefaultFailTimeout = 5 * time.Second

	// DefaultElectionWait is T_wait for the classic Bully fan-out: how
	// long a candidate waits for an OK before declaring victory.
	DefaultElectionWait = 1500 * time.Millisecond

	// DefaultSuccessorWait is the shorter wait used by the successor
	// short-circuit path: only one peer is being probed, so there is no
	// reason to wait the full classic-election window for it.
	DefaultSuccessorWait = 800 * time.Millisecond

	// DefaultDiscoveryWait bounds the startup probe-for-leader window
	// before a node gives up and initiates its own election.
	DefaultDiscoveryWait = 1 * time.Second

	// AlivenessWindowFactor sets the aliveness cutoff for successor
	// computation at two heartbeat intervals, so a single lost ack never
	// disqualifies a live peer.
	AlivenessWindowFactor = 2
)

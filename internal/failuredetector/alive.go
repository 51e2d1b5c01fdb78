// Package failuredetector holds the pure bookkeeping the heartbeat loop
// needs: per-peer last-seen tracking, successor computation from the set
// of peers that have recently acknowledged a heartbeat, and the
// follower-side liveness watch. Deliberately free of goroutines and
// locks: the election engine's single-consumer event loop is the only
// caller, and it is already the node's sole serialization point.
package failuredetector

import (
	"time"

	"github.com/clustervote/clustervote/internal/types"
)

// AliveTracker is the leader-side record of which peers have recently
// acknowledged a heartbeat. It is cleared every time this node becomes
// leader and repopulated from incoming HeartbeatAck messages.
type AliveTracker struct {
	window   time.Duration
	lastSeen map[types.NodeID]time.Time
}

// NewAliveTracker builds a tracker using window as the "recently acked"
// cutoff, normally two heartbeat intervals.
func NewAliveTracker(window time.Duration) *AliveTracker {
	return &AliveTracker{
		window:   window,
		lastSeen: make(map[types.NodeID]time.Time),
	}
}

// Ack records that id acknowledged a heartbeat at now.
func (a *AliveTracker) Ack(id types.NodeID, now time.Time) {
	a.lastSeen[id] = now
}

// Reset clears all tracked acknowledgments. Called whenever this node
// (re)becomes leader, so a stale ack from a previous reign never feeds
// the successor choice.
func (a *AliveTracker) Reset() {
	a.lastSeen = make(map[types.NodeID]time.Time)
}

// Successor returns the highest NodeID, other than self, whose last ack
// is within the aliveness window of now, or nil if no peer qualifies. A
// nil successor disables the fast-failover path until the first ack
// arrives; the classic election still covers that case.
func (a *AliveTracker) Successor(self types.NodeID, now time.Time) *types.NodeID {
	var best *types.NodeID
	for id, seen := range a.lastSeen {
		if id == self {
			continue
		}
		if now.Sub(seen) > a.window {
			continue
		}
		id := id
		if best == nil || id > *best {
			best = &id
		}
	}
	return best
}

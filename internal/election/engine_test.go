package election_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustervote/clustervote/internal/election"
	"github.com/clustervote/clustervote/internal/logging"
	"github.com/clustervote/clustervote/internal/membership"
	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/transport/faketransport"
	"github.com/clustervote/clustervote/internal/types"
)

// testConfig uses a fast, but still real, wall-clock cadence so elections
// settle in well under a second without needing a fake clock for the
// scheduled timers themselves (only engine-internal timestamps accept Clock
// overrides). Leader failure is still only noticed on the engine's fixed 1s
// liveness tick, so the failover tests take about a second each.
func testConfig() election.Config {
	return election.Config{
		HeartbeatInterval: 40 * time.Millisecond,
		FailTimeout:       150 * time.Millisecond,
		ElectionWait:      80 * time.Millisecond,
		SuccessorWait:     40 * time.Millisecond,
		DiscoveryWait:     20 * time.Millisecond,
	}
}

type testCluster struct {
	t       *testing.T
	engines map[types.NodeID]*election.Engine
	trans   map[types.NodeID]*faketransport.Transport
	net     *faketransport.Network
	cancel  context.CancelFunc
}

func newTestCluster(t *testing.T, ids []types.NodeID) *testCluster {
	return newTestClusterWithConfig(t, ids, testConfig())
}

func newTestClusterWithConfig(t *testing.T, ids []types.NodeID, cfg election.Config) *testCluster {
	nodes := map[types.NodeID]string{}
	for _, id := range ids {
		nodes[id] = "fake"
	}
	cluster := types.ClusterConfig{Nodes: nodes}

	ctx, cancel := context.WithCancel(context.Background())
	net := faketransport.NewNetwork()
	tc := &testCluster{
		t:       t,
		engines: make(map[types.NodeID]*election.Engine),
		trans:   make(map[types.NodeID]*faketransport.Transport),
		net:     net,
		cancel:  cancel,
	}

	for _, id := range ids {
		tr := net.NewTransport(id)
		tc.trans[id] = tr
		log := logging.New(id)
		members := membership.New(id, cluster, tr)
		e := election.New(id, members, tr, log, cfg)
		tc.engines[id] = e
	}
	for _, id := range ids {
		tc.engines[id].Start(ctx)
	}
	return tc
}

func (tc *testCluster) stop() {
	tc.cancel()
	for _, e := range tc.engines {
		e.Stop()
	}
}

// kill removes a node's engine from the cluster entirely, closing its
// transport so the remaining nodes observe it as permanently unreachable
// rather than merely slow.
func (tc *testCluster) kill(id types.NodeID) {
	tc.engines[id].Stop()
	_ = tc.trans[id].Close()
}

// awaitLeader polls every engine except the excluded ids until they all
// agree on the same CurrentLeader, or fails the test after timeout. An
// excluded (killed) id never counts as the agreed leader, so survivors that
// still hold a dead leader's id have not converged yet.
func (tc *testCluster) awaitLeader(timeout time.Duration, exclude ...types.NodeID) types.NodeID {
	tc.t.Helper()
	excluded := make(map[types.NodeID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		leaders := map[types.NodeID]types.NodeID{}
		allAgree := true
		for id, e := range tc.engines {
			if excluded[id] {
				continue
			}
			leader, ok := e.CurrentLeader()
			if !ok || excluded[leader] {
				allAgree = false
				break
			}
			leaders[id] = leader
		}
		if allAgree && len(leaders) > 0 {
			var first types.NodeID
			consistent := true
			for _, l := range leaders {
				if first == 0 {
					first = l
					continue
				}
				if l != first {
					consistent = false
					break
				}
			}
			if consistent {
				return first
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	tc.t.Fatalf("nodes did not converge on a single leader within %s", timeout)
	return 0
}

// A cold-started cluster with no prior leader must converge on the
// highest configured NodeID.
func TestColdStartElectsHighestID(t *testing.T) {
	tc := newTestCluster(t, []types.NodeID{1, 2, 3})
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	assert.Equal(t, types.NodeID(3), leader)
	assert.True(t, tc.engines[3].IsLeader())
	assert.False(t, tc.engines[1].IsLeader())
	assert.False(t, tc.engines[2].IsLeader())
}

// Once a leader is established and heartbeats have run long enough for
// the leader to learn a successor, killing the leader must produce fast
// failover onto that successor.
func TestLeaderKillFastFailoverToSuccessor(t *testing.T) {
	tc := newTestCluster(t, []types.NodeID{1, 2, 3})
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.Equal(t, types.NodeID(3), leader)

	// Let a few heartbeat rounds pass so the leader's AliveTracker has acks
	// to compute a successor from, and followers have cached the hint.
	time.Sleep(200 * time.Millisecond)
	successor, ok := tc.engines[1].Successor()
	require.True(t, ok)
	assert.Equal(t, types.NodeID(2), successor)

	// Watch node 2's role across the failover window: the successor
	// short-circuit must take it straight from Follower to Leader, never
	// bouncing through Candidate on a straggling Election from node 1.
	roles := make(chan election.Role, 64)
	stopWatch := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		var last election.Role = -1
		for {
			select {
			case <-stopWatch:
				return
			default:
			}
			if r := tc.engines[2].Role(); r != last {
				roles <- r
				last = r
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	tc.kill(3)

	newLeader := tc.awaitLeader(1*time.Second, 3)
	assert.Equal(t, types.NodeID(2), newLeader)

	time.Sleep(50 * time.Millisecond)
	close(stopWatch)
	<-watchDone
	close(roles)
	for r := range roles {
		assert.NotEqual(t, election.Candidate, r, "node 2 must never flicker back to Candidate once it has promoted itself via the successor short-circuit")
	}
}

// When no successor hint has been learned yet (the leader dies before
// its first heartbeat round completes), the cluster must still converge via
// the classic broadcast-based Bully path rather than the successor
// short-circuit.
func TestClassicBullyFallbackWithNoSuccessorHint(t *testing.T) {
	// HeartbeatInterval is set far longer than the rest of the test so no
	// heartbeat round ever completes, guaranteeing no successor hint
	// propagates and the fallback election must take the classic path.
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Second

	tc := newTestClusterWithConfig(t, []types.NodeID{1, 2, 3}, cfg)
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.Equal(t, types.NodeID(3), leader)

	_, ok := tc.engines[1].Successor()
	require.False(t, ok, "test assumes no successor hint has propagated yet")

	tc.kill(3)

	newLeader := tc.awaitLeader(2*time.Second, 3)
	assert.Equal(t, types.NodeID(2), newLeader)
}

// A higher-id node that joins after the cluster has already settled on
// a lower-id leader must not permanently adopt that leader — it discovers
// it via the startup Discovery handshake, then challenges and preempts it,
// and the whole cluster must converge on the new, higher id.
func TestRecoveredHigherIDPreemptsLowerIDLeader(t *testing.T) {
	tc := newTestCluster(t, []types.NodeID{1, 2, 3})
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.Equal(t, types.NodeID(3), leader)

	nodes := map[types.NodeID]string{1: "fake", 2: "fake", 3: "fake", 4: "fake"}
	cluster := types.ClusterConfig{Nodes: nodes}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := tc.net.NewTransport(4)
	members := membership.New(4, cluster, tr)
	e4 := election.New(4, members, tr, logging.New(4), testConfig())
	tc.engines[4] = e4
	tc.trans[4] = tr
	e4.Start(ctx)
	defer e4.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		allOnFour := true
		for id, e := range tc.engines {
			l, ok := e.CurrentLeader()
			if !ok || l != 4 {
				allOnFour = false
				break
			}
			if id == 4 && !e.IsLeader() {
				allOnFour = false
				break
			}
		}
		if allOnFour {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("recovered higher-id node never preempted the existing lower-id leader")
}

// A node started alone — its higher-id peers are configured but none of
// them are reachable — must win its own election after the classic wait and
// carry no successor hint.
func TestIsolatedStartupBecomesLeaderAlone(t *testing.T) {
	cluster := types.ClusterConfig{Nodes: map[types.NodeID]string{
		1: "fake", 2: "fake", 3: "fake",
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nodes 2 and 3 are never registered on the network, so every send to
	// them fails exactly like an unreachable host.
	net := faketransport.NewNetwork()
	tr := net.NewTransport(1)
	members := membership.New(1, cluster, tr)
	e := election.New(1, members, tr, logging.New(1), testConfig())
	e.Start(ctx)
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !e.IsLeader() {
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, e.IsLeader(), "isolated node never promoted itself")

	leader, ok := e.CurrentLeader()
	require.True(t, ok)
	assert.Equal(t, types.NodeID(1), leader)

	_, ok = e.Successor()
	assert.False(t, ok, "a leader alone in the cluster must designate no successor")
}

// A Coordinator announcement with a lower id than the currently accepted
// leader must be ignored, so the accepted leader id never moves backwards.
func TestLowerIDCoordinatorIgnoredWhenLeaderKnown(t *testing.T) {
	tc := newTestCluster(t, []types.NodeID{1, 2, 3})
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.Equal(t, types.NodeID(3), leader)

	stray := tc.net.NewTransport(99)
	require.NoError(t, stray.Send(context.Background(), 1, protocol.Coordinator{LeaderID: 2, Timestamp: time.Now().Unix()}))

	time.Sleep(50 * time.Millisecond)
	after, ok := tc.engines[1].CurrentLeader()
	require.True(t, ok)
	assert.Equal(t, types.NodeID(3), after)
	assert.False(t, tc.engines[1].IsLeader())
}

// A duplicate Coordinator announcement from the already-accepted leader
// must be idempotent — it must not demote anyone or trigger a new election.
func TestDuplicateCoordinatorIsIdempotent(t *testing.T) {
	tc := newTestCluster(t, []types.NodeID{1, 2, 3})
	defer tc.stop()

	leader := tc.awaitLeader(2 * time.Second)
	require.Equal(t, types.NodeID(3), leader)

	before, ok := tc.engines[1].CurrentLeader()
	require.True(t, ok)

	// Replay a Coordinator announcement directly into node 1's inbound
	// stream, simulating a duplicate delivery.
	dup := tc.net.NewTransport(99)
	require.NoError(t, dup.Send(context.Background(), 1, protocol.Coordinator{LeaderID: 3, Timestamp: time.Now().Unix()}))

	time.Sleep(50 * time.Millisecond)
	after, ok := tc.engines[1].CurrentLeader()
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, types.NodeID(3), after)
}

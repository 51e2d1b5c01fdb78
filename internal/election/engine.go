// Package election implements the node state machine, the Bully election
// protocol with a successor fast-path, and the coordinator that owns and
// serializes all of it. It is the heart of clustervote: everything else
// in this repository exists to feed messages and timer ticks into
// Engine.run's single-consumer event loop.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/failuredetector"
	"github.com/clustervote/clustervote/internal/membership"
	"github.com/clustervote/clustervote/internal/transport"
	"github.com/clustervote/clustervote/internal/types"
)

// snapshot is the externally-readable projection of clusterState,
// published after every event the loop processes. Readers like the
// health supervisor and the CLI never block on the event loop and never
// race with it; the loop remains the only writer of the real state.
type snapshot struct {
	role          Role
	currentLeader *types.NodeID
	successor     *types.NodeID
}

// Engine is the coordinator (glue) component: it owns clusterState, runs
// the election algorithm and heartbeat/failure-detection logic, and is
// the only thing in the process allowed to mutate that state.
type Engine struct {
	selfID  types.NodeID
	members *membership.Manager
	t       transport.Interface
	log     *logrus.Entry
	cfg     Config

	state    clusterState
	alive    *failuredetector.AliveTracker
	liveness *failuredetector.LivenessWatch

	// epoch invalidates in-flight timers whenever the election concludes
	// (becomeLeader, acceptLeader) or a brand new attempt begins
	// (startElection). See events.go.
	epoch uint64

	pendingWait *pendingWait

	events   chan event
	leaderCh chan bool

	snapMu sync.RWMutex
	snap   snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pendingWait tracks the single in-flight election-wait round. Only one
// can ever be active: election_in_progress guards reentrancy.
type pendingWait struct {
	epoch           uint64
	successorPath   bool
	successorTarget types.NodeID
	okReceived      bool
}

// New builds an Engine. It does not start any goroutine; call Start.
func New(selfID types.NodeID, members *membership.Manager, t transport.Interface, log *logrus.Entry, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		selfID:   selfID,
		members:  members,
		t:        t,
		log:      log.WithField("component", "election"),
		cfg:      cfg,
		alive:    failuredetector.NewAliveTracker(cfg.AlivenessWindow()),
		liveness: failuredetector.NewLivenessWatch(cfg.Clock()),
		events:   make(chan event, 256),
		leaderCh: make(chan bool, 8),
	}
	e.publishSnapshot()
	return e
}

// Start launches the event loop and begins the startup leader-discovery
// probe. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pumpInbound()
	}()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
}

// Stop cancels the event loop and waits for every background goroutine
// (timers, the inbound pump) to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pumpInbound relays decoded messages from the transport into the event
// queue, so the transport's own goroutines never touch clusterState
// directly.
func (e *Engine) pumpInbound() {
	for {
		select {
		case in, ok := <-e.t.Inbound():
			if !ok {
				return
			}
			e.postEvent(inboundEvent{from: in.From, msg: in.Msg})
		case <-e.ctx.Done():
			return
		}
	}
}

// run is the single-consumer loop: every state mutation in this package
// happens on this goroutine.
func (e *Engine) run() {
	e.discover()

	heartbeatTicker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	// Liveness is checked on a fixed 1s cadence independent of H, mirroring
	// the teacher's monitorElectionTimeout ticker.
	livenessTicker := time.NewTicker(1 * time.Second)
	defer livenessTicker.Stop()

	for {
		select {
		case ev := <-e.events:
			e.dispatch(ev)
			e.publishSnapshot()
		case <-heartbeatTicker.C:
			e.dispatch(heartbeatTickEvent{})
			e.publishSnapshot()
		case <-livenessTicker.C:
			e.dispatch(livenessTickEvent{})
			e.publishSnapshot()
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) dispatch(ev event) {
	switch v := ev.(type) {
	case inboundEvent:
		e.handleInbound(v.from, v.msg)
	case heartbeatTickEvent:
		if e.state.role == Leader {
			e.sendHeartbeats()
		}
	case livenessTickEvent:
		e.checkLiveness()
	case waitTimeoutEvent:
		e.handleWaitTimeout(v)
	}
}

func (e *Engine) now() time.Time { return e.cfg.Clock() }

func (e *Engine) bump() uint64 {
	e.epoch++
	return e.epoch
}

func (e *Engine) publishSnapshot() {
	e.snapMu.Lock()
	e.snap = snapshot{
		role:          e.state.role,
		currentLeader: e.state.currentLeader,
		successor:     e.state.successor,
	}
	e.snapMu.Unlock()
}

// notifyLeadership sends on leaderCh whenever leadership status actually
// flips, mirroring the teacher's LeaderChan semantics.
func (e *Engine) notifyLeadership(wasLeader bool) {
	isLeader := e.state.role == Leader
	if wasLeader == isLeader {
		return
	}
	select {
	case e.leaderCh <- isLeader:
	default:
	}
}

// IsLeader reports whether this node currently believes itself to be
// leader.
func (e *Engine) IsLeader() bool {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.role == Leader
}

// Role returns the node's current role.
func (e *Engine) Role() Role {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.role
}

// CurrentLeader returns the NodeID this node currently believes is
// leader, and false if none is known.
func (e *Engine) CurrentLeader() (types.NodeID, bool) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.snap.currentLeader == nil {
		return 0, false
	}
	return *e.snap.currentLeader, true
}

// Successor returns the currently known successor hint, if any.
func (e *Engine) Successor() (types.NodeID, bool) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.snap.successor == nil {
		return 0, false
	}
	return *e.snap.successor, true
}

// LeaderEvents streams true when this node gains leadership and false
// when it loses it.
func (e *Engine) LeaderEvents() <-chan bool {
	return e.leaderCh
}

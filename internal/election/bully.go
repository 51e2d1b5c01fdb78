package election

import (
	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/types"
)

// discover runs the startup probe-for-leader handshake: broadcast a
// Discovery to every peer, and if nothing establishes a leader within
// DiscoveryWait, fall through to a regular election. A node joining a
// settled cluster this way learns the leader without disturbing it.
func (e *Engine) discover() {
	ep := e.epoch
	e.members.Broadcast(e.ctx, protocol.Discovery{SenderID: e.selfID, Timestamp: e.now().Unix()})
	e.scheduleAfter(e.cfg.DiscoveryWait, waitTimeoutEvent{epoch: ep, kind: waitDiscovery})
}

func (e *Engine) handleInbound(from types.NodeID, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Discovery:
		e.handleDiscovery(from, m)
	case protocol.LeaderAnnounce:
		e.handleLeaderAnnounce(m)
	case protocol.Election:
		e.handleElection(from, m)
	case protocol.ElectionOk:
		e.handleElectionOk(m)
	case protocol.Coordinator:
		e.handleCoordinator(m)
	case protocol.Heartbeat:
		e.handleHeartbeat(from, m)
	case protocol.HeartbeatAck:
		e.handleHeartbeatAck(from)
	}
}

// handleDiscovery answers a probe with LeaderAnnounce, but only if this
// node is the leader. Followers stay quiet: the prober either hears from
// the leader itself or concludes there is none and elects.
func (e *Engine) handleDiscovery(from types.NodeID, msg protocol.Discovery) {
	if e.state.role != Leader {
		return
	}
	_ = e.members.SendTo(e.ctx, from, protocol.LeaderAnnounce{LeaderID: e.selfID, Timestamp: e.now().Unix()})
}

func (e *Engine) handleLeaderAnnounce(msg protocol.LeaderAnnounce) {
	e.acceptLeader(msg.LeaderID)
}

// handleElection responds to an Election(sender_id) probe. Reply OK if
// the sender is lower-id, and start our own election if one isn't
// already running. A sender with an id >= ours is ignored (it can only
// be us, or a malformed peer). A node that already holds leadership
// answers OK and restates its Coordinator announcement instead of
// re-entering Candidate: the challenger has evidently lost track of the
// leader (a timed-out follower whose heartbeats went missing), and the
// announcement is what lets it re-accept us — a bare OK would leave it
// waiting for a Coordinator that never comes.
func (e *Engine) handleElection(from types.NodeID, msg protocol.Election) {
	if msg.SenderID >= e.selfID {
		return
	}
	_ = e.members.SendTo(e.ctx, from, protocol.ElectionOk{SenderID: e.selfID, Timestamp: e.now().Unix()})
	if e.state.role == Leader {
		_ = e.members.SendTo(e.ctx, from, protocol.Coordinator{LeaderID: e.selfID, Timestamp: e.now().Unix()})
		return
	}
	if !e.state.electionInProgress {
		e.startElection()
	}
}

// handleElectionOk records that a higher peer is alive and will drive the
// election; the candidate steps back to Follower right away (the
// Candidate -> Follower transition on OK) but keeps the election guard
// raised until that peer's Coordinator arrives or the hard timeout
// clears it.
func (e *Engine) handleElectionOk(msg protocol.ElectionOk) {
	if e.pendingWait == nil || e.pendingWait.epoch != e.epoch {
		return
	}
	if msg.SenderID <= e.selfID {
		return
	}
	e.pendingWait.okReceived = true
	e.state.role = Follower
}

// handleCoordinator accepts (or rejects, per the tie-break rule) a
// Coordinator announcement.
func (e *Engine) handleCoordinator(msg protocol.Coordinator) {
	e.acceptLeader(msg.LeaderID)
}

// acceptLeader is the single entry point for "a leader with this id is
// now known", used by both Coordinator and LeaderAnnounce. Tie-break: a
// lower-id announcement is accepted only when no leader is currently
// known; a higher-id announcement always supersedes; an equal-id
// announcement (including a duplicate from the same leader) is
// idempotent but still refreshes liveness.
//
// A higher-id node that discovers a running lower-id leader (a node
// restarting into an already-settled cluster) never settles as its
// follower: the Bully invariant is that the highest live id always ends
// up leader, so acceptLeader installs the lower-id leader (stepping down
// to Follower), then clears that leader view again and immediately
// challenges it with its own election instead of waiting for that leader
// to fail.
func (e *Engine) acceptLeader(leaderID types.NodeID) {
	if cur := e.state.currentLeader; cur != nil && leaderID < *cur {
		e.log.Debugf("ignoring lower-id leader announcement %d, current leader is %d", leaderID, *cur)
		return
	}

	wasLeader := e.state.role == Leader
	challenge := leaderID < e.selfID

	id := leaderID
	e.state.currentLeader = &id
	e.state.electionInProgress = false
	e.pendingWait = nil

	if leaderID == e.selfID {
		e.state.role = Leader
	} else {
		if e.state.role != Follower {
			e.log.Infof("accepted leader %d, stepping down", leaderID)
		}
		e.state.role = Follower
		e.liveness.Touch(e.now())
	}

	e.bump()
	e.notifyLeadership(wasLeader)

	if challenge {
		e.log.Infof("accepted leader %d has a lower id than self %d, challenging", leaderID, e.selfID)
		e.state.currentLeader = nil
		e.startElection()
	}
}

// startElection runs the Bully algorithm with the successor
// short-circuit: a node designated as successor promotes itself without
// contacting anyone, a node that knows of a higher successor tries that
// one peer first on a short deadline, and only then does the classic
// contact-all-higher-peers fan-out run. Reentrant calls return
// immediately; electionInProgress is the guard.
func (e *Engine) startElection() {
	if e.state.electionInProgress {
		return
	}
	e.state.electionInProgress = true
	e.state.role = Candidate
	ep := e.bump()

	e.log.Info("starting election")

	if e.state.successor != nil && *e.state.successor == e.selfID {
		e.log.Info("successor short-circuit: promoting self directly")
		e.becomeLeader()
		return
	}

	if e.state.successor != nil && *e.state.successor > e.selfID {
		s := *e.state.successor
		e.pendingWait = &pendingWait{epoch: ep, successorPath: true, successorTarget: s}
		_ = e.members.SendTo(e.ctx, s, protocol.Election{SenderID: e.selfID, Timestamp: e.now().Unix()})
		e.scheduleAfter(e.cfg.SuccessorWait, waitTimeoutEvent{epoch: ep, kind: waitElection})
		return
	}

	e.runClassicBully(ep)
}

// runClassicBully sends Election to every higher-id peer and starts the
// classic T_wait timer, or becomes leader immediately if there are no
// higher peers at all.
func (e *Engine) runClassicBully(ep uint64) {
	if !e.members.HasHigherPeers() {
		e.log.Info("no higher peers configured, becoming leader immediately")
		e.becomeLeader()
		return
	}
	e.pendingWait = &pendingWait{epoch: ep, successorPath: false}
	e.members.SendToHigher(e.ctx, protocol.Election{SenderID: e.selfID, Timestamp: e.now().Unix()})
	e.scheduleAfter(e.cfg.ElectionWait, waitTimeoutEvent{epoch: ep, kind: waitElection})
}

func (e *Engine) handleWaitTimeout(ev waitTimeoutEvent) {
	if ev.epoch != e.epoch {
		return // stale: election already concluded or restarted
	}
	switch ev.kind {
	case waitDiscovery:
		if e.state.currentLeader == nil && !e.state.electionInProgress {
			e.startElection()
		}
	case waitElection:
		e.handleElectionWaitExpired(ev)
	case waitElectionHard:
		e.handleElectionHardTimeout()
	}
}

func (e *Engine) handleElectionWaitExpired(ev waitTimeoutEvent) {
	round := e.pendingWait
	if round == nil || round.epoch != ev.epoch {
		return
	}

	if round.successorPath && !round.okReceived {
		e.log.Infof("successor %d did not respond, falling back to classic bully", round.successorTarget)
		ep := e.bump()
		e.runClassicBully(ep)
		return
	}

	if round.okReceived {
		e.log.Debug("higher peer acknowledged election, awaiting coordinator announcement")
		e.pendingWait = nil
		// A hard timeout bounds how long we'll wait for the higher peer's
		// Coordinator before clearing the reentrancy guard ourselves, so a
		// higher peer that dies mid-election can't wedge us in Candidate.
		e.scheduleAfter(e.cfg.ElectionWait, waitTimeoutEvent{epoch: e.epoch, kind: waitElectionHard})
		return
	}

	e.log.Info("no higher peer responded, becoming leader")
	e.pendingWait = nil
	e.becomeLeader()
}

func (e *Engine) handleElectionHardTimeout() {
	if e.state.currentLeader != nil {
		return
	}
	e.log.Warn("election hard timeout elapsed without a coordinator announcement, clearing guard")
	e.state.electionInProgress = false
	e.state.role = Follower
	e.pendingWait = nil
}

// becomeLeader installs self as leader: the alive set starts empty (it
// repopulates from incoming acks), the successor designation is dropped
// until a peer proves itself alive, and the win is announced to everyone.
func (e *Engine) becomeLeader() {
	wasLeader := e.state.role == Leader && e.state.currentLeader != nil && *e.state.currentLeader == e.selfID

	self := e.selfID
	e.state.role = Leader
	e.state.currentLeader = &self
	e.state.successor = nil
	e.state.electionInProgress = false
	e.pendingWait = nil
	e.alive.Reset()
	e.liveness.Touch(e.now())
	e.bump()

	e.log.Infof("became leader")
	e.members.Broadcast(e.ctx, protocol.Coordinator{LeaderID: self, Timestamp: e.now().Unix()})
	e.notifyLeadership(wasLeader)
}

// sendHeartbeats is the leader-side tick of the heartbeat loop:
// recompute the successor from the set of recently-acked peers and
// broadcast it alongside the liveness signal.
func (e *Engine) sendHeartbeats() {
	successor := e.alive.Successor(e.selfID, e.now())
	e.state.successor = successor
	e.members.Broadcast(e.ctx, protocol.Heartbeat{
		LeaderID:    e.selfID,
		SuccessorID: successor,
		Timestamp:   e.now().Unix(),
	})
}

// handleHeartbeat is the follower-side handler: accept only heartbeats
// from the currently accepted leader (anything else is stale or from a
// split-brain older leader), refresh liveness, cache the successor hint,
// and ack.
func (e *Engine) handleHeartbeat(from types.NodeID, msg protocol.Heartbeat) {
	if e.state.currentLeader == nil || *e.state.currentLeader != msg.LeaderID {
		return
	}
	e.liveness.Touch(e.now())
	e.state.successor = msg.SuccessorID
	_ = e.members.SendTo(e.ctx, from, protocol.HeartbeatAck{SenderID: e.selfID, Timestamp: e.now().Unix()})
}

// handleHeartbeatAck feeds the leader-side alive tracker that successor
// computation depends on.
func (e *Engine) handleHeartbeatAck(from types.NodeID) {
	if e.state.role != Leader {
		return
	}
	e.alive.Ack(from, e.now())
}

// checkLiveness is the follower-side leader-liveness timeout check, run
// on every liveness tick: a leader silent past FailTimeout is presumed
// dead and an election begins.
func (e *Engine) checkLiveness() {
	if e.state.role == Leader {
		return
	}
	if e.state.electionInProgress {
		return
	}
	if e.state.currentLeader == nil {
		e.startElection()
		return
	}
	if e.liveness.Expired(e.now(), e.cfg.FailTimeout) {
		e.log.Warnf("leader %d timeout after %s, starting election", *e.state.currentLeader, e.liveness.Since(e.now()))
		e.state.currentLeader = nil
		e.bump()
		e.startElection()
	}
}

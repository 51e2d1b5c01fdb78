// Package monitor implements the leader-gated health supervisor: once a
// node wins the election it starts probing the other cluster members
// (and any external workers handed to it) over a tiny line-based TCP
// protocol, and hands confirmed failures to internal/docker for
// remediation. A follower never runs these checks — leadership is the
// gate — and the probe itself carries election state: the responder
// reports which leader it is following, so the supervisor can tell a
// dead peer from a live peer with a stale view of the cluster.
package monitor

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/types"
)

const (
	pingMessage = "PING"
	pongPrefix  = "PONG"

	// noLeaderField is what a responder reports while it has no accepted
	// leader (mid-election, or still discovering).
	noLeaderField = "-"

	dialTimeout = 2 * time.Second
	readTimeout = 2 * time.Second
)

// ProbeResult is one health probe's outcome. LeaderID is the leader the
// responder claims to be following, nil when it reported none (or when
// the probe failed outright).
type ProbeResult struct {
	Alive    bool
	LeaderID *types.NodeID
}

// FollowsLeader reports whether the probed peer is alive and agrees that
// leader is the current leader.
func (r ProbeResult) FollowsLeader(leader types.NodeID) bool {
	return r.Alive && r.LeaderID != nil && *r.LeaderID == leader
}

// HealthChecker probes TCP endpoints with the PING protocol.
type HealthChecker struct {
	log *logrus.Entry
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(log *logrus.Entry) *HealthChecker {
	return &HealthChecker{log: log.WithField("component", "monitor")}
}

// Probe checks one endpoint. Protocol: connect, send "PING", expect
// "PONG <leader-id>" (or "PONG -" from a node with no leader view; a
// bare "PONG" from a plain worker counts as alive with no view).
func (hc *HealthChecker) Probe(host, port string) ProbeResult {
	address := net.JoinHostPort(host, port)

	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		hc.log.WithError(err).Debugf("failed to connect to %s", address)
		return ProbeResult{}
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		hc.log.WithError(err).Debugf("failed to set read deadline for %s", address)
		return ProbeResult{}
	}

	if _, err := conn.Write([]byte(pingMessage)); err != nil {
		hc.log.WithError(err).Debugf("failed to send %s to %s", pingMessage, address)
		return ProbeResult{}
	}

	buffer := make([]byte, 64)
	n, err := conn.Read(buffer)
	if err != nil {
		hc.log.WithError(err).Debugf("failed to read response from %s", address)
		return ProbeResult{}
	}

	return hc.parsePong(address, strings.TrimSpace(string(buffer[:n])))
}

func (hc *HealthChecker) parsePong(address, response string) ProbeResult {
	if response == pongPrefix {
		return ProbeResult{Alive: true}
	}

	fields := strings.Fields(response)
	if len(fields) != 2 || fields[0] != pongPrefix {
		hc.log.Debugf("unexpected response from %s: got %q, expected %q", address, response, pongPrefix)
		return ProbeResult{}
	}
	if fields[1] == noLeaderField {
		return ProbeResult{Alive: true}
	}

	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		hc.log.Debugf("unparseable leader id in response from %s: %q", address, fields[1])
		return ProbeResult{Alive: true}
	}
	leader := types.NodeID(id)
	return ProbeResult{Alive: true, LeaderID: &leader}
}

// CheckTarget represents a target to monitor.
type CheckTarget struct {
	Name          string
	Host          string
	Port          string
	ContainerName string
}

// String returns a string representation of the target.
func (t *CheckTarget) String() string {
	return fmt.Sprintf("%s (%s:%s -> container: %s)", t.Name, t.Host, t.Port, t.ContainerName)
}

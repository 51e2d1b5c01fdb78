package monitor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/docker"
	"github.com/clustervote/clustervote/internal/types"
)

// failureThreshold is how many consecutive failed probes a target
// accumulates before the supervisor remediates it. One missed probe
// during election churn or a GC pause is not a dead node.
const failureThreshold = 3

// Elector is the subset of the election engine the supervisor needs:
// whether this node holds leadership, and as whom it holds it. The
// supervisor never drives an election itself; it only reacts to the
// result.
type Elector interface {
	IsLeader() bool
	CurrentLeader() (types.NodeID, bool)
}

// Restarter remediates an unresponsive target. internal/docker.Client
// satisfies this.
type Restarter interface {
	RestartContainer(ctx context.Context, containerNameOrID string) error
}

// Supervisor runs the leader-gated health-check loop: on every tick, if
// (and only if) the local node is the elected leader, it probes every
// configured target. A target that fails failureThreshold probes in a
// row is handed to the Restarter; a target that answers but reports a
// different leader is logged and left alone — it is alive, and the
// election protocol, not a container restart, is what converges leader
// views.
type Supervisor struct {
	elector  Elector
	checker  *HealthChecker
	restarts Restarter
	targets  []CheckTarget
	interval time.Duration
	log      *logrus.Entry

	failures map[string]int
}

// NewSupervisor builds a Supervisor over the given targets.
func NewSupervisor(elector Elector, restarts Restarter, targets []CheckTarget, interval time.Duration, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		elector:  elector,
		checker:  NewHealthChecker(log),
		restarts: restarts,
		targets:  targets,
		interval: interval,
		log:      log.WithField("component", "supervisor"),
		failures: make(map[string]int),
	}
}

// Run blocks, ticking the health-check loop until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.elector.IsLeader() {
				// Failure streaks from a previous reign are meaningless to
				// the next leader; forget them while following.
				s.failures = make(map[string]int)
				continue
			}
			s.checkAll(ctx)
		}
	}
}

func (s *Supervisor) checkAll(ctx context.Context) {
	selfLeader, _ := s.elector.CurrentLeader()

	for _, target := range s.targets {
		result := s.checker.Probe(target.Host, target.Port)
		if result.Alive {
			s.failures[target.Name] = 0
			switch {
			case result.LeaderID == nil:
				s.log.Debugf("%s is healthy", target.Name)
			case result.FollowsLeader(selfLeader):
				s.log.Debugf("%s is healthy and follows us", target.Name)
			default:
				// The peer will converge via the election protocol (it will
				// hear our heartbeats or our Coordinator); a restart would
				// only delay that.
				s.log.Warnf("%s is alive but follows leader %d, not %d; leaving it to the election to converge", target.Name, *result.LeaderID, selfLeader)
			}
			continue
		}

		s.failures[target.Name]++
		if s.failures[target.Name] < failureThreshold {
			s.log.Debugf("%s missed probe %d of %d", target.Name, s.failures[target.Name], failureThreshold)
			continue
		}

		s.log.Warnf("%s failed %d consecutive health checks", target.Name, s.failures[target.Name])
		if err := s.restarts.RestartContainer(ctx, target.ContainerName); err != nil {
			if errors.Is(err, docker.ErrRestartThrottled) {
				s.log.Debugf("restart of %s throttled, waiting out the cooldown", target.ContainerName)
				continue
			}
			s.log.WithError(err).Errorf("failed to restart container %s", target.ContainerName)
			continue
		}
		s.failures[target.Name] = 0
		s.log.Infof("container %s restarted", target.ContainerName)
	}
}

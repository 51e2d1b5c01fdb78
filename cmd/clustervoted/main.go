// Command clustervoted is the CLI front end: it loads the cluster
// topology, wires up the configured transport profile, and runs the
// election engine and its leader-gated health supervisor until a signal
// arrives. Structure (flags, signal handling, the main select loop)
// follows the teacher's cmd/coordinator/main.go; the body is rewired onto
// the Bully-with-successor-fast-path engine in internal/election instead
// of the teacher's single-shot Coordinator struct.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/clustervote/clustervote/internal/config"
	"github.com/clustervote/clustervote/internal/docker"
	"github.com/clustervote/clustervote/internal/election"
	"github.com/clustervote/clustervote/internal/logging"
	"github.com/clustervote/clustervote/internal/membership"
	"github.com/clustervote/clustervote/internal/monitor"
	"github.com/clustervote/clustervote/internal/transport"
	"github.com/clustervote/clustervote/internal/transport/tcp"
	"github.com/clustervote/clustervote/internal/transport/udp"
	"github.com/clustervote/clustervote/internal/types"
)

const (
	defaultHealthPort = "12346"
	healthCheckPeriod = 5 * time.Second
)

type flags struct {
	id            int
	configPath    string
	bind          string
	transportKind string
	composePath   string
	healthPort    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "clustervoted",
		Short: "Bully leader-election cluster daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().IntVar(&f.id, "id", -1, "this node's id (required)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to the cluster topology file (required)")
	cmd.Flags().StringVar(&f.bind, "bind", "", "bind address override (defaults to the configured address for --id)")
	cmd.Flags().StringVar(&f.transportKind, "transport", "tcp", "transport profile: tcp or udp")
	cmd.Flags().StringVar(&f.composePath, "compose", os.Getenv("COMPOSE_PATH"), "optional docker-compose file listing external workers to monitor")
	cmd.Flags().StringVar(&f.healthPort, "health-port", defaultHealthPort, "port the PING/PONG health responder listens on")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func run(ctx context.Context, f flags) error {
	if f.id < 0 {
		return errors.New("invalid --id")
	}
	selfID := types.NodeID(f.id)

	cluster, err := config.LoadCluster(f.configPath)
	if err != nil {
		return errors.Wrap(err, "load cluster config")
	}
	if err := cluster.Validate(selfID); err != nil {
		return errors.Wrap(err, "invalid cluster config")
	}

	log := logging.New(selfID)

	bindAddr := f.bind
	if bindAddr == "" {
		bindAddr = cluster.Nodes[selfID]
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var t transport.Interface
	switch f.transportKind {
	case "tcp":
		t, err = tcp.New(ctx, selfID, bindAddr, cluster.Nodes, log)
	case "udp":
		t, err = udp.New(ctx, bindAddr, cluster.Nodes, log)
	default:
		err = fmt.Errorf("unknown transport %q", f.transportKind)
	}
	if err != nil {
		return errors.Wrap(err, "start transport")
	}
	defer t.Close()

	members := membership.New(selfID, cluster, t)
	engine := election.New(selfID, members, t, log, election.DefaultConfig())
	engine.Start(ctx)
	defer engine.Stop()

	healthBind := healthBindAddress(bindAddr, f.healthPort)
	go func() {
		if err := monitor.StartServer(ctx, healthBind, engine, log); err != nil {
			log.WithError(err).Error("health server failed")
		}
	}()

	var supervisorDone chan struct{}
	dockerClient, err := docker.NewClient(log)
	if err != nil {
		log.WithError(err).Warn("docker client unavailable, leader-gated remediation disabled")
	} else {
		defer dockerClient.Close()
		targets := config.MonitoredTargets(cluster, selfID, f.healthPort, f.composePath, log)
		supervisor := monitor.NewSupervisor(engine, dockerClient, targets, healthCheckPeriod, log)
		supervisorDone = make(chan struct{})
		go func() {
			defer close(supervisorDone)
			supervisor.Run(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case isLeader := <-engine.LeaderEvents():
			if isLeader {
				log.Info("*** became leader ***")
			} else {
				log.Info("*** lost leadership ***")
			}
		case sig := <-sigChan:
			log.Infof("received signal %v, shutting down", sig)
			cancel()
			if supervisorDone != nil {
				<-supervisorDone
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// healthBindAddress reuses the host portion of bindAddr with the
// configured health port, so the election transport and the health
// responder never fight over the same port.
func healthBindAddress(bindAddr, healthPort string) string {
	host, _, err := net.SplitHostPort(bindAddr)
	if err != nil {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, healthPort)
}

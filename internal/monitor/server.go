package monitor

import (
	"context"
	"io"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/types"
)

// LeaderView is the slice of the election engine the health responder
// reads: which leader, if any, this node currently follows.
type LeaderView interface {
	CurrentLeader() (types.NodeID, bool)
}

// StartServer runs the PING responder every node exposes so peers'
// probes can reach it. The reply carries this node's current leader
// view, which is what lets the probing leader distinguish "peer is
// down" from "peer is up but following someone else". It blocks until
// ctx is cancelled or the listener fails.
func StartServer(ctx context.Context, bindAddr string, view LeaderView, log *logrus.Entry) error {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return errors.Wrapf(err, "start health server on %s", bindAddr)
	}
	log = log.WithField("component", "monitor.server")
	log.Infof("health server listening on %s", bindAddr)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("error accepting health connection")
			continue
		}
		go handleHealthCheck(conn, view, log)
	}
}

func handleHealthCheck(conn net.Conn, view LeaderView, log *logrus.Entry) {
	defer conn.Close()

	buffer := make([]byte, 4)
	n, err := conn.Read(buffer)
	if err != nil {
		if err != io.EOF {
			log.WithError(err).Debug("error reading health check")
		}
		return
	}
	if string(buffer[:n]) != pingMessage {
		return
	}

	response := pongPrefix + " " + noLeaderField
	if leader, ok := view.CurrentLeader(); ok {
		response = pongPrefix + " " + strconv.FormatUint(uint64(leader), 10)
	}
	if _, err := conn.Write([]byte(response)); err != nil {
		log.WithError(err).Debug("error writing health response")
	}
}

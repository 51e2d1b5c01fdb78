// Package docker provides the leader's remediation primitive: restarting
// a container that the monitor package found unresponsive. It is only
// ever invoked while the local node holds the election, and it throttles
// itself per container — leadership can change hands faster than a
// container comes back up, and the new leader restarting what the old
// leader just restarted helps nobody.
package docker

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	dockerSocket = "/var/run/docker.sock"
	dockerAPI    = "http://localhost"
	timeout      = 10 * time.Second

	// stopTimeoutSeconds is handed to the Docker API as the grace period
	// before the container is killed.
	stopTimeoutSeconds = "5"

	// restartCooldown is the minimum spacing between restarts of the same
	// container, across election handovers on this node.
	restartCooldown = 30 * time.Second
)

// ErrRestartThrottled is returned when a restart is requested within the
// cooldown window of the previous restart of the same container.
var ErrRestartThrottled = errors.New("docker: container restarted too recently")

// Client wraps a Docker socket connection for container management.
type Client struct {
	httpClient *http.Client
	log        *logrus.Entry

	mu          sync.Mutex
	lastRestart map[string]time.Time
}

// NewClient creates a new Docker client via Unix socket.
func NewClient(log *logrus.Entry) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.DialTimeout("unix", dockerSocket, timeout)
			},
		},
		Timeout: timeout,
	}

	resp, err := httpClient.Get(dockerAPI + "/v1.40/_ping")
	if err != nil {
		return nil, errors.Wrapf(err, "connect to docker daemon via socket %s", dockerSocket)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("docker daemon returned status %d", resp.StatusCode)
	}

	log.Info("connected to docker daemon via unix socket")

	return &Client{
		httpClient:  httpClient,
		log:         log.WithField("component", "docker"),
		lastRestart: make(map[string]time.Time),
	}, nil
}

// RestartContainer restarts a container by its name or ID, unless that
// container is still inside its cooldown window — the caller is expected
// to keep probing and come back.
func (c *Client) RestartContainer(ctx context.Context, containerNameOrID string) error {
	if !c.claimRestart(containerNameOrID) {
		return ErrRestartThrottled
	}

	c.log.Infof("restarting container %s", containerNameOrID)

	url := dockerAPI + "/v1.40/containers/" + containerNameOrID + "/restart?t=" + stopTimeoutSeconds

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return errors.Wrap(err, "create restart request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "restart container %s", containerNameOrID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Errorf("docker api returned status %d for container %s", resp.StatusCode, containerNameOrID)
	}

	c.log.Infof("container %s restarted successfully", containerNameOrID)
	return nil
}

// claimRestart records a restart attempt for name and reports whether it
// is allowed, i.e. the cooldown since the previous attempt has passed.
func (c *Client) claimRestart(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.lastRestart[name]; ok && now.Sub(last) < restartCooldown {
		return false
	}
	c.lastRestart[name] = now
	return true
}

// Close closes the Docker client.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.log.Info("closing docker client")
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

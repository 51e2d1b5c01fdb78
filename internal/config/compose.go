package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/clustervote/clustervote/internal/monitor"
	"github.com/clustervote/clustervote/internal/types"
)

// dockerCompose is the subset of docker-compose.yml this loader cares
// about: the service name -> container name mapping.
type dockerCompose struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	ContainerName string `yaml:"container_name"`
}

// LoadWorkersFromCompose reads a docker-compose.yml and extracts one
// monitor.CheckTarget per service with an explicit container_name.
func LoadWorkersFromCompose(composePath, healthPort string) ([]monitor.CheckTarget, error) {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return nil, errors.Wrap(err, "read compose file")
	}

	var compose dockerCompose
	if err := yaml.Unmarshal(data, &compose); err != nil {
		return nil, errors.Wrap(err, "parse compose file")
	}

	targets := []monitor.CheckTarget{}
	for _, service := range compose.Services {
		if service.ContainerName == "" {
			continue
		}
		targets = append(targets, monitor.CheckTarget{
			Name:          service.ContainerName,
			Host:          service.ContainerName,
			Port:          healthPort,
			ContainerName: service.ContainerName,
		})
	}
	return targets, nil
}

// MonitoredTargets builds the complete list of health-check targets: the
// other cluster peers (cross-monitoring, excluding self) plus, if
// composePath is non-empty, the workers declared in its docker-compose
// file.
func MonitoredTargets(cluster types.ClusterConfig, self types.NodeID, healthPort, composePath string, log *logrus.Entry) []monitor.CheckTarget {
	targets := []monitor.CheckTarget{}

	for id, addr := range cluster.Nodes {
		if id == self {
			continue
		}
		host, _, err := splitHost(addr)
		if err != nil {
			continue
		}
		targets = append(targets, monitor.CheckTarget{
			Name:          fmt.Sprintf("node-%d", id),
			Host:          host,
			Port:          healthPort,
			ContainerName: fmt.Sprintf("clustervote-%d", id),
		})
	}

	if composePath == "" {
		return targets
	}

	workerTargets, err := LoadWorkersFromCompose(composePath, healthPort)
	if err != nil {
		log.WithError(err).Warn("failed to load workers from compose file, continuing with peer monitoring only")
		return targets
	}
	return append(targets, workerTargets...)
}

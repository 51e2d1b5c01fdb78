// Package config loads the two static, read-once-at-startup documents the
// daemon depends on: the cluster topology (NodeID -> Address) and,
// inherited from the teacher service, the docker-compose worker list used
// to seed the health monitor.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/clustervote/clustervote/internal/types"
)

// clusterFile is the on-disk shape of the cluster topology document.
type clusterFile struct {
	Nodes []struct {
		ID      types.NodeID `yaml:"id"`
		Address string       `yaml:"address"`
	} `yaml:"nodes"`
}

// LoadCluster reads and parses the cluster topology YAML at path. It does
// not validate the result against a particular self id; call
// types.ClusterConfig.Validate for that.
func LoadCluster(path string) (types.ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ClusterConfig{}, errors.Wrapf(err, "read cluster config %s", path)
	}

	var raw clusterFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return types.ClusterConfig{}, errors.Wrapf(err, "parse cluster config %s", path)
	}

	nodes := make(map[types.NodeID]string, len(raw.Nodes))
	for _, n := range raw.Nodes {
		nodes[n.ID] = n.Address
	}
	return types.ClusterConfig{Nodes: nodes}, nil
}

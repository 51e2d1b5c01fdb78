package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clustervote/clustervote/internal/types"
)

func TestClusterConfigValidate(t *testing.T) {
	cluster := types.ClusterConfig{Nodes: map[types.NodeID]string{
		1: "127.0.0.1:9001",
		2: "127.0.0.1:9002",
	}}

	assert.NoError(t, cluster.Validate(1))
	assert.Error(t, cluster.Validate(3), "self not present in config")

	bad := types.ClusterConfig{Nodes: map[types.NodeID]string{1: "not-a-host-port"}}
	assert.Error(t, bad.Validate(1))

	assert.Error(t, types.ClusterConfig{}.Validate(1), "empty cluster")
}

func TestClusterConfigPeers(t *testing.T) {
	cluster := types.ClusterConfig{Nodes: map[types.NodeID]string{
		1: "a:1", 2: "b:2", 3: "c:3",
	}}
	peers := cluster.Peers(2)
	assert.ElementsMatch(t, []types.NodeID{1, 3}, peers)
}

func TestMax(t *testing.T) {
	max, ok := types.Max([]types.NodeID{3, 1, 9, 4})
	assert.True(t, ok)
	assert.Equal(t, types.NodeID(9), max)

	_, ok = types.Max(nil)
	assert.False(t, ok)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "follower", types.Follower.String())
	assert.Equal(t, "candidate", types.Candidate.String())
	assert.Equal(t, "leader", types.Leader.String())
}

// Package membership is the thin peer-registry facade between the
// election engine and the wire: it knows the static NodeID -> Address
// mapping and exposes broadcast/send-to/known-peers over whatever
// transport.Interface the node was configured with. It owns no
// connection state itself — that lives inside the transport
// implementation — and it never touches last-seen times or roles, which
// are the coordinator's (internal/election) responsibility.
package membership

import (
	"context"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/transport"
	"github.com/clustervote/clustervote/internal/types"
)

// Manager is the membership & peer manager component.
type Manager struct {
	selfID types.NodeID
	peers  []types.NodeID // configured peers, excluding self
	t      transport.Interface
}

// New builds a Manager over cluster, excluding selfID from its peer set.
func New(selfID types.NodeID, cluster types.ClusterConfig, t transport.Interface) *Manager {
	return &Manager{
		selfID: selfID,
		peers:  cluster.Peers(selfID),
		t:      t,
	}
}

// KnownPeers returns every configured peer NodeID other than self.
func (m *Manager) KnownPeers() []types.NodeID {
	out := make([]types.NodeID, len(m.peers))
	copy(out, m.peers)
	return out
}

// SendTo delivers msg to a single peer. A missing connection or transient
// send failure is reported back to the caller but is never itself a fatal
// condition — see internal/transport's ErrDisconnected contract.
func (m *Manager) SendTo(ctx context.Context, peer types.NodeID, msg protocol.Message) error {
	return m.t.Send(ctx, peer, msg)
}

// Broadcast sends msg to every known peer except self, best-effort.
func (m *Manager) Broadcast(ctx context.Context, msg protocol.Message) {
	for _, id := range m.peers {
		_ = m.t.Send(ctx, id, msg)
	}
}

// SendToHigher sends msg to every known peer with a strictly greater
// NodeID than self — the Bully election fan-out.
func (m *Manager) SendToHigher(ctx context.Context, msg protocol.Message) []types.NodeID {
	var targeted []types.NodeID
	for _, id := range m.peers {
		if id > m.selfID {
			_ = m.t.Send(ctx, id, msg)
			targeted = append(targeted, id)
		}
	}
	return targeted
}

// HasHigherPeers reports whether self has any configured peer with a
// strictly greater NodeID. A node with none wins any election it starts
// without waiting.
func (m *Manager) HasHigherPeers() bool {
	for _, id := range m.peers {
		if id > m.selfID {
			return true
		}
	}
	return false
}

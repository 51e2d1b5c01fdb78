package udp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustervote/clustervote/internal/logging"
	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/transport/udp"
	"github.com/clustervote/clustervote/internal/types"
)

func TestUDPTransportSendReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const addr1 = "127.0.0.1:19601"
	const addr2 = "127.0.0.1:19602"
	peers := map[types.NodeID]string{1: addr1, 2: addr2}

	t1, err := udp.New(ctx, addr1, peers, logging.New(1))
	require.NoError(t, err)
	defer t1.Close()

	t2, err := udp.New(ctx, addr2, peers, logging.New(2))
	require.NoError(t, err)
	defer t2.Close()

	require.NoError(t, t1.Send(ctx, 2, protocol.Heartbeat{LeaderID: 1, Timestamp: 5}))

	select {
	case in := <-t2.Inbound():
		assert.Equal(t, types.NodeID(1), in.From)
		assert.Equal(t, protocol.KindHeartbeat, in.Msg.Kind())
	case <-time.After(time.Second):
		t.Fatal("node 2 never received the datagram sent by node 1")
	}
}

func TestUDPTransportSendToUnknownPeerFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t1, err := udp.New(ctx, "127.0.0.1:19603", map[types.NodeID]string{1: "127.0.0.1:19603"}, logging.New(1))
	require.NoError(t, err)
	defer t1.Close()

	err = t1.Send(ctx, 99, protocol.Discovery{SenderID: 1, Timestamp: 1})
	assert.Error(t, err)
}

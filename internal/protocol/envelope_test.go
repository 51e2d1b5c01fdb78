package protocol_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustervote/clustervote/internal/protocol"
	"github.com/clustervote/clustervote/internal/types"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	successor := types.NodeID(7)
	cases := []protocol.Message{
		protocol.Discovery{SenderID: 1, Timestamp: 100},
		protocol.LeaderAnnounce{LeaderID: 2, Timestamp: 101},
		protocol.Election{SenderID: 3, Timestamp: 102},
		protocol.ElectionOk{SenderID: 4, Timestamp: 103},
		protocol.Coordinator{LeaderID: 5, Timestamp: 104},
		protocol.Heartbeat{LeaderID: 6, SuccessorID: &successor, Timestamp: 105},
		protocol.Heartbeat{LeaderID: 6, SuccessorID: nil, Timestamp: 106},
		protocol.HeartbeatAck{SenderID: 8, Timestamp: 107},
	}

	for _, want := range cases {
		data, err := protocol.Marshal(want)
		require.NoError(t, err)

		got, err := protocol.Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestUnmarshalUnknownKind(t *testing.T) {
	_, err := protocol.Unmarshal([]byte(`{"kind":"bogus","payload":{}}`))
	assert.Error(t, err)
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := protocol.Election{SenderID: 42, Timestamp: 9}

	require.NoError(t, protocol.WriteFrame(&buf, msg))
	got, err := protocol.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // ~2GB claimed length
	_, err := protocol.ReadFrame(&buf)
	assert.Error(t, err)
}

func TestWriteFrameMultipleMessagesStayFramed(t *testing.T) {
	var buf bytes.Buffer
	first := protocol.Discovery{SenderID: 1, Timestamp: 1}
	second := protocol.Coordinator{LeaderID: 2, Timestamp: 2}

	require.NoError(t, protocol.WriteFrame(&buf, first))
	require.NoError(t, protocol.WriteFrame(&buf, second))

	got1, err := protocol.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, first, got1)

	got2, err := protocol.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, second, got2)
}

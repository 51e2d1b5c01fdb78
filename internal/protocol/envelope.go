package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// envelope is the tagged-object wire format: the variant name travels
// alongside the payload so a reader can dispatch before knowing the
// concrete Go type.
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// maxFrameLen guards against a corrupt or hostile length prefix forcing an
// unbounded allocation.
const maxFrameLen = 1 << 20

// Marshal encodes a Message as a tagged JSON envelope, with no framing.
// Used directly by the datagram profile, where the transport already
// preserves message boundaries.
func Marshal(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	env := envelope{Kind: msg.Kind(), Payload: payload}
	return json.Marshal(env)
}

// Unmarshal decodes a tagged JSON envelope back into its concrete Message
// type.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "unmarshal envelope")
	}
	return decodePayload(env.Kind, env.Payload)
}

func decodePayload(kind Kind, payload json.RawMessage) (Message, error) {
	var msg Message
	switch kind {
	case KindDiscovery:
		var m Discovery
		msg = &m
	case KindLeaderAnnounce:
		var m LeaderAnnounce
		msg = &m
	case KindElection:
		var m Election
		msg = &m
	case KindElectionOk:
		var m ElectionOk
		msg = &m
	case KindCoordinator:
		var m Coordinator
		msg = &m
	case KindHeartbeat:
		var m Heartbeat
		msg = &m
	case KindHeartbeatAck:
		var m HeartbeatAck
		msg = &m
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal payload for kind %q", kind)
	}
	return dereference(msg), nil
}

// dereference returns the value a decodePayload pointer points to, so
// callers always get the same value type Marshal accepted.
func dereference(msg Message) Message {
	switch m := msg.(type) {
	case *Discovery:
		return *m
	case *LeaderAnnounce:
		return *m
	case *Election:
		return *m
	case *ElectionOk:
		return *m
	case *Coordinator:
		return *m
	case *Heartbeat:
		return *m
	case *HeartbeatAck:
		return *m
	default:
		return msg
	}
}

// WriteFrame writes a message as a 4-byte big-endian length prefix
// followed by its tagged JSON envelope. Used by the stream profile, where
// framing is mandatory because TCP concatenates writes.
func WriteFrame(w io.Writer, msg Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and decodes it.
func ReadFrame(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", n, maxFrameLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "read frame payload")
	}
	return Unmarshal(buf)
}

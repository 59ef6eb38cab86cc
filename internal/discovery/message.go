package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xapiand/xapiand-core/internal/wire"
	"github.com/xapiand/xapiand-core/internal/xerrors"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// MsgType identifies one of the seven gossip message kinds of §4.3.
type MsgType byte

const (
	MsgHeartbeat MsgType = iota + 1
	MsgHello
	MsgWave
	MsgSneer
	MsgEnter
	MsgBye
	MsgDbUpdated
)

func (t MsgType) String() string {
	switch t {
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgHello:
		return "Hello"
	case MsgWave:
		return "Wave"
	case MsgSneer:
		return "Sneer"
	case MsgEnter:
		return "Enter"
	case MsgBye:
		return "Bye"
	case MsgDbUpdated:
		return "DbUpdated"
	default:
		return fmt.Sprintf("MsgType(%d)", byte(t))
	}
}

// ProtocolVersion is carried on every datagram; a receiver running a
// different major protocol reports ErrProtocolVersionMismatch.
const ProtocolVersion uint16 = 1

// QueryMastery is the sentinel Mastery value the Endpoint Resolver's
// probe (§4.6 step 2) sends in a DbUpdated message to ask peers to
// announce their own mastery for Path, rather than announcing one of
// its own. A receiver holding Path answers with a real DbUpdated of
// its own; QueryMastery itself is never treated as a real value.
const QueryMastery int64 = -1

// Message is one gossip datagram: the common envelope of §4.3
// (msg_type, version, cluster_name) plus a type-specific payload.
// Every message type but DbUpdated carries a single Node; DbUpdated
// additionally carries the mastery level and shard path being
// announced.
type Message struct {
	Type        MsgType
	Version     uint16
	ClusterName string
	Node        endpoint.Node

	// DbUpdated only.
	Mastery int64
	Path    string
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := wire.WriteVarint(buf, uint64(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readString(r *bytes.Reader) (string, error) {
	n, err := wire.ReadVarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	u := uint32(v)
	buf.WriteByte(byte(u >> 24))
	buf.WriteByte(byte(u >> 16))
	buf.WriteByte(byte(u >> 8))
	buf.WriteByte(byte(u))
}

func readInt32(r *bytes.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		buf.WriteByte(byte(u >> (8 * uint(i))))
	}
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return int64(u), nil
}

func writeNode(buf *bytes.Buffer, n endpoint.Node) error {
	if err := writeString(buf, n.Name); err != nil {
		return err
	}
	if err := writeString(buf, n.Host); err != nil {
		return err
	}
	writeUint16(buf, n.HTTPPort)
	writeUint16(buf, n.BinaryPort)
	writeInt32(buf, n.Region)
	return nil
}

func readNode(r *bytes.Reader) (endpoint.Node, error) {
	var n endpoint.Node
	name, err := readString(r)
	if err != nil {
		return n, err
	}
	host, err := readString(r)
	if err != nil {
		return n, err
	}
	httpPort, err := readUint16(r)
	if err != nil {
		return n, err
	}
	binaryPort, err := readUint16(r)
	if err != nil {
		return n, err
	}
	region, err := readInt32(r)
	if err != nil {
		return n, err
	}
	n.Name = name
	n.Host = host
	n.HTTPPort = httpPort
	n.BinaryPort = binaryPort
	n.Region = region
	return n, nil
}

// Encode serializes m into one UDP datagram payload, per §6's envelope
// `{msg_type:u8, version:u16, cluster_name:length-prefixed-string}`
// followed by the type-specific body.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Type))
	version := m.Version
	if version == 0 {
		version = ProtocolVersion
	}
	writeUint16(&buf, version)
	if err := writeString(&buf, m.ClusterName); err != nil {
		return nil, err
	}

	switch m.Type {
	case MsgDbUpdated:
		writeInt64(&buf, m.Mastery)
		if err := writeString(&buf, m.Path); err != nil {
			return nil, err
		}
		if err := writeNode(&buf, m.Node); err != nil {
			return nil, err
		}
	case MsgHeartbeat, MsgHello, MsgWave, MsgSneer, MsgEnter, MsgBye:
		if err := writeNode(&buf, m.Node); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("discovery: %w: unknown message type %d", xerrors.ErrBadMessage, m.Type)
	}
	return buf.Bytes(), nil
}

// Decode parses a UDP datagram payload into a Message. A cluster-name
// mismatch against wantCluster is reported as ErrClusterNameMismatch so
// the caller can silently drop it, per §4.3.
func Decode(data []byte, wantCluster string) (Message, error) {
	r := bytes.NewReader(data)
	typeByte, err := r.ReadByte()
	if err != nil {
		return Message{}, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
	}
	version, err := readUint16(r)
	if err != nil {
		return Message{}, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
	}
	cluster, err := readString(r)
	if err != nil {
		return Message{}, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
	}

	m := Message{Type: MsgType(typeByte), Version: version, ClusterName: cluster}

	if wantCluster != "" && cluster != wantCluster {
		return m, fmt.Errorf("discovery: %w: got %q want %q", xerrors.ErrClusterNameMismatch, cluster, wantCluster)
	}
	if version>>8 != ProtocolVersion>>8 {
		return m, fmt.Errorf("discovery: %w: got %d want %d", xerrors.ErrProtocolVersionMismatch, version, ProtocolVersion)
	}

	switch m.Type {
	case MsgDbUpdated:
		mastery, err := readInt64(r)
		if err != nil {
			return m, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
		}
		path, err := readString(r)
		if err != nil {
			return m, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
		}
		node, err := readNode(r)
		if err != nil {
			return m, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
		}
		m.Mastery = mastery
		m.Path = path
		m.Node = node
	case MsgHeartbeat, MsgHello, MsgWave, MsgSneer, MsgEnter, MsgBye:
		node, err := readNode(r)
		if err != nil {
			return m, fmt.Errorf("discovery: %w: %v", xerrors.ErrBadMessage, err)
		}
		m.Node = node
	default:
		return m, fmt.Errorf("discovery: %w: unknown message type %d", xerrors.ErrBadMessage, typeByte)
	}
	return m, nil
}

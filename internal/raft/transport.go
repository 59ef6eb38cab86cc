package raft

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xapiand/xapiand-core/internal/wire"
	"github.com/xapiand/xapiand-core/internal/xerrors"
)

// Frame types for the raft RPC stream carried over internal/wire,
// replacing the teacher's dropped GrpcTransport/generated pb package
// (see DESIGN.md) with the same varint-framed codec C6 uses.
const (
	frameRequestVote      byte = 1
	frameRequestVoteReply byte = 2
	frameHeartbeat        byte = 3
	frameHeartbeatReply   byte = 4
)

// wireTransport implements Transport by dialing a fresh internal/wire
// connection per RPC. Elections are infrequent relative to Remote
// Protocol traffic, so connection reuse is not worth the complexity
// a pool would add.
type wireTransport struct {
	dialTimeout time.Duration
	rpcTimeout  time.Duration
}

// NewWireTransport builds a Transport that speaks the raft RPC frames
// over plain TCP via internal/wire.
func NewWireTransport(dialTimeout, rpcTimeout time.Duration) Transport {
	return &wireTransport{dialTimeout: dialTimeout, rpcTimeout: rpcTimeout}
}

func (t *wireTransport) call(peer string, reqType byte, payload []byte, replyType byte) ([]byte, error) {
	conn, err := wire.Dial("tcp", peer, t.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("raft: dial %s: %w", peer, xerrors.ErrNetworkError)
	}
	defer conn.Close()

	if err := conn.Send(wire.Frame{Type: reqType, Payload: payload}, t.rpcTimeout); err != nil {
		return nil, fmt.Errorf("raft: send to %s: %w", peer, xerrors.ErrNetworkError)
	}
	reply, err := conn.Recv(t.rpcTimeout)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, fmt.Errorf("raft: recv from %s: %w", peer, xerrors.ErrNetworkTimeout)
		}
		return nil, fmt.Errorf("raft: recv from %s: %w", peer, xerrors.ErrNetworkError)
	}
	if reply.Type != replyType {
		return nil, fmt.Errorf("raft: unexpected reply type %d from %s: %w", reply.Type, peer, xerrors.ErrBadMessage)
	}
	return reply.Payload, nil
}

func (t *wireTransport) SendRequestVote(peer string, args *RequestVoteArgs) (*RequestVoteReply, error) {
	payload := encodeRequestVoteArgs(args)
	data, err := t.call(peer, frameRequestVote, payload, frameRequestVoteReply)
	if err != nil {
		return nil, err
	}
	return decodeRequestVoteReply(data)
}

func (t *wireTransport) SendHeartbeat(peer string, args *HeartbeatArgs) (*HeartbeatReply, error) {
	payload := encodeHeartbeatArgs(args)
	data, err := t.call(peer, frameHeartbeat, payload, frameHeartbeatReply)
	if err != nil {
		return nil, err
	}
	return decodeHeartbeatReply(data)
}

// Server accepts incoming raft RPC connections and dispatches them to
// a Registry. It is the receiving half of wireTransport.
type Server struct {
	registry *Registry
	ln       net.Listener
	wg       sync.WaitGroup
}

// NewServer wraps an already-listening net.Listener.
func NewServer(ln net.Listener, registry *Registry) *Server {
	return &Server{registry: registry, ln: ln}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops accepting and waits for in-flight handlers to finish.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) handle(nc net.Conn) {
	defer s.wg.Done()
	conn := wire.NewConn(nc)
	defer conn.Close()

	frame, err := conn.Recv(10 * time.Second)
	if err != nil {
		return
	}

	switch frame.Type {
	case frameRequestVote:
		args, err := decodeRequestVoteArgs(frame.Payload)
		if err != nil {
			return
		}
		reply := s.registry.DispatchRequestVote(args)
		_ = conn.Send(wire.Frame{Type: frameRequestVoteReply, Payload: encodeRequestVoteReply(reply)}, 10*time.Second)
	case frameHeartbeat:
		args, err := decodeHeartbeatArgs(frame.Payload)
		if err != nil {
			return
		}
		reply := s.registry.DispatchHeartbeat(args)
		_ = conn.Send(wire.Frame{Type: frameHeartbeatReply, Payload: encodeHeartbeatReply(reply)}, 10*time.Second)
	}
}

func putString(buf *bytes.Buffer, s string) {
	_ = wire.WriteVarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
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

func encodeRequestVoteArgs(a *RequestVoteArgs) []byte {
	var buf bytes.Buffer
	var tmp [12]byte
	binary.BigEndian.PutUint32(tmp[0:4], uint32(a.Region))
	binary.BigEndian.PutUint64(tmp[4:12], uint64(a.Term))
	buf.Write(tmp[:])
	putString(&buf, a.CandidateID)
	return buf.Bytes()
}

func decodeRequestVoteArgs(data []byte) (*RequestVoteArgs, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("raft: %w: short RequestVoteArgs", xerrors.ErrBadMessage)
	}
	a := &RequestVoteArgs{
		Region: int32(binary.BigEndian.Uint32(data[0:4])),
		Term:   int64(binary.BigEndian.Uint64(data[4:12])),
	}
	r := bytes.NewReader(data[12:])
	id, err := getString(r)
	if err != nil {
		return nil, err
	}
	a.CandidateID = id
	return a, nil
}

func encodeRequestVoteReply(r *RequestVoteReply) []byte {
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.Term))
	if r.VoteGranted {
		buf[8] = 1
	}
	return buf[:]
}

func decodeRequestVoteReply(data []byte) (*RequestVoteReply, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("raft: %w: short RequestVoteReply", xerrors.ErrBadMessage)
	}
	return &RequestVoteReply{
		Term:        int64(binary.BigEndian.Uint64(data[0:8])),
		VoteGranted: data[8] != 0,
	}, nil
}

func encodeHeartbeatArgs(a *HeartbeatArgs) []byte {
	var buf bytes.Buffer
	var tmp [12]byte
	binary.BigEndian.PutUint32(tmp[0:4], uint32(a.Region))
	binary.BigEndian.PutUint64(tmp[4:12], uint64(a.Term))
	buf.Write(tmp[:])
	putString(&buf, a.LeaderID)
	return buf.Bytes()
}

func decodeHeartbeatArgs(data []byte) (*HeartbeatArgs, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("raft: %w: short HeartbeatArgs", xerrors.ErrBadMessage)
	}
	a := &HeartbeatArgs{
		Region: int32(binary.BigEndian.Uint32(data[0:4])),
		Term:   int64(binary.BigEndian.Uint64(data[4:12])),
	}
	r := bytes.NewReader(data[12:])
	id, err := getString(r)
	if err != nil {
		return nil, err
	}
	a.LeaderID = id
	return a, nil
}

func encodeHeartbeatReply(r *HeartbeatReply) []byte {
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.Term))
	if r.Success {
		buf[8] = 1
	}
	return buf[:]
}

func decodeHeartbeatReply(data []byte) (*HeartbeatReply, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("raft: %w: short HeartbeatReply", xerrors.ErrBadMessage)
	}
	return &HeartbeatReply{
		Term:    int64(binary.BigEndian.Uint64(data[0:8])),
		Success: data[8] != 0,
	}, nil
}

package raft

import "time"

// Timer bounds from original_source/src/servers/raft.h, carried
// forward unchanged: HeartbeatLeader governs the leader's own
// heartbeat cadence, LeaderElection the follower election timeout.
const (
	HeartbeatLeaderMin = 1500 * time.Millisecond
	HeartbeatLeaderMax = 3000 * time.Millisecond
	LeaderElectionMin  = 7500 * time.Millisecond // 2.5 * HeartbeatLeaderMax
	LeaderElectionMax  = 15000 * time.Millisecond // 5.0 * HeartbeatLeaderMax
)

// State is a region's local view of the election state machine (§4.4).
type State int

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// RequestVoteArgs is the candidate's vote solicitation for one region.
// There is no log-up-to-date check (§4.4's Safety note): this Raft
// elects a leader only, it does not replicate a log.
type RequestVoteArgs struct {
	Region      int32
	Term        int64
	CandidateID string
}

// RequestVoteReply answers a vote request.
type RequestVoteReply struct {
	Term        int64
	VoteGranted bool
}

// HeartbeatArgs is the leader's periodic liveness broadcast for one
// region (renamed from the teacher's AppendEntriesArgs now that there
// are no entries to append).
type HeartbeatArgs struct {
	Region   int32
	Term     int64
	LeaderID string
}

// HeartbeatReply answers a leader heartbeat.
type HeartbeatReply struct {
	Term    int64
	Success bool
}

// Transport sends RPCs to a named peer. wireTransport is the
// production implementation (internal/raft/transport.go), built on
// internal/wire instead of the teacher's dropped grpc Transport.
type Transport interface {
	SendRequestVote(peer string, args *RequestVoteArgs) (*RequestVoteReply, error)
	SendHeartbeat(peer string, args *HeartbeatArgs) (*HeartbeatReply, error)
}

package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestVoteArgsRoundTrip(t *testing.T) {
	a := &RequestVoteArgs{Region: 7, Term: 42, CandidateID: "node-a"}
	got, err := decodeRequestVoteArgs(encodeRequestVoteArgs(a))
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestRequestVoteReplyRoundTrip(t *testing.T) {
	r := &RequestVoteReply{Term: 42, VoteGranted: true}
	got, err := decodeRequestVoteReply(encodeRequestVoteReply(r))
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestHeartbeatArgsRoundTrip(t *testing.T) {
	a := &HeartbeatArgs{Region: 3, Term: 9, LeaderID: "node-b"}
	got, err := decodeHeartbeatArgs(encodeHeartbeatArgs(a))
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestHeartbeatReplyRoundTrip(t *testing.T) {
	r := &HeartbeatReply{Term: 9, Success: true}
	got, err := decodeHeartbeatReply(encodeHeartbeatReply(r))
	require.NoError(t, err)
	require.Equal(t, r, got)
}

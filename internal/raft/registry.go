package raft

import "sync"

// Registry owns one Election per region, per §4.4's "elects a leader
// per region" contract — the multi-instance structure the teacher's
// singleton internal/raft.Raft did not have.
type Registry struct {
	mu        sync.Mutex
	elections map[int32]*Election
	transport Transport
	onLeader  LeaderChangeFunc
	localID   string
}

// NewRegistry builds an empty registry sharing one transport across
// every region's Election.
func NewRegistry(localID string, transport Transport, onLeader LeaderChangeFunc) *Registry {
	return &Registry{
		elections: make(map[int32]*Election),
		transport: transport,
		onLeader:  onLeader,
		localID:   localID,
	}
}

// Region returns (creating and starting if necessary) the Election for
// region, with the given peer set.
func (r *Registry) Region(region int32, peers []string) *Election {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.elections[region]; ok {
		return e
	}
	cfg := DefaultConfig(r.localID, region, peers)
	e := NewElection(cfg, r.transport, r.onLeader)
	r.elections[region] = e
	e.Start()
	return e
}

// Lookup returns the Election for region if it has been created.
func (r *Registry) Lookup(region int32) (*Election, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elections[region]
	return e, ok
}

// DispatchRequestVote routes an incoming RPC to the right region's
// Election, creating it (as a Follower with no known peers) if this node
// has not seen that region before.
func (r *Registry) DispatchRequestVote(args *RequestVoteArgs) *RequestVoteReply {
	e := r.Region(args.Region, nil)
	return e.HandleRequestVote(args)
}

// DispatchHeartbeat routes an incoming heartbeat the same way.
func (r *Registry) DispatchHeartbeat(args *HeartbeatArgs) *HeartbeatReply {
	e := r.Region(args.Region, nil)
	return e.HandleHeartbeat(args)
}

// Stop stops every region's Election.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.elections {
		e.Stop()
	}
}

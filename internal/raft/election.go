package raft

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Config holds one region's election configuration.
type Config struct {
	ID                string
	Region            int32
	Peers             []string
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatMin       time.Duration
	HeartbeatMax       time.Duration
}

// DefaultConfig builds a Config whose timer bounds are the defaults from
// §4.4/original_source's raft.h.
func DefaultConfig(id string, region int32, peers []string) Config {
	return Config{
		ID:                 id,
		Region:             region,
		Peers:              peers,
		ElectionTimeoutMin: LeaderElectionMin,
		ElectionTimeoutMax: LeaderElectionMax,
		HeartbeatMin:       HeartbeatLeaderMin,
		HeartbeatMax:       HeartbeatLeaderMax,
	}
}

// LeaderChangeFunc is invoked whenever this node's believed leader for
// the region changes (used by C4 to know who should issue db_updated
// replication triggers, per §4.4's Contract).
type LeaderChangeFunc func(region int32, leaderID string, term int64)

// Election runs the Follower/Candidate/Leader state machine for one
// region (§4.4). Unlike the teacher's singleton internal/raft.Raft,
// this carries no log, no commit index, and no apply channel: leader
// election is the only thing this Raft does, per §9's explicit scope
// note. One Election exists per region, owned by a Registry.
type Election struct {
	mu sync.Mutex

	currentTerm int64
	votedFor    string
	state       State
	leaderID    string

	config    Config
	transport Transport
	logger    *slog.Logger
	onLeader  LeaderChangeFunc

	stopCh chan struct{}
	wg     sync.WaitGroup

	electionTimer  *time.Timer
	heartbeatTimer *time.Ticker
}

// NewElection builds a region's election state machine, stopped.
func NewElection(config Config, transport Transport, onLeader LeaderChangeFunc) *Election {
	e := &Election{
		state:     Follower,
		config:    config,
		transport: transport,
		onLeader:  onLeader,
		logger:    slog.With("component", "raft", "id", config.ID, "region", config.Region),
		stopCh:    make(chan struct{}),
	}
	e.electionTimer = time.NewTimer(e.randomElectionTimeout())
	e.heartbeatTimer = time.NewTicker(e.randomHeartbeatInterval())
	e.heartbeatTimer.Stop() // only ticks while Leader; reset in convertToLeader
	return e
}

// Start launches the election and heartbeat loops.
func (e *Election) Start() {
	e.wg.Add(2)
	go e.runElectionLoop()
	go e.runHeartbeatLoop()
}

// Stop halts both loops.
func (e *Election) Stop() {
	close(e.stopCh)
	e.electionTimer.Stop()
	e.heartbeatTimer.Stop()
	e.wg.Wait()
}

// State reports the current Follower/Candidate/Leader phase.
func (e *Election) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Leader reports the node this instance currently believes leads the
// region, and the term of that belief.
func (e *Election) Leader() (string, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderID, e.currentTerm
}

func (e *Election) runElectionLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.electionTimer.C:
			e.mu.Lock()
			if e.state != Leader {
				e.startElectionLocked()
			}
			e.resetElectionTimerLocked()
			e.mu.Unlock()
		}
	}
}

func (e *Election) runHeartbeatLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.heartbeatTimer.C:
			e.mu.Lock()
			isLeader := e.state == Leader
			e.mu.Unlock()
			if isLeader {
				e.broadcastHeartbeats()
			}
		}
	}
}

func (e *Election) convertToFollowerLocked(term int64) {
	wasLeader := e.state == Leader
	e.state = Follower
	e.currentTerm = term
	e.votedFor = ""
	e.resetElectionTimerLocked()
	if wasLeader {
		e.heartbeatTimer.Stop()
	}
}

func (e *Election) convertToLeaderLocked() {
	if e.state == Leader {
		return
	}
	e.state = Leader
	e.leaderID = e.config.ID
	e.logger.Info("elected leader", "term", e.currentTerm)
	e.heartbeatTimer.Reset(e.randomHeartbeatInterval())
	if e.onLeader != nil {
		go e.onLeader(e.config.Region, e.config.ID, e.currentTerm)
	}
	go e.broadcastHeartbeats()
}

func (e *Election) broadcastHeartbeats() {
	e.mu.Lock()
	if e.state != Leader {
		e.mu.Unlock()
		return
	}
	args := &HeartbeatArgs{Region: e.config.Region, Term: e.currentTerm, LeaderID: e.config.ID}
	e.mu.Unlock()

	for _, peer := range e.config.Peers {
		if peer == e.config.ID {
			continue
		}
		go func(p string) {
			reply, err := e.transport.SendHeartbeat(p, args)
			if err != nil {
				return
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if reply.Term > e.currentTerm {
				e.convertToFollowerLocked(reply.Term)
			}
		}(peer)
	}
}

func (e *Election) startElectionLocked() {
	e.state = Candidate
	e.currentTerm++
	e.votedFor = e.config.ID
	term := e.currentTerm
	args := &RequestVoteArgs{Region: e.config.Region, Term: term, CandidateID: e.config.ID}
	votes := 1
	e.logger.Info("starting election", "term", term)

	for _, peer := range e.config.Peers {
		if peer == e.config.ID {
			continue
		}
		go func(p string) {
			reply, err := e.transport.SendRequestVote(p, args)
			if err != nil {
				return
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.state != Candidate || e.currentTerm != term {
				return
			}
			if reply.Term > e.currentTerm {
				e.convertToFollowerLocked(reply.Term)
				return
			}
			if reply.VoteGranted {
				votes++
				if votes > (len(e.config.Peers)+1)/2 {
					e.convertToLeaderLocked()
				}
			}
		}(peer)
	}
}

// HandleRequestVote applies the vote rules of §4.4 to an incoming
// request.
func (e *Election) HandleRequestVote(args *RequestVoteArgs) *RequestVoteReply {
	e.mu.Lock()
	defer e.mu.Unlock()

	if args.Term < e.currentTerm {
		return &RequestVoteReply{Term: e.currentTerm, VoteGranted: false}
	}
	if args.Term > e.currentTerm {
		e.currentTerm = args.Term
		e.state = Follower
		e.votedFor = ""
	}

	canVote := e.votedFor == "" || e.votedFor == args.CandidateID
	if canVote {
		e.votedFor = args.CandidateID
		e.resetElectionTimerLocked()
		e.logger.Info("vote granted", "candidate", args.CandidateID, "term", args.Term)
		return &RequestVoteReply{Term: e.currentTerm, VoteGranted: true}
	}
	return &RequestVoteReply{Term: e.currentTerm, VoteGranted: false}
}

// HandleHeartbeat applies an incoming leader heartbeat, resetting the
// election timer and adopting the sender as leader when appropriate.
func (e *Election) HandleHeartbeat(args *HeartbeatArgs) *HeartbeatReply {
	e.mu.Lock()
	defer e.mu.Unlock()

	if args.Term < e.currentTerm {
		return &HeartbeatReply{Term: e.currentTerm, Success: false}
	}
	if args.Term > e.currentTerm {
		e.convertToFollowerLocked(args.Term)
	}
	e.leaderID = args.LeaderID
	e.resetElectionTimerLocked()
	return &HeartbeatReply{Term: e.currentTerm, Success: true}
}

func (e *Election) resetElectionTimerLocked() {
	if !e.electionTimer.Stop() {
		select {
		case <-e.electionTimer.C:
		default:
		}
	}
	e.electionTimer.Reset(e.randomElectionTimeout())
}

func (e *Election) randomElectionTimeout() time.Duration {
	span := int64(e.config.ElectionTimeoutMax - e.config.ElectionTimeoutMin)
	if span <= 0 {
		return e.config.ElectionTimeoutMin
	}
	return e.config.ElectionTimeoutMin + time.Duration(rand.Int63n(span))
}

func (e *Election) randomHeartbeatInterval() time.Duration {
	span := int64(e.config.HeartbeatMax - e.config.HeartbeatMin)
	if span <= 0 {
		return e.config.HeartbeatMin
	}
	return e.config.HeartbeatMin + time.Duration(rand.Int63n(span))
}

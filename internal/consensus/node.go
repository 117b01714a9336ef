// Package consensus implements the per-node Raft-modeled consensus engine:
// role state machine, election, log replication, commitment, and the
// glue that hands committed commands to a state machine in order. See
// spec section 4 for the full protocol description this package follows.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btmorr/raftkv/internal/raftpb"
	"github.com/btmorr/raftkv/internal/store"
)

// Role is the node's current position in the Raft role state machine.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
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

// Outcome is the closed set of client-visible results for a proposed
// write, matching spec section 7's external fault surface plus the
// client-timeout "unknown" case from spec section 8.
type Outcome int

const (
	Accepted Outcome = iota
	Redirect
	NotLeaderNoHint
	Unavailable
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Redirect:
		return "redirect"
	case NotLeaderNoHint:
		return "not-leader-no-hint"
	case Unavailable:
		return "unavailable"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ErrUnknownPeer is returned when a caller names a peer id that is not
// part of the static cluster configuration.
var ErrUnknownPeer = errors.New("consensus: unknown peer id")

// Peer is the subset of inter-node RPC behavior the consensus engine
// needs from a transport implementation. internal/transport provides a
// gRPC-backed implementation; tests use an in-process fake.
type Peer interface {
	RequestVote(ctx context.Context, req *raftpb.VoteRequest) (*raftpb.VoteReply, error)
	AppendEntries(ctx context.Context, req *raftpb.AppendRequest) (*raftpb.AppendReply, error)
}

// Config bundles a Node's static configuration.
type Config struct {
	ID                 string
	Peers              map[string]Peer // other cluster members, keyed by id
	Storage            *Storage
	Cache              *store.Cache
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	RPCTimeout         time.Duration
}

// Node is one member of a raftkv cluster: all state needed to operate the
// role state machine, the replicated log, and the replication driver when
// leading. A single mutex guards term/vote/role/log/commit/apply/index
// state, per spec section 5's baseline concurrency model.
type Node struct {
	mu sync.Mutex

	id      string
	peers   map[string]Peer
	storage *Storage
	cache   *store.Cache

	electionTimeoutMin time.Duration
	electionTimeoutMax time.Duration
	heartbeatInterval  time.Duration
	rpcTimeout         time.Duration

	currentTerm int64
	votedFor    string
	log         *Log

	role       Role
	leaderHint string

	commitIndex int64
	lastApplied int64

	nextIndex  map[string]int64
	matchIndex map[string]int64

	electionReset chan struct{}
	commitNotify  chan struct{}

	pendingApply []*raftpb.LogEntry
	applyReady   chan struct{}
}

// NewNode constructs a Node, restoring persisted term/vote/log from
// storage. Call Run to start the background election/replication loops.
func NewNode(cfg Config) (*Node, error) {
	term, votedFor, err := cfg.Storage.LoadTerm()
	if err != nil {
		return nil, fmt.Errorf("consensus: loading term: %w", err)
	}
	l, err := cfg.Storage.LoadLog()
	if err != nil {
		return nil, fmt.Errorf("consensus: loading log: %w", err)
	}

	n := &Node{
		id:                 cfg.ID,
		peers:              cfg.Peers,
		storage:            cfg.Storage,
		cache:              cfg.Cache,
		electionTimeoutMin: cfg.ElectionTimeoutMin,
		electionTimeoutMax: cfg.ElectionTimeoutMax,
		heartbeatInterval:  cfg.HeartbeatInterval,
		rpcTimeout:         cfg.RPCTimeout,
		currentTerm:        term,
		votedFor:           votedFor,
		log:                l,
		role:               Follower,
		commitIndex:        0,
		lastApplied:        0,
		nextIndex:          make(map[string]int64),
		matchIndex:         make(map[string]int64),
		electionReset:      make(chan struct{}, 1),
		commitNotify:       make(chan struct{}),
		applyReady:         make(chan struct{}, 1),
	}

	log.Info().Str("node", n.id).Int64("term", term).Str("votedFor", votedFor).
		Int("logLen", len(l.Entries())).Msg("node loaded persisted state")

	return n, nil
}

// clusterSize returns the total number of cluster members including self.
func (n *Node) clusterSize() int {
	return len(n.peers) + 1
}

func majorityOf(total int) int {
	return total/2 + 1
}

func (n *Node) randomElectionTimeout() time.Duration {
	span := n.electionTimeoutMax - n.electionTimeoutMin
	if span <= 0 {
		return n.electionTimeoutMin
	}
	return n.electionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

func (n *Node) signalElectionReset() {
	select {
	case n.electionReset <- struct{}{}:
	default:
	}
}

// broadcastCommitLocked wakes every goroutine waiting on a commit-index
// advance or a step-down. Must be called with n.mu held.
func (n *Node) broadcastCommitLocked() {
	close(n.commitNotify)
	n.commitNotify = make(chan struct{})
}

// Role reports the node's current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// StatusReport is the structured record spec section 6's "status"
// operation returns.
type StatusReport struct {
	ID          string
	Role        Role
	Term        int64
	LogLength   int64
	CommitIndex int64
	LastApplied int64
	LeaderHint  string
	ClusterSize int
}

// Status takes a consistent snapshot of node state for the client-facing
// status operation.
func (n *Node) Status() StatusReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return StatusReport{
		ID:          n.id,
		Role:        n.role,
		Term:        n.currentTerm,
		LogLength:   n.log.LastIndex(),
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LeaderHint:  n.leaderHint,
		ClusterSize: n.clusterSize(),
	}
}

// Cache returns the node's state machine, for local (non-replicated)
// reads by the client operation surface.
func (n *Node) Cache() *store.Cache {
	return n.cache
}

// stepDownLocked converts to Follower, adopting newTerm if it is greater
// than currentTerm (clearing votedFor), per the "any role, on observing
// term T' > currentTerm" rule in spec section 4.1. Must be called with
// n.mu held. Returns whether the term actually advanced.
func (n *Node) stepDownLocked(newTerm int64) bool {
	advanced := false
	if newTerm > n.currentTerm {
		n.currentTerm = newTerm
		n.votedFor = ""
		advanced = true
	}
	wasLeader := n.role == Leader
	n.role = Follower
	if advanced || wasLeader {
		n.broadcastCommitLocked()
	}
	return advanced
}

func (n *Node) persistTermLocked() error {
	return n.storage.SaveTerm(n.currentTerm, n.votedFor)
}

func (n *Node) persistLogLocked() error {
	return n.storage.SaveLog(n.log)
}

// feedApplyLocked advances lastApplied toward commitIndex, queuing each
// newly committed entry for the apply loop in ascending index order. Must
// be called with n.mu held.
func (n *Node) feedApplyLocked() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		e := n.log.EntryAt(n.lastApplied)
		if e == nil {
			log.Error().Str("node", n.id).Int64("index", n.lastApplied).
				Msg("apply loop: missing log entry for committed index")
			break
		}
		n.pendingApply = append(n.pendingApply, e)
	}
	select {
	case n.applyReady <- struct{}{}:
	default:
	}
}

// RunApplyLoop drains committed entries into cache in ascending index
// order until ctx is done. Callers start this once per node alongside
// Run. A single goroutine owns the drain, so entries always apply in the
// order they were queued; unlike a fixed-size channel, the pending queue
// has no capacity to overflow.
func (n *Node) RunApplyLoop(ctx context.Context) {
	for {
		n.mu.Lock()
		var e *raftpb.LogEntry
		if len(n.pendingApply) > 0 {
			e = n.pendingApply[0]
			n.pendingApply = n.pendingApply[1:]
		}
		n.mu.Unlock()

		if e != nil {
			applyToCache(n.cache, commandFromProto(e.Command), time.Now())
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-n.applyReady:
		}
	}
}

func applyToCache(c *store.Cache, cmd Command, now time.Time) {
	switch cmd.Op {
	case OpSet:
		c.Set(cmd.Key, cmd.Value, cmd.TTL, now)
	case OpDelete:
		c.Delete(cmd.Key)
	case OpClear:
		c.Clear()
	}
}

// Run drives the election/replication loops until ctx is done.
func (n *Node) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		switch n.Role() {
		case Leader:
			n.runLeader(ctx)
		default:
			n.runElectionCycle(ctx)
		}
	}
}

// runElectionCycle waits out one randomized election timeout, resetting
// whenever a valid AppendEntries is received or a vote is granted
// (signaled via electionReset). If the timeout elapses, it starts an
// election. Spec section 4.1: "Follower -> Candidate: election timer
// expires without receiving a valid AppendEntries ... or granting a
// vote."
func (n *Node) runElectionCycle(ctx context.Context) {
	timer := time.NewTimer(n.randomElectionTimeout())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.electionReset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(n.randomElectionTimeout())
		case <-timer.C:
			n.startElection(ctx)
			return
		}
	}
}

// startElection implements the Candidate election procedure of spec
// section 4.1: increment currentTerm, vote for self, request votes from
// every peer in parallel, and become Leader on a strict majority.
func (n *Node) startElection(ctx context.Context) {
	n.mu.Lock()
	n.currentTerm++
	n.votedFor = n.id
	n.role = Candidate
	term := n.currentTerm
	lastIndex := n.log.LastIndex()
	lastTerm := n.log.LastTerm()
	if err := n.persistTermLocked(); err != nil {
		log.Error().Err(err).Str("node", n.id).Msg("failed to persist term before election")
	}
	peers := make(map[string]Peer, len(n.peers))
	for id, p := range n.peers {
		peers[id] = p
	}
	n.mu.Unlock()

	log.Info().Str("node", n.id).Int64("term", term).Int("clusterSize", n.clusterSize()).
		Msg("starting election")

	req := &raftpb.VoteRequest{
		Term:         term,
		CandidateId:  n.id,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}

	votes := 1 // self
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(peers))
	for id, p := range peers {
		go func(id string, p Peer) {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, n.rpcTimeout)
			defer cancel()
			reply, err := p.RequestVote(rctx, req)
			if err != nil {
				return
			}
			n.mu.Lock()
			if reply.Term > n.currentTerm {
				n.stepDownLocked(reply.Term)
				n.persistTermLocked()
				n.mu.Unlock()
				return
			}
			n.mu.Unlock()
			if reply.VoteGranted {
				mu.Lock()
				votes++
				mu.Unlock()
			}
		}(id, p)
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Candidate || n.currentTerm != term {
		// Stepped down (higher term observed, or a leader's AppendEntries
		// arrived) while votes were outstanding.
		return
	}
	if votes >= majorityOf(n.clusterSize()) {
		n.becomeLeaderLocked()
	}
	// Otherwise stay Candidate; runElectionCycle will be re-entered by
	// Run and start a fresh election on the next timeout.
}

// becomeLeaderLocked transitions to Leader and resets per-follower
// indices. Must be called with n.mu held.
func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	n.leaderHint = n.id
	last := n.log.LastIndex()
	for id := range n.peers {
		n.nextIndex[id] = last + 1
		n.matchIndex[id] = 0
	}
	log.Info().Str("node", n.id).Int64("term", n.currentTerm).Msg("elected leader")
}

// runLeader starts one replication worker per peer and blocks until this
// node steps down from Leader for the current term.
func (n *Node) runLeader(ctx context.Context) {
	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.mu.Lock()
	term := n.currentTerm
	peerIDs := make([]string, 0, len(n.peers))
	for id := range n.peers {
		peerIDs = append(peerIDs, id)
	}
	n.mu.Unlock()

	// Immediately send an empty AppendEntries to all peers before any
	// client op, per spec section 4.1's heartbeat-on-becoming-leader rule.
	var wg sync.WaitGroup
	for _, id := range peerIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			n.replicateToPeer(leaderCtx, id, term, cancel)
		}(id)
	}

	<-leaderCtx.Done()
	wg.Wait()
}

// replicateToPeer is the per-follower replication loop of spec section
// 4.3: send AppendEntries carrying entries from nextIndex[p], every
// heartbeat interval, until the leader steps down.
func (n *Node) replicateToPeer(ctx context.Context, peerID string, term int64, stepDown context.CancelFunc) {
	peer := n.peers[peerID]
	ticker := time.NewTicker(n.heartbeatInterval)
	defer ticker.Stop()

	send := func() {
		n.mu.Lock()
		if n.role != Leader || n.currentTerm != term {
			n.mu.Unlock()
			stepDown()
			return
		}
		next := n.nextIndex[peerID]
		if next < 1 {
			next = 1
		}
		prevLogIndex := next - 1
		prevEntry := n.log.EntryAt(prevLogIndex)
		var prevLogTerm int64
		if prevEntry != nil {
			prevLogTerm = prevEntry.Term
		}
		const batchSize = 64
		entries := n.log.Slice(next, next+batchSize-1)
		req := &raftpb.AppendRequest{
			Term:         term,
			LeaderId:     n.id,
			PrevLogIndex: prevLogIndex,
			PrevLogTerm:  prevLogTerm,
			Entries:      entries,
			LeaderCommit: n.commitIndex,
		}
		n.mu.Unlock()

		rctx, rcancel := context.WithTimeout(ctx, n.rpcTimeout)
		reply, err := peer.AppendEntries(rctx, req)
		rcancel()
		if err != nil {
			return // observational failure; retry next tick
		}

		n.mu.Lock()
		defer n.mu.Unlock()
		if n.role != Leader || n.currentTerm != term {
			stepDown()
			return
		}
		if reply.Term > n.currentTerm {
			n.stepDownLocked(reply.Term)
			n.persistTermLocked()
			stepDown()
			return
		}
		if reply.Success {
			n.matchIndex[peerID] = prevLogIndex + int64(len(entries))
			n.nextIndex[peerID] = n.matchIndex[peerID] + 1
			n.tryAdvanceCommitLocked(term)
		} else if n.nextIndex[peerID] > 1 {
			n.nextIndex[peerID]--
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// tryAdvanceCommitLocked implements spec section 4.3's commit rule: the
// largest N > commitIndex such that a strict majority of matchIndex[p]
// (including the leader) is >= N AND log[N].term == currentTerm. Must be
// called with n.mu held, and only while still Leader for the given term.
func (n *Node) tryAdvanceCommitLocked(term int64) {
	last := n.log.LastIndex()
	majority := majorityOf(n.clusterSize())
	for N := last; N > n.commitIndex; N-- {
		entry := n.log.EntryAt(N)
		if entry == nil || entry.Term != term {
			continue
		}
		count := 1 // leader itself
		for id := range n.peers {
			if n.matchIndex[id] >= N {
				count++
			}
		}
		if count >= majority {
			n.commitIndex = N
			n.feedApplyLocked()
			n.broadcastCommitLocked()
			return
		}
	}
}

// Propose is the leader-only client proposal entry point of spec section
// 4.3: append to the log, then wait for commitIndex >= the new entry's
// index (or step-down / timeout) before returning. Unlike the reference
// codebase this package is modeled on, Propose never acknowledges a
// write before it is actually committed (spec section 9's redesign
// note).
func (n *Node) Propose(ctx context.Context, cmd Command) (Outcome, int64, string) {
	n.mu.Lock()
	if n.role != Leader {
		hint := n.leaderHint
		n.mu.Unlock()
		if hint == "" {
			return NotLeaderNoHint, 0, ""
		}
		return Redirect, 0, hint
	}
	term := n.currentTerm
	idx := n.log.Append(term, cmd)
	if err := n.persistLogLocked(); err != nil {
		log.Error().Err(err).Str("node", n.id).Msg("failed to persist log on propose")
		n.log.TruncateFrom(idx)
		n.mu.Unlock()
		return Unavailable, 0, ""
	}
	// With no peers the leader alone is a majority, so the entry can
	// commit right away; otherwise this is a no-op until peers ack.
	n.tryAdvanceCommitLocked(term)
	n.mu.Unlock()

	for {
		n.mu.Lock()
		if n.role != Leader || n.currentTerm != term {
			hint := n.leaderHint
			n.mu.Unlock()
			if hint == "" {
				return NotLeaderNoHint, idx, ""
			}
			return Redirect, idx, hint
		}
		if n.commitIndex >= idx {
			n.mu.Unlock()
			return Accepted, idx, ""
		}
		ch := n.commitNotify
		n.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return Unknown, idx, ""
		}
	}
}

// HandleRequestVote implements spec section 4.5.
func (n *Node) HandleRequestVote(req *raftpb.VoteRequest) *raftpb.VoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return &raftpb.VoteReply{Term: n.currentTerm, VoteGranted: false}
	}
	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
	}

	canVote := n.votedFor == "" || n.votedFor == req.CandidateId
	upToDate := n.log.UpToDate(req.LastLogIndex, req.LastLogTerm)
	grant := canVote && upToDate

	if grant {
		n.votedFor = req.CandidateId
		n.signalElectionReset()
	}
	if err := n.persistTermLocked(); err != nil {
		log.Error().Err(err).Str("node", n.id).Msg("failed to persist vote")
	}

	return &raftpb.VoteReply{Term: n.currentTerm, VoteGranted: grant}
}

// HandleAppendEntries implements spec section 4.4.
func (n *Node) HandleAppendEntries(req *raftpb.AppendRequest) *raftpb.AppendReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return &raftpb.AppendReply{Term: n.currentTerm, Success: false}
	}

	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
	} else if n.role != Follower {
		n.role = Follower
	}
	n.leaderHint = req.LeaderId
	n.signalElectionReset()

	if req.PrevLogIndex > 0 {
		entry := n.log.EntryAt(req.PrevLogIndex)
		if entry == nil || entry.Term != req.PrevLogTerm {
			n.persistTermLocked()
			return &raftpb.AppendReply{Term: n.currentTerm, Success: false}
		}
	}

	for k, incoming := range req.Entries {
		i := req.PrevLogIndex + 1 + int64(k)
		existing := n.log.EntryAt(i)
		if existing != nil && existing.Term != incoming.Term {
			n.log.TruncateFrom(i)
			existing = nil
		}
		if existing == nil {
			n.log.AppendEntry(incoming)
		}
	}
	if len(req.Entries) > 0 {
		if err := n.persistLogLocked(); err != nil {
			log.Error().Err(err).Str("node", n.id).Msg("failed to persist replicated log")
		}
	}

	if req.LeaderCommit > n.commitIndex {
		last := n.log.LastIndex()
		if req.LeaderCommit < last {
			n.commitIndex = req.LeaderCommit
		} else {
			n.commitIndex = last
		}
		n.feedApplyLocked()
		n.broadcastCommitLocked()
	}

	n.persistTermLocked()
	return &raftpb.AppendReply{Term: n.currentTerm, Success: true}
}

// Code generated from proto/raft.proto. Hand-maintained in this repository
// because running protoc is not part of the build here; keep in sync with
// proto/raft.proto by hand when the wire shape changes.

package raftpb

import (
	fmt "fmt"

	proto "github.com/golang/protobuf/proto"
)

// Command_Op is the closed set of operations a replicated command can carry.
type Command_Op int32

const (
	Command_SET    Command_Op = 0
	Command_DELETE Command_Op = 1
	Command_CLEAR  Command_Op = 2
)

var Command_Op_name = map[int32]string{
	0: "SET",
	1: "DELETE",
	2: "CLEAR",
}

func (x Command_Op) String() string {
	if s, ok := Command_Op_name[int32(x)]; ok {
		return s
	}
	return fmt.Sprintf("Command_Op(%d)", int32(x))
}

// Command is the payload of a single replicated log entry.
type Command struct {
	Op        Command_Op `protobuf:"varint,1,opt,name=op,proto3,enum=raftpb.Command_Op" json:"op,omitempty"`
	Key       string     `protobuf:"bytes,2,opt,name=key,proto3" json:"key,omitempty"`
	Value     string     `protobuf:"bytes,3,opt,name=value,proto3" json:"value,omitempty"`
	TtlMillis int64      `protobuf:"varint,4,opt,name=ttl_millis,json=ttlMillis,proto3" json:"ttl_millis,omitempty"`
}

func (m *Command) Reset()         { *m = Command{} }
func (m *Command) String() string { return fmt.Sprintf("%+v", *m) }
func (*Command) ProtoMessage()    {}

func (m *Command) GetOp() Command_Op {
	if m != nil {
		return m.Op
	}
	return Command_SET
}

func (m *Command) GetKey() string {
	if m != nil {
		return m.Key
	}
	return ""
}

func (m *Command) GetValue() string {
	if m != nil {
		return m.Value
	}
	return ""
}

func (m *Command) GetTtlMillis() int64 {
	if m != nil {
		return m.TtlMillis
	}
	return 0
}

// LogEntry is one entry of the replicated log: a term, an index, and the
// command to apply once committed.
type LogEntry struct {
	Term    int64    `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	Index   int64    `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
	Command *Command `protobuf:"bytes,3,opt,name=command,proto3" json:"command,omitempty"`
}

func (m *LogEntry) Reset()         { *m = LogEntry{} }
func (m *LogEntry) String() string { return fmt.Sprintf("%+v", *m) }
func (*LogEntry) ProtoMessage()    {}

func (m *LogEntry) GetTerm() int64 {
	if m != nil {
		return m.Term
	}
	return 0
}

func (m *LogEntry) GetIndex() int64 {
	if m != nil {
		return m.Index
	}
	return 0
}

func (m *LogEntry) GetCommand() *Command {
	if m != nil {
		return m.Command
	}
	return nil
}

// LogStore is the on-disk representation of the full replicated log.
type LogStore struct {
	Entries []*LogEntry `protobuf:"bytes,1,rep,name=entries,proto3" json:"entries,omitempty"`
}

func (m *LogStore) Reset()         { *m = LogStore{} }
func (m *LogStore) String() string { return fmt.Sprintf("%+v", *m) }
func (*LogStore) ProtoMessage()    {}

// Node identifies a cluster member for vote bookkeeping.
type Node struct {
	Id string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
}

func (m *Node) Reset()         { *m = Node{} }
func (m *Node) String() string { return fmt.Sprintf("%+v", *m) }
func (*Node) ProtoMessage()    {}

// TermRecord is the on-disk representation of currentTerm + votedFor.
type TermRecord struct {
	Term     int64 `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	VotedFor *Node `protobuf:"bytes,2,opt,name=voted_for,json=votedFor,proto3" json:"voted_for,omitempty"`
}

func (m *TermRecord) Reset()         { *m = TermRecord{} }
func (m *TermRecord) String() string { return fmt.Sprintf("%+v", *m) }
func (*TermRecord) ProtoMessage()    {}

// VoteRequest is the RequestVote RPC request.
type VoteRequest struct {
	Term         int64  `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	CandidateId  string `protobuf:"bytes,2,opt,name=candidate_id,json=candidateId,proto3" json:"candidate_id,omitempty"`
	LastLogIndex int64  `protobuf:"varint,3,opt,name=last_log_index,json=lastLogIndex,proto3" json:"last_log_index,omitempty"`
	LastLogTerm  int64  `protobuf:"varint,4,opt,name=last_log_term,json=lastLogTerm,proto3" json:"last_log_term,omitempty"`
}

func (m *VoteRequest) Reset()         { *m = VoteRequest{} }
func (m *VoteRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*VoteRequest) ProtoMessage()    {}

func (m *VoteRequest) GetTerm() int64 {
	if m != nil {
		return m.Term
	}
	return 0
}

// VoteReply is the RequestVote RPC response.
type VoteReply struct {
	Term        int64 `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	VoteGranted bool  `protobuf:"varint,2,opt,name=vote_granted,json=voteGranted,proto3" json:"vote_granted,omitempty"`
}

func (m *VoteReply) Reset()         { *m = VoteReply{} }
func (m *VoteReply) String() string { return fmt.Sprintf("%+v", *m) }
func (*VoteReply) ProtoMessage()    {}

func (m *VoteReply) GetTerm() int64 {
	if m != nil {
		return m.Term
	}
	return 0
}

func (m *VoteReply) GetVoteGranted() bool {
	if m != nil {
		return m.VoteGranted
	}
	return false
}

// AppendRequest is the AppendEntries RPC request.
type AppendRequest struct {
	Term         int64       `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	LeaderId     string      `protobuf:"bytes,2,opt,name=leader_id,json=leaderId,proto3" json:"leader_id,omitempty"`
	PrevLogIndex int64       `protobuf:"varint,3,opt,name=prev_log_index,json=prevLogIndex,proto3" json:"prev_log_index,omitempty"`
	PrevLogTerm  int64       `protobuf:"varint,4,opt,name=prev_log_term,json=prevLogTerm,proto3" json:"prev_log_term,omitempty"`
	Entries      []*LogEntry `protobuf:"bytes,5,rep,name=entries,proto3" json:"entries,omitempty"`
	LeaderCommit int64       `protobuf:"varint,6,opt,name=leader_commit,json=leaderCommit,proto3" json:"leader_commit,omitempty"`
}

func (m *AppendRequest) Reset()         { *m = AppendRequest{} }
func (m *AppendRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*AppendRequest) ProtoMessage()    {}

func (m *AppendRequest) GetTerm() int64 {
	if m != nil {
		return m.Term
	}
	return 0
}

func (m *AppendRequest) GetEntries() []*LogEntry {
	if m != nil {
		return m.Entries
	}
	return nil
}

func (m *AppendRequest) GetLeaderCommit() int64 {
	if m != nil {
		return m.LeaderCommit
	}
	return 0
}

// AppendReply is the AppendEntries RPC response.
type AppendReply struct {
	Term          int64 `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	Success       bool  `protobuf:"varint,2,opt,name=success,proto3" json:"success,omitempty"`
	ConflictIndex int64 `protobuf:"varint,3,opt,name=conflict_index,json=conflictIndex,proto3" json:"conflict_index,omitempty"`
}

func (m *AppendReply) Reset()         { *m = AppendReply{} }
func (m *AppendReply) String() string { return fmt.Sprintf("%+v", *m) }
func (*AppendReply) ProtoMessage()    {}

func (m *AppendReply) GetTerm() int64 {
	if m != nil {
		return m.Term
	}
	return 0
}

func (m *AppendReply) GetSuccess() bool {
	if m != nil {
		return m.Success
	}
	return false
}

func init() {
	proto.RegisterType((*Command)(nil), "raftpb.Command")
	proto.RegisterType((*LogEntry)(nil), "raftpb.LogEntry")
	proto.RegisterType((*LogStore)(nil), "raftpb.LogStore")
	proto.RegisterType((*Node)(nil), "raftpb.Node")
	proto.RegisterType((*TermRecord)(nil), "raftpb.TermRecord")
	proto.RegisterType((*VoteRequest)(nil), "raftpb.VoteRequest")
	proto.RegisterType((*VoteReply)(nil), "raftpb.VoteReply")
	proto.RegisterType((*AppendRequest)(nil), "raftpb.AppendRequest")
	proto.RegisterType((*AppendReply)(nil), "raftpb.AppendReply")
}

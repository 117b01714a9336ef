package consensus

import (
	"time"

	"github.com/btmorr/raftkv/internal/raftpb"
)

// Op is the closed set of operations a replicated command can carry,
// mirroring raftpb.Command_Op but kept separate so callers outside this
// package never need to import the wire type directly.
type Op int

const (
	OpSet Op = iota
	OpDelete
	OpClear
)

// Command is the in-process form of a single log entry's payload: a
// closed sum type encoded once at the transport/persistence boundary via
// ToProto/commandFromProto, per spec section 9's re-architecture guidance.
type Command struct {
	Op    Op
	Key   string
	Value string
	TTL   time.Duration
}

// SetCommand builds a set(key, value, ttl?) command. A zero ttl means no
// expiry.
func SetCommand(key, value string, ttl time.Duration) Command {
	return Command{Op: OpSet, Key: key, Value: value, TTL: ttl}
}

// DeleteCommand builds a delete(key) command.
func DeleteCommand(key string) Command {
	return Command{Op: OpDelete, Key: key}
}

// ClearCommand builds a clear command.
func ClearCommand() Command {
	return Command{Op: OpClear}
}

// ToProto encodes a Command for the wire/disk.
func (c Command) ToProto() *raftpb.Command {
	pb := &raftpb.Command{Key: c.Key, Value: c.Value, TtlMillis: c.TTL.Milliseconds()}
	switch c.Op {
	case OpSet:
		pb.Op = raftpb.Command_SET
	case OpDelete:
		pb.Op = raftpb.Command_DELETE
	case OpClear:
		pb.Op = raftpb.Command_CLEAR
	}
	return pb
}

// commandFromProto decodes a wire/disk Command back into the in-process
// form.
func commandFromProto(pb *raftpb.Command) Command {
	c := Command{
		Key:   pb.GetKey(),
		Value: pb.GetValue(),
		TTL:   time.Duration(pb.GetTtlMillis()) * time.Millisecond,
	}
	switch pb.GetOp() {
	case raftpb.Command_DELETE:
		c.Op = OpDelete
	case raftpb.Command_CLEAR:
		c.Op = OpClear
	default:
		c.Op = OpSet
	}
	return c
}

package consensus

import "github.com/btmorr/raftkv/internal/raftpb"

// Log is the replicated, append-only sequence of entries described in
// spec section 4.2. Entries are indexed from 1; entryAt(0) returns the
// virtual sentinel with term 0. Log is not safe for concurrent use; callers
// (the Node) serialize access under their own lock.
type Log struct {
	entries []*raftpb.LogEntry // entries[i] has Index == i+1
}

var sentinel = &raftpb.LogEntry{Term: 0, Index: 0}

// NewLog constructs an empty log.
func NewLog() *Log {
	return &Log{}
}

// LoadLog reconstructs a Log from a previously persisted entry list.
func LoadLog(entries []*raftpb.LogEntry) *Log {
	return &Log{entries: entries}
}

// Entries returns the full entry list, for persistence. Callers must not
// mutate the returned slice.
func (l *Log) Entries() []*raftpb.LogEntry {
	return l.entries
}

// LastIndex returns the index of the last entry, or 0 if the log is empty.
func (l *Log) LastIndex() int64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the last entry, or 0 if the log is empty.
func (l *Log) LastTerm() int64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// EntryAt returns the entry at index i. i == 0 returns the sentinel.
// Accessing an index beyond LastIndex() is invalid and returns nil.
func (l *Log) EntryAt(i int64) *raftpb.LogEntry {
	if i == 0 {
		return sentinel
	}
	if i < 1 || i > int64(len(l.entries)) {
		return nil
	}
	return l.entries[i-1]
}

// Append assigns index = LastIndex()+1 and appends a new entry with the
// given term and command, returning the new index. Leader-only per spec
// section 4.2 (the Log type itself does not enforce that; Node does).
func (l *Log) Append(term int64, cmd Command) int64 {
	idx := l.LastIndex() + 1
	l.entries = append(l.entries, &raftpb.LogEntry{
		Term:    term,
		Index:   idx,
		Command: cmd.ToProto(),
	})
	return idx
}

// AppendEntry appends an already-built entry as-is (used by followers when
// copying entries verbatim from a leader's AppendEntries request).
func (l *Log) AppendEntry(e *raftpb.LogEntry) {
	l.entries = append(l.entries, e)
}

// TruncateFrom discards every entry with index >= i.
func (l *Log) TruncateFrom(i int64) {
	if i < 1 {
		l.entries = nil
		return
	}
	if i > int64(len(l.entries)) {
		return
	}
	l.entries = l.entries[:i-1]
}

// UpToDate implements the log-completeness rule used in vote granting
// (spec section 4.2): true iff the candidate's log is at least as
// up-to-date as this log.
func (l *Log) UpToDate(candLastIndex, candLastTerm int64) bool {
	lastTerm := l.LastTerm()
	if candLastTerm != lastTerm {
		return candLastTerm > lastTerm
	}
	return candLastIndex >= l.LastIndex()
}

// Slice returns entries in [from, to] inclusive (1-indexed), clamped to
// the log's bounds. Used by the replication driver to build an
// AppendEntries batch.
func (l *Log) Slice(from, to int64) []*raftpb.LogEntry {
	last := l.LastIndex()
	if to > last {
		to = last
	}
	if from < 1 || from > to {
		return nil
	}
	return l.entries[from-1 : to]
}

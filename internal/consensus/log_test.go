package consensus

import "testing"

func TestLogAppendAndEntryAt(t *testing.T) {
	l := NewLog()
	if l.LastIndex() != 0 || l.LastTerm() != 0 {
		t.Fatalf("expected empty log to report index/term 0")
	}
	if l.EntryAt(0).Term != 0 {
		t.Fatalf("expected sentinel term 0")
	}

	idx1 := l.Append(1, SetCommand("a", "1", 0))
	idx2 := l.Append(1, SetCommand("b", "2", 0))
	if idx1 != 1 || idx2 != 2 {
		t.Fatalf("expected indices 1,2 got %d,%d", idx1, idx2)
	}
	if l.LastIndex() != 2 || l.LastTerm() != 1 {
		t.Fatalf("expected last index 2 term 1, got %d %d", l.LastIndex(), l.LastTerm())
	}
}

func TestLogTruncateFrom(t *testing.T) {
	l := NewLog()
	l.Append(1, SetCommand("a", "1", 0))
	l.Append(1, SetCommand("b", "2", 0))
	l.Append(2, SetCommand("c", "3", 0))

	l.TruncateFrom(2)
	if l.LastIndex() != 1 {
		t.Fatalf("expected truncation to leave last index 1, got %d", l.LastIndex())
	}
	if l.EntryAt(1).Command.Key != "a" {
		t.Fatalf("expected surviving entry to be 'a'")
	}
}

func TestLogUpToDate(t *testing.T) {
	l := NewLog()
	l.Append(1, SetCommand("a", "1", 0))
	l.Append(2, SetCommand("b", "2", 0))

	if !l.UpToDate(2, 2) {
		t.Fatalf("equal log should be up to date")
	}
	if !l.UpToDate(5, 3) {
		t.Fatalf("higher term candidate should be up to date")
	}
	if l.UpToDate(1, 2) {
		t.Fatalf("candidate behind in index at same term should not be up to date")
	}
	if l.UpToDate(10, 1) {
		t.Fatalf("candidate with lower term should not be up to date even with more entries")
	}
}

func TestLogSlice(t *testing.T) {
	l := NewLog()
	l.Append(1, SetCommand("a", "1", 0))
	l.Append(1, SetCommand("b", "2", 0))
	l.Append(1, SetCommand("c", "3", 0))

	s := l.Slice(2, 10)
	if len(s) != 2 || s[0].Command.Key != "b" || s[1].Command.Key != "c" {
		t.Fatalf("unexpected slice result: %+v", s)
	}
}

package consensus

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/golang/protobuf/proto"
	"github.com/rs/zerolog/log"

	"github.com/btmorr/raftkv/internal/raftpb"
)

// Storage persists currentTerm, votedFor, and the log to disk. Every
// mutation of that state must be durable before the RPC handler that
// caused it replies, per spec section 4.2. Writes use a temp-file,
// fsync, rename sequence so a crash between write and rename can never
// observe a torn file, closing the gap the reference codebase's
// WriteTerm/WriteLogs leave (no fsync, no atomic rename check).
type Storage struct {
	termFile string
	logFile  string
	volatile bool
}

// NewStorage builds a Storage rooted at dataDir. When volatile is true,
// persistence is skipped entirely (the explicit --unsafe-volatile escape
// hatch named in spec section 9's open-question resolution); state is
// lost on restart.
func NewStorage(dataDir string, volatile bool) *Storage {
	return &Storage{
		termFile: filepath.Join(dataDir, "term.pb"),
		logFile:  filepath.Join(dataDir, "log.pb"),
		volatile: volatile,
	}
}

func writeFileDurably(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("persist: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("persist: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("persist: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist: rename into place: %w", err)
	}
	if dirf, err := os.Open(dir); err == nil {
		dirf.Sync()
		dirf.Close()
	}
	return nil
}

// SaveTerm persists currentTerm and votedFor.
func (s *Storage) SaveTerm(term int64, votedFor string) error {
	if s.volatile {
		return nil
	}
	rec := &raftpb.TermRecord{Term: term}
	if votedFor != "" {
		rec.VotedFor = &raftpb.Node{Id: votedFor}
	}
	out, err := proto.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: marshal term record: %w", err)
	}
	return writeFileDurably(s.termFile, out)
}

// LoadTerm reads back currentTerm and votedFor, or zero-values if no
// record exists yet.
func (s *Storage) LoadTerm() (term int64, votedFor string, err error) {
	if s.volatile {
		return 0, "", nil
	}
	raw, err := ioutil.ReadFile(s.termFile)
	if os.IsNotExist(err) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("persist: reading term file: %w", err)
	}
	var rec raftpb.TermRecord
	if err := proto.Unmarshal(raw, &rec); err != nil {
		return 0, "", fmt.Errorf("persist: unmarshal term record: %w", err)
	}
	if rec.VotedFor != nil {
		votedFor = rec.VotedFor.Id
	}
	return rec.Term, votedFor, nil
}

// SaveLog persists the full log.
func (s *Storage) SaveLog(l *Log) error {
	if s.volatile {
		return nil
	}
	store := &raftpb.LogStore{Entries: l.Entries()}
	out, err := proto.Marshal(store)
	if err != nil {
		return fmt.Errorf("persist: marshal log: %w", err)
	}
	return writeFileDurably(s.logFile, out)
}

// LoadLog reads back the log, or an empty log if no record exists yet.
func (s *Storage) LoadLog() (*Log, error) {
	if s.volatile {
		return NewLog(), nil
	}
	raw, err := ioutil.ReadFile(s.logFile)
	if os.IsNotExist(err) {
		return NewLog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: reading log file: %w", err)
	}
	var store raftpb.LogStore
	if err := proto.Unmarshal(raw, &store); err != nil {
		log.Warn().Err(err).Msg("failed to unmarshal log file, starting from empty log")
		return NewLog(), nil
	}
	return LoadLog(store.Entries), nil
}

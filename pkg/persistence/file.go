package persistence

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// File is the disk-backed Gateway: one JSON document per node for role
// state and one for the log, written atomically (temp file + rename) under
// a single directory. Suited to single-node deployments that need state to
// survive restarts without an external store.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile constructs a file gateway rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, coordinationerr.Newf(component, "NewFile", coordinationerr.KindUnavailable, dir, err)
	}
	return &File{dir: dir}, nil
}

// nodeFile maps a node id to a filename, escaping path separators so a
// hostile id cannot traverse outside dir.
func (f *File) nodeFile(nodeID, suffix string) string {
	return filepath.Join(f.dir, url.PathEscape(nodeID)+suffix)
}

const (
	stateSuffix = ".state.json"
	logSuffix   = ".log.json"
)

func (f *File) LoadState(nodeID string) (*models.ConsensusState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.nodeFile(nodeID, stateSuffix))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coordinationerr.Newf(component, "LoadState", coordinationerr.KindUnavailable, nodeID, err)
	}
	var state models.ConsensusState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, coordinationerr.Newf(component, "LoadState", coordinationerr.KindIntegrityFailure, nodeID, err)
	}
	return &state, true, nil
}

func (f *File) SaveState(nodeID string, state models.ConsensusState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(f.nodeFile(nodeID, stateSuffix), state, "SaveState", nodeID)
}

func (f *File) AppendLog(nodeID string, entry models.ConsensusEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, err := f.readLog(nodeID)
	if err != nil {
		return err
	}
	log = append(log, entry)
	return f.writeJSON(f.nodeFile(nodeID, logSuffix), log, "AppendLog", nodeID)
}

func (f *File) Log(nodeID string) ([]models.ConsensusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLog(nodeID)
}

func (f *File) MarkCommitted(nodeID string, index int, at time.Time) error {
	return f.stamp(nodeID, "MarkCommitted", index, func(e *models.ConsensusEntry) {
		if e.CommittedAt.IsZero() {
			e.CommittedAt = at
		}
	})
}

func (f *File) MarkApplied(nodeID string, index int, at time.Time) error {
	return f.stamp(nodeID, "MarkApplied", index, func(e *models.ConsensusEntry) {
		if e.AppliedAt.IsZero() {
			e.AppliedAt = at
		}
	})
}

func (f *File) stamp(nodeID, op string, index int, mark func(*models.ConsensusEntry)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, err := f.readLog(nodeID)
	if err != nil {
		return err
	}
	if index >= len(log) {
		return coordinationerr.New(component, op, coordinationerr.KindInvalidArgument)
	}
	for i := range log {
		if log[i].Index <= index {
			mark(&log[i])
		}
	}
	return f.writeJSON(f.nodeFile(nodeID, logSuffix), log, op, nodeID)
}

func (f *File) Snapshot() (*SnapshotData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, coordinationerr.Newf(component, "Snapshot", coordinationerr.KindUnavailable, f.dir, err)
	}
	snap := &SnapshotData{
		TakenAt: time.Now().UTC(),
		States:  make(map[string]models.ConsensusState),
		Logs:    make(map[string][]models.ConsensusEntry),
	}
	for _, ent := range entries {
		name := ent.Name()
		switch {
		case strings.HasSuffix(name, stateSuffix):
			nodeID, err := url.PathUnescape(strings.TrimSuffix(name, stateSuffix))
			if err != nil {
				continue
			}
			data, err := os.ReadFile(filepath.Join(f.dir, name))
			if err != nil {
				continue
			}
			var state models.ConsensusState
			if json.Unmarshal(data, &state) == nil {
				snap.States[nodeID] = state
			}
		case strings.HasSuffix(name, logSuffix):
			nodeID, err := url.PathUnescape(strings.TrimSuffix(name, logSuffix))
			if err != nil {
				continue
			}
			data, err := os.ReadFile(filepath.Join(f.dir, name))
			if err != nil {
				continue
			}
			var log []models.ConsensusEntry
			if json.Unmarshal(data, &log) == nil {
				snap.Logs[nodeID] = log
			}
		}
	}
	return snap, nil
}

func (f *File) Close() error { return nil }

func (f *File) readLog(nodeID string) ([]models.ConsensusEntry, error) {
	data, err := os.ReadFile(f.nodeFile(nodeID, logSuffix))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindUnavailable, nodeID, err)
	}
	var log []models.ConsensusEntry
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindIntegrityFailure, nodeID, err)
	}
	return log, nil
}

// writeJSON writes v atomically: marshal to a temp file in the same
// directory, then rename over the destination so a crash never leaves a
// half-written document behind.
func (f *File) writeJSON(path string, v any, op, id string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return coordinationerr.Newf(component, op, coordinationerr.KindInternal, id, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return coordinationerr.Newf(component, op, coordinationerr.KindUnavailable, id, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return coordinationerr.Newf(component, op, coordinationerr.KindUnavailable, id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return coordinationerr.Newf(component, op, coordinationerr.KindUnavailable, id, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return coordinationerr.Newf(component, op, coordinationerr.KindUnavailable, id, fmt.Errorf("rename: %w", err))
	}
	return nil
}

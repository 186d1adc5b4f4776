package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// ErrCorrupt marks a state document that exists but cannot be decoded.
var ErrCorrupt = errors.New("state document corrupt")

// Store persists a DailyState as a single JSON document.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the persisted state when it belongs to today. A missing,
// unreadable or stale document yields a fresh zeroed state for today.
func (s *Store) Load(today string, ids []session.ID) (*DailyState, error) {
	snap, err := s.Read()
	if errors.Is(err, os.ErrNotExist) {
		return NewDailyState(today, ids), nil
	}
	if errors.Is(err, ErrCorrupt) {
		logger.Warnf(i18n.Get("StateCorrupt"), err)
		return NewDailyState(today, ids), nil
	}
	if err != nil {
		return nil, err
	}
	if snap.LastResetDate != today {
		logger.Infof(i18n.Get("StateStale"), snap.LastResetDate, today)
		return NewDailyState(today, ids), nil
	}
	d := FromSnapshot(snap, ids)
	logger.Infof(i18n.Get("StateLoaded"), today, len(d.ActiveTrades()))
	return d, nil
}

// Read decodes the raw document without any date check.
func (s *Store) Read() (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(s.path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return snap, nil
}

// Save rewrites the whole document atomically.
func (s *Store) Save(d *DailyState) error {
	data, err := json.MarshalIndent(d.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

// Delete removes the document; a missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory, fsyncs it
// and renames it over path, then fsyncs the directory best-effort.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Package state persists the live session between restarts.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/position"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/internal/version"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"go.uber.org/zap"
)

// Snapshot is everything needed to resume a live session.
type Snapshot struct {
	Version   string             `json:"version"`
	RunID     string             `json:"runId"`
	SavedAt   time.Time          `json:"savedAt"`
	Symbol    string             `json:"symbol"`
	Timeframe string             `json:"timeframe"`
	Broker    position.State     `json:"broker"`
	Guards    guard.State        `json:"guards"`
	Strategy  types.StrategyInfo `json:"strategy"`
	// LastBarTime is the close time of the last processed bar. Zero means none.
	LastBarTime time.Time `json:"lastBarTime"`
}

// Store reads and writes one snapshot file.
type Store struct {
	path   string
	logger *logger.Logger
}

func NewStore(path string, log *logger.Logger) *Store {
	return &Store{
		path:   path,
		logger: log,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot atomically: a temp file in the same directory is
// renamed over the target, so a reader never sees a partial file.
func (s *Store) Save(snapshot Snapshot) error {
	if snapshot.Version == "" {
		snapshot.Version = version.GetVersion()
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "failed to encode snapshot", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(errors.ErrCodeStateWriteFailed, err, "failed to create state directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "failed to create temp state file", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return errors.Wrap(errors.ErrCodeStateWriteFailed, "failed to write temp state file", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return errors.Wrap(errors.ErrCodeStateWriteFailed, "failed to sync temp state file", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return errors.Wrap(errors.ErrCodeStateWriteFailed, "failed to close temp state file", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)

		return errors.Wrapf(errors.ErrCodeStateWriteFailed, err, "failed to move snapshot into %s", s.path)
	}

	return nil
}

// Load reads the snapshot. found is false when no file exists yet. A snapshot
// written by an incompatible version is refused with ErrCodeVersionMismatch.
func (s *Store) Load() (snapshot Snapshot, found bool, err error) {
	//nolint:gosec // path comes from the run configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}

		return Snapshot{}, false, errors.Wrapf(errors.ErrCodeStateReadFailed, err, "failed to read %s", s.path)
	}

	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, errors.Wrapf(errors.ErrCodeStateReadFailed, err, "failed to decode %s", s.path)
	}

	if err := version.CheckVersionCompatibility(version.GetVersion(), snapshot.Version); err != nil {
		return Snapshot{}, false, err
	}

	if snapshot.Guards.Blocked == nil {
		snapshot.Guards.Blocked = map[guard.Reason]int{}
	}

	if s.logger != nil {
		s.logger.Info("Snapshot loaded",
			zap.String("path", s.path),
			zap.String("version", snapshot.Version),
			zap.String("run_id", snapshot.RunID),
			zap.Bool("open", snapshot.Broker.Position.IsOpen()),
		)
	}

	return snapshot, true, nil
}

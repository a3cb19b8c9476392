package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlindqvist/psarank/internal/metrics"
	"github.com/nlindqvist/psarank/pkg/models"
)

const checkpointSuffix = "_checkpoint.json"

// Store persists per-gender fetch progress. One checkpoint file exists per
// gender. No locking between concurrent runs for the same gender is
// provided; running two processes for the same gender at once is
// unsupported.
type Store struct {
	dir       string
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewStore creates a checkpoint store rooted at dir
func NewStore(dir string, logger *slog.Logger, collector *metrics.Collector) *Store {
	return &Store{
		dir:       dir,
		logger:    logger,
		collector: collector,
	}
}

// Path returns the checkpoint file path for a gender
func (s *Store) Path(gender models.Gender) string {
	return filepath.Join(s.dir, string(gender)+checkpointSuffix)
}

// Load reads the persisted checkpoint for a gender. A missing, unreadable,
// or corrupt file is never fatal: the run degrades to a fresh start, with a
// warning for anything other than plain absence.
func (s *Store) Load(gender models.Gender) *models.Checkpoint {
	path := s.Path(gender)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("No checkpoint found", "gender", gender)
			return nil
		}
		s.logger.Warn("Failed to read checkpoint, starting fresh",
			"gender", gender,
			"path", path,
			"error", err)
		return nil
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("Corrupt checkpoint, starting fresh",
			"gender", gender,
			"path", path,
			"error", err)
		return nil
	}

	s.logger.Info("Checkpoint loaded",
		"gender", gender,
		"source", cp.Source,
		"last_completed_page", cp.LastCompletedPage,
		"records", cp.Records.Len())

	return &cp
}

// Save writes cp durably: marshal, write a temp file, then rename. A crash
// mid-write leaves the previously saved checkpoint intact.
func (s *Store) Save(cp *models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		s.collector.RecordCheckpointWrite(string(cp.Gender), false)
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := s.Path(cp.Gender)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		s.collector.RecordCheckpointWrite(string(cp.Gender), false)
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		s.collector.RecordCheckpointWrite(string(cp.Gender), false)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	s.collector.RecordCheckpointWrite(string(cp.Gender), true)
	s.logger.Debug("Checkpoint saved",
		"gender", cp.Gender,
		"page", cp.LastCompletedPage,
		"records", cp.Records.Len())
	return nil
}

// Clear removes the checkpoint for a gender. Missing files are fine.
func (s *Store) Clear(gender models.Gender) error {
	path := s.Path(gender)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	s.logger.Info("Checkpoint cleared", "gender", gender)
	return nil
}

// List loads every checkpoint currently on disk
func (s *Store) List() ([]*models.Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []*models.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), checkpointSuffix) {
			continue
		}
		gender := models.Gender(strings.TrimSuffix(entry.Name(), checkpointSuffix))
		if cp := s.Load(gender); cp != nil {
			checkpoints = append(checkpoints, cp)
		}
	}
	return checkpoints, nil
}

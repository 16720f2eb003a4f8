// Package store persists the monitor's learned state as a versioned JSON
// snapshot on disk. Loading degrades instead of failing: missing or
// malformed files yield no document and a warning, never an error that
// could abort the poll loop.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/offset"
)

// Version identifies the current snapshot document format.
const Version = "1"

// Document is the persisted snapshot of everything the service has learned:
// the sample buffer, the daily aggregates, the detector baseline, the
// thresholds in effect and the offset engine's state.
type Document struct {
	Version         string                            `json:"version"`
	Buffer          []climate.BufferEntry             `json:"buffer"`
	DailyAggregates map[string]climate.DailyAggregate `json:"daily_aggregates"`
	LastValues      map[string]float64                `json:"last_values"`
	Thresholds      map[string]float64                `json:"thresholds"`
	Learner         *offset.EngineState               `json:"learner,omitempty"`
}

// FileStore reads and writes snapshot documents at a fixed path.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a store writing to the given path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.Named("store"),
	}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the document atomically: the JSON is written to a temp file
// in the same directory and renamed over the target, so a crash mid-write
// never corrupts an existing snapshot.
func (s *FileStore) Save(doc Document) error {
	doc.Version = Version

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Debug("Snapshot saved",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)))

	return nil
}

// Load reads the snapshot document. The second return is false when no
// usable snapshot exists: file missing, unreadable, malformed JSON or an
// unknown document version. None of these raise an error; the service
// simply starts fresh.
func (s *FileStore) Load() (Document, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No snapshot found, starting fresh",
				zap.String("path", s.path))
		} else {
			s.logger.Warn("Failed to read snapshot",
				zap.String("path", s.path),
				zap.Error(err))
		}
		return Document{}, false
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("Snapshot is malformed, ignoring",
			zap.String("path", s.path),
			zap.Error(err))
		return Document{}, false
	}

	if doc.Version != Version {
		s.logger.Warn("Snapshot has unknown version, ignoring",
			zap.String("path", s.path),
			zap.String("version", doc.Version))
		return Document{}, false
	}

	s.logger.Info("Snapshot loaded",
		zap.String("path", s.path),
		zap.Int("buffer_entries", len(doc.Buffer)),
		zap.Int("daily_aggregates", len(doc.DailyAggregates)))

	return doc, true
}

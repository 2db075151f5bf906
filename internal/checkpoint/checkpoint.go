// Package checkpoint keeps a durable record of which jobs have already
// completed for an input file, so an interrupted run can resume without
// redoing finished work.
//
// The checkpoint is a JSON file in the working directory. Processed job IDs
// are buffered in memory and persisted by Flush, one durable write per
// batch. Writes are write-new-then-rename so a crash mid-write never
// corrupts the previously flushed state. The file is deleted only when the
// run that owns it completes fully.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// FileName is the checkpoint file's name inside the working directory.
const FileName = ".scanbatch-checkpoint.json"

// ErrPersist marks a failure to durably write checkpoint state. Continuing
// without a checkpoint risks duplicate work on resume, so callers treat
// these as fatal for the run.
var ErrPersist = errors.New("checkpoint not persisted")

// Checkpoint is the persisted resume state for one input file.
type Checkpoint struct {
	InputFile        string    `json:"inputFile"`
	ProcessedScanIDs []string  `json:"processedScanIds"`
	LastBatch        int       `json:"lastBatch"`
	LastMiniBatch    int       `json:"lastMiniBatch"`
	StartedAt        time.Time `json:"startedAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Manager owns the checkpoint file for a working directory. Not safe for
// concurrent use; a run owns exactly one Manager.
type Manager struct {
	dir       string
	current   *Checkpoint
	processed map[string]struct{}
}

// NewManager returns a Manager for the given working directory.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:       dir,
		processed: make(map[string]struct{}),
	}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, FileName)
}

// Init starts a fresh checkpoint for inputFile and persists it immediately,
// replacing any previous state held by the Manager.
func (m *Manager) Init(inputFile string) error {
	now := time.Now().UTC()
	m.current = &Checkpoint{
		InputFile: inputFile,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.processed = make(map[string]struct{})

	if err := m.write(); err != nil {
		return fmt.Errorf("init checkpoint: %w", err)
	}
	log.Debug().Str("input", inputFile).Str("path", m.Path()).Msg("Checkpoint initialized")
	return nil
}

// Load reads the persisted checkpoint, if any. A missing file returns
// (nil, nil). On success the Manager adopts the loaded state, so processed
// IDs accumulate monotonically across the resumed run.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", m.Path(), err)
	}

	m.current = &cp
	m.processed = make(map[string]struct{}, len(cp.ProcessedScanIDs))
	for _, id := range cp.ProcessedScanIDs {
		m.processed[id] = struct{}{}
	}

	log.Info().
		Str("input", cp.InputFile).
		Int("processed", len(cp.ProcessedScanIDs)).
		Time("started_at", cp.StartedAt).
		Msg("Existing checkpoint loaded, resuming")

	return &cp, nil
}

// MarkProcessed buffers job IDs in memory. Nothing is persisted until Flush.
func (m *Manager) MarkProcessed(jobIDs []string) {
	for _, id := range jobIDs {
		m.processed[id] = struct{}{}
	}
}

// IsProcessed reports whether a job ID has already completed, per the
// in-memory state (which includes any loaded checkpoint).
func (m *Manager) IsProcessed(jobID string) bool {
	_, ok := m.processed[jobID]
	return ok
}

// ProcessedCount returns the number of job IDs currently marked processed.
func (m *Manager) ProcessedCount() int {
	return len(m.processed)
}

// SetPosition records the last completed batch and mini-batch numbers,
// persisted on the next Flush.
func (m *Manager) SetPosition(batch, miniBatch int) {
	if m.current != nil {
		m.current.LastBatch = batch
		m.current.LastMiniBatch = miniBatch
	}
}

// Flush persists the buffered state durably, updating UpdatedAt.
func (m *Manager) Flush() error {
	if m.current == nil {
		return fmt.Errorf("flush checkpoint: no checkpoint initialized")
	}

	ids := make([]string, 0, len(m.processed))
	for id := range m.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic file content

	m.current.ProcessedScanIDs = ids
	m.current.UpdatedAt = time.Now().UTC()

	if err := m.write(); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}

	log.Debug().
		Int("processed", len(ids)).
		Int("last_batch", m.current.LastBatch).
		Msg("Checkpoint flushed")
	return nil
}

// Clear deletes the persisted checkpoint. Called only on full successful
// completion of the run that owns it.
func (m *Manager) Clear() error {
	if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	m.current = nil
	m.processed = make(map[string]struct{})
	log.Debug().Str("path", m.Path()).Msg("Checkpoint cleared")
	return nil
}

// write serializes the checkpoint to a temp file in the same directory and
// renames it over the previous one.
func (m *Manager) write() error {
	if err := m.writeFile(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (m *Manager) writeFile() error {
	data, err := json.MarshalIndent(m.current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, m.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

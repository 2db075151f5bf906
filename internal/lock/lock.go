// Package lock provides an advisory single-instance lock for a working
// directory. The lock file's existence is the mutex: no OS-level exclusive
// lock is assumed. Acquisition is all-or-nothing, and a stale lock left by a
// crashed process is diagnosed (PID liveness) but never auto-expired; the
// operator clears it manually.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// FileName is the lock file's name inside the working directory.
const FileName = ".scanbatch.lock"

// Info identifies the run holding a lock.
type Info struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"startedAt"`
}

// Manager owns the lock file for one working directory.
type Manager struct {
	dir  string
	held bool
}

// NewManager returns a Manager for the given working directory.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Path returns the lock file location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, FileName)
}

// Acquire attempts to take the lock. It returns false without touching an
// existing lock file; callers must treat false as "another run is active"
// and abort. O_EXCL creation makes the existence check and the write a
// single step.
func (m *Manager) Acquire() (bool, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := Info{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal lock info: %w", err)
	}

	f, err := os.OpenFile(m.Path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			m.diagnoseHolder()
			return false, nil
		}
		return false, fmt.Errorf("create lock file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(m.Path())
		return false, fmt.Errorf("write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(m.Path())
		return false, fmt.Errorf("close lock file: %w", err)
	}

	m.held = true
	log.Debug().Str("path", m.Path()).Int("pid", info.PID).Msg("Lock acquired")
	return true, nil
}

// ReadInfo returns the current lock holder, or nil when no lock exists.
func (m *Manager) ReadInfo() (*Info, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock file: %w", err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock file %s: %w", m.Path(), err)
	}
	return &info, nil
}

// Release removes the lock file. Callers are responsible for releasing on
// every exit path, including failure; a leftover lock blocks future runs
// until cleared manually.
func (m *Manager) Release() error {
	if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	m.held = false
	log.Debug().Str("path", m.Path()).Msg("Lock released")
	return nil
}

// Held reports whether this Manager currently believes it owns the lock.
func (m *Manager) Held() bool {
	return m.held
}

// diagnoseHolder inspects an existing lock and reports whether its owner is
// still alive. A dead owner means the previous run crashed without
// releasing; the lock is reported loudly but left in place.
func (m *Manager) diagnoseHolder() {
	info, err := m.ReadInfo()
	if err != nil {
		log.Warn().Err(err).Str("path", m.Path()).Msg("Lock file exists but could not be read")
		return
	}
	if info == nil {
		return
	}

	alive, err := process.PidExists(int32(info.PID))
	if err != nil {
		log.Warn().Err(err).Int("pid", info.PID).Msg("Could not probe lock holder liveness")
		return
	}

	if alive {
		log.Warn().
			Int("pid", info.PID).
			Str("hostname", info.Hostname).
			Time("started_at", info.StartedAt).
			Msg("Another run holds the lock")
		return
	}

	log.Error().
		Int("pid", info.PID).
		Str("hostname", info.Hostname).
		Time("started_at", info.StartedAt).
		Str("path", m.Path()).
		Msg("Stale lock: holder process is no longer running; remove the lock file to proceed")
}

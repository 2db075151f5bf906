// Package dirwatch discovers input files in a watched directory, relocates
// them after their run, and drives continuous mode.
package dirwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/a11yops/scanbatch/internal/output"
)

// Subdirectories that receive input files after their run, by outcome.
const (
	ProcessedDirName = "processed"
	FailedDirName    = "failed"
)

// inputExtension is the only file extension eligible for processing.
const inputExtension = ".csv"

// ScanDirectory lists eligible input files directly under dir (no
// recursion), sorted lexicographically for a deterministic processing
// order. Dot files and subdirectories are ignored.
func ScanDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(name)) != inputExtension {
			continue
		}
		// Result files share the input extension; never feed them back in.
		if strings.HasSuffix(strings.ToLower(name), output.ResultsSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	log.Info().
		Str("directory", dir).
		Int("total_found", len(files)).
		Msg("Directory scan complete")

	return files, nil
}

// EnsureSubdirectories creates processed/ and failed/ under dir if absent.
func EnsureSubdirectories(dir string) error {
	for _, sub := range []string{ProcessedDirName, FailedDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("create %s subdirectory: %w", sub, err)
		}
	}
	return nil
}

// MoveToProcessed relocates file into dir's processed/ subdirectory and
// returns its new path. Used after any run that produced at least one
// successful result.
func MoveToProcessed(file, dir string) (string, error) {
	return moveTo(file, filepath.Join(dir, ProcessedDirName))
}

// MoveToFailed relocates file into dir's failed/ subdirectory and returns
// its new path. Used after a run with zero successes.
func MoveToFailed(file, dir string) (string, error) {
	return moveTo(file, filepath.Join(dir, FailedDirName))
}

// moveTo renames file into destDir. A name collision gets a timestamp
// suffix instead of overwriting the earlier file.
func moveTo(file, destDir string) (string, error) {
	base := filepath.Base(file)
	dest := filepath.Join(destDir, base)

	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		dest = filepath.Join(destDir, fmt.Sprintf("%s-%s%s", stem, time.Now().UTC().Format("20060102T150405"), ext))
	}

	if err := os.Rename(file, dest); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", file, dest, err)
	}

	log.Info().Str("from", file).Str("to", dest).Msg("Input file relocated")
	return dest, nil
}

// Package runner orchestrates complete runs: parse, resume filtering,
// batching, processing, output writing, and file lifecycle, under the
// working directory's advisory lock.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/a11yops/scanbatch/internal/agent"
	"github.com/a11yops/scanbatch/internal/batch"
	"github.com/a11yops/scanbatch/internal/checkpoint"
	"github.com/a11yops/scanbatch/internal/config"
	"github.com/a11yops/scanbatch/internal/dirwatch"
	"github.com/a11yops/scanbatch/internal/input"
	"github.com/a11yops/scanbatch/internal/lock"
	"github.com/a11yops/scanbatch/internal/output"
	"github.com/a11yops/scanbatch/internal/processor"
	"github.com/a11yops/scanbatch/internal/scan"
	"github.com/a11yops/scanbatch/internal/summary"
)

// ErrLocked is returned when another run holds the working directory lock.
var ErrLocked = errors.New("another run is active in this directory")

// Runner executes runs with a fixed configuration and agent.
type Runner struct {
	invoker agent.Invoker
	cfg     config.Config
}

// New creates a Runner.
func New(invoker agent.Invoker, cfg config.Config) *Runner {
	return &Runner{invoker: invoker, cfg: cfg}
}

// FileOutcome summarizes the processing of one input file.
type FileOutcome struct {
	InputFile  string
	OutputFile string
	TotalJobs  int
	Successful int
	Failed     int
	Skipped    int
	Errors     []string
}

// ProcessFile runs one input file end to end: parse, filter against any
// existing checkpoint, organize, process, and write the import CSV. It does
// not lock or relocate; callers own the lock for the working directory.
//
// The returned error is fatal (unreadable input or checkpoint persistence
// failure); per-job failures are reported inside the FileOutcome.
func (r *Runner) ProcessFile(ctx context.Context, inputPath string) (*FileOutcome, error) {
	absPath, err := filepath.Abs(inputPath)
	if err == nil {
		inputPath = absPath
	}
	dir := filepath.Dir(inputPath)

	outcome := &FileOutcome{InputFile: inputPath}

	parsed, err := input.ParseFile(inputPath)
	if err != nil {
		return nil, err
	}
	outcome.TotalJobs = parsed.TotalRows
	outcome.Skipped = len(parsed.Skipped)
	for _, s := range parsed.Skipped {
		log.Warn().Int("row", s.RowNumber).Str("reason", s.Reason).Msg("Input row skipped")
	}

	// Resume: an existing checkpoint for this input file excludes jobs that
	// already completed in an interrupted run.
	cps := checkpoint.NewManager(dir)
	pending := parsed.Scans
	cp, err := cps.Load()
	if err != nil {
		return nil, err
	}
	switch {
	case cp == nil:
		if err := cps.Init(inputPath); err != nil {
			return nil, err
		}
	case cp.InputFile != inputPath:
		log.Warn().
			Str("checkpoint_input", cp.InputFile).
			Str("current_input", inputPath).
			Msg("Checkpoint belongs to a different input file, starting fresh")
		if err := cps.Init(inputPath); err != nil {
			return nil, err
		}
	default:
		var remaining []scan.PendingScan
		for _, s := range pending {
			if cps.IsProcessed(s.JobID) {
				continue
			}
			remaining = append(remaining, s)
		}
		log.Info().
			Int("already_processed", len(pending)-len(remaining)).
			Int("remaining", len(remaining)).
			Msg("Resuming from checkpoint")
		pending = remaining
	}

	batches := batch.Organize(pending, r.cfg.BatchSize, r.cfg.MiniBatchSize)
	log.Info().
		Str("file", inputPath).
		Int("pending", len(pending)).
		Int("batches", len(batches)).
		Msg("Starting processing")

	proc := processor.New(r.invoker, cps, r.cfg)
	outcomes, procErr := proc.ProcessAllBatches(ctx, batches)

	var results []scan.ScanResult
	for _, o := range outcomes {
		results = append(results, o.Results...)
		outcome.Failed += len(o.FailedScans)
		for _, f := range o.FailedScans {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s (%s): %s", f.JobID, f.ErrorKind, f.ErrorMessage))
		}
	}
	outcome.Successful = len(results)

	if len(results) > 0 {
		outPath := r.outputPath(inputPath)
		rows, err := output.Transform(results)
		if err != nil {
			return nil, err
		}
		if err := output.WriteCSV(outPath, rows); err != nil {
			return nil, err
		}
		outcome.OutputFile = outPath
	}

	if procErr != nil {
		// Checkpoint persistence failed; data integrity beats progress.
		return nil, procErr
	}

	// The checkpoint survives any failure or interruption; it is removed
	// only when every pending job completed in this run.
	if outcome.Failed == 0 && ctx.Err() == nil {
		if err := cps.Clear(); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}

// outputPath derives the import CSV location for an input file.
func (r *Runner) outputPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	if r.cfg.OutputDir != "" {
		dir = r.cfg.OutputDir
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+output.ResultsSuffix)
}

// RunSingle processes one input file under its directory's lock and returns
// the run summary.
func (r *Runner) RunSingle(ctx context.Context, inputPath string) (*summary.ProcessingSummary, error) {
	absPath, err := filepath.Abs(inputPath)
	if err == nil {
		inputPath = absPath
	}

	locker := lock.NewManager(filepath.Dir(inputPath))
	acquired, err := locker.Acquire()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLocked
	}
	defer func() {
		if err := locker.Release(); err != nil {
			log.Error().Err(err).Msg("Failed to release lock")
		}
	}()

	stats := summary.Stats{StartTime: time.Now()}

	outcome, err := r.ProcessFile(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	stats.FilesProcessed = 1
	stats.TotalJobs = outcome.TotalJobs
	stats.Successful = outcome.Successful
	stats.Failed = outcome.Failed
	stats.Skipped = outcome.Skipped
	stats.Errors = outcome.Errors
	if outcome.OutputFile != "" {
		stats.OutputFiles = append(stats.OutputFiles, outcome.OutputFile)
	}
	if outcome.Successful == 0 && outcome.Failed > 0 {
		stats.FailedFiles = append(stats.FailedFiles, inputPath)
	}
	stats.EndTime = time.Now()

	s := summary.Generate(stats)
	return &s, nil
}

// RunDirectory processes every eligible file in dir under the directory's
// lock. With watch enabled it keeps running until ctx is cancelled,
// processing files as they arrive; otherwise it performs exactly one pass.
// Each file is relocated after its run: processed/ when at least one job
// succeeded, failed/ when none did.
func (r *Runner) RunDirectory(ctx context.Context, dir string, watch bool, rescanInterval time.Duration) (*summary.ProcessingSummary, error) {
	absDir, err := filepath.Abs(dir)
	if err == nil {
		dir = absDir
	}

	locker := lock.NewManager(dir)
	acquired, err := locker.Acquire()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLocked
	}
	defer func() {
		if err := locker.Release(); err != nil {
			log.Error().Err(err).Msg("Failed to release lock")
		}
	}()

	if err := dirwatch.EnsureSubdirectories(dir); err != nil {
		return nil, err
	}

	stats := summary.Stats{StartTime: time.Now()}

	// A fatal pass error must end a watch, not just this pass, so the pass
	// cancels the watch context when it sets fatal.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatal error
	pass := func(ctx context.Context) {
		if fatal != nil {
			return
		}
		if fatal = r.runPass(ctx, dir, &stats); fatal != nil {
			cancel()
		}
	}

	if watch {
		watcher, err := dirwatch.NewWatcher(dir, rescanInterval)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		defer watcher.Close()
		watcher.Run(ctx, pass)
	} else {
		pass(ctx)
	}
	if fatal != nil {
		return nil, fatal
	}

	stats.EndTime = time.Now()
	s := summary.Generate(stats)
	return &s, nil
}

// runPass processes every file currently in dir, accumulating stats. The
// returned error is fatal for the whole directory run.
func (r *Runner) runPass(ctx context.Context, dir string, stats *summary.Stats) error {
	files, err := dirwatch.ScanDirectory(dir)
	if err != nil {
		return err
	}

	for _, file := range files {
		if ctx.Err() != nil {
			log.Warn().Str("file", file).Msg("Run cancelled, leaving remaining files in place")
			return nil
		}

		outcome, err := r.ProcessFile(ctx, file)
		if err != nil {
			// An unreadable file fails that file, not the whole run;
			// checkpoint persistence failures are fatal.
			if errors.Is(err, checkpoint.ErrPersist) {
				return err
			}
			log.Error().Err(err).Str("file", file).Msg("File run failed")
			stats.FilesProcessed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", file, err))
			if moved, merr := dirwatch.MoveToFailed(file, dir); merr != nil {
				log.Error().Err(merr).Str("file", file).Msg("Failed to relocate input file")
			} else {
				stats.FailedFiles = append(stats.FailedFiles, moved)
			}
			continue
		}

		stats.FilesProcessed++
		stats.TotalJobs += outcome.TotalJobs
		stats.Successful += outcome.Successful
		stats.Failed += outcome.Failed
		stats.Skipped += outcome.Skipped
		stats.Errors = append(stats.Errors, outcome.Errors...)
		if outcome.OutputFile != "" {
			stats.OutputFiles = append(stats.OutputFiles, outcome.OutputFile)
		}

		if ctx.Err() != nil {
			// Interrupted mid-file: leave the input in place so the
			// checkpoint can resume it.
			log.Warn().Str("file", file).Msg("Run cancelled mid-file, leaving input for resume")
			return nil
		}

		if outcome.Successful > 0 {
			if _, err := dirwatch.MoveToProcessed(file, dir); err != nil {
				log.Error().Err(err).Str("file", file).Msg("Failed to relocate input file")
			}
		} else {
			if moved, err := dirwatch.MoveToFailed(file, dir); err != nil {
				log.Error().Err(err).Str("file", file).Msg("Failed to relocate input file")
			} else {
				stats.FailedFiles = append(stats.FailedFiles, moved)
			}
		}
	}

	return nil
}

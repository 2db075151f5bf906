package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a11yops/scanbatch/internal/agent"
	"github.com/a11yops/scanbatch/internal/checkpoint"
	"github.com/a11yops/scanbatch/internal/config"
	"github.com/a11yops/scanbatch/internal/dirwatch"
	"github.com/a11yops/scanbatch/internal/lock"
	"github.com/a11yops/scanbatch/internal/scan"
	"github.com/a11yops/scanbatch/internal/summary"
)

// fakeInvoker answers every prompt with a valid result for each job ID it
// finds in the prompt, or a fixed error.
type fakeInvoker struct {
	err   error
	calls []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, prompt string) (*agent.Invocation, error) {
	f.calls = append(f.calls, prompt)
	if f.err != nil {
		return nil, f.err
	}

	type result struct {
		JobID     string `json:"job_id"`
		URL       string `json:"url"`
		PageTitle string `json:"page_title"`
		Summary   string `json:"summary"`
	}
	var out []result
	for _, line := range strings.Split(prompt, "\n") {
		if idx := strings.Index(line, "Job ID: "); idx >= 0 {
			out = append(out, result{
				JobID:     strings.TrimSpace(line[idx+len("Job ID: "):]),
				URL:       "https://example.com/",
				PageTitle: "Example",
				Summary:   "Fine.",
			})
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &agent.Invocation{Output: string(data), Duration: time.Millisecond}, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MiniBatchDelay = 0
	cfg.MaxRetries = 0
	return cfg
}

func writeInput(t *testing.T, path string, jobIDs ...string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("job_id,url,compliance_level,contact_email,created_at\n")
	for _, id := range jobIDs {
		fmt.Fprintf(&b, "%s,https://example.com/%s,AA,qa@example.com,\n", id, id)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func TestRunSingleCompleted(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "pending.csv")
	writeInput(t, inputPath, "job-1", "job-2", "job-3")

	inv := &fakeInvoker{}
	r := New(inv, testConfig())

	sum, err := r.RunSingle(context.Background(), inputPath)
	if err != nil {
		t.Fatalf("RunSingle() error = %v", err)
	}

	if sum.Status != summary.StatusCompleted {
		t.Errorf("Status = %q, want %q", sum.Status, summary.StatusCompleted)
	}
	if sum.Successful != 3 || sum.Failed != 0 {
		t.Errorf("Successful/Failed = %d/%d, want 3/0", sum.Successful, sum.Failed)
	}
	if sum.FilesProcessed != 1 {
		t.Errorf("FilesProcessed = %d, want 1", sum.FilesProcessed)
	}

	outPath := filepath.Join(dir, "pending-results.csv")
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("expected results file at %s: %v", outPath, err)
	}
	if len(sum.OutputFiles) != 1 || sum.OutputFiles[0] != outPath {
		t.Errorf("OutputFiles = %v, want [%s]", sum.OutputFiles, outPath)
	}

	if _, err := os.Stat(filepath.Join(dir, checkpoint.FileName)); !os.IsNotExist(err) {
		t.Error("checkpoint should be cleared after a fully successful run")
	}
	if _, err := os.Stat(filepath.Join(dir, lock.FileName)); !os.IsNotExist(err) {
		t.Error("lock should be released after the run")
	}
}

func TestRunSingleLocked(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "pending.csv")
	writeInput(t, inputPath, "job-1")

	holder := lock.NewManager(dir)
	acquired, err := holder.Acquire()
	if err != nil || !acquired {
		t.Fatalf("pre-acquire lock: acquired=%v err=%v", acquired, err)
	}
	defer holder.Release()

	r := New(&fakeInvoker{}, testConfig())
	if _, err := r.RunSingle(context.Background(), inputPath); err != ErrLocked {
		t.Fatalf("RunSingle() error = %v, want ErrLocked", err)
	}
}

func TestRunSingleKeepsCheckpointOnFailure(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "pending.csv")
	writeInput(t, inputPath, "job-1", "job-2")

	inv := &fakeInvoker{err: &agent.InvokeError{Kind: scan.ErrKindTimeout, Message: "deadline"}}
	r := New(inv, testConfig())

	sum, err := r.RunSingle(context.Background(), inputPath)
	if err != nil {
		t.Fatalf("RunSingle() error = %v", err)
	}
	if sum.Status != summary.StatusCompleteFailure {
		t.Errorf("Status = %q, want %q", sum.Status, summary.StatusCompleteFailure)
	}
	if sum.Failed != 2 {
		t.Errorf("Failed = %d, want 2", sum.Failed)
	}
	if len(sum.Errors) != 2 {
		t.Errorf("Errors = %v, want two entries", sum.Errors)
	}

	if _, err := os.Stat(filepath.Join(dir, checkpoint.FileName)); err != nil {
		t.Error("checkpoint should survive a run with failures")
	}
	if _, err := os.Stat(filepath.Join(dir, "pending-results.csv")); !os.IsNotExist(err) {
		t.Error("no results file expected when every job failed")
	}
}

func TestProcessFileResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "pending.csv")
	writeInput(t, inputPath, "job-1", "job-2", "job-3")

	absPath, err := filepath.Abs(inputPath)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	cps := checkpoint.NewManager(dir)
	if err := cps.Init(absPath); err != nil {
		t.Fatalf("init checkpoint: %v", err)
	}
	cps.MarkProcessed([]string{"job-1", "job-2"})
	if err := cps.Flush(); err != nil {
		t.Fatalf("flush checkpoint: %v", err)
	}

	inv := &fakeInvoker{}
	r := New(inv, testConfig())

	outcome, err := r.ProcessFile(context.Background(), inputPath)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if outcome.Successful != 1 {
		t.Errorf("Successful = %d, want 1 (two jobs already checkpointed)", outcome.Successful)
	}
	for _, prompt := range inv.calls {
		if strings.Contains(prompt, "job-1") || strings.Contains(prompt, "job-2") {
			t.Errorf("already-processed job sent to agent:\n%s", prompt)
		}
	}
}

func TestProcessFileIgnoresForeignCheckpoint(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "pending.csv")
	writeInput(t, inputPath, "job-1", "job-2")

	cps := checkpoint.NewManager(dir)
	if err := cps.Init(filepath.Join(dir, "other.csv")); err != nil {
		t.Fatalf("init checkpoint: %v", err)
	}
	cps.MarkProcessed([]string{"job-1"})
	if err := cps.Flush(); err != nil {
		t.Fatalf("flush checkpoint: %v", err)
	}

	r := New(&fakeInvoker{}, testConfig())
	outcome, err := r.ProcessFile(context.Background(), inputPath)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if outcome.Successful != 2 {
		t.Errorf("Successful = %d, want 2 (foreign checkpoint must not filter jobs)", outcome.Successful)
	}
}

func TestRunDirectoryRelocatesByOutcome(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, filepath.Join(dir, "a-good.csv"), "job-1", "job-2")

	// Header-only file: nothing to process, zero successes.
	if err := os.WriteFile(filepath.Join(dir, "b-empty.csv"),
		[]byte("job_id,url,compliance_level\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	r := New(&fakeInvoker{}, testConfig())
	sum, err := r.RunDirectory(context.Background(), dir, false, 0)
	if err != nil {
		t.Fatalf("RunDirectory() error = %v", err)
	}

	if sum.FilesProcessed != 2 {
		t.Errorf("FilesProcessed = %d, want 2", sum.FilesProcessed)
	}
	if sum.Successful != 2 {
		t.Errorf("Successful = %d, want 2", sum.Successful)
	}

	if _, err := os.Stat(filepath.Join(dir, dirwatch.ProcessedDirName, "a-good.csv")); err != nil {
		t.Errorf("successful input should move to %s: %v", dirwatch.ProcessedDirName, err)
	}
	if _, err := os.Stat(filepath.Join(dir, dirwatch.FailedDirName, "b-empty.csv")); err != nil {
		t.Errorf("zero-success input should move to %s: %v", dirwatch.FailedDirName, err)
	}

	remaining, err := dirwatch.ScanDirectory(dir)
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("inputs left in place after the pass: %v", remaining)
	}
}

func TestRunDirectoryAggregatesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, filepath.Join(dir, "one.csv"), "job-1")
	writeInput(t, filepath.Join(dir, "two.csv"), "job-2", "job-3")

	r := New(&fakeInvoker{}, testConfig())
	sum, err := r.RunDirectory(context.Background(), dir, false, 0)
	if err != nil {
		t.Fatalf("RunDirectory() error = %v", err)
	}

	if sum.Status != summary.StatusCompleted {
		t.Errorf("Status = %q, want %q", sum.Status, summary.StatusCompleted)
	}
	if sum.TotalURLs != 3 || sum.Successful != 3 {
		t.Errorf("TotalURLs/Successful = %d/%d, want 3/3", sum.TotalURLs, sum.Successful)
	}
	if len(sum.OutputFiles) != 2 {
		t.Errorf("OutputFiles = %v, want two entries", sum.OutputFiles)
	}
}

func TestRunDirectoryCancelledLeavesFiles(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, filepath.Join(dir, "one.csv"), "job-1")
	writeInput(t, filepath.Join(dir, "two.csv"), "job-2")

	ctx, cancel := context.WithCancel(context.Background())
	inv := &cancellingInvoker{cancel: cancel}
	r := New(inv, testConfig())

	sum, err := r.RunDirectory(ctx, dir, false, 0)
	if err != nil {
		t.Fatalf("RunDirectory() error = %v", err)
	}
	if sum.FilesProcessed != 1 {
		t.Errorf("FilesProcessed = %d, want 1 (cancelled after the first file)", sum.FilesProcessed)
	}

	// The current file stays put so its checkpoint can resume it.
	if _, err := os.Stat(filepath.Join(dir, "one.csv")); err != nil {
		t.Errorf("in-flight input should remain in place: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "two.csv")); err != nil {
		t.Errorf("unstarted input should remain in place: %v", err)
	}
}

func TestRunDirectoryWatchAbortsOnFatalPassError(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, filepath.Join(dir, "a.csv"), "job-1")

	r := New(&fakeInvoker{}, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		_, err := r.RunDirectory(ctx, dir, true, 50*time.Millisecond)
		errCh <- err
	}()

	// Wait for the first pass to finish, then pull the directory out from
	// under the watch so the next rescan pass fails fatally.
	processed := filepath.Join(dir, dirwatch.ProcessedDirName, "a.csv")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(processed); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first pass never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove watched directory: %v", err)
	}

	// The fatal pass must end the watch itself, not wait for cancellation.
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("RunDirectory returned nil, want the fatal pass error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunDirectory kept watching after a fatal pass error")
	}
}

// cancellingInvoker succeeds, then cancels the run after its first call.
type cancellingInvoker struct {
	inner  fakeInvoker
	cancel context.CancelFunc
}

func (c *cancellingInvoker) Invoke(ctx context.Context, prompt string) (*agent.Invocation, error) {
	inv, err := c.inner.Invoke(ctx, prompt)
	c.cancel()
	return inv, err
}

// Package summary aggregates run statistics into the machine-readable
// report that is the run's externally visible contract.
package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Run status classification.
const (
	StatusCompleted       = "completed"
	StatusPartialFailure  = "partial_failure"
	StatusCompleteFailure = "complete_failure"
)

// Stats is the raw material for a summary, accumulated across a run.
type Stats struct {
	FilesProcessed int
	TotalJobs      int
	Successful     int
	Failed         int
	Skipped        int
	StartTime      time.Time
	EndTime        time.Time
	OutputFiles    []string
	FailedFiles    []string
	Errors         []string
}

// ProcessingSummary is the run's final report. Field names and JSON shape
// are a stable contract; callers parse this to decide follow-up action.
type ProcessingSummary struct {
	Status          string   `json:"status"`
	FilesProcessed  int      `json:"files_processed"`
	TotalURLs       int      `json:"total_urls"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	Skipped         int      `json:"skipped"`
	DurationSeconds float64  `json:"duration_seconds"`
	OutputFiles     []string `json:"output_files"`
	FailedFiles     []string `json:"failed_files"`
	Errors          []string `json:"errors"`
}

// Generate classifies the run and derives the summary. Status is completed
// when nothing failed, complete_failure when nothing succeeded and something
// failed, and partial_failure otherwise. A run that is neither a success nor
// a failure (zero jobs) counts as completed.
func Generate(stats Stats) ProcessingSummary {
	status := StatusCompleted
	switch {
	case stats.Failed == 0:
		status = StatusCompleted
	case stats.Successful == 0:
		status = StatusCompleteFailure
	default:
		status = StatusPartialFailure
	}

	duration := stats.EndTime.Sub(stats.StartTime)
	seconds := math.Round(float64(duration.Milliseconds())/10) / 100

	s := ProcessingSummary{
		Status:          status,
		FilesProcessed:  stats.FilesProcessed,
		TotalURLs:       stats.TotalJobs,
		Successful:      stats.Successful,
		Failed:          stats.Failed,
		Skipped:         stats.Skipped,
		DurationSeconds: seconds,
		OutputFiles:     stats.OutputFiles,
		FailedFiles:     stats.FailedFiles,
		Errors:          stats.Errors,
	}

	// Emit arrays, not nulls, so consumers can range unconditionally.
	if s.OutputFiles == nil {
		s.OutputFiles = []string{}
	}
	if s.FailedFiles == nil {
		s.FailedFiles = []string{}
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}

	return s
}

// JSON renders the summary with 2-space indentation, suitable for stdout.
func (s ProcessingSummary) JSON() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(data), nil
}

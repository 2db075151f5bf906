// Package scan defines the data model shared across the batch pipeline:
// pending jobs parsed from input, the batch/mini-batch partition they are
// organized into, and the per-job outcomes produced by the processor.
package scan

import "time"

// ComplianceLevel is the WCAG conformance tier a page is evaluated against.
type ComplianceLevel string

const (
	LevelA   ComplianceLevel = "A"
	LevelAA  ComplianceLevel = "AA"
	LevelAAA ComplianceLevel = "AAA"
)

// ValidLevel reports whether s is one of the recognized compliance levels.
func ValidLevel(s string) bool {
	switch ComplianceLevel(s) {
	case LevelA, LevelAA, LevelAAA:
		return true
	}
	return false
}

// PendingScan is one unit of work: a URL to audit at a target compliance
// level. Immutable once parsed; consumed read-only downstream.
type PendingScan struct {
	JobID           string
	URL             string
	ComplianceLevel ComplianceLevel
	ContactEmail    string
	CreatedAt       time.Time
}

// SkippedRow records an input row rejected during parsing. Row numbers are
// 1-based and include the header row. Skipped rows are never retried.
type SkippedRow struct {
	RowNumber int
	Reason    string
}

// MiniBatch is the largest group of jobs sent in a single agent invocation.
// Numbering is 1-based and restarts within each batch.
type MiniBatch struct {
	Number int
	Scans  []PendingScan
}

// Batch groups mini-batches for checkpoint granularity and progress
// reporting. The concatenation of all mini-batches' scans equals Scans,
// order preserved.
type Batch struct {
	Number      int
	Scans       []PendingScan
	MiniBatches []MiniBatch
}

// Impact is the severity of a single accessibility issue.
type Impact string

const (
	ImpactCritical Impact = "CRITICAL"
	ImpactSerious  Impact = "SERIOUS"
	ImpactModerate Impact = "MODERATE"
	ImpactMinor    Impact = "MINOR"
)

// Issue is one accessibility finding. Owned exclusively by its ScanResult.
type Issue struct {
	ID                string `json:"id"`
	RuleID            string `json:"rule_id"`
	RelevantCriterion string `json:"relevant_criterion"`
	Impact            Impact `json:"impact"`
	Description       string `json:"description"`
	HelpText          string `json:"help_text"`
	HelpURL           string `json:"help_url"`
	HTMLSnippet       string `json:"html_snippet"`
	Selector          string `json:"selector"`
	AIExplanation     string `json:"ai_explanation"`
	AIFixSuggestion   string `json:"ai_fix_suggestion"`
	AIPriority        string `json:"ai_priority"`
}

// StatusCompleted is the status carried by every successful ScanResult.
const StatusCompleted = "COMPLETED"

// ScanResult is the terminal success outcome for one job.
type ScanResult struct {
	JobID           string
	URL             string
	PageTitle       string
	ComplianceLevel ComplianceLevel
	Summary         string
	RemediationPlan string
	Issues          []Issue
	Status          string
}

// ErrorKind categorizes why a job or invocation failed.
type ErrorKind string

const (
	// ErrKindRateLimit is a provider rate-limit rejection. Retried on a
	// 60-second backoff base.
	ErrKindRateLimit ErrorKind = "RATE_LIMIT"
	// ErrKindTimeout is an invocation that exceeded its deadline.
	ErrKindTimeout ErrorKind = "TIMEOUT"
	// ErrKindProcessCrash is an agent invocation that died mid-call.
	ErrKindProcessCrash ErrorKind = "PROCESS_CRASH"
	// ErrKindInvalidOutput means the agent responded but its output omitted
	// an expected job. Never retried.
	ErrKindInvalidOutput ErrorKind = "INVALID_OUTPUT"
	// ErrKindUnknown covers everything else. Retried on the short base.
	ErrKindUnknown ErrorKind = "UNKNOWN"
)

// FailedScan is the terminal failure outcome for one job, recorded after
// retries are exhausted or the job was missing from agent output.
type FailedScan struct {
	JobID        string
	URL          string
	ErrorKind    ErrorKind
	ErrorMessage string
}

// MiniBatchOutcome is the result of processing one mini-batch. Results and
// FailedScans together cover the mini-batch's input jobs exactly, with no
// duplicates and no omissions.
type MiniBatchOutcome struct {
	MiniBatchNumber int
	Results         []ScanResult
	FailedScans     []FailedScan
	RetryCount      int
}

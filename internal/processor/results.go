package processor

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/a11yops/scanbatch/internal/jsonutil"
	"github.com/a11yops/scanbatch/internal/scan"
)

// agentResult mirrors one element of the JSON array the agent returns.
type agentResult struct {
	JobID           string       `json:"job_id"`
	URL             string       `json:"url"`
	PageTitle       string       `json:"page_title"`
	ComplianceLevel string       `json:"compliance_level"`
	Summary         string       `json:"summary"`
	RemediationPlan string       `json:"remediation_plan"`
	Issues          []agentIssue `json:"issues"`
}

type agentIssue struct {
	ID                string `json:"id"`
	RuleID            string `json:"rule_id"`
	RelevantCriterion string `json:"relevant_criterion"`
	Impact            string `json:"impact"`
	Description       string `json:"description"`
	HelpText          string `json:"help_text"`
	HelpURL           string `json:"help_url"`
	HTMLSnippet       string `json:"html_snippet"`
	Selector          string `json:"selector"`
	AIExplanation     string `json:"ai_explanation"`
	AIFixSuggestion   string `json:"ai_fix_suggestion"`
	AIPriority        string `json:"ai_priority"`
}

// parseAgentOutput extracts the result array from raw agent output. An empty
// array is valid JSON: reconciliation turns every requested job into an
// INVALID_OUTPUT failure, terminal rather than retried.
func parseAgentOutput(raw string) ([]agentResult, error) {
	results, err := jsonutil.Parse[[]agentResult](raw)
	if err != nil {
		return nil, fmt.Errorf("parse agent output: %w", err)
	}
	return results, nil
}

// reconcile matches parsed agent results against the mini-batch's input
// jobs. Every input job missing from the output becomes a FailedScan with
// kind INVALID_OUTPUT, so a short response is never silently accepted.
// Results for job IDs that were never requested are dropped with a warning.
func reconcile(scans []scan.PendingScan, parsed []agentResult) ([]scan.ScanResult, []scan.FailedScan) {
	byJob := make(map[string]agentResult, len(parsed))
	requested := make(map[string]bool, len(scans))
	for _, s := range scans {
		requested[s.JobID] = true
	}
	for _, r := range parsed {
		if !requested[r.JobID] {
			log.Warn().Str("job_id", r.JobID).Msg("Agent returned a result for a job that was not requested, dropping")
			continue
		}
		byJob[r.JobID] = r
	}

	var results []scan.ScanResult
	var failed []scan.FailedScan
	for _, s := range scans {
		r, ok := byJob[s.JobID]
		if !ok {
			failed = append(failed, scan.FailedScan{
				JobID:        s.JobID,
				URL:          s.URL,
				ErrorKind:    scan.ErrKindInvalidOutput,
				ErrorMessage: "Scan result not found in agent output",
			})
			continue
		}
		results = append(results, toScanResult(s, r))
	}
	return results, failed
}

// toScanResult converts an agent result into the canonical ScanResult. The
// input scan, not the agent, is authoritative for URL and compliance level.
func toScanResult(s scan.PendingScan, r agentResult) scan.ScanResult {
	issues := make([]scan.Issue, 0, len(r.Issues))
	for _, ai := range r.Issues {
		id := ai.ID
		if id == "" {
			id = uuid.NewString()
		}
		issues = append(issues, scan.Issue{
			ID:                id,
			RuleID:            ai.RuleID,
			RelevantCriterion: ai.RelevantCriterion,
			Impact:            normalizeImpact(ai.Impact),
			Description:       ai.Description,
			HelpText:          ai.HelpText,
			HelpURL:           ai.HelpURL,
			HTMLSnippet:       ai.HTMLSnippet,
			Selector:          ai.Selector,
			AIExplanation:     ai.AIExplanation,
			AIFixSuggestion:   ai.AIFixSuggestion,
			AIPriority:        ai.AIPriority,
		})
	}

	return scan.ScanResult{
		JobID:           s.JobID,
		URL:             s.URL,
		PageTitle:       r.PageTitle,
		ComplianceLevel: s.ComplianceLevel,
		Summary:         r.Summary,
		RemediationPlan: r.RemediationPlan,
		Issues:          issues,
		Status:          scan.StatusCompleted,
	}
}

// normalizeImpact maps free-form impact strings onto the known severities,
// defaulting to MODERATE for anything unrecognized.
func normalizeImpact(s string) scan.Impact {
	switch scan.Impact(s) {
	case scan.ImpactCritical, scan.ImpactSerious, scan.ImpactModerate, scan.ImpactMinor:
		return scan.Impact(s)
	}
	log.Debug().Str("impact", s).Msg("Unrecognized impact value, defaulting to MODERATE")
	return scan.ImpactModerate
}

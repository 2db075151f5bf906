// Package prompt builds the per-mini-batch audit prompt sent to the agent.
package prompt

import (
	"fmt"
	"strings"

	"github.com/a11yops/scanbatch/internal/scan"
)

// BuildAuditPrompt creates the user prompt for one mini-batch: a numbered
// list of pages with their target compliance levels, followed by strict
// output instructions. The system instruction carries the role and JSON
// schema; this prompt carries the work list.
func BuildAuditPrompt(scans []scan.PendingScan) string {
	var sb strings.Builder

	sb.WriteString("## Accessibility Audit Task\n\n")
	sb.WriteString(fmt.Sprintf("Audit the following %d page(s) for WCAG 2.1 conformance.\n\n", len(scans)))

	sb.WriteString("### Pages\n\n")
	for i, s := range scans {
		sb.WriteString(fmt.Sprintf("**Page %d**\n", i+1))
		sb.WriteString(fmt.Sprintf("- Job ID: %s\n", s.JobID))
		sb.WriteString(fmt.Sprintf("- URL: %s\n", s.URL))
		sb.WriteString(fmt.Sprintf("- Target compliance level: %s\n", s.ComplianceLevel))
		sb.WriteString("\n")
	}

	sb.WriteString("### Required Output\n\n")
	sb.WriteString("Respond with ONLY a valid JSON array, one entry per page, in the order listed above.\n")
	sb.WriteString("Every entry must carry the job_id exactly as given. Do not omit any page.\n")

	return sb.String()
}

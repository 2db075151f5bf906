// Package output maps scan results onto the import CSV schema and persists
// them. One row per completed job, with per-impact issue counts and the full
// issue list embedded as a JSON field.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/a11yops/scanbatch/internal/scan"
)

// ModelIdentifier is the constant model column value on every import row.
const ModelIdentifier = "gemini"

// ResultsSuffix ends every result file name. Directory scans use it to tell
// the tool's own outputs apart from pending inputs.
const ResultsSuffix = "-results.csv"

// Header is the import CSV header, in column order.
var Header = []string{
	"job_id",
	"url",
	"page_title",
	"compliance_level",
	"ai_summary",
	"ai_remediation_plan",
	"ai_model",
	"total_issues",
	"critical_count",
	"serious_count",
	"moderate_count",
	"minor_count",
	"issues_json",
	"status",
	"error_message",
}

// ImportRow is one import-ready record.
type ImportRow struct {
	JobID           string
	URL             string
	PageTitle       string
	ComplianceLevel string
	Summary         string
	RemediationPlan string
	Model           string
	TotalIssues     int
	CriticalCount   int
	SeriousCount    int
	ModerateCount   int
	MinorCount      int
	IssuesJSON      string
	Status          string
	ErrorMessage    string
}

// Transform converts scan results into import rows. It fails if any result's
// issue list cannot be serialized; a malformed row must fail loudly rather
// than truncate the output.
func Transform(results []scan.ScanResult) ([]ImportRow, error) {
	rows := make([]ImportRow, 0, len(results))
	for _, r := range results {
		row, err := transformOne(r)
		if err != nil {
			return nil, fmt.Errorf("transform result for job %s: %w", r.JobID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func transformOne(r scan.ScanResult) (ImportRow, error) {
	issues := r.Issues
	if issues == nil {
		issues = []scan.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return ImportRow{}, fmt.Errorf("marshal issues: %w", err)
	}

	row := ImportRow{
		JobID:           r.JobID,
		URL:             r.URL,
		PageTitle:       r.PageTitle,
		ComplianceLevel: string(r.ComplianceLevel),
		Summary:         r.Summary,
		RemediationPlan: r.RemediationPlan,
		Model:           ModelIdentifier,
		TotalIssues:     len(issues),
		IssuesJSON:      string(issuesJSON),
		Status:          r.Status,
	}

	for _, issue := range issues {
		switch issue.Impact {
		case scan.ImpactCritical:
			row.CriticalCount++
		case scan.ImpactSerious:
			row.SeriousCount++
		case scan.ImpactModerate:
			row.ModerateCount++
		case scan.ImpactMinor:
			row.MinorCount++
		}
	}

	return row, nil
}

// WriteCSV persists rows (with header) to path. Any write error fails the
// whole operation; there is no silent truncation.
func WriteCSV(path string, rows []ImportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		record := []string{
			row.JobID,
			row.URL,
			row.PageTitle,
			row.ComplianceLevel,
			row.Summary,
			row.RemediationPlan,
			row.Model,
			strconv.Itoa(row.TotalIssues),
			strconv.Itoa(row.CriticalCount),
			strconv.Itoa(row.SeriousCount),
			strconv.Itoa(row.ModerateCount),
			strconv.Itoa(row.MinorCount),
			row.IssuesJSON,
			row.Status,
			row.ErrorMessage,
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write row %d (job %s): %w", i+1, row.JobID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush output file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("rows", len(rows)).Msg("Import CSV written")
	return nil
}

// Package input reads pending-scan CSV files into a clean work list.
//
// Expected columns: job id, url, compliance level (A/AA/AAA), optional
// contact email, optional created-at timestamp (ISO-8601). The first row is
// a header. Rows are validated independently; one bad row never aborts the
// rest, it is recorded as a SkippedRow with a reason instead.
package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/a11yops/scanbatch/internal/scan"
)

// ParseResult is the outcome of parsing one input file.
type ParseResult struct {
	Scans     []scan.PendingScan
	Skipped   []scan.SkippedRow
	TotalRows int
}

// ParseFile reads and validates a pending-scan CSV. It fails only when the
// file itself cannot be read; an empty or fully-invalid file still returns a
// (possibly empty) ParseResult.
func ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", path, err)
	}
	defer f.Close()

	result, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("total_rows", result.TotalRows).
		Int("pending", len(result.Scans)).
		Int("skipped", len(result.Skipped)).
		Msg("Input file parsed")

	return result, nil
}

func parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // rows are validated individually
	reader.TrimLeadingSpace = true

	result := &ParseResult{}
	rowNum := 0 // 1-based, counting the header

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is a row-level problem, not a file-level one.
			rowNum++
			result.TotalRows++
			result.Skipped = append(result.Skipped, scan.SkippedRow{
				RowNumber: rowNum,
				Reason:    fmt.Sprintf("Malformed CSV row: %v", err),
			})
			continue
		}

		rowNum++
		if rowNum == 1 {
			continue // header
		}
		result.TotalRows++

		pending, reason := validateRow(record)
		if reason != "" {
			result.Skipped = append(result.Skipped, scan.SkippedRow{RowNumber: rowNum, Reason: reason})
			log.Debug().Int("row", rowNum).Str("reason", reason).Msg("Skipping input row")
			continue
		}
		result.Scans = append(result.Scans, pending)
	}

	return result, nil
}

// validateRow converts one CSV record into a PendingScan, or returns the
// skip reason when the record is unusable.
func validateRow(record []string) (scan.PendingScan, string) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	jobID := field(0)
	rawURL := field(1)
	level := field(2)

	if jobID == "" {
		return scan.PendingScan{}, "Empty job ID"
	}
	if rawURL == "" {
		return scan.PendingScan{}, "Empty URL"
	}
	if !validURL(rawURL) {
		return scan.PendingScan{}, fmt.Sprintf("Invalid URL: %s", rawURL)
	}
	if !scan.ValidLevel(level) {
		return scan.PendingScan{}, fmt.Sprintf("Invalid compliance level: %q (expected A, AA, or AAA)", level)
	}

	pending := scan.PendingScan{
		JobID:           jobID,
		URL:             rawURL,
		ComplianceLevel: scan.ComplianceLevel(level),
		ContactEmail:    field(3),
	}

	if raw := field(4); raw != "" {
		// Created-at is advisory; an unparseable stamp does not skip the row.
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			pending.CreatedAt = t
		}
	}

	return pending, ""
}

// validURL accepts absolute http/https URLs with a host.
func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

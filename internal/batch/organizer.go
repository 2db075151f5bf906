// Package batch partitions a work list into batches and mini-batches.
// Pure and deterministic: no I/O, stable left-to-right partitioning.
package batch

import (
	"github.com/a11yops/scanbatch/internal/config"
	"github.com/a11yops/scanbatch/internal/scan"
)

// ClampMiniBatchSize bounds size to [config.MinMiniBatchSize,
// config.MaxMiniBatchSize]. The ceiling exists because agent context and
// prompt size degrade beyond ~10 jobs per call.
func ClampMiniBatchSize(size int) int {
	if size < config.MinMiniBatchSize {
		return config.MinMiniBatchSize
	}
	if size > config.MaxMiniBatchSize {
		return config.MaxMiniBatchSize
	}
	return size
}

// Organize splits scans into batches of batchSize jobs, each further split
// into mini-batches of at most miniBatchSize jobs. Batch numbers are 1-based
// and sequential; mini-batch numbers restart at 1 within each batch. Global
// order is preserved end to end. Empty input yields an empty batch list.
//
// batchSize below 1 is treated as 1; miniBatchSize is clamped via
// ClampMiniBatchSize.
func Organize(scans []scan.PendingScan, batchSize, miniBatchSize int) []scan.Batch {
	if len(scans) == 0 {
		return nil
	}
	if batchSize < 1 {
		batchSize = 1
	}
	miniBatchSize = ClampMiniBatchSize(miniBatchSize)

	var batches []scan.Batch
	for start := 0; start < len(scans); start += batchSize {
		end := start + batchSize
		if end > len(scans) {
			end = len(scans)
		}
		chunk := scans[start:end]

		b := scan.Batch{
			Number: len(batches) + 1,
			Scans:  chunk,
		}
		for mbStart := 0; mbStart < len(chunk); mbStart += miniBatchSize {
			mbEnd := mbStart + miniBatchSize
			if mbEnd > len(chunk) {
				mbEnd = len(chunk)
			}
			b.MiniBatches = append(b.MiniBatches, scan.MiniBatch{
				Number: len(b.MiniBatches) + 1,
				Scans:  chunk[mbStart:mbEnd],
			})
		}
		batches = append(batches, b)
	}
	return batches
}

package batch

import (
	"fmt"
	"testing"

	"github.com/a11yops/scanbatch/internal/scan"
)

func makeScans(n int) []scan.PendingScan {
	scans := make([]scan.PendingScan, n)
	for i := range scans {
		scans[i] = scan.PendingScan{
			JobID:           fmt.Sprintf("job-%d", i+1),
			URL:             fmt.Sprintf("https://example.com/%d", i+1),
			ComplianceLevel: scan.LevelAA,
		}
	}
	return scans
}

func TestClampMiniBatchSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{5, 5},
		{10, 10},
		{11, 10},
		{100, 10},
	}
	for _, tt := range tests {
		if got := ClampMiniBatchSize(tt.in); got != tt.want {
			t.Errorf("ClampMiniBatchSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestOrganizeTenJobsFiveByTwo(t *testing.T) {
	batches := Organize(makeScans(10), 5, 2)

	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}
	for i, b := range batches {
		if b.Number != i+1 {
			t.Errorf("batch %d Number = %d", i, b.Number)
		}
		if len(b.Scans) != 5 {
			t.Errorf("batch %d size = %d, want 5", b.Number, len(b.Scans))
		}
		wantSizes := []int{2, 2, 1}
		if len(b.MiniBatches) != len(wantSizes) {
			t.Fatalf("batch %d mini-batches = %d, want %d", b.Number, len(b.MiniBatches), len(wantSizes))
		}
		for j, mb := range b.MiniBatches {
			if mb.Number != j+1 {
				t.Errorf("batch %d mini-batch %d Number = %d", b.Number, j, mb.Number)
			}
			if len(mb.Scans) != wantSizes[j] {
				t.Errorf("batch %d mini-batch %d size = %d, want %d", b.Number, mb.Number, len(mb.Scans), wantSizes[j])
			}
		}
	}
}

func TestOrganizePreservesOrderAndCoverage(t *testing.T) {
	tests := []struct {
		n, batchSize, miniSize int
	}{
		{1, 1, 1},
		{7, 3, 2},
		{10, 5, 2},
		{23, 10, 10},
		{5, 100, 0},  // mini size clamps up to 1
		{12, 4, 99},  // mini size clamps down to 10
		{9, 1, 3},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("n=%d/batch=%d/mini=%d", tt.n, tt.batchSize, tt.miniSize)
		t.Run(name, func(t *testing.T) {
			scans := makeScans(tt.n)
			batches := Organize(scans, tt.batchSize, tt.miniSize)

			seen := make(map[string]int)
			var flattened []string
			for _, b := range batches {
				if len(b.Scans) > tt.batchSize && tt.batchSize >= 1 {
					t.Errorf("batch %d exceeds batchSize: %d > %d", b.Number, len(b.Scans), tt.batchSize)
				}
				var fromMinis int
				for _, mb := range b.MiniBatches {
					effective := ClampMiniBatchSize(tt.miniSize)
					if len(mb.Scans) > effective {
						t.Errorf("mini-batch %d/%d exceeds clamped size %d", b.Number, mb.Number, effective)
					}
					for _, s := range mb.Scans {
						seen[s.JobID]++
						flattened = append(flattened, s.JobID)
					}
					fromMinis += len(mb.Scans)
				}
				if fromMinis != len(b.Scans) {
					t.Errorf("batch %d mini-batch scans = %d, batch scans = %d", b.Number, fromMinis, len(b.Scans))
				}
			}

			if len(flattened) != tt.n {
				t.Fatalf("flattened length = %d, want %d", len(flattened), tt.n)
			}
			for i, id := range flattened {
				want := fmt.Sprintf("job-%d", i+1)
				if id != want {
					t.Fatalf("position %d = %s, want %s (order not preserved)", i, id, want)
				}
			}
			for id, count := range seen {
				if count != 1 {
					t.Errorf("job %s appears %d times", id, count)
				}
			}
		})
	}
}

func TestOrganizeEmptyInput(t *testing.T) {
	if batches := Organize(nil, 5, 2); len(batches) != 0 {
		t.Errorf("Organize(nil) = %v, want empty", batches)
	}
}

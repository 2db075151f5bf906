package main

import (
	"path/filepath"
	"testing"

	"github.com/a11yops/scanbatch/internal/config"
)

func TestSummaryDir(t *testing.T) {
	tests := []struct {
		name      string
		outputDir string
		input     string
		directory string
		want      string
	}{
		{
			name:      "output dir wins",
			outputDir: "/tmp/out",
			input:     "/queue/pending.csv",
			want:      "/tmp/out",
		},
		{
			name:  "single file mode lands next to the input",
			input: filepath.Join("/queue", "pending.csv"),
			want:  "/queue",
		},
		{
			name:      "directory mode lands in the watched directory",
			directory: "/queue",
			want:      "/queue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origInput, origDirectory := inputFlag, directoryFlag
			defer func() { inputFlag, directoryFlag = origInput, origDirectory }()
			inputFlag, directoryFlag = tt.input, tt.directory

			cfg := config.Default()
			cfg.OutputDir = tt.outputDir
			if got := summaryDir(cfg); got != tt.want {
				t.Errorf("summaryDir() = %s, want %s", got, tt.want)
			}
		})
	}
}

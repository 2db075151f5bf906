package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/a11yops/scanbatch/internal/agent"
	"github.com/a11yops/scanbatch/internal/config"
	"github.com/a11yops/scanbatch/internal/logging"
	"github.com/a11yops/scanbatch/internal/runner"
	"github.com/a11yops/scanbatch/internal/summary"
)

// rescanInterval is the periodic directory re-scan in watch mode, a backstop
// for filesystem events that never arrive (e.g. files copied in over NFS).
const rescanInterval = 30 * time.Second

// CLI flags
var (
	inputFlag         string
	directoryFlag     string
	watchFlag         bool
	outputDirFlag     string
	batchSizeFlag     int
	miniBatchSizeFlag int
	delayFlag         time.Duration
	maxRetriesFlag    int
	timeoutFlag       time.Duration
	modelFlag         string
	verboseFlag       bool
)

// rootCmd is the main Cobra command for the scanbatch CLI.
var rootCmd = &cobra.Command{
	Use:   "scanbatch",
	Short: "AI-powered accessibility scan batch processor",
	Long: `Scanbatch reads pending accessibility scan jobs from CSV files, sends them
to Gemini in rate-limit-friendly mini-batches, and writes the findings as
import-ready CSV files plus a JSON run summary on stdout.

Runs are resumable: progress is checkpointed after every batch, so an
interrupted run picks up where it left off. A lock file prevents concurrent
runs against the same directory.

Examples:
  scanbatch --input pending-scans.csv
  scanbatch --directory ./scan-queue
  scanbatch -d ./scan-queue --watch
  scanbatch -i pending.csv --mini-batch-size 3 --delay 30s
  scanbatch -i pending.csv -o ./results --model gemini-3-pro-preview`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Pending-scans CSV file to process")
	rootCmd.Flags().StringVarP(&directoryFlag, "directory", "d", "", "Directory of pending-scans CSV files to process")
	rootCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Keep watching the directory for new files (requires --directory)")
	rootCmd.Flags().StringVarP(&outputDirFlag, "output-dir", "o", "", "Directory for result CSVs and run summaries (default: alongside the input)")
	rootCmd.Flags().IntVar(&batchSizeFlag, "batch-size", config.DefaultBatchSize, "Jobs per checkpointed batch")
	rootCmd.Flags().IntVar(&miniBatchSizeFlag, "mini-batch-size", config.DefaultMiniBatchSize, fmt.Sprintf("Jobs per AI invocation (%d-%d)", config.MinMiniBatchSize, config.MaxMiniBatchSize))
	rootCmd.Flags().DurationVar(&delayFlag, "delay", config.DefaultMiniBatchDelay, "Pause between mini-batches")
	rootCmd.Flags().IntVar(&maxRetriesFlag, "max-retries", config.DefaultMaxRetries, "Retries per mini-batch after a failed invocation")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", config.DefaultInvokeTimeout, "Timeout for a single AI invocation")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", config.DefaultModel, "Gemini model to use (e.g., gemini-3-flash-preview, gemini-3-pro-preview)")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init(verboseFlag)

	if (inputFlag == "") == (directoryFlag == "") {
		log.Fatal().Msg("exactly one of --input or --directory is required")
	}
	if watchFlag && directoryFlag == "" {
		log.Fatal().Msg("--watch requires --directory")
	}

	cfg := buildConfig(cmd)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	apiKey, err := config.APIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Gemini API key required")
	}

	// SIGINT/SIGTERM cancel the context; in-flight work stops at the next
	// safe point and the checkpoint preserves progress.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invoker, err := agent.NewGemini(ctx, apiKey, cfg.Model, cfg.InvokeTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Gemini client")
	}

	r := runner.New(invoker, cfg)

	var sum *summary.ProcessingSummary
	if inputFlag != "" {
		sum, err = r.RunSingle(ctx, inputFlag)
	} else {
		sum, err = r.RunDirectory(ctx, directoryFlag, watchFlag, rescanInterval)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	emitSummary(*sum, summaryDir(cfg))

	// Per-job failures are reported in the summary, not the exit code;
	// orchestrators parse the status field.
}

// summaryDir resolves where the summary file lands: the output directory
// when set, otherwise next to the results (the input file's directory or
// the watched directory).
func summaryDir(cfg config.Config) string {
	if cfg.OutputDir != "" {
		return cfg.OutputDir
	}
	if inputFlag != "" {
		return filepath.Dir(inputFlag)
	}
	return directoryFlag
}

// buildConfig layers flag values over environment overrides over defaults.
// Only flags the user actually set win over the environment.
func buildConfig(cmd *cobra.Command) config.Config {
	cfg := config.Default()
	config.LoadEnv(&cfg)

	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = batchSizeFlag
	}
	if cmd.Flags().Changed("mini-batch-size") {
		cfg.MiniBatchSize = miniBatchSizeFlag
	}
	if cmd.Flags().Changed("delay") {
		cfg.MiniBatchDelay = delayFlag
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.MaxRetries = maxRetriesFlag
	}
	if cmd.Flags().Changed("timeout") {
		cfg.InvokeTimeout = timeoutFlag
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = modelFlag
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = outputDirFlag
	}
	return cfg
}

// emitSummary prints the run summary JSON on stdout (logs go to stderr) and
// writes a copy next to the results for later inspection.
func emitSummary(sum summary.ProcessingSummary, dir string) {
	text, err := sum.JSON()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to render run summary")
	}
	fmt.Println(text)

	path := filepath.Join(dir, fmt.Sprintf("summary-%s.json", uuid.NewString()))
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to write summary file")
		return
	}
	log.Info().Str("path", path).Msg("Run summary written")
}

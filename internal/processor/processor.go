// Package processor is the execution engine: it drives mini-batches through
// the agent strictly sequentially, retries transient failures with
// kind-dependent exponential backoff, reconciles partial output, and flushes
// the checkpoint once per batch.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/a11yops/scanbatch/internal/agent"
	"github.com/a11yops/scanbatch/internal/checkpoint"
	"github.com/a11yops/scanbatch/internal/config"
	"github.com/a11yops/scanbatch/internal/metrics"
	"github.com/a11yops/scanbatch/internal/prompt"
	"github.com/a11yops/scanbatch/internal/scan"
)

// Processor executes organized batches against an agent. One Processor owns
// one run; it is not safe for concurrent use and never invokes the agent in
// parallel (rate limits are externally imposed).
type Processor struct {
	invoker agent.Invoker
	cps     *checkpoint.Manager
	cfg     config.Config

	// pause is the cancellable sleep used for backoff and inter-mini-batch
	// delays; replaced in tests.
	pause func(ctx context.Context, d time.Duration) error
}

// New creates a Processor using the given invoker and checkpoint manager.
func New(invoker agent.Invoker, cps *checkpoint.Manager, cfg config.Config) *Processor {
	return &Processor{
		invoker: invoker,
		cps:     cps,
		cfg:     cfg,
		pause:   sleep,
	}
}

// ProcessMiniBatch runs one mini-batch to a terminal outcome. Invocation
// failures are retried up to the configured maximum with kind-dependent
// backoff; exhaustion turns every job in the mini-batch into a FailedScan
// carrying the last error. Jobs missing from otherwise-valid agent output
// become INVALID_OUTPUT failures without further retries.
func (p *Processor) ProcessMiniBatch(ctx context.Context, mb scan.MiniBatch, batchNumber int) scan.MiniBatchOutcome {
	outcome := scan.MiniBatchOutcome{MiniBatchNumber: mb.Number}

	log.Info().
		Int("batch", batchNumber).
		Int("mini_batch", mb.Number).
		Int("jobs", len(mb.Scans)).
		Msg("Processing mini-batch")

	var lastErr error
	retries := 0
	for {
		results, failed, err := p.attempt(ctx, mb)
		if err == nil {
			outcome.Results = results
			outcome.FailedScans = failed
			outcome.RetryCount = retries

			log.Info().
				Int("batch", batchNumber).
				Int("mini_batch", mb.Number).
				Int("successful", len(results)).
				Int("failed", len(failed)).
				Int("retries", retries).
				Msg("Mini-batch complete")
			return outcome
		}
		lastErr = err

		if retries >= p.cfg.MaxRetries {
			break
		}
		retries++

		kind := agent.KindOf(err)
		backoff := Delay(retries, kind)
		log.Warn().
			Err(err).
			Int("batch", batchNumber).
			Int("mini_batch", mb.Number).
			Int("retry", retries).
			Int("max_retries", p.cfg.MaxRetries).
			Str("kind", string(kind)).
			Dur("backoff", backoff).
			Msg("Mini-batch invocation failed, backing off before retry")

		if err := p.pause(ctx, backoff); err != nil {
			log.Warn().Int("mini_batch", mb.Number).Msg("Backoff interrupted, abandoning retries")
			break
		}
	}

	// Retries exhausted (or interrupted): every job fails with the last
	// error's kind and message.
	kind := agent.KindOf(lastErr)
	for _, s := range mb.Scans {
		outcome.FailedScans = append(outcome.FailedScans, scan.FailedScan{
			JobID:        s.JobID,
			URL:          s.URL,
			ErrorKind:    kind,
			ErrorMessage: lastErr.Error(),
		})
	}
	outcome.RetryCount = retries

	log.Error().
		Err(lastErr).
		Int("batch", batchNumber).
		Int("mini_batch", mb.Number).
		Int("jobs", len(mb.Scans)).
		Str("kind", string(kind)).
		Msg("Mini-batch failed after exhausting retries")

	metrics.New("scanbatch").
		Dimension("operation", "mini_batch").
		Dimension("kind", string(kind)).
		Count("mini_batch_exhausted").
		Metric("retries", float64(retries), metrics.UnitCount).
		Flush()

	return outcome
}

// attempt performs one prompt-build/invoke/parse cycle. Any failure is
// returned as a retryable error; reconciliation shortfalls are not errors,
// they are terminal per-job outcomes inside the returned slices.
func (p *Processor) attempt(ctx context.Context, mb scan.MiniBatch) (results []scan.ScanResult, failed []scan.FailedScan, err error) {
	defer func() {
		// Prompt building and parsing are not expected to panic; if one
		// does, it follows the same retry path as an invocation failure.
		if r := recover(); r != nil {
			results, failed = nil, nil
			err = &agent.InvokeError{
				Kind:    scan.ErrKindUnknown,
				Message: fmt.Sprintf("unexpected panic during mini-batch attempt: %v", r),
			}
		}
	}()

	auditPrompt := prompt.BuildAuditPrompt(mb.Scans)

	inv, err := p.invoker.Invoke(ctx, auditPrompt)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := parseAgentOutput(inv.Output)
	if err != nil {
		return nil, nil, &agent.InvokeError{Kind: scan.ErrKindUnknown, Message: "agent output unusable", Err: err}
	}

	results, failed = reconcile(mb.Scans, parsed)
	return results, failed, nil
}

// ProcessBatch runs a batch's mini-batches sequentially with the configured
// delay between them (skipped after the last), then marks every job that
// succeeded anywhere in the batch as processed and flushes the checkpoint as
// one durable unit. A checkpoint flush failure is fatal and returned.
func (p *Processor) ProcessBatch(ctx context.Context, b scan.Batch) ([]scan.MiniBatchOutcome, error) {
	log.Info().
		Int("batch", b.Number).
		Int("jobs", len(b.Scans)).
		Int("mini_batches", len(b.MiniBatches)).
		Msg("Processing batch")

	var outcomes []scan.MiniBatchOutcome
	for i, mb := range b.MiniBatches {
		outcome := p.ProcessMiniBatch(ctx, mb, b.Number)
		outcomes = append(outcomes, outcome)
		p.cps.SetPosition(b.Number, mb.Number)

		if ctx.Err() != nil {
			log.Warn().Int("batch", b.Number).Msg("Run cancelled, stopping batch early")
			break
		}

		// Rate-limit courtesy delay, skipped after the final mini-batch.
		if i < len(b.MiniBatches)-1 && p.cfg.MiniBatchDelay > 0 {
			if err := p.pause(ctx, p.cfg.MiniBatchDelay); err != nil {
				log.Warn().Int("batch", b.Number).Msg("Inter-mini-batch delay interrupted, stopping batch early")
				break
			}
		}
	}

	// Partial successes within a failing batch still checkpoint, so resume
	// never redoes completed work.
	var succeeded []string
	for _, o := range outcomes {
		for _, r := range o.Results {
			succeeded = append(succeeded, r.JobID)
		}
	}
	p.cps.MarkProcessed(succeeded)
	if err := p.cps.Flush(); err != nil {
		return outcomes, fmt.Errorf("batch %d: %w", b.Number, err)
	}

	log.Info().
		Int("batch", b.Number).
		Int("checkpointed", len(succeeded)).
		Msg("Batch complete, checkpoint flushed")

	return outcomes, nil
}

// ProcessAllBatches runs every batch in order, stopping early only on
// cancellation or a fatal checkpoint failure.
func (p *Processor) ProcessAllBatches(ctx context.Context, batches []scan.Batch) ([]scan.MiniBatchOutcome, error) {
	var all []scan.MiniBatchOutcome
	for _, b := range batches {
		outcomes, err := p.ProcessBatch(ctx, b)
		all = append(all, outcomes...)
		if err != nil {
			return all, err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return all, nil
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/a11yops/scanbatch/internal/assets"
	"github.com/a11yops/scanbatch/internal/metrics"
	"github.com/a11yops/scanbatch/internal/scan"
)

// maxOutputTokens must cover a full mini-batch of findings; each job can
// produce several hundred tokens of JSON and the default limit truncates.
const maxOutputTokens = 65536

// Gemini is the production Invoker backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini-backed Invoker for the given model. timeout
// bounds each individual invocation.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

// Invoke sends the prompt with the audit system instruction and returns the
// raw response text. Failures are classified into retryable error kinds.
func (g *Gemini) Invoke(ctx context.Context, prompt string) (*Invocation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.AuditSystemPrompt}},
		},
		MaxOutputTokens: maxOutputTokens,
	}

	log.Debug().
		Str("model", g.model).
		Int("prompt_length", len(prompt)).
		Msg("Starting Gemini invocation")

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	elapsed := time.Since(start)

	m := metrics.New("scanbatch").
		Dimension("operation", "invoke").
		Dimension("model", g.model).
		Metric("agent_latency", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("agent_calls")
	if err != nil {
		m.Count("agent_errors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("input_tokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("output_tokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		ie := classify(err)
		log.Warn().
			Err(err).
			Str("kind", string(ie.Kind)).
			Dur("duration", elapsed).
			Msg("Gemini invocation failed")
		return nil, ie
	}

	if resp == nil || resp.Text() == "" {
		return nil, &InvokeError{
			Kind:    scan.ErrKindUnknown,
			Message: "empty response from Gemini API",
		}
	}

	log.Debug().
		Int("response_length", len(resp.Text())).
		Dur("duration", elapsed).
		Msg("Gemini invocation complete")

	return &Invocation{Output: resp.Text(), Duration: elapsed}, nil
}

// classify maps provider errors onto the pipeline's error kinds.
func classify(err error) *InvokeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &InvokeError{Kind: scan.ErrKindTimeout, Message: "invocation timed out", Err: err}
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return &InvokeError{Kind: scan.ErrKindRateLimit, Message: "API rate limit exceeded", Err: err}
		case 500, 502, 503, 504:
			return &InvokeError{Kind: scan.ErrKindProcessCrash, Message: "Gemini API server error", Err: err}
		}
		return &InvokeError{Kind: scan.ErrKindUnknown, Message: apiErr.Message, Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &InvokeError{Kind: scan.ErrKindRateLimit, Message: "API quota exceeded or rate limited", Err: err}

	case strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "deadline"):
		return &InvokeError{Kind: scan.ErrKindTimeout, Message: "invocation timed out", Err: err}

	case strings.Contains(errLower, "connection reset") ||
		strings.Contains(errLower, "broken pipe") ||
		strings.Contains(errLower, "unexpected eof"):
		return &InvokeError{Kind: scan.ErrKindProcessCrash, Message: "connection to agent dropped mid-call", Err: err}

	default:
		return &InvokeError{Kind: scan.ErrKindUnknown, Message: "agent invocation failed", Err: err}
	}
}

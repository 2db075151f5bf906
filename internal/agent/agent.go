// Package agent defines the boundary to the external analysis model. The
// processor only sees an Invoker: prompt text in, raw output text out, with
// failures classified into retryable error kinds. Concrete transports live
// behind this interface so the pipeline is testable without a live model.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/a11yops/scanbatch/internal/scan"
)

// Invocation is the successful outcome of one agent call.
type Invocation struct {
	Output   string
	Duration time.Duration
}

// Invoker sends one prompt to the analysis agent. Implementations must
// honor ctx cancellation and return an *InvokeError on failure.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (*Invocation, error)
}

// InvokeError is a classified invocation failure.
type InvokeError struct {
	Kind    scan.ErrorKind
	Message string
	Err     error
}

func (e *InvokeError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind from an invocation error, defaulting to
// UNKNOWN for errors that are not an *InvokeError.
func KindOf(err error) scan.ErrorKind {
	var ie *InvokeError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return scan.ErrKindUnknown
}

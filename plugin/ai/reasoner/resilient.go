package reasoner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/timeout"
)

// Resilient bounds every call with a timeout and retries a transient failure once.
//
// Every error it returns wraps ErrTimeout or ErrUnavailable.
type Resilient struct {
	next    Reasoner
	timeout time.Duration
	backoff time.Duration
}

var _ Reasoner = (*Resilient)(nil)

// NewResilient wraps next. Zero durations use the package defaults.
func NewResilient(next Reasoner, callTimeout, backoff time.Duration) *Resilient {
	if callTimeout <= 0 {
		callTimeout = timeout.ReasonerCallTimeout
	}
	if backoff < 0 {
		backoff = timeout.RetryBackoff
	}
	return &Resilient{
		next:    next,
		timeout: callTimeout,
		backoff: backoff,
	}
}

func (r *Resilient) Reason(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	result, err := r.attempt(ctx, req)
	if err == nil {
		return result, nil
	}

	classified := ClassifyError(err)
	if !classified.IsTransient() || ctx.Err() != nil {
		return nil, normalize(err)
	}

	wait := r.backoff
	if classified.RetryAfter > wait {
		wait = classified.RetryAfter
	}
	slog.Warn("reasoner call failed, retrying",
		"role", req.Role,
		"error", err,
		"backoff_ms", wait.Milliseconds())

	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, normalize(err)
	case <-timer.C:
	}

	result, err = r.attempt(ctx, req)
	if err != nil {
		slog.Error("reasoner call failed after retry",
			"role", req.Role,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds())
		return nil, normalize(err)
	}
	return result, nil
}

func (r *Resilient) attempt(ctx context.Context, req *Request) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.next.Reason(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: role %s after %s", ErrTimeout, req.Role, r.timeout)
		}
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: empty result", ErrMalformedOutput)
	}
	return result, nil
}

func normalize(err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

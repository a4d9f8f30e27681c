package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/timeout"
)

// Dispatcher fans events out to observers in the background, retrying
// failures with a fixed backoff.
type Dispatcher struct {
	observers    []Observer
	retryCount   int
	retryBackoff time.Duration
	callTimeout  time.Duration
	wg           sync.WaitGroup
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over observers.
func NewDispatcher(observers ...Observer) *Dispatcher {
	return &Dispatcher{
		observers:    observers,
		retryCount:   3,
		retryBackoff: 150 * time.Millisecond,
		callTimeout:  timeout.ObserverTimeout,
	}
}

// WithRetry overrides the retry policy.
func (d *Dispatcher) WithRetry(count int, backoff time.Duration) *Dispatcher {
	if count > 0 {
		d.retryCount = count
	}
	d.retryBackoff = backoff
	return d
}

// Emit returns immediately. The caller's context only contributes its values:
// delivery outlives the turn that produced the event.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	ctx = context.WithoutCancel(ctx)
	for _, obs := range d.observers {
		d.wg.Add(1)
		go d.dispatchOne(ctx, obs, event)
	}
}

// Wait blocks until every event emitted so far has been delivered or dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, obs Observer, event Event) {
	defer d.wg.Done()
	for attempt := 1; attempt <= d.retryCount; attempt++ {
		err := d.observe(ctx, obs, event)
		if err == nil {
			return
		}

		slog.Warn("observer delivery failed",
			"observer", obs.Name(),
			"kind", event.Kind,
			"session_id", event.SessionID,
			"attempt", attempt,
			"error", err)
		if attempt == d.retryCount {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryBackoff):
		}
	}
}

func (d *Dispatcher) observe(ctx context.Context, obs Observer, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}
	return obs.Observe(ctx, event)
}

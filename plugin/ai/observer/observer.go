// Package observer delivers structured session events to passive consumers.
//
// Observers are never on the critical path: delivery is asynchronous and a
// failing observer cannot fail a turn.
package observer

import (
	"context"
	"time"
)

// Kind names an observable event.
type Kind string

const (
	KindClassification  Kind = "classification"
	KindToolCall        Kind = "tool_call"
	KindStepProgression Kind = "step_progression"
	KindConfirmation    Kind = "confirmation"
	KindClarification   Kind = "clarification"
	KindTermination     Kind = "termination"
	KindDegraded        Kind = "degraded"
	// KindTurn is emitted once per handled turn and carries its latency.
	KindTurn Kind = "turn"
)

// Event is one observation.
type Event struct {
	Kind      Kind              `json:"kind"`
	SessionID string            `json:"session_id"`
	Status    string            `json:"status,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Latency   time.Duration     `json:"latency,omitempty"`
	At        time.Time         `json:"at"`
}

// Observer consumes events.
type Observer interface {
	Name() string
	Observe(ctx context.Context, event Event) error
}

// Func adapts a function to Observer.
type Func struct {
	ID string
	Fn func(ctx context.Context, event Event) error
}

func (f Func) Name() string {
	return f.ID
}

func (f Func) Observe(ctx context.Context, event Event) error {
	return f.Fn(ctx, event)
}

// Emitter is what the orchestrator publishes to.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

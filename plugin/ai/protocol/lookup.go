// Package protocol provides the emergency protocol knowledge base and the
// matcher for branch and stop conditions.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/lifesaver/store"
)

// ErrProtocolNotFound is returned for an emergency type without a protocol.
var ErrProtocolNotFound = errors.New("protocol not found")

// Lookup maps an emergency type to its procedure.
type Lookup interface {
	GetProtocol(ctx context.Context, emergencyType string) (*store.Procedure, error)
}

// Builtin serves the bundled protocol table.
type Builtin struct {
	protocols map[string]*store.Procedure
}

var _ Lookup = (*Builtin)(nil)

// NewBuiltin creates a lookup over the bundled protocols.
func NewBuiltin() *Builtin {
	b := &Builtin{protocols: make(map[string]*store.Procedure, len(builtinProtocols))}
	for _, p := range builtinProtocols {
		b.protocols[p.EmergencyType] = p
	}
	return b
}

func (b *Builtin) GetProtocol(ctx context.Context, emergencyType string) (*store.Procedure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := b.protocols[strings.ToLower(strings.TrimSpace(emergencyType))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProtocolNotFound, emergencyType)
	}
	return Clone(p), nil
}

// Types lists the emergency types with a protocol, sorted.
func (b *Builtin) Types() []string {
	types := make([]string, 0, len(b.protocols))
	for t := range b.protocols {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Bounded applies a deadline to every lookup.
type Bounded struct {
	next    Lookup
	timeout time.Duration
}

// WithTimeout wraps next so that each call is bounded by d.
func WithTimeout(next Lookup, d time.Duration) *Bounded {
	return &Bounded{next: next, timeout: d}
}

func (b *Bounded) GetProtocol(ctx context.Context, emergencyType string) (*store.Procedure, error) {
	if b.timeout <= 0 {
		return b.next.GetProtocol(ctx, emergencyType)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.GetProtocol(ctx, emergencyType)
}

// Fallback returns the generic procedure used when no protocol is available.
func Fallback(emergencyType string) *store.Procedure {
	p := Clone(fallbackProtocol)
	if emergencyType != "" {
		p.EmergencyType = emergencyType
	}
	return p
}

// Clone deep-copies a procedure.
func Clone(p *store.Procedure) *store.Procedure {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = make([]store.Step, len(p.Steps))
	for i, s := range p.Steps {
		s.Branches = cloneConditions(s.Branches)
		s.Stop = cloneConditions(s.Stop)
		c.Steps[i] = s
	}
	c.Notes = append([]string(nil), p.Notes...)
	c.StopConditions = cloneConditions(p.StopConditions)
	return &c
}

func cloneConditions(in []store.Condition) []store.Condition {
	if in == nil {
		return nil
	}
	out := make([]store.Condition, len(in))
	for i, c := range in {
		c.Phrases = append([]string(nil), c.Phrases...)
		out[i] = c
	}
	return out
}

package protocol

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/hrygo/lifesaver/plugin/ai/lexicon"
	"github.com/hrygo/lifesaver/store"
)

// Input is what a condition is evaluated against.
type Input struct {
	// Reply is the user's raw reply; it is normalized before matching.
	Reply string
	// Predicate is a structured condition name reported by the Reasoner, if any.
	Predicate string
	Facts     map[string]string
}

// Matcher evaluates branch and stop conditions.
//
// CEL expressions see the variables reply (normalized string), condition
// (structured predicate, possibly empty) and facts (map of strings).
// Compiled programs are cached by expression.
type Matcher struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewMatcher creates a matcher with its CEL environment.
func NewMatcher() (*Matcher, error) {
	env, err := cel.NewEnv(
		cel.Variable("reply", cel.StringType),
		cel.Variable("condition", cel.StringType),
		cel.Variable("facts", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Matcher{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks that expr is a valid boolean expression and caches it.
func (m *Matcher) Compile(expr string) (cel.Program, error) {
	m.mu.RLock()
	prg, ok := m.programs[expr]
	m.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := m.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program for %q: %w", expr, err)
	}

	m.mu.Lock()
	m.programs[expr] = prg
	m.mu.Unlock()
	return prg, nil
}

// Match reports whether c holds for in.
func (m *Matcher) Match(c store.Condition, in Input) bool {
	if in.Predicate != "" && c.Predicate == in.Predicate {
		return true
	}
	if lexicon.ContainsAny(in.Reply, c.Phrases) {
		return true
	}
	if c.When == "" {
		return false
	}
	ok, err := m.eval(c.When, in)
	if err != nil {
		// A broken expression must never end or redirect a procedure.
		slog.Warn("condition expression failed", "predicate", c.Predicate, "error", err)
		return false
	}
	return ok
}

// First returns the first condition of conds that holds for in.
func (m *Matcher) First(conds []store.Condition, in Input) (store.Condition, bool) {
	for _, c := range conds {
		if m.Match(c, in) {
			return c, true
		}
	}
	return store.Condition{}, false
}

func (m *Matcher) eval(expr string, in Input) (bool, error) {
	prg, err := m.Compile(expr)
	if err != nil {
		return false, err
	}
	facts := in.Facts
	if facts == nil {
		facts = map[string]string{}
	}
	out, _, err := prg.Eval(map[string]any{
		"reply":     lexicon.Normalize(in.Reply),
		"condition": in.Predicate,
		"facts":     facts,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T", expr, out.Value())
	}
	return b, nil
}

// Validate compiles every expression of p.
func (m *Matcher) Validate(p *store.Procedure) error {
	check := func(conds []store.Condition) error {
		for _, c := range conds {
			if c.When == "" {
				continue
			}
			if _, err := m.Compile(c.When); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(p.StopConditions); err != nil {
		return err
	}
	for _, s := range p.Steps {
		if err := check(s.Branches); err != nil {
			return err
		}
		if err := check(s.Stop); err != nil {
			return err
		}
		for _, b := range s.Branches {
			if b.Target != "" && p.IndexOf(b.Target) == store.StepNone {
				return fmt.Errorf("step %q branches to unknown step %q", s.ID, b.Target)
			}
		}
	}
	return nil
}

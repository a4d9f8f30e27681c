// Package instruction walks a procedure step by step: it interprets each
// user reply, computes the state transition and pairs every delivered step
// with a short reassurance.
package instruction

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/lexicon"
	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/store"
)

// Kind classifies a reply received while awaiting confirmation.
type Kind string

const (
	KindStop      Kind = "stop"
	KindBranch    Kind = "branch"
	KindConfirm   Kind = "confirm"
	KindDistress  Kind = "distress"
	KindAmbiguous Kind = "ambiguous"
)

// Interpretation is the meaning of one reply.
type Interpretation struct {
	Kind Kind
	// Condition is the predicate of the matched stop or branch condition.
	Condition string
	// Target is the branch's step index, valid only for KindBranch.
	Target int
	// Message is the Reasoner's phrasing, used for clarifying rephrases.
	Message     string
	Symptoms    []string
	Medications []string
	Facts       map[string]string
	// Source is "rule" or "reasoner".
	Source   string
	Degraded bool
	Cause    error
}

// Interpreter interprets replies in two layers.
// Layer 1: deterministic rules over the procedure's conditions and lexicons.
// Layer 2: the Reasoner's instruct role for everything else.
type Interpreter struct {
	reasoner reasoner.Reasoner
	matcher  *protocol.Matcher
}

// NewInterpreter creates an interpreter.
func NewInterpreter(r reasoner.Reasoner, m *protocol.Matcher) *Interpreter {
	return &Interpreter{reasoner: r, matcher: m}
}

// Interpret never fails: a Reasoner error yields an ambiguous, degraded result.
func (i *Interpreter) Interpret(ctx context.Context, sess *store.Session, reply string) *Interpretation {
	start := time.Now()
	step := sess.Step()
	if step == nil {
		return &Interpretation{Kind: KindAmbiguous, Source: "rule"}
	}

	if in := i.byRules(sess, step, reply); in != nil {
		in.Medications = lexicon.MedicationsIn(reply)
		slog.Debug("reply interpreted by rule matcher",
			"session_id", sess.ID,
			"kind", in.Kind,
			"condition", in.Condition,
			"latency_ms", time.Since(start).Milliseconds())
		return in
	}

	in := i.byReasoner(ctx, sess, step, reply)
	in.Medications = mergeLists(lexicon.MedicationsIn(reply), in.Medications)
	slog.Debug("reply interpreted by reasoner",
		"session_id", sess.ID,
		"kind", in.Kind,
		"condition", in.Condition,
		"degraded", in.Degraded,
		"latency_ms", time.Since(start).Milliseconds())
	return in
}

func stopConditions(sess *store.Session, step *store.Step) []store.Condition {
	conds := make([]store.Condition, 0, len(step.Stop)+len(sess.Procedure.StopConditions))
	conds = append(conds, step.Stop...)
	return append(conds, sess.Procedure.StopConditions...)
}

func (i *Interpreter) byRules(sess *store.Session, step *store.Step, reply string) *Interpretation {
	input := protocol.Input{Reply: reply, Facts: sess.Facts}

	if !lexicon.Hedged(reply) {
		if c, ok := i.matcher.First(stopConditions(sess, step), input); ok {
			return &Interpretation{Kind: KindStop, Condition: c.Predicate, Source: "rule"}
		}
	}
	if in := i.branch(sess, step, input); in != nil {
		in.Source = "rule"
		return in
	}
	if lexicon.ContainsAny(reply, lexicon.Distress) {
		return &Interpretation{Kind: KindDistress, Source: "rule"}
	}
	if lexicon.ContainsAny(reply, lexicon.Confirmations) && !lexicon.ContainsAny(reply, lexicon.Negations) {
		return &Interpretation{Kind: KindConfirm, Source: "rule"}
	}
	return nil
}

func (i *Interpreter) branch(sess *store.Session, step *store.Step, input protocol.Input) *Interpretation {
	c, ok := i.matcher.First(step.Branches, input)
	if !ok {
		return nil
	}
	target := sess.Procedure.IndexOf(c.Target)
	if target == store.StepNone {
		slog.Warn("branch target missing from procedure", "step_id", step.ID, "target", c.Target)
		return nil
	}
	return &Interpretation{Kind: KindBranch, Condition: c.Predicate, Target: target}
}

func (i *Interpreter) byReasoner(ctx context.Context, sess *store.Session, step *store.Step, reply string) *Interpretation {
	res, err := i.reasoner.Reason(ctx, &reasoner.Request{
		Role:    reasoner.RoleInstruct,
		Context: instructContext(sess, step),
		Text:    reply,
	})
	if err != nil {
		slog.Warn("reply interpretation degraded", "session_id", sess.ID, "error", err)
		return &Interpretation{Kind: KindAmbiguous, Source: "reasoner", Degraded: true, Cause: err}
	}

	in := &Interpretation{
		Kind:        KindAmbiguous,
		Message:     res.String("message"),
		Symptoms:    res.Strings("symptoms"),
		Medications: res.Strings("medications"),
		Facts:       res.Facts("facts"),
		Source:      "reasoner",
	}
	predicate := res.String("condition")
	input := protocol.Input{Predicate: predicate, Facts: sess.Facts}

	switch Kind(strings.ToLower(res.String("intent"))) {
	case KindStop:
		// Only a stop condition defined by the procedure may end it, and
		// never on a question or a denial.
		if lexicon.Hedged(reply) {
			break
		}
		if c, ok := i.matcher.First(stopConditions(sess, step), input); ok && predicate != "" {
			in.Kind, in.Condition = KindStop, c.Predicate
		}
	case KindBranch:
		if b := i.branch(sess, step, input); b != nil && predicate != "" {
			in.Kind, in.Condition, in.Target = KindBranch, b.Condition, b.Target
		}
	case KindConfirm:
		in.Kind = KindConfirm
	case KindDistress:
		in.Kind = KindDistress
	}
	return in
}

func instructContext(sess *store.Session, step *store.Step) map[string]any {
	steps := make([]string, len(sess.Procedure.Steps))
	for idx, s := range sess.Procedure.Steps {
		steps[idx] = s.Instruction
	}
	branches := make([]string, 0, len(step.Branches))
	for _, b := range step.Branches {
		branches = append(branches, b.Predicate)
	}
	stops := make([]string, 0)
	for _, c := range stopConditions(sess, step) {
		stops = append(stops, c.Predicate)
	}
	ctx := map[string]any{
		"emergency_type":     sess.EmergencyType(),
		"protocol_title":     sess.Procedure.Title,
		"steps":              steps,
		"current_step_index": sess.CurrentStep,
		"current_step":       step.Instruction,
		"branch_conditions":  branches,
		"stop_conditions":    stops,
	}
	if len(sess.Facts) > 0 {
		ctx["facts"] = sess.Facts
	}
	return ctx
}

func mergeLists(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

package reasoner

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/lifesaver/plugin/ai/lexicon"
)

// RuleReasoner is a deterministic keyword reasoner.
//
// It serves as the degraded classifier when the LLM is unreachable and as
// the whole reasoner when no LLM is configured.
type RuleReasoner struct{}

var _ Reasoner = RuleReasoner{}

type typeRule struct {
	emergencyType string
	severity      string
	phrases       []string
}

// typeRules are checked in order; earlier rules win ties.
var typeRules = []typeRule{
	{"cardiac_arrest", "critical", []string{
		"not breathing", "isn't breathing", "stopped breathing", "no pulse", "no heartbeat",
		"heart stopped", "cardiac arrest", "collapsed", "heart attack",
	}},
	{"choking", "critical", []string{
		"choking", "choke", "something stuck", "stuck in his throat", "stuck in her throat",
		"can't cough", "heimlich", "swallowed",
	}},
	{"anaphylaxis", "critical", []string{
		"allergic", "allergy", "anaphylaxis", "hives", "swelling", "swollen", "epipen",
		"bee sting", "stung", "peanut", "throat is closing",
	}},
	{"possible_stroke", "high", []string{
		"stroke", "drooping", "droop", "slurred", "can't speak", "cannot speak", "one side",
		"arm is weak", "numb", "confused speech",
	}},
	{"unconscious_but_breathing", "high", []string{
		"unconscious", "passed out", "fainted", "won't wake", "not waking", "unresponsive",
		"still breathing", "is breathing", "breathing but",
	}},
}

var calmPhrases = []string{
	"You're doing really well. Stay with them, help is on the way.",
	"Take a slow breath. You are doing exactly the right thing.",
	"Keep going, you're helping them right now.",
}

func (RuleReasoner) Reason(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch req.Role {
	case RoleClassify:
		return classifyByRules(req.Text), nil
	case RoleInstruct:
		return NewResult(map[string]any{
			"intent":      "ambiguous",
			"condition":   "",
			"message":     "",
			"medications": toAny(lexicon.MedicationsIn(req.Text)),
		}), nil
	case RoleCalm:
		idx := 0
		if step, ok := req.Context["step_index"].(int); ok && step > 0 {
			idx = step
		}
		return NewResult(map[string]any{"message": calmPhrases[idx%len(calmPhrases)]}), nil
	case RoleReport:
		return NewResult(map[string]any{"narrative": narrativeFromContext(req.Context)}), nil
	}
	return nil, fmt.Errorf("unsupported role %q", req.Role)
}

func classifyByRules(text string) *Result {
	best, bestScore := typeRule{}, 0
	var symptoms []string
	for _, rule := range typeRules {
		matched := lexicon.Matches(text, rule.phrases)
		score := len(matched)
		// "not breathing" outranks the plain "breathing" of the unconscious rule.
		if rule.emergencyType == "unconscious_but_breathing" && lexicon.ContainsAny(text, []string{"not breathing", "isn't breathing", "stopped breathing"}) {
			score = 0
		}
		if score > bestScore {
			best, bestScore, symptoms = rule, score, matched
		}
	}

	fields := map[string]any{
		"emergency_type": "unclear",
		"severity":       "moderate",
		"confidence":     0.2,
		"summary":        strings.TrimSpace(text),
		"key_symptoms":   []any{},
		"facts":          []any{},
	}
	if bestScore > 0 {
		confidence := 0.65
		if bestScore >= 2 {
			confidence = 0.85
		}
		fields["emergency_type"] = best.emergencyType
		fields["severity"] = best.severity
		fields["confidence"] = confidence
		fields["key_symptoms"] = toAny(symptoms)
	}
	if relation := lexicon.PatientRelation(text); relation != "" {
		fields["facts"] = []any{map[string]any{"key": "patient", "value": relation}}
	}
	return NewResult(fields)
}

func narrativeFromContext(ctx map[string]any) string {
	var b strings.Builder
	if t, ok := ctx["emergency_type"].(string); ok && t != "" {
		fmt.Fprintf(&b, "Suspected %s.", strings.ReplaceAll(t, "_", " "))
	}
	if actions, ok := ctx["actions_taken"].([]string); ok && len(actions) > 0 {
		fmt.Fprintf(&b, " Bystander actions: %s.", strings.Join(actions, "; "))
	}
	if meds, ok := ctx["medications"].([]string); ok && len(meds) > 0 {
		fmt.Fprintf(&b, " Medications or devices mentioned: %s.", strings.Join(meds, ", "))
	}
	return strings.TrimSpace(b.String())
}

func toAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

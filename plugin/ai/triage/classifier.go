// Package triage turns a user utterance into a structured emergency signal.
package triage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/plugin/ai/timeout"
	"github.com/hrygo/lifesaver/store"
)

// Result is the outcome of one classification.
type Result struct {
	Signal *store.EmergencySignal
	// Facts extracted from the utterance, merged into session memory by the caller.
	Facts map[string]string
	// Degraded is set when the rule fallback answered instead of the Reasoner.
	Degraded bool
	// Cause is the Reasoner error that forced the fallback.
	Cause error
}

// Classifier calls the Reasoner's classify role and applies the confidence policy.
type Classifier struct {
	reasoner  reasoner.Reasoner
	fallback  reasoner.Reasoner
	threshold float64
}

// NewClassifier creates a classifier. threshold <= 0 uses the default.
func NewClassifier(r reasoner.Reasoner, threshold float64) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = timeout.DefaultConfidenceThreshold
	}
	return &Classifier{
		reasoner:  r,
		fallback:  reasoner.RuleReasoner{},
		threshold: threshold,
	}
}

// Threshold returns the minimum confidence acted upon.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify classifies utterance in the context of the session's prior signal and facts.
// Below-threshold results carry the emergency type store.EmergencyUnclear.
func (c *Classifier) Classify(ctx context.Context, sess *store.Session, utterance string) (*Result, error) {
	start := time.Now()
	req := &reasoner.Request{
		Role:    reasoner.RoleClassify,
		Context: buildContext(sess),
		Text:    utterance,
	}

	out := &Result{}
	res, err := c.reasoner.Reason(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("classification degraded to rule matcher",
			"session_id", sess.ID,
			"error", err)
		out.Degraded, out.Cause = true, err
		if res, err = c.fallback.Reason(ctx, req); err != nil {
			return nil, err
		}
	}

	out.Signal = c.toSignal(res, sess.Signal)
	out.Facts = res.Facts("facts")

	slog.Debug("utterance classified",
		"session_id", sess.ID,
		"emergency_type", out.Signal.EmergencyType,
		"severity", out.Signal.Severity,
		"confidence", out.Signal.Confidence,
		"degraded", out.Degraded,
		"latency_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (c *Classifier) toSignal(res *reasoner.Result, prior *store.EmergencySignal) *store.EmergencySignal {
	sig := &store.EmergencySignal{
		EmergencyType: normalizeType(res.String("emergency_type")),
		Severity:      normalizeSeverity(res.String("severity")),
		KeySymptoms:   res.Strings("key_symptoms"),
		Confidence:    clamp(res.Float("confidence")),
		Summary:       res.String("summary"),
	}
	if sig.Confidence < c.threshold {
		sig.EmergencyType = store.EmergencyUnclear
	}

	// A restated description refines the prior signal instead of replacing it.
	if prior != nil && !prior.IsUnclear() && (sig.EmergencyType == prior.EmergencyType || sig.IsUnclear()) {
		sig.KeySymptoms = mergeSymptoms(prior.KeySymptoms, sig.KeySymptoms)
		if sig.Severity.Rank() < prior.Severity.Rank() && sig.EmergencyType == prior.EmergencyType {
			sig.Severity = prior.Severity
		}
	}
	return sig
}

// Conflicts reports whether next materially contradicts prev: a different
// emergency type or a severity at least two levels apart.
func Conflicts(prev, next *store.EmergencySignal) bool {
	if prev == nil || next == nil || prev.IsUnclear() || next.IsUnclear() {
		return false
	}
	if prev.EmergencyType != next.EmergencyType {
		return true
	}
	diff := prev.Severity.Rank() - next.Severity.Rank()
	return prev.Severity.Rank() > 0 && next.Severity.Rank() > 0 && (diff >= 2 || diff <= -2)
}

func buildContext(sess *store.Session) map[string]any {
	ctx := map[string]any{
		"emergency_types": reasoner.EmergencyTypes,
	}
	if sess.Signal != nil {
		ctx["prior_signal"] = map[string]any{
			"emergency_type": sess.Signal.EmergencyType,
			"severity":       sess.Signal.Severity,
			"key_symptoms":   sess.Signal.KeySymptoms,
			"confidence":     sess.Signal.Confidence,
		}
	}
	if len(sess.Facts) > 0 {
		ctx["facts"] = sess.Facts
	}
	return ctx
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.NewReplacer(" ", "_", "-", "_").Replace(t)
	if t == "" {
		return store.EmergencyUnclear
	}
	return t
}

func normalizeSeverity(s string) store.Severity {
	sev := store.Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return store.SeverityModerate
	}
	return sev
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func mergeSymptoms(prior, next []string) []string {
	seen := make(map[string]bool, len(prior)+len(next))
	out := make([]string, 0, len(prior)+len(next))
	for _, list := range [][]string{prior, next} {
		for _, s := range list {
			key := strings.ToLower(s)
			if s == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

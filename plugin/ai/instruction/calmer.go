package instruction

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/store"
)

// DefaultReassurance is used when the Reasoner cannot phrase one.
const DefaultReassurance = "You're doing well. Stay with them."

// Calmer produces the grounding utterance paired with each delivered step.
type Calmer struct {
	reasoner reasoner.Reasoner
}

// NewCalmer creates a calmer.
func NewCalmer(r reasoner.Reasoner) *Calmer {
	return &Calmer{reasoner: r}
}

// Soothe never blocks step delivery: any failure yields DefaultReassurance.
func (c *Calmer) Soothe(ctx context.Context, sess *store.Session, step *store.Step) string {
	if c == nil || c.reasoner == nil || step == nil {
		return DefaultReassurance
	}
	start := time.Now()
	res, err := c.reasoner.Reason(ctx, &reasoner.Request{
		Role: reasoner.RoleCalm,
		Context: map[string]any{
			"emergency_type": sess.EmergencyType(),
			"step_index":     sess.Procedure.IndexOf(step.ID),
			"step":           step.Instruction,
		},
	})
	if err != nil {
		slog.Warn("reassurance unavailable, using default",
			"session_id", sess.ID,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds())
		return DefaultReassurance
	}
	msg := res.String("message")
	if msg == "" {
		return DefaultReassurance
	}
	return msg
}

package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/observer"
	"github.com/hrygo/lifesaver/store"
)

// observedKinds maps EventLog entries to observer kinds. Unlisted types are
// not published.
var observedKinds = map[store.EventType]observer.Kind{
	store.EventClassification:        observer.KindClassification,
	store.EventClassificationChanged: observer.KindClassification,
	store.EventToolCall:              observer.KindToolCall,
	store.EventProcedureFallback:     observer.KindToolCall,
	store.EventStepDelivered:         observer.KindStepProgression,
	store.EventBranch:                observer.KindStepProgression,
	store.EventConfirmation:          observer.KindConfirmation,
	store.EventClarification:         observer.KindClarification,
	store.EventDegraded:              observer.KindDegraded,
}

// publish hands the turn's events to the emitter. It never blocks on observers.
func (o *Orchestrator) publish(ctx context.Context, sess *store.Session, events []store.Event, latency time.Duration) {
	status := string(sess.Status)
	for _, ev := range events {
		kind, ok := observedKinds[ev.Type]
		if !ok {
			continue
		}
		attrs := map[string]string{"event": string(ev.Type)}
		if ev.StepID != "" {
			attrs["step_id"] = ev.StepID
		}
		if ev.EmergencyType != "" {
			attrs["emergency_type"] = ev.EmergencyType
		}
		if ev.Severity != "" {
			attrs["severity"] = string(ev.Severity)
		}
		if ev.Condition != "" {
			attrs["condition"] = ev.Condition
		}
		if ev.Detail != "" {
			attrs["detail"] = ev.Detail
		}
		if kind == observer.KindClarification {
			attrs["clarifications"] = strconv.Itoa(sess.Clarifications)
			attrs["total_clarifications"] = strconv.Itoa(sess.TotalClarifications)
		}
		o.emitter.Emit(ctx, observer.Event{Kind: kind, SessionID: sess.ID, Status: status, Attrs: attrs})
	}

	if sess.Status.IsTerminal() {
		attrs := map[string]string{"emergency_type": sess.EmergencyType()}
		if last := sess.LastEvent(); last != nil && last.Type == store.EventSessionClosed {
			attrs["reason"] = last.Detail
		}
		o.emitter.Emit(ctx, observer.Event{Kind: observer.KindTermination, SessionID: sess.ID, Status: status, Attrs: attrs})
	}
	if latency > 0 {
		o.emitter.Emit(ctx, observer.Event{
			Kind:      observer.KindTurn,
			SessionID: sess.ID,
			Status:    status,
			Latency:   latency,
			Attrs:     map[string]string{"step": strconv.Itoa(sess.CurrentStep)},
		})
	}
}

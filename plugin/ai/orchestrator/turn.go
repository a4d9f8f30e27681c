package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/instruction"
	"github.com/hrygo/lifesaver/plugin/ai/lexicon"
	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/triage"
	"github.com/hrygo/lifesaver/store"
)

// turn accumulates the effects of one message against a session snapshot.
// Nothing is persisted until the orchestrator commits turn.commit.
type turn struct {
	sess     *store.Session
	msg      string
	commit   *store.Commit
	reply    string
	degraded bool
}

func newTurn(sess *store.Session, msg, turnID string) *turn {
	return &turn{
		sess: sess,
		msg:  msg,
		commit: &store.Commit{
			ExpectedVersion: sess.Version,
			TurnID:          turnID,
			Events: []store.Event{{
				Actor:       store.ActorUser,
				Type:        store.EventUtterance,
				Text:        msg,
				Medications: lexicon.MedicationsIn(msg),
			}},
		},
	}
}

func (t *turn) add(events ...store.Event) {
	t.commit.Events = append(t.commit.Events, events...)
}

// utterance is the user's message event, always first.
func (t *turn) utterance() *store.Event {
	return &t.commit.Events[0]
}

// view is the session as it will look once the pending commit is applied.
func (t *turn) view() *store.Session {
	v := *t.sess
	if t.commit.Signal != nil {
		v.Signal = t.commit.Signal
	}
	if t.commit.Procedure != nil {
		v.Procedure = t.commit.Procedure
		v.CurrentStep = store.StepNone
	}
	if t.commit.Step != nil {
		v.CurrentStep = *t.commit.Step
	}
	return &v
}

func (t *turn) degrade(actor store.Actor, cause error) {
	t.degraded = true
	detail := "reasoner unavailable"
	if cause != nil {
		detail = cause.Error()
	}
	t.add(store.Event{Actor: actor, Type: store.EventDegraded, Detail: detail})
}

func (t *turn) addFacts(facts map[string]string) {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(facts[k])
		if k == "" || v == "" || t.sess.Facts[k] == v {
			continue
		}
		if t.commit.Facts == nil {
			t.commit.Facts = map[string]string{}
		}
		t.commit.Facts[k] = v
		t.add(store.Event{Actor: store.ActorSystem, Type: store.EventFactRecorded, Detail: k + "=" + v})
	}
}

func (t *turn) apply(tr instruction.Transition) {
	t.add(tr.Events...)
	step := tr.Step
	t.commit.Step = &step
	t.commit.Status = tr.Status
	t.commit.CloseReason = tr.Reason
	t.commit.Clarify = tr.Clarify || tr.Count
	if tr.ResetClarifications {
		t.commit.ResetClarifications = true
	}
}

// finish appends the emergency services notice after a collaborator failure
// and records the reply for idempotent replays.
func (t *turn) finish() {
	if t.degraded && !strings.Contains(t.reply, instruction.EmergencyServicesNotice) {
		t.reply += "\n\n" + instruction.EmergencyServicesNotice
	}
	t.reply = strings.TrimSpace(t.reply)
	t.commit.Reply = t.reply
}

// classify runs the classifier on the message and moves the session toward a
// bound procedure, or asks for clarification.
func (o *Orchestrator) classify(ctx context.Context, t *turn) error {
	res, err := o.classifier.Classify(ctx, t.sess, t.msg)
	if err != nil {
		return err
	}
	if res.Degraded {
		t.degrade(store.ActorClassifier, res.Cause)
	}
	sig, prior := res.Signal, t.sess.Signal
	t.utterance().Symptoms = sig.KeySymptoms
	t.add(store.Event{
		Actor:         store.ActorClassifier,
		Type:          store.EventClassification,
		EmergencyType: sig.EmergencyType,
		Severity:      sig.Severity,
		Symptoms:      sig.KeySymptoms,
		Detail:        fmt.Sprintf("confidence=%.2f", sig.Confidence),
	})
	t.addFacts(res.Facts)

	if sig.IsUnclear() {
		// Never act on a guess; a clear prior signal is kept.
		if prior.IsUnclear() {
			t.commit.Signal = sig
		}
		status := store.StatusClassifying
		if t.sess.Step() != nil {
			status = store.StatusAwaitingConfirmation
		}
		o.respond(ctx, t, o.loop.Clarify(t.sess, status, "classification unclear"), "")
		return nil
	}

	if triage.Conflicts(prior, sig) {
		t.add(store.Event{
			Actor:         store.ActorClassifier,
			Type:          store.EventClassificationChanged,
			EmergencyType: sig.EmergencyType,
			Severity:      sig.Severity,
			Detail:        fmt.Sprintf("%s/%s -> %s/%s", prior.EmergencyType, prior.Severity, sig.EmergencyType, sig.Severity),
		})
		slog.Info("classification changed",
			"session_id", t.sess.ID,
			"from", prior.EmergencyType,
			"to", sig.EmergencyType)
	}
	t.commit.Signal = sig

	// Same emergency after a distress signal: continue where the user was.
	if t.sess.Step() != nil && t.sess.Procedure.EmergencyType == sig.EmergencyType {
		o.respond(ctx, t, o.loop.Worsening(t.sess), "")
		return nil
	}
	return o.bind(ctx, t, sig)
}

// bind fetches and binds the procedure for sig, falling back to the generic
// procedure when none is available.
func (o *Orchestrator) bind(ctx context.Context, t *turn, sig *store.EmergencySignal) error {
	proc, err := o.fetch(ctx, t, sig.EmergencyType)
	if err != nil {
		return err
	}
	t.commit.Procedure = proc
	t.add(store.Event{
		Actor:         store.ActorLookup,
		Type:          store.EventProcedureBound,
		EmergencyType: proc.EmergencyType,
		Detail:        proc.Title,
	})
	tr := o.loop.Start(proc)
	o.respond(ctx, t, tr, "")
	if tr.Deliver {
		t.reply = instruction.IntroText(proc) + "\n\n" + t.reply
	}
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, t *turn, emergencyType string) (*store.Procedure, error) {
	start := time.Now()
	proc, err := o.lookup.GetProtocol(ctx, emergencyType)
	t.add(store.Event{
		Actor:         store.ActorLookup,
		Type:          store.EventToolCall,
		EmergencyType: emergencyType,
		Detail:        fmt.Sprintf("lookup_protocol(%s)", emergencyType),
	})
	if err == nil {
		if len(proc.Steps) == 0 {
			err = fmt.Errorf("protocol %q has no steps", emergencyType)
		} else {
			err = o.matcher.Validate(proc)
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("protocol unavailable, using fallback procedure",
			"session_id", t.sess.ID,
			"emergency_type", emergencyType,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds())
		t.add(store.Event{
			Actor:         store.ActorLookup,
			Type:          store.EventProcedureFallback,
			EmergencyType: emergencyType,
			Detail:        err.Error(),
		})
		return protocol.Fallback(emergencyType), nil
	}
	slog.Debug("protocol fetched",
		"session_id", t.sess.ID,
		"emergency_type", emergencyType,
		"steps", len(proc.Steps),
		"latency_ms", time.Since(start).Milliseconds())
	return proc, nil
}

// confirm interprets a reply to the current step.
func (o *Orchestrator) confirm(ctx context.Context, t *turn) error {
	in := o.interpreter.Interpret(ctx, t.sess, t.msg)
	if in.Degraded {
		t.degrade(store.ActorInstructor, in.Cause)
	}
	u := t.utterance()
	u.Symptoms = in.Symptoms
	u.Medications = in.Medications
	t.addFacts(in.Facts)

	tr := o.loop.Next(t.sess, in)
	if tr.Reclassify {
		return o.classify(ctx, t)
	}
	rephrase := ""
	if !in.Degraded {
		rephrase = in.Message
	}
	o.respond(ctx, t, tr, rephrase)
	return nil
}

// respond applies tr and renders the user-facing reply.
func (o *Orchestrator) respond(ctx context.Context, t *turn, tr instruction.Transition, rephrase string) {
	t.apply(tr)
	switch {
	case tr.Status == store.StatusEscalated:
		t.reply = instruction.EscalationText(tr.Reason)
	case tr.Status == store.StatusResolved:
		condition := ""
		for _, ev := range tr.Events {
			if ev.Type == store.EventStopCondition {
				condition = ev.Condition
			}
		}
		t.reply = instruction.ResolutionText(condition)
	case tr.Clarify:
		t.reply = instruction.ClarifyText(t.view().Step(), rephrase)
	case tr.Deliver:
		o.deliver(ctx, t)
	}
}

// deliver renders the current step verbatim, paired with a reassurance
// unless the Reasoner already failed this turn.
func (o *Orchestrator) deliver(ctx context.Context, t *turn) {
	v := t.view()
	step := v.Step()
	if t.degraded {
		t.reply = instruction.StepText(step, "")
		return
	}
	reassurance := o.calmer.Soothe(ctx, v, step)
	t.add(store.Event{
		Actor:  store.ActorCalmer,
		Type:   store.EventReassurance,
		Text:   reassurance,
		StepID: step.ID,
	})
	t.reply = instruction.StepText(step, reassurance)
}

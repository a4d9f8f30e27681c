package instruction

import (
	"github.com/hrygo/lifesaver/plugin/ai/timeout"
	"github.com/hrygo/lifesaver/store"
)

// Transition is the outcome of one step of the instruction state machine.
// It is computed from a session snapshot and applied by the caller in one commit.
type Transition struct {
	Status store.Status
	// Step is the step index after the transition.
	Step int
	// Deliver is set when the instruction at Step must be sent to the user.
	Deliver bool
	// Clarify is set when the current step is re-emitted with a rephrase.
	Clarify bool
	// Count is set when a delivery still counts toward the clarification cap.
	Count bool
	// Reclassify is set when the emergency may have changed category.
	Reclassify bool
	// ResetClarifications is set on forward progress.
	ResetClarifications bool
	// Reason explains a terminal transition.
	Reason string
	Events []store.Event
}

// Terminal reports whether the transition closes the session.
func (t Transition) Terminal() bool {
	return t.Status.IsTerminal()
}

// Loop computes transitions. It holds no per-session state: everything needed
// to resume a session lives in the persisted Session.
type Loop struct {
	clarificationCap int
}

// NewLoop creates a loop. A non-positive cap uses the default.
func NewLoop(clarificationCap int) *Loop {
	if clarificationCap <= 0 {
		clarificationCap = timeout.DefaultClarificationCap
	}
	return &Loop{clarificationCap: clarificationCap}
}

// ClarificationCap returns the number of consecutive clarifications tolerated.
func (l *Loop) ClarificationCap() int {
	return l.clarificationCap
}

// Start binds a freshly fetched procedure at step 0.
func (l *Loop) Start(proc *store.Procedure) Transition {
	if len(proc.Steps) == 0 {
		return Transition{
			Status: store.StatusEscalated,
			Step:   store.StepNone,
			Reason: "procedure has no steps",
			Events: []store.Event{{Actor: store.ActorSystem, Type: store.EventEscalation, Detail: "procedure has no steps"}},
		}
	}
	return Transition{
		Status:              store.StatusAwaitingConfirmation,
		Step:                0,
		Deliver:             true,
		ResetClarifications: true,
		Events:              []store.Event{deliveredEvent(proc, 0)},
	}
}

// Resume re-delivers the current step without counting a clarification.
func (l *Loop) Resume(sess *store.Session) Transition {
	if sess.Step() == nil {
		return l.Clarify(sess, store.StatusClassifying, "no step bound")
	}
	return Transition{
		Status:  store.StatusAwaitingConfirmation,
		Step:    sess.CurrentStep,
		Deliver: true,
		Events:  []store.Event{deliveredEvent(sess.Procedure, sess.CurrentStep)},
	}
}

// Worsening re-delivers the current step after a distress reply that did not
// change the emergency. Repeated worsening counts toward the clarification
// cap and escalates once it is exceeded.
func (l *Loop) Worsening(sess *store.Session) Transition {
	step := sess.Step()
	if step == nil {
		return l.Clarify(sess, store.StatusClassifying, "no step bound")
	}
	if sess.Clarifications+1 > l.clarificationCap {
		return escalation(sess.CurrentStep, "condition keeps worsening")
	}
	return Transition{
		Status:  store.StatusAwaitingConfirmation,
		Step:    sess.CurrentStep,
		Deliver: true,
		Count:   true,
		Events: []store.Event{
			{
				Actor:     store.ActorInstructor,
				Type:      store.EventClarification,
				Detail:    "condition worsening",
				StepID:    step.ID,
				StepIndex: store.IntPtr(sess.CurrentStep),
			},
			deliveredEvent(sess.Procedure, sess.CurrentStep),
		},
	}
}

// Clarify re-prompts the user, or escalates once the cap is exceeded.
// status is where the session waits for the next reply.
func (l *Loop) Clarify(sess *store.Session, status store.Status, reason string) Transition {
	if sess.Clarifications+1 > l.clarificationCap {
		return escalation(sess.CurrentStep, "repeated clarification exceeded")
	}
	ev := store.Event{
		Actor:  store.ActorInstructor,
		Type:   store.EventClarification,
		Detail: reason,
	}
	if step := sess.Step(); step != nil {
		ev.StepID, ev.StepIndex = step.ID, store.IntPtr(sess.CurrentStep)
	}
	return Transition{
		Status:  status,
		Step:    sess.CurrentStep,
		Clarify: true,
		Events:  []store.Event{ev},
	}
}

func escalation(step int, reason string) Transition {
	return Transition{
		Status: store.StatusEscalated,
		Step:   step,
		Reason: reason,
		Events: []store.Event{{
			Actor:  store.ActorSystem,
			Type:   store.EventEscalation,
			Detail: reason,
		}},
	}
}

// Next computes the transition for a reply received in AWAITING_CONFIRMATION.
func (l *Loop) Next(sess *store.Session, in *Interpretation) Transition {
	step := sess.Step()
	if step == nil {
		return l.Clarify(sess, sess.Status, "no step bound")
	}

	switch in.Kind {
	case KindStop:
		return Transition{
			Status: store.StatusResolved,
			Step:   sess.CurrentStep,
			Reason: "stop condition: " + in.Condition,
			Events: []store.Event{{
				Actor:     store.ActorInstructor,
				Type:      store.EventStopCondition,
				Condition: in.Condition,
				StepID:    step.ID,
				StepIndex: store.IntPtr(sess.CurrentStep),
			}},
		}

	case KindBranch:
		return l.Jump(sess, in.Condition, in.Target)

	case KindConfirm:
		return l.Advance(sess)

	case KindDistress:
		return Transition{
			Status:     store.StatusClassifying,
			Step:       sess.CurrentStep,
			Reclassify: true,
		}
	}

	if in.Degraded {
		// A reply left uninterpreted by a Reasoner failure repeats the
		// step without counting a clarification.
		return l.Resume(sess)
	}
	return l.Clarify(sess, store.StatusAwaitingConfirmation, "ambiguous reply")
}

// Advance records the confirmation of the current step and moves to the next
// one. Confirming the last step resolves the session.
func (l *Loop) Advance(sess *store.Session) Transition {
	step, proc := sess.Step(), sess.Procedure
	confirmed := store.Event{
		Actor:     store.ActorUser,
		Type:      store.EventConfirmation,
		Text:      step.Instruction,
		StepID:    step.ID,
		StepIndex: store.IntPtr(sess.CurrentStep),
	}
	next := sess.CurrentStep + 1
	if !proc.ValidIndex(next) {
		return Transition{
			Status:              store.StatusResolved,
			Step:                sess.CurrentStep,
			ResetClarifications: true,
			Reason:              "procedure completed",
			Events:              []store.Event{confirmed},
		}
	}
	return Transition{
		Status:              store.StatusAwaitingConfirmation,
		Step:                next,
		Deliver:             true,
		ResetClarifications: true,
		Events:              []store.Event{confirmed, deliveredEvent(proc, next)},
	}
}

// Jump follows a branch to target. An out of range target is treated as an
// unrecognized reply so the step index never leaves the procedure.
func (l *Loop) Jump(sess *store.Session, condition string, target int) Transition {
	step, proc := sess.Step(), sess.Procedure
	if !proc.ValidIndex(target) {
		return l.Clarify(sess, store.StatusAwaitingConfirmation, "invalid branch target")
	}
	return Transition{
		Status:              store.StatusAwaitingConfirmation,
		Step:                target,
		Deliver:             true,
		ResetClarifications: true,
		Events: []store.Event{
			{
				Actor:     store.ActorInstructor,
				Type:      store.EventBranch,
				Condition: condition,
				StepID:    step.ID,
				StepIndex: store.IntPtr(sess.CurrentStep),
				Detail:    proc.Steps[target].ID,
			},
			deliveredEvent(proc, target),
		},
	}
}

func deliveredEvent(proc *store.Procedure, idx int) store.Event {
	step := proc.Steps[idx]
	return store.Event{
		Actor:     store.ActorInstructor,
		Type:      store.EventStepDelivered,
		Text:      step.Instruction,
		StepID:    step.ID,
		StepIndex: store.IntPtr(idx),
	}
}

package instruction

import (
	"fmt"
	"strings"

	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/store"
)

// EmergencyServicesNotice is appended to every reply once a session is
// escalated or the collaborators keep failing.
const EmergencyServicesNotice = "If you have not already, call your local emergency number (such as 911 or 112) now and follow the dispatcher's instructions."

// CallFirstNotice opens procedures whose first step is not calling for help.
const CallFirstNotice = "First, call emergency services now, or have someone nearby call."

// IntroText introduces a freshly bound procedure.
func IntroText(proc *store.Procedure) string {
	intro := "Let's go through this together: " + proc.Title + "."
	if len(proc.Steps) > 0 && proc.Steps[0].ID != protocol.StepCallEMS {
		intro += " " + CallFirstNotice
	}
	return intro
}

// StepText renders a delivered step, optionally followed by a reassurance.
// The instruction itself is always verbatim.
func StepText(step *store.Step, reassurance string) string {
	if step == nil {
		return reassurance
	}
	if reassurance == "" {
		return step.Instruction
	}
	return step.Instruction + "\n\n" + reassurance
}

// ClarifyText re-emits the current step. rephrase is the Reasoner's wording,
// used only when non-empty; otherwise a fixed template is used.
func ClarifyText(step *store.Step, rephrase string) string {
	if step == nil {
		return ClassificationPrompt(rephrase)
	}
	if rephrase = strings.TrimSpace(rephrase); rephrase != "" {
		return fmt.Sprintf("%s\n\nThe step is: %s", rephrase, step.Instruction)
	}
	return fmt.Sprintf("I didn't catch that. %s Tell me \"done\" when it's done, or tell me what changed.", step.Instruction)
}

// ClassificationPrompt asks the user to describe the emergency again.
func ClassificationPrompt(rephrase string) string {
	if rephrase = strings.TrimSpace(rephrase); rephrase != "" {
		return rephrase
	}
	return "I need a little more detail to help. What is happening to the person right now? Are they awake, and are they breathing?"
}

// EscalationText is the reply of an escalated session.
func EscalationText(reason string) string {
	if reason == "" {
		return "I can't guide you safely any further. " + EmergencyServicesNotice
	}
	return fmt.Sprintf("I can't guide you safely any further (%s). %s", reason, EmergencyServicesNotice)
}

// ResolutionText is the reply of a resolved session.
func ResolutionText(condition string) string {
	if condition == protocol.PredicateEMTArrived {
		return "Good. Let the responders take over and tell them what you did. I've prepared a summary for them."
	}
	return "You've completed every step. Stay with them until help arrives. I've prepared a summary for the responders."
}

package protocol

import (
	"github.com/hrygo/lifesaver/plugin/ai/lexicon"
	"github.com/hrygo/lifesaver/store"
)

// Predicates shared across protocols.
const (
	PredicateEMTArrived         = "emt_arrived"
	PredicateObjectExpelled     = "object_expelled"
	PredicateBecameUnresponsive = "became_unresponsive"
	PredicateAEDAvailable       = "aed_available"
	PredicateNoAutoInjector     = "no_auto_injector"
)

// StepCallEMS is the id of the step that asks the user to call for help.
const StepCallEMS = "call_ems"

var emtArrived = store.Condition{
	Predicate: PredicateEMTArrived,
	Phrases:   lexicon.ResponderArrival,
	When:      `reply.matches("\\b(ambulance|paramedics?|emts?|responders)\\b.*((\\b(is|are|got)|'s|'re) here|\\barrived)\\b") && !reply.matches("\\b(not|never|yet|where|when)\\b|n't|\\?")`,
}

var builtinProtocols = []*store.Procedure{
	{
		EmergencyType: "cardiac_arrest",
		Title:         "Suspected Cardiac Arrest (Adult)",
		Steps: []store.Step{
			{ID: "call_ems", Instruction: "Call emergency services immediately (or ask someone nearby to call)."},
			{ID: "position", Instruction: "Place the person on their back on a firm, flat surface."},
			{ID: "compressions", Instruction: "Begin chest compressions at a rate of 100 to 120 per minute.", Branches: []store.Condition{aedAvailable}},
			{ID: "push_hard", Instruction: "Push hard and fast in the center of the chest, allowing full recoil between compressions.", Branches: []store.Condition{aedAvailable}},
			{ID: "aed", Instruction: "If an AED is available, have someone bring it, turn it on and follow its prompts."},
		},
		Notes: []string{
			"If you are alone, call emergency services on speaker while starting compressions.",
			"Do not stop compressions unless you are too exhausted, someone takes over, or a medical professional tells you to stop.",
		},
		StopConditions: []store.Condition{emtArrived},
	},
	{
		EmergencyType: "choking",
		Title:         "Severe Choking (Adult)",
		Steps: []store.Step{
			{ID: "ask", Instruction: "Ask the person if they are choking and whether they can speak or cough."},
			{ID: "stand_behind", Instruction: "If they cannot cough, speak, or breathe, stand behind them.", Branches: []store.Condition{becameUnresponsive}},
			{ID: "thrusts", Instruction: "Perform abdominal thrusts (Heimlich maneuver) until the object is expelled.", Branches: []store.Condition{becameUnresponsive}},
			{ID: "unresponsive_cpr", Instruction: "If the person becomes unresponsive, gently lower them to the ground and begin CPR."},
		},
		Notes: []string{
			"If they can cough or speak, encourage them to keep coughing.",
			"Do not perform blind finger sweeps in the mouth.",
		},
		StopConditions: []store.Condition{
			{
				Predicate: PredicateObjectExpelled,
				Phrases:   []string{"it came out", "it's out", "came out", "coughed it up", "spit it out", "can breathe now", "breathing again"},
				When:      `reply.matches("\\b(object|food|piece)\\b.*\\b(is out|came out|came up)\\b")`,
			},
			emtArrived,
		},
	},
	{
		EmergencyType: "possible_stroke",
		Title:         "Possible Stroke (FAST Assessment)",
		Steps: []store.Step{
			{ID: "face", Instruction: "Check FACE: ask them to smile. Is one side drooping?"},
			{ID: "arms", Instruction: "Check ARMS: ask them to raise both arms. Does one drift downward?"},
			{ID: "speech", Instruction: "Check SPEECH: ask them to repeat a simple phrase. Is speech slurred or strange?"},
			{ID: "time", Instruction: "Note the time the symptoms started."},
			{ID: "call_ems", Instruction: "Call emergency services immediately and describe all symptoms and when they started."},
		},
		Notes: []string{
			"Do not give them anything to eat or drink.",
			"Remain with them and monitor breathing and responsiveness.",
		},
		StopConditions: []store.Condition{emtArrived},
	},
	{
		EmergencyType: "anaphylaxis",
		Title:         "Suspected Anaphylaxis (Severe Allergic Reaction)",
		Steps: []store.Step{
			{
				ID:          "signs",
				Instruction: "Check for signs: swelling of lips or face, difficulty breathing, hives, dizziness.",
			},
			{
				ID:          "auto_injector",
				Instruction: "If an epinephrine auto-injector (EpiPen) is available, help the person use it.",
				Branches: []store.Condition{{
					Predicate: PredicateNoAutoInjector,
					Phrases:   []string{"no epipen", "don't have an epipen", "don't have one", "no auto-injector", "there isn't one"},
					Target:    "call_ems",
				}},
			},
			{ID: "call_ems", Instruction: "Call emergency services immediately."},
			{ID: "lie_down", Instruction: "Have the person lie down and raise their legs if they feel faint, unless this makes breathing harder."},
			{ID: "second_dose", Instruction: "If symptoms persist and a second auto-injector is available, it may be used per its instructions, usually after 5 to 15 minutes."},
		},
		Notes: []string{
			"Even if symptoms improve after epinephrine, medical evaluation is required.",
			"Do not make the person walk or stand if they feel weak or dizzy.",
		},
		StopConditions: []store.Condition{emtArrived},
	},
	{
		EmergencyType: "unconscious_but_breathing",
		Title:         "Unconscious but Breathing (Recovery Position)",
		Steps: []store.Step{
			{ID: "call_ems", Instruction: "Call emergency services and report the situation."},
			{ID: "check_breathing", Instruction: "Check breathing: look for chest rise, listen near the nose and mouth, feel for air."},
			{ID: "recovery_position", Instruction: "If breathing is normal, roll the person onto their side into the recovery position."},
			{ID: "airway", Instruction: "Tilt the head slightly back to keep the airway open."},
			{ID: "recheck", Instruction: "Keep re-checking their breathing until help arrives."},
		},
		Notes: []string{
			"If at any point breathing stops or becomes abnormal, begin CPR.",
			"If a spinal injury is suspected, move the person carefully.",
		},
		StopConditions: []store.Condition{emtArrived},
	},
}

var aedAvailable = store.Condition{
	Predicate: PredicateAEDAvailable,
	Phrases:   []string{"aed is here", "got the aed", "have an aed", "defibrillator is here", "found an aed"},
	Target:    "aed",
}

var becameUnresponsive = store.Condition{
	Predicate: PredicateBecameUnresponsive,
	Phrases:   []string{"passed out", "unresponsive", "went limp", "collapsed", "not responding", "fell unconscious"},
	When:      `reply.matches("\\b(went|gone|is|going) limp\\b") || reply.matches("\\b(not|isn't|stopped|no longer) respond(ing)?\\b")`,
	Target:    "unresponsive_cpr",
}

var fallbackProtocol = &store.Procedure{
	EmergencyType: "unknown",
	Title:         "General Emergency",
	Steps: []store.Step{
		{ID: "call_ems", Instruction: "Call emergency services now and put the phone on speaker."},
		{ID: "stay", Instruction: "Stay with the person and keep them still and comfortable."},
		{ID: "monitor", Instruction: "Watch their breathing and responsiveness, and tell me if anything changes."},
	},
	Notes:          []string{"Follow the dispatcher's instructions over anything else."},
	StopConditions: []store.Condition{emtArrived},
	Fallback:       true,
}

package store

import "time"

// Actor identifies who produced an event.
type Actor string

const (
	ActorUser       Actor = "user"
	ActorClassifier Actor = "classifier"
	ActorLookup     Actor = "lookup"
	ActorInstructor Actor = "instructor"
	ActorCalmer     Actor = "calmer"
	ActorSystem     Actor = "system"
)

// EventType enumerates EventLog entries.
type EventType string

const (
	EventUtterance             EventType = "user_utterance"
	EventClassification        EventType = "classification"
	EventClassificationChanged EventType = "classification_changed"
	EventClarification         EventType = "clarification"
	EventToolCall              EventType = "tool_call"
	EventProcedureFallback     EventType = "procedure_fallback"
	EventProcedureBound        EventType = "procedure_bound"
	EventStepDelivered         EventType = "step_delivered"
	EventConfirmation          EventType = "confirmation"
	EventBranch                EventType = "branch_taken"
	EventStopCondition         EventType = "stop_condition"
	EventReassurance           EventType = "reassurance"
	EventFactRecorded          EventType = "fact_recorded"
	EventDegraded              EventType = "degraded"
	EventEscalation            EventType = "escalation"
	EventSessionClosed         EventType = "session_closed"
)

// Event is one entry of the append-only EventLog.
//
// Seq and Timestamp are assigned by the Store on append.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Type      EventType `json:"type"`
	Text      string    `json:"text,omitempty"`

	StepID        string   `json:"step_id,omitempty"`
	StepIndex     *int     `json:"step_index,omitempty"`
	EmergencyType string   `json:"emergency_type,omitempty"`
	Severity      Severity `json:"severity,omitempty"`
	Symptoms      []string `json:"symptoms,omitempty"`
	Medications   []string `json:"medications,omitempty"`
	Condition     string   `json:"condition,omitempty"`
	Detail        string   `json:"detail,omitempty"`
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}

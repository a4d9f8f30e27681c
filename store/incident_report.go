package store

import "time"

// TimelineEntry is one (timestamp, actor, action) triple of a report.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Action    string    `json:"action"`
}

// IncidentReport is the handoff document for responders. Written once per session.
type IncidentReport struct {
	SessionID          string            `json:"session_id"`
	StartedAt          time.Time         `json:"started_at"`
	EndedAt            time.Time         `json:"ended_at"`
	FinalStatus        Status            `json:"final_status"`
	EmergencyType      string            `json:"emergency_type"`
	Severity           Severity          `json:"severity,omitempty"`
	Timeline           []TimelineEntry   `json:"timeline"`
	Symptoms           []string          `json:"symptoms"`
	ActionsTaken       []string          `json:"actions_taken"`
	Medications        []string          `json:"medications"`
	Facts              map[string]string `json:"facts,omitempty"`
	ClarificationCount int               `json:"clarification_count"`
	FallbackProcedure  bool              `json:"fallback_procedure,omitempty"`
	// Narrative is optional prose for the responder. Empty when unavailable.
	Narrative string    `json:"narrative,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

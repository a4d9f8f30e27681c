package reasoner

import "encoding/json"

type rolePrompt struct {
	system      string
	schema      *jsonSchema
	textField   string
	maxTokens   int
	temperature float32
}

// EmergencyTypes lists the classifications the classify role may return besides "unclear".
var EmergencyTypes = []string{
	"cardiac_arrest",
	"choking",
	"possible_stroke",
	"anaphylaxis",
	"unconscious_but_breathing",
	"other",
}

// Intents lists the reply interpretations of the instruct role.
var Intents = []string{"confirm", "branch", "stop", "distress", "ambiguous"}

var rolePrompts = map[Role]rolePrompt{
	RoleClassify: {
		system:      classifySystemPrompt,
		schema:      classifySchema,
		maxTokens:   300,
		temperature: 0,
	},
	RoleInstruct: {
		system:      instructSystemPrompt,
		schema:      instructSchema,
		maxTokens:   300,
		temperature: 0,
	},
	RoleCalm: {
		system:      calmSystemPrompt,
		textField:   "message",
		maxTokens:   80,
		temperature: 0.4,
	},
	RoleReport: {
		system:      reportSystemPrompt,
		textField:   "narrative",
		maxTokens:   600,
		temperature: 0.2,
	},
}

const classifySystemPrompt = `You are an emergency triage assistant.

Read the user's description of the situation and decide what type of emergency it is.
The context may contain a prior classification and known facts; refine them rather than discard them.

Return ONLY a JSON object:
- emergency_type: one of cardiac_arrest, choking, possible_stroke, anaphylaxis, unconscious_but_breathing, other, unclear
- severity: one of low, moderate, high, critical
- confidence: number between 0 and 1
- summary: short factual summary
- key_symptoms: red-flag symptoms mentioned, most important first
- facts: durable facts about the patient or caller as {key, value} pairs (e.g. patient: father, knows_cpr: no)

Use "unclear" when the description is not enough to act on.`

const instructSystemPrompt = `You are a calm, clear emergency instruction assistant.

The context contains the emergency type, the current step, its branch and stop conditions, and the user's latest reply.

Decide what the reply means:
- stop: a stop condition is met (e.g. responders arrived)
- branch: one of the listed branch conditions holds; put its predicate in condition
- confirm: the user did or completed the current step
- distress: the situation got worse or changed but no branch matches
- ambiguous: anything else

Also write message: the current or next step phrased in one or two short sentences.
Do NOT add medical procedures that are not in the provided steps.
Report symptoms and medications the user mentions, and durable facts as {key, value} pairs.`

const calmSystemPrompt = `You are a brief, supportive emergency coach.

Respond with ONE OR TWO sentences of calm reassurance that encourage the user to keep going with the instructions.
Do not give new medical instructions. Focus only on emotional support.`

const reportSystemPrompt = `You summarize an emergency for paramedics (EMTs).

The context contains a time-ordered list of events and the structured facts of the session.
Produce a concise, factual handoff: who is affected, main symptoms, actions taken in order,
medications mentioned, and approximate timing. Use short bullet points. Avoid speculation.`

var factsSchema = &jsonSchema{
	Type: "array",
	Items: &jsonSchema{
		Type: "object",
		Properties: map[string]*jsonSchema{
			"key":   {Type: "string"},
			"value": {Type: "string"},
		},
		Required:             []string{"key", "value"},
		AdditionalProperties: false,
	},
	Description: "Durable facts about the patient or caller",
}

var stringList = &jsonSchema{Type: "array", Items: &jsonSchema{Type: "string"}}

// classifySchema uses enums to constrain emergency types and prevent hallucination.
var classifySchema = &jsonSchema{
	Type: "object",
	Properties: map[string]*jsonSchema{
		"emergency_type": {
			Type:        "string",
			Enum:        append(append([]string{}, EmergencyTypes...), "unclear"),
			Description: "The classified emergency type",
		},
		"severity": {
			Type: "string",
			Enum: []string{"low", "moderate", "high", "critical"},
		},
		"confidence": {
			Type:        "number",
			Description: "Confidence score between 0 and 1",
		},
		"summary":      {Type: "string"},
		"key_symptoms": stringList,
		"facts":        factsSchema,
	},
	Required:             []string{"emergency_type", "severity", "confidence", "summary", "key_symptoms", "facts"},
	AdditionalProperties: false,
}

var instructSchema = &jsonSchema{
	Type: "object",
	Properties: map[string]*jsonSchema{
		"intent": {
			Type: "string",
			Enum: Intents,
		},
		"condition": {
			Type:        "string",
			Description: "Predicate of the matched branch or stop condition, empty otherwise",
		},
		"message":     {Type: "string"},
		"symptoms":    stringList,
		"medications": stringList,
		"facts":       factsSchema,
	},
	Required:             []string{"intent", "condition", "message", "symptoms", "medications", "facts"},
	AdditionalProperties: false,
}

// jsonSchema implements json.Marshaler for OpenAI's JSON Schema format.
type jsonSchema struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*jsonSchema `json:"properties,omitempty"`
	Items                *jsonSchema            `json:"items,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Description          string                 `json:"description,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`
}

func (s *jsonSchema) MarshalJSON() ([]byte, error) {
	type alias jsonSchema
	return json.Marshal((*alias)(s))
}

package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/store"
)

func terminalSession(t *testing.T) *store.Session {
	t.Helper()
	proc, err := protocol.NewBuiltin().GetProtocol(context.Background(), "cardiac_arrest")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }
	closed := at(90)
	events := []store.Event{
		{Seq: 1, Timestamp: at(0), Actor: store.ActorUser, Type: store.EventUtterance, Text: "my dad isn't breathing"},
		{Seq: 2, Timestamp: at(1), Actor: store.ActorClassifier, Type: store.EventClassification, EmergencyType: "cardiac_arrest", Severity: store.SeverityCritical, Symptoms: []string{"isn't breathing"}},
		{Seq: 3, Timestamp: at(1), Actor: store.ActorSystem, Type: store.EventFactRecorded, Detail: "patient=dad"},
		{Seq: 4, Timestamp: at(2), Actor: store.ActorLookup, Type: store.EventProcedureBound, Detail: proc.Title},
		{Seq: 5, Timestamp: at(2), Actor: store.ActorInstructor, Type: store.EventStepDelivered, StepID: "call_ems", Text: proc.Steps[0].Instruction, StepIndex: store.IntPtr(0)},
		{Seq: 6, Timestamp: at(2), Actor: store.ActorCalmer, Type: store.EventReassurance, Text: "You're doing well."},
		{Seq: 7, Timestamp: at(30), Actor: store.ActorUser, Type: store.EventUtterance, Text: "done, I gave him aspirin"},
		{Seq: 8, Timestamp: at(30), Actor: store.ActorUser, Type: store.EventConfirmation, StepID: "call_ems", Text: proc.Steps[0].Instruction, Medications: []string{"aspirin"}},
		{Seq: 9, Timestamp: at(30), Actor: store.ActorInstructor, Type: store.EventStepDelivered, StepID: "position", Text: proc.Steps[1].Instruction, StepIndex: store.IntPtr(1)},
		{Seq: 10, Timestamp: at(90), Actor: store.ActorUser, Type: store.EventUtterance, Text: "The ambulance just arrived."},
		{Seq: 11, Timestamp: at(90), Actor: store.ActorInstructor, Type: store.EventStopCondition, Condition: "emt_arrived", StepID: "position"},
		{Seq: 12, Timestamp: at(90), Actor: store.ActorSystem, Type: store.EventSessionClosed, Detail: "stop condition: emt_arrived"},
	}
	return &store.Session{
		ID:                  "sess-report",
		CreatedAt:           base,
		LastActivityAt:      closed,
		ClosedAt:            &closed,
		Signal:              &store.EmergencySignal{EmergencyType: "cardiac_arrest", Severity: store.SeverityCritical, KeySymptoms: []string{"isn't breathing"}, Confidence: 0.85},
		Procedure:           proc,
		CurrentStep:         1,
		Status:              store.StatusResolved,
		Facts:               map[string]string{"patient": "dad"},
		Events:              events,
		TotalClarifications: 1,
	}
}

func TestDerive(t *testing.T) {
	sess := terminalSession(t)
	r := Derive(sess)

	assert.Equal(t, "sess-report", r.SessionID)
	assert.Equal(t, store.StatusResolved, r.FinalStatus)
	assert.Equal(t, "cardiac_arrest", r.EmergencyType)
	assert.Equal(t, store.SeverityCritical, r.Severity)
	assert.Equal(t, []string{"isn't breathing"}, r.Symptoms)
	assert.Equal(t, []string{"aspirin"}, r.Medications)
	assert.Equal(t, []string{
		"Call emergency services immediately (or ask someone nearby to call).",
		"Place the person on their back on a firm, flat surface. (in progress)",
	}, r.ActionsTaken)
	assert.Equal(t, map[string]string{"patient": "dad"}, r.Facts)
	assert.Equal(t, 1, r.ClarificationCount)
	assert.Equal(t, 90*time.Second, r.EndedAt.Sub(r.StartedAt))

	for _, e := range r.Timeline {
		assert.NotContains(t, e.Action, "doing well", "reassurances stay out of the timeline")
	}
	assert.Len(t, r.Timeline, 11)
	assert.Equal(t, "stopped: emt arrived", r.Timeline[9].Action)
}

func TestDerive_Deterministic(t *testing.T) {
	sess := terminalSession(t)
	assert.Equal(t, Derive(sess), Derive(sess.Clone()))
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("rejects open session", func(t *testing.T) {
		sess := terminalSession(t)
		sess.Status = store.StatusAwaitingConfirmation
		_, err := NewBuilder(reasoner.NewMockReasoner()).Build(ctx, sess)
		assert.ErrorIs(t, err, ErrSessionNotTerminal)
	})

	t.Run("adds narrative", func(t *testing.T) {
		mock := reasoner.NewMockReasoner()
		r, err := NewBuilder(mock, WithClock(func() time.Time { return now })).Build(ctx, terminalSession(t))
		require.NoError(t, err)
		assert.Contains(t, r.Narrative, "Suspected cardiac arrest.")
		assert.Contains(t, r.Narrative, "aspirin")
		assert.Equal(t, now, r.CreatedAt)
		assert.Equal(t, 1, mock.Calls(reasoner.RoleReport))
	})

	t.Run("narrative failure keeps structured fields", func(t *testing.T) {
		mock := reasoner.NewMockReasoner().Fail(reasoner.RoleReport, reasoner.ErrTimeout)
		r, err := NewBuilder(mock).Build(ctx, terminalSession(t))
		require.NoError(t, err)
		assert.Empty(t, r.Narrative)
		assert.Equal(t, []string{"aspirin"}, r.Medications)
	})

	t.Run("structured fields are stable across builds", func(t *testing.T) {
		b := NewBuilder(reasoner.NewMockReasoner().On(reasoner.RoleReport, func(_ context.Context, req *reasoner.Request) (*reasoner.Result, error) {
			return reasoner.NewResult(map[string]any{"narrative": time.Now().String()}), nil
		}), WithClock(func() time.Time { return now }))
		sess := terminalSession(t)
		first, err := b.Build(ctx, sess)
		require.NoError(t, err)
		second, err := b.Build(ctx, sess)
		require.NoError(t, err)
		first.Narrative, second.Narrative = "", ""
		assert.Equal(t, first, second)
	})
}

func TestRender(t *testing.T) {
	r := Derive(terminalSession(t))
	r.Narrative = "Adult male found not breathing."

	md := RenderMarkdown(r)
	assert.Contains(t, md, "# Incident Report")
	assert.Contains(t, md, "| Emergency | cardiac arrest |")
	assert.Contains(t, md, "## Summary\n\nAdult male found not breathing.")
	assert.Contains(t, md, "- aspirin")
	assert.Contains(t, md, "- **patient**: dad")
	assert.Contains(t, md, "| 12:01:30 | instructor | stopped: emt arrived |")

	html, err := RenderHTML(r)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Incident Report</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<li>aspirin</li>")
}

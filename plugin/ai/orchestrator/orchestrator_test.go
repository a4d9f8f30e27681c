package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lifesaver/plugin/ai/instruction"
	"github.com/hrygo/lifesaver/plugin/ai/metrics"
	"github.com/hrygo/lifesaver/plugin/ai/observer"
	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/plugin/ai/report"
	"github.com/hrygo/lifesaver/store"
	"github.com/hrygo/lifesaver/store/db/memory"
)

const calmPhrase = "Stay with me, you're doing great."

type fixture struct {
	orch     *Orchestrator
	store    *store.Store
	reasoner *reasoner.MockReasoner
}

func newFixture(t *testing.T, lookup protocol.Lookup, opts ...Option) *fixture {
	t.Helper()
	mock := reasoner.NewMockReasoner().On(reasoner.RoleCalm, func(context.Context, *reasoner.Request) (*reasoner.Result, error) {
		return reasoner.NewResult(map[string]any{"message": calmPhrase}), nil
	})
	if lookup == nil {
		lookup = protocol.NewBuiltin()
	}
	s := store.New(memory.NewDB())
	seq := 0
	opts = append([]Option{WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("sess-%d", seq)
	})}, opts...)
	orch, err := New(s, mock, lookup, Config{ClarificationCap: 3, LookupTimeout: 50 * time.Millisecond}, opts...)
	require.NoError(t, err)
	return &fixture{orch: orch, store: s, reasoner: mock}
}

func (f *fixture) turn(t *testing.T, sessionID, msg string) *TurnResponse {
	t.Helper()
	resp, err := f.orch.HandleTurn(context.Background(), &TurnRequest{SessionID: sessionID, Message: msg})
	require.NoError(t, err)
	return resp
}

func (f *fixture) session(t *testing.T, id string) *store.Session {
	t.Helper()
	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func countEvents(sess *store.Session, typ store.EventType) int {
	n := 0
	for _, ev := range sess.Events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestHandleTurn_CardiacArrestScenario(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.turn(t, "", "my dad isn't breathing")
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
	assert.Contains(t, resp.ReplyText, "Call emergency services immediately")
	assert.Contains(t, resp.ReplyText, calmPhrase)
	assert.Nil(t, resp.Report)
	assert.False(t, resp.Degraded)

	sess := f.session(t, resp.SessionID)
	require.NotNil(t, sess.Signal)
	assert.Equal(t, "cardiac_arrest", sess.Signal.EmergencyType)
	assert.Equal(t, store.SeverityCritical, sess.Signal.Severity)
	assert.Equal(t, "Suspected Cardiac Arrest (Adult)", sess.Procedure.Title)
	assert.Equal(t, 0, sess.CurrentStep)
	assert.Equal(t, "dad", sess.Facts["patient"])
	assert.Equal(t, 1, countEvents(sess, store.EventProcedureBound))
	assert.Equal(t, 1, countEvents(sess, store.EventToolCall))
}

func TestHandleTurn_StrokeScenario(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.turn(t, "", "My mom suddenly can't speak and one side of her face is drooping")
	assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
	assert.Contains(t, resp.ReplyText, "call emergency services")
	assert.Contains(t, resp.ReplyText, "FACE")

	sess := f.session(t, resp.SessionID)
	assert.Equal(t, "possible_stroke", sess.EmergencyType())
	assert.Equal(t, "mom", sess.Facts["patient"])
}

func TestHandleTurn_WalkToResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	resp := f.turn(t, id, "done, they're on the way")
	assert.Contains(t, resp.ReplyText, "Place the person on their back")
	assert.Equal(t, 1, f.session(t, id).CurrentStep)

	resp = f.turn(t, id, "The ambulance just arrived.")
	assert.Equal(t, store.StatusResolved, resp.Status)
	require.NotNil(t, resp.Report)
	assert.Equal(t, store.StatusResolved, resp.Report.FinalStatus)
	assert.Equal(t, "cardiac_arrest", resp.Report.EmergencyType)
	assert.Contains(t, resp.Report.ActionsTaken, "Call emergency services immediately (or ask someone nearby to call).")
	assert.Equal(t, 1, f.reasoner.Calls(reasoner.RoleReport))

	stored, err := f.store.GetReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resp.Report.Timeline, stored.Timeline)

	sess := f.session(t, id)
	assert.Equal(t, 1, sess.CurrentStep)
	assert.NotNil(t, sess.ClosedAt)
	assert.Equal(t, store.EventSessionClosed, sess.LastEvent().Type)

	_, err = f.orch.HandleTurn(ctx, &TurnRequest{SessionID: id, Message: "hello?"})
	assert.ErrorIs(t, err, store.ErrSessionClosed)
	assert.Equal(t, 1, f.reasoner.Calls(reasoner.RoleReport))
}

func TestHandleTurn_AmbiguousTwice(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID
	before := f.session(t, id)

	for i := 0; i < 2; i++ {
		resp := f.turn(t, id, "what do you mean?")
		assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.Contains(t, resp.ReplyText, "Call emergency services immediately")
	}

	after := f.session(t, id)
	assert.Equal(t, before.CurrentStep, after.CurrentStep)
	assert.Equal(t, before.Clarifications+2, after.Clarifications)
	assert.Equal(t, before.TotalClarifications+2, after.TotalClarifications)
	assert.Equal(t, 2, countEvents(after, store.EventClarification))
}

func TestHandleTurn_EscalatesAfterClarificationCap(t *testing.T) {
	t.Run("during a procedure", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.turn(t, "", "my dad isn't breathing").SessionID
		delivered := countEvents(f.session(t, id), store.EventStepDelivered)

		for i := 0; i < 3; i++ {
			resp := f.turn(t, id, "what do you mean?")
			require.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		}
		resp := f.turn(t, id, "what do you mean?")
		assert.Equal(t, store.StatusEscalated, resp.Status)
		assert.Contains(t, resp.ReplyText, instruction.EmergencyServicesNotice)
		require.NotNil(t, resp.Report)
		assert.Equal(t, store.StatusEscalated, resp.Report.FinalStatus)

		sess := f.session(t, id)
		assert.Equal(t, delivered, countEvents(sess, store.EventStepDelivered))
		assert.Equal(t, 1, countEvents(sess, store.EventEscalation))
	})

	t.Run("while classifying", func(t *testing.T) {
		f := newFixture(t, nil)
		resp := f.turn(t, "", "help me please")
		assert.Equal(t, store.StatusClassifying, resp.Status)
		id := resp.SessionID

		f.turn(t, id, "I don't know")
		f.turn(t, id, "please")
		resp = f.turn(t, id, "hurry")
		assert.Equal(t, store.StatusEscalated, resp.Status)

		sess := f.session(t, id)
		assert.Nil(t, sess.Procedure)
		assert.Equal(t, store.StepNone, sess.CurrentStep)
		assert.Zero(t, countEvents(sess, store.EventStepDelivered))
	})
}

func TestHandleTurn_ClarificationResetsOnProgress(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	f.turn(t, id, "what do you mean?")
	f.turn(t, id, "what do you mean?")
	f.turn(t, id, "done")
	sess := f.session(t, id)
	assert.Zero(t, sess.Clarifications)
	assert.Equal(t, 2, sess.TotalClarifications)

	for i := 0; i < 3; i++ {
		assert.Equal(t, store.StatusAwaitingConfirmation, f.turn(t, id, "what do you mean?").Status)
	}
}

func TestHandleTurn_ReasonerOutageNeverEscalates(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID
	f.reasoner.Fail(reasoner.RoleInstruct, reasoner.ErrUnavailable)

	for i := 0; i < 5; i++ {
		resp := f.turn(t, id, "hmm, the thing with the hands")
		require.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.True(t, resp.Degraded)
		assert.Contains(t, resp.ReplyText, "Call emergency services immediately")
		assert.Contains(t, resp.ReplyText, instruction.EmergencyServicesNotice)
	}

	sess := f.session(t, id)
	assert.Equal(t, 0, sess.CurrentStep)
	assert.Zero(t, sess.Clarifications)
	assert.Zero(t, sess.TotalClarifications)
	assert.Zero(t, countEvents(sess, store.EventEscalation))
	assert.Equal(t, 1, f.reasoner.Calls(reasoner.RoleCalm))
}

func TestHandleTurn_ArrivalQuestionKeepsGuiding(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	for _, msg := range []string{"Where is the ambulance??", "the ambulance isn't here yet", "ambulance has not arrived, what now"} {
		resp := f.turn(t, id, msg)
		assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status, msg)
		assert.Nil(t, resp.Report, msg)
	}

	sess := f.session(t, id)
	assert.Zero(t, countEvents(sess, store.EventStopCondition))
	assert.Equal(t, 3, sess.Clarifications)
}

func TestHandleTurn_RepeatedWorseningEscalates(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "My mom suddenly can't speak and one side of her face is drooping").SessionID
	f.reasoner.On(reasoner.RoleClassify, func(context.Context, *reasoner.Request) (*reasoner.Result, error) {
		return reasoner.NewResult(map[string]any{"emergency_type": "possible_stroke", "severity": "critical", "confidence": 0.9}), nil
	})

	for i := 0; i < 3; i++ {
		resp := f.turn(t, id, "it's getting worse")
		require.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.NotEmpty(t, resp.ReplyText)
	}
	sess := f.session(t, id)
	assert.Equal(t, 3, sess.Clarifications)
	assert.Equal(t, 0, sess.CurrentStep)

	resp := f.turn(t, id, "it's getting worse")
	assert.Equal(t, store.StatusEscalated, resp.Status)
	require.NotNil(t, resp.Report)
	assert.Equal(t, 1, countEvents(f.session(t, id), store.EventEscalation))

	t.Run("progress resets the count", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.turn(t, "", "My mom suddenly can't speak and one side of her face is drooping").SessionID
		f.reasoner.On(reasoner.RoleClassify, func(context.Context, *reasoner.Request) (*reasoner.Result, error) {
			return reasoner.NewResult(map[string]any{"emergency_type": "possible_stroke", "severity": "critical", "confidence": 0.9}), nil
		})

		f.turn(t, id, "it's getting worse")
		f.turn(t, id, "it's getting worse")
		f.turn(t, id, "done")
		assert.Zero(t, f.session(t, id).Clarifications)
		assert.Equal(t, store.StatusAwaitingConfirmation, f.turn(t, id, "it's getting worse").Status)
	})
}

func TestHandleTurn_Branch(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "he's choking on a piece of steak, something stuck in his throat").SessionID
	assert.Equal(t, "choking", f.session(t, id).EmergencyType())

	f.turn(t, id, "yes, he nodded")
	resp := f.turn(t, id, "he went limp")
	assert.Contains(t, resp.ReplyText, "begin CPR")

	sess := f.session(t, id)
	assert.Equal(t, 3, sess.CurrentStep)
	assert.Equal(t, 1, countEvents(sess, store.EventBranch))
}

func TestHandleTurn_DistressReclassifies(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "My mom suddenly can't speak and one side of her face is drooping").SessionID

	resp := f.turn(t, id, "it's getting worse, now she's choking")
	assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
	assert.Contains(t, resp.ReplyText, "Ask the person if they are choking")

	sess := f.session(t, id)
	assert.Equal(t, "choking", sess.EmergencyType())
	assert.Equal(t, "choking", sess.Procedure.EmergencyType)
	assert.Equal(t, 0, sess.CurrentStep)
	assert.Equal(t, 1, countEvents(sess, store.EventClassificationChanged))
}

func TestHandleTurn_LookupFallback(t *testing.T) {
	t.Run("unknown emergency type", func(t *testing.T) {
		f := newFixture(t, nil)
		f.reasoner.On(reasoner.RoleClassify, func(context.Context, *reasoner.Request) (*reasoner.Result, error) {
			return reasoner.NewResult(map[string]any{"emergency_type": "snake_bite", "severity": "high", "confidence": 0.9}), nil
		})

		resp := f.turn(t, "", "a snake bit my friend on the ankle")
		assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.Contains(t, resp.ReplyText, "Call emergency services now and put the phone on speaker.")

		sess := f.session(t, resp.SessionID)
		assert.True(t, sess.Procedure.Fallback)
		assert.Equal(t, "snake_bite", sess.Procedure.EmergencyType)
		assert.Equal(t, 1, countEvents(sess, store.EventProcedureFallback))
	})

	t.Run("lookup timeout", func(t *testing.T) {
		slow := lookupFunc(func(ctx context.Context, _ string) (*store.Procedure, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		f := newFixture(t, slow)

		resp := f.turn(t, "", "my dad isn't breathing")
		assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.True(t, f.session(t, resp.SessionID).Procedure.Fallback)
	})
}

type lookupFunc func(ctx context.Context, emergencyType string) (*store.Procedure, error)

func (f lookupFunc) GetProtocol(ctx context.Context, emergencyType string) (*store.Procedure, error) {
	return f(ctx, emergencyType)
}

func TestHandleTurn_CollaboratorFailures(t *testing.T) {
	t.Run("calmer failure uses default reassurance", func(t *testing.T) {
		f := newFixture(t, nil)
		f.reasoner.Fail(reasoner.RoleCalm, reasoner.ErrTimeout)

		resp := f.turn(t, "", "my dad isn't breathing")
		assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.Contains(t, resp.ReplyText, instruction.DefaultReassurance)
		assert.False(t, resp.Degraded)
	})

	t.Run("reasoner down degrades to verbatim steps", func(t *testing.T) {
		f := newFixture(t, nil)
		f.reasoner.Fail(reasoner.RoleClassify, reasoner.ErrUnavailable).Fail(reasoner.RoleInstruct, reasoner.ErrUnavailable)

		resp := f.turn(t, "", "my dad isn't breathing")
		assert.True(t, resp.Degraded)
		assert.Equal(t, store.StatusAwaitingConfirmation, resp.Status)
		assert.Contains(t, resp.ReplyText, "Call emergency services immediately")
		assert.Contains(t, resp.ReplyText, instruction.EmergencyServicesNotice)
		assert.Zero(t, f.reasoner.Calls(reasoner.RoleCalm))

		resp = f.turn(t, resp.SessionID, "what should I do now?")
		assert.True(t, resp.Degraded)
		assert.Contains(t, resp.ReplyText, "Call emergency services immediately")
		assert.Equal(t, 2, countEvents(f.session(t, resp.SessionID), store.EventDegraded))
	})

	t.Run("failing observer never fails a turn", func(t *testing.T) {
		agg := metrics.NewAggregator()
		broken := observer.Func{ID: "broken", Fn: func(context.Context, observer.Event) error {
			return errors.New("sink offline")
		}}
		d := observer.NewDispatcher(broken, agg).WithRetry(2, time.Millisecond)
		f := newFixture(t, nil, WithEmitter(d))

		id := f.turn(t, "", "my dad isn't breathing").SessionID
		f.turn(t, id, "The ambulance just arrived.")
		d.Wait()

		o := agg.Overview()
		assert.Equal(t, int64(2), o.Turns)
		assert.Equal(t, int64(1), o.Events["classification"])
		assert.Equal(t, int64(1), o.Outcomes["RESOLVED"])
	})
}

func TestHandleTurn_ConcurrentDuplicateTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	var wg sync.WaitGroup
	replies := make([]string, 10)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.orch.HandleTurn(ctx, &TurnRequest{SessionID: id, Message: "done", TurnID: "turn-2"})
			if assert.NoError(t, err) {
				replies[i] = resp.ReplyText
			}
		}(i)
	}
	wg.Wait()

	sess := f.session(t, id)
	assert.Equal(t, 1, sess.CurrentStep)
	assert.Equal(t, 1, countEvents(sess, store.EventConfirmation))
	for _, r := range replies {
		assert.Equal(t, replies[0], r)
	}
}

func TestHandleTurn_ConcurrentTurnsSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.HandleTurn(ctx, &TurnRequest{SessionID: id, Message: "done"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess := f.session(t, id)
	assert.Equal(t, 3, sess.CurrentStep)
	assert.Equal(t, 3, countEvents(sess, store.EventConfirmation))
	for i := 1; i < len(sess.Events); i++ {
		assert.Greater(t, sess.Events[i].Seq, sess.Events[i-1].Seq)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("builds one report", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.turn(t, "", "my dad isn't breathing").SessionID

		resp, err := f.orch.Close(ctx, id, store.StatusResolved, "responders took over")
		require.NoError(t, err)
		assert.Equal(t, store.StatusResolved, resp.Status)
		require.NotNil(t, resp.Report)

		_, err = f.orch.Close(ctx, id, store.StatusEscalated, "")
		assert.ErrorIs(t, err, store.ErrSessionClosed)
		assert.Equal(t, 1, f.reasoner.Calls(reasoner.RoleReport))

		r, err := f.orch.Report(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, resp.Report.SessionID, r.SessionID)
	})

	t.Run("rejects non-terminal status", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.orch.Close(ctx, "any", store.StatusClassifying, "")
		assert.ErrorIs(t, err, store.ErrNotTerminalStatus)
	})

	t.Run("aborts an in-flight turn", func(t *testing.T) {
		f := newFixture(t, nil)
		entered, release := make(chan struct{}), make(chan struct{})
		f.reasoner.On(reasoner.RoleClassify, func(ctx context.Context, req *reasoner.Request) (*reasoner.Result, error) {
			close(entered)
			<-release
			return reasoner.RuleReasoner{}.Reason(ctx, req)
		})

		errc := make(chan error, 1)
		go func() {
			_, err := f.orch.HandleTurn(ctx, &TurnRequest{SessionID: "call-42", Message: "my dad isn't breathing"})
			errc <- err
		}()

		<-entered
		resp, err := f.orch.Close(ctx, "call-42", store.StatusResolved, "responders took over")
		require.NoError(t, err)
		require.NotNil(t, resp.Report)
		close(release)

		assert.ErrorIs(t, <-errc, store.ErrSessionClosed)
		sess := f.session(t, "call-42")
		assert.Equal(t, store.StatusResolved, sess.Status)
		assert.Nil(t, sess.Procedure)
		assert.Zero(t, countEvents(sess, store.EventClassification))
		assert.Equal(t, 1, f.reasoner.Calls(reasoner.RoleReport))
	})
}

func TestHandleTurn_ReplayAfterTermination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	first, err := f.orch.HandleTurn(ctx, &TurnRequest{SessionID: id, Message: "The ambulance just arrived.", TurnID: "t-final"})
	require.NoError(t, err)
	again, err := f.orch.HandleTurn(ctx, &TurnRequest{SessionID: id, Message: "The ambulance just arrived.", TurnID: "t-final"})
	require.NoError(t, err)

	assert.Equal(t, first.ReplyText, again.ReplyText)
	assert.Equal(t, store.StatusResolved, again.Status)
	require.NotNil(t, again.Report)
	assert.Equal(t, 1, f.reasoner.Calls(reasoner.RoleReport))
}

func TestHandleTurn_ResumesAcrossInstances(t *testing.T) {
	f := newFixture(t, nil)
	id := f.turn(t, "", "my dad isn't breathing").SessionID

	// A fresh orchestrator over the same store holds no per-session state.
	other, err := New(f.store, f.reasoner, protocol.NewBuiltin(), Config{})
	require.NoError(t, err)
	resp, err := other.HandleTurn(context.Background(), &TurnRequest{SessionID: id, Message: "done"})
	require.NoError(t, err)
	assert.Contains(t, resp.ReplyText, "Place the person on their back")
}

func TestHandleTurn_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.orch.HandleTurn(ctx, &TurnRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	long := make([]byte, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.orch.HandleTurn(ctx, &TurnRequest{Message: string(long)})
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = f.orch.Report(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	id := f.turn(t, "", "my dad isn't breathing").SessionID
	_, err = f.orch.Report(ctx, id)
	assert.ErrorIs(t, err, report.ErrSessionNotTerminal)
}

func TestRecentReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first := f.turn(t, "", "my dad isn't breathing").SessionID
	second := f.turn(t, "", "he's choking, something stuck in his throat").SessionID
	open := f.turn(t, "", "she passed out").SessionID

	_, err := f.orch.Close(ctx, first, store.StatusResolved, "")
	require.NoError(t, err)
	_, err = f.orch.Close(ctx, second, store.StatusEscalated, "caller disconnected")
	require.NoError(t, err)

	reports, err := f.orch.RecentReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.ElementsMatch(t, []string{first, second}, []string{reports[0].SessionID, reports[1].SessionID})
	assert.False(t, reports[0].EndedAt.Before(reports[1].EndedAt))
	for _, r := range reports {
		assert.NotEqual(t, open, r.SessionID)
	}

	reports, err = f.orch.RecentReports(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

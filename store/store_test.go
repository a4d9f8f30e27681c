package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lifesaver/store"
	"github.com/hrygo/lifesaver/store/db/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestStore(t *testing.T) (*store.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return store.New(memory.NewDB(), store.WithClock(clock.Now)), clock
}

func testProcedure() *store.Procedure {
	return &store.Procedure{
		EmergencyType: "cardiac_arrest",
		Title:         "CPR",
		Steps: []store.Step{
			{ID: "call", Instruction: "Call emergency services."},
			{ID: "compress", Instruction: "Start chest compressions."},
		},
	}
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	sess, err := s.Create(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusNew, sess.Status)
	assert.Equal(t, store.StepNone, sess.CurrentStep)
	assert.NotNil(t, sess.Facts)

	_, err = s.Create(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrSessionExists)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AppendEvent(ctx, "missing", store.Event{Type: store.EventUtterance})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_AppendEvent(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	_, err := s.Create(ctx, "s1")
	require.NoError(t, err)

	start := clock.Now()
	_, err = s.AppendEvent(ctx, "s1", store.Event{Actor: store.ActorUser, Type: store.EventUtterance, Text: "help"})
	require.NoError(t, err)

	// clock going backwards must not reorder the log
	clock.Set(start.Add(-time.Minute))
	sess, err := s.AppendEvent(ctx, "s1", store.Event{Actor: store.ActorUser, Type: store.EventUtterance, Text: "again"})
	require.NoError(t, err)

	require.Len(t, sess.Events, 2)
	assert.Equal(t, int64(1), sess.Events[0].Seq)
	assert.Equal(t, int64(2), sess.Events[1].Seq)
	assert.False(t, sess.Events[1].Timestamp.Before(sess.Events[0].Timestamp))
	assert.False(t, sess.LastActivityAt.Before(start))
}

func TestStore_SetFact(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = s.SetFact(ctx, "s1", "knows_cpr", "no")
	require.NoError(t, err)
	sess, err := s.SetFact(ctx, "s1", "knows_cpr", "yes")
	require.NoError(t, err)

	assert.Len(t, sess.Facts, 1)
	assert.Equal(t, "yes", sess.Facts["knows_cpr"])

	_, err = s.SetFact(ctx, "s1", "", "x")
	assert.Error(t, err)
}

func TestStore_AdvanceStep(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Create(ctx, "s1")
	require.NoError(t, err)

	t.Run("no procedure bound", func(t *testing.T) {
		_, err := s.AdvanceStep(ctx, "s1", 0)
		assert.ErrorIs(t, err, store.ErrInvalidStep)
	})

	_, err = s.Commit(ctx, "s1", &store.Commit{Procedure: testProcedure(), Step: store.IntPtr(0)})
	require.NoError(t, err)

	t.Run("valid index", func(t *testing.T) {
		sess, err := s.AdvanceStep(ctx, "s1", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, sess.CurrentStep)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := s.AdvanceStep(ctx, "s1", 2)
		assert.ErrorIs(t, err, store.ErrInvalidStep)
		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 1, sess.CurrentStep)
	})
}

func TestStore_CloseSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = s.CloseSession(ctx, "s1", store.StatusAwaitingConfirmation, "")
	assert.ErrorIs(t, err, store.ErrNotTerminalStatus)

	sess, err := s.CloseSession(ctx, "s1", store.StatusResolved, "responders arrived")
	require.NoError(t, err)
	assert.Equal(t, store.StatusResolved, sess.Status)
	require.NotNil(t, sess.ClosedAt)
	assert.Equal(t, store.EventSessionClosed, sess.LastEvent().Type)

	t.Run("closed session is read-only", func(t *testing.T) {
		_, err := s.AppendEvent(ctx, "s1", store.Event{Type: store.EventUtterance})
		assert.ErrorIs(t, err, store.ErrSessionClosed)
		_, err = s.SetFact(ctx, "s1", "k", "v")
		assert.ErrorIs(t, err, store.ErrSessionClosed)
		_, err = s.CloseSession(ctx, "s1", store.StatusEscalated, "")
		assert.ErrorIs(t, err, store.ErrSessionClosed)
	})
}

func TestStore_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("applies mutations atomically", func(t *testing.T) {
		s, _ := newTestStore(t)
		created, err := s.Create(ctx, "s1")
		require.NoError(t, err)

		sess, err := s.Commit(ctx, "s1", &store.Commit{
			ExpectedVersion: created.Version,
			TurnID:          "t1",
			Reply:           "Call emergency services.",
			Events: []store.Event{
				{Actor: store.ActorUser, Type: store.EventUtterance, Text: "he collapsed"},
				{Actor: store.ActorInstructor, Type: store.EventStepDelivered, StepIndex: store.IntPtr(0)},
			},
			Facts:     map[string]string{"patient": "father"},
			Signal:    &store.EmergencySignal{EmergencyType: "cardiac_arrest", Severity: store.SeverityCritical, Confidence: 0.9},
			Procedure: testProcedure(),
			Step:      store.IntPtr(0),
			Status:    store.StatusAwaitingConfirmation,
		})
		require.NoError(t, err)
		assert.Equal(t, store.StatusAwaitingConfirmation, sess.Status)
		assert.Equal(t, 0, sess.CurrentStep)
		assert.Len(t, sess.Events, 2)
		assert.Equal(t, "father", sess.Facts["patient"])
		assert.Equal(t, "cardiac_arrest", sess.EmergencyType())
		assert.Equal(t, "t1", sess.LastTurnID)
		assert.Equal(t, created.Version+1, sess.Version)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		s, _ := newTestStore(t)
		created, err := s.Create(ctx, "s1")
		require.NoError(t, err)
		_, err = s.AppendEvent(ctx, "s1", store.Event{Type: store.EventUtterance})
		require.NoError(t, err)

		_, err = s.Commit(ctx, "s1", &store.Commit{ExpectedVersion: created.Version, Status: store.StatusClassifying})
		assert.ErrorIs(t, err, store.ErrConcurrentTurn)
	})

	t.Run("invalid step leaves session untouched", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.Create(ctx, "s1")
		require.NoError(t, err)

		_, err = s.Commit(ctx, "s1", &store.Commit{
			Events:    []store.Event{{Type: store.EventUtterance}},
			Procedure: testProcedure(),
			Step:      store.IntPtr(7),
		})
		assert.ErrorIs(t, err, store.ErrInvalidStep)

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, sess.Events)
		assert.Nil(t, sess.Procedure)
	})

	t.Run("clarification counters", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.Create(ctx, "s1")
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			_, err = s.Commit(ctx, "s1", &store.Commit{Clarify: true})
			require.NoError(t, err)
		}
		sess, err := s.Commit(ctx, "s1", &store.Commit{ResetClarifications: true})
		require.NoError(t, err)
		assert.Equal(t, 0, sess.Clarifications)
		assert.Equal(t, 2, sess.TotalClarifications)
	})

	t.Run("terminal status closes after events", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.Create(ctx, "s1")
		require.NoError(t, err)
		sess, err := s.Commit(ctx, "s1", &store.Commit{
			Events: []store.Event{{Actor: store.ActorUser, Type: store.EventUtterance, Text: "ambulance is here"}},
			Status: store.StatusResolved,
		})
		require.NoError(t, err)
		require.Len(t, sess.Events, 2)
		assert.Equal(t, store.EventSessionClosed, sess.Events[1].Type)

		_, err = s.Commit(ctx, "s1", &store.Commit{Status: store.StatusEscalated})
		assert.ErrorIs(t, err, store.ErrSessionClosed)
	})
}

func TestStore_Report(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.GetReport(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveReport(ctx, &store.IncidentReport{SessionID: "s1", EmergencyType: "choking"}))
	err = s.SaveReport(ctx, &store.IncidentReport{SessionID: "s1", EmergencyType: "other"})
	assert.ErrorIs(t, err, store.ErrReportExists)

	report, err := s.GetReport(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "choking", report.EmergencyType)
	assert.False(t, report.CreatedAt.IsZero())
}

func TestStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.Create(ctx, "old-open")
	require.NoError(t, err)
	_, err = s.Create(ctx, "old-closed")
	require.NoError(t, err)
	_, err = s.CloseSession(ctx, "old-closed", store.StatusResolved, "")
	require.NoError(t, err)

	clock.Set(clock.Now().Add(48 * time.Hour))
	_, err = s.Create(ctx, "fresh")
	require.NoError(t, err)

	n, err := s.DeleteExpired(ctx, 24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "old-open")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "old-closed")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = s.DeleteExpired(ctx, 24*time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Create(ctx, "s1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AppendEvent(ctx, "s1", store.Event{Actor: store.ActorUser, Type: store.EventUtterance})
		}()
	}
	wg.Wait()

	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 50)
	for i, ev := range sess.Events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

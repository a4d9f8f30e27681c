package reasoner

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Reason(ctx context.Context, req *Request) (*Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

func TestParseResponse(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		res, err := parseResponse(`{"emergency_type":"choking","confidence":0.9}`, true, "")
		require.NoError(t, err)
		assert.Equal(t, "choking", res.String("emergency_type"))
		assert.Equal(t, 0.9, res.Float("confidence"))
	})

	t.Run("markdown fence", func(t *testing.T) {
		res, err := parseResponse("```json\n{\"intent\":\"confirm\"}\n```", true, "")
		require.NoError(t, err)
		assert.Equal(t, "confirm", res.String("intent"))
	})

	t.Run("free text role", func(t *testing.T) {
		res, err := parseResponse("  You're doing great.  ", false, "message")
		require.NoError(t, err)
		assert.Equal(t, "You're doing great.", res.String("message"))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseResponse("not json", true, "")
		assert.ErrorIs(t, err, ErrMalformedOutput)
		_, err = parseResponse("   ", false, "message")
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})
}

func TestResultHelpers(t *testing.T) {
	res := NewResult(map[string]any{
		"symptoms": []any{"no pulse", " ", 3},
		"facts":    []any{map[string]any{"key": "patient", "value": "dad"}, "junk"},
		"done":     true,
	})
	assert.Equal(t, []string{"no pulse"}, res.Strings("symptoms"))
	assert.Equal(t, map[string]string{"patient": "dad"}, res.Facts("facts"))
	assert.True(t, res.Bool("done"))
	assert.Nil(t, res.Facts("missing"))

	var nilResult *Result
	assert.Equal(t, "", nilResult.String("x"))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"timeout sentinel", ErrTimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"malformed output", ErrMalformedOutput, true},
		{"network", errors.New("dial tcp 10.0.0.1:443: connection refused"), true},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"bad key", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"unknown", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
	assert.Nil(t, ClassifyError(nil))
}

func TestResilient(t *testing.T) {
	req := &Request{Role: RoleClassify, Text: "help"}
	ok := NewResult(map[string]any{"emergency_type": "choking"})

	t.Run("success passes through", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Reason", mock.Anything, req).Return(ok, nil).Once()

		res, err := NewResilient(backend, time.Second, 0).Reason(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "choking", res.String("emergency_type"))
		backend.AssertExpectations(t)
	})

	t.Run("transient failure retried once", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Reason", mock.Anything, req).Return(nil, errors.New("connection reset by peer")).Once()
		backend.On("Reason", mock.Anything, req).Return(ok, nil).Once()

		res, err := NewResilient(backend, time.Second, 0).Reason(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "choking", res.String("emergency_type"))
		backend.AssertNumberOfCalls(t, "Reason", 2)
	})

	t.Run("persistent failure becomes unavailable", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Reason", mock.Anything, req).Return(nil, errors.New("connection reset by peer")).Twice()

		_, err := NewResilient(backend, time.Second, 0).Reason(context.Background(), req)
		assert.ErrorIs(t, err, ErrUnavailable)
		backend.AssertNumberOfCalls(t, "Reason", 2)
	})

	t.Run("permanent failure not retried", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Reason", mock.Anything, req).Return(nil, &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}).Once()

		_, err := NewResilient(backend, time.Second, 0).Reason(context.Background(), req)
		assert.ErrorIs(t, err, ErrUnavailable)
		backend.AssertNumberOfCalls(t, "Reason", 1)
	})

	t.Run("slow backend times out", func(t *testing.T) {
		slow := Func(func(ctx context.Context, _ *Request) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		_, err := NewResilient(slow, 10*time.Millisecond, 0).Reason(context.Background(), req)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("nil result is malformed", func(t *testing.T) {
		empty := Func(func(context.Context, *Request) (*Result, error) { return nil, nil })
		_, err := NewResilient(empty, time.Second, 0).Reason(context.Background(), req)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestRuleReasoner_Classify(t *testing.T) {
	tests := []struct {
		text     string
		wantType string
		severity string
	}{
		{"my dad isn't breathing", "cardiac_arrest", "critical"},
		{"My dad just collapsed and he's not breathing.", "cardiac_arrest", "critical"},
		{"My mom suddenly can't speak and one side of her face is drooping", "possible_stroke", "high"},
		{"he is choking on food and can't cough", "choking", "critical"},
		{"she got stung and her face is swelling with hives", "anaphylaxis", "critical"},
		{"my friend passed out but is breathing", "unconscious_but_breathing", "high"},
		{"something is wrong", "unclear", "moderate"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := RuleReasoner{}.Reason(context.Background(), &Request{Role: RoleClassify, Text: tt.text})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, res.String("emergency_type"))
			assert.Equal(t, tt.severity, res.String("severity"))
		})
	}

	res, err := RuleReasoner{}.Reason(context.Background(), &Request{Role: RoleClassify, Text: "my dad isn't breathing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"patient": "dad"}, res.Facts("facts"))
	assert.GreaterOrEqual(t, res.Float("confidence"), 0.6)
}

func TestMockReasoner(t *testing.T) {
	m := NewMockReasoner().Fail(RoleCalm, ErrUnavailable)

	_, err := m.Reason(context.Background(), &Request{Role: RoleCalm})
	assert.ErrorIs(t, err, ErrUnavailable)

	res, err := m.Reason(context.Background(), &Request{Role: RoleClassify, Text: "she is choking"})
	require.NoError(t, err)
	assert.Equal(t, "choking", res.String("emergency_type"))
	assert.Equal(t, 1, m.Calls(RoleCalm))
	assert.Equal(t, 1, m.Calls(RoleClassify))
}

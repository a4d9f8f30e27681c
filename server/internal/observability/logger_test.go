package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContext(t *testing.T) {
	t.Run("generates a uuid", func(t *testing.T) {
		rc := NewRequestContext(nil, "/api/v1/turns")
		_, err := uuid.Parse(rc.RequestID)
		assert.NoError(t, err)
	})

	t.Run("keeps a supplied id", func(t *testing.T) {
		rc := NewRequestContextWithID(nil, "req-1", "/healthz")
		assert.Equal(t, "req-1", rc.RequestID)
	})

	t.Run("round trips through context", func(t *testing.T) {
		rc := NewRequestContext(nil, "/x")
		got, ok := FromContext(WithRequestContext(context.Background(), rc))
		require.True(t, ok)
		assert.Same(t, rc, got)

		_, ok = FromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("logs base fields", func(t *testing.T) {
		var buf bytes.Buffer
		rc := NewRequestContextWithID(slog.New(slog.NewJSONHandler(&buf, nil)), "req-2", "/api/v1/turns")
		rc.SessionID = "sess-9"
		rc.Info("turn handled", slog.String(LogFieldStatus, "RESOLVED"))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "req-2", line[LogFieldRequestID])
		assert.Equal(t, "/api/v1/turns", line[LogFieldRoute])
		assert.Equal(t, "sess-9", line[LogFieldSessionID])
		assert.Equal(t, "RESOLVED", line[LogFieldStatus])
	})
}

package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/lifesaver/plugin/ai/orchestrator"
	apierrors "github.com/hrygo/lifesaver/server/internal/errors"
	"github.com/hrygo/lifesaver/server/internal/observability"
)

// TurnRequest is the body of POST /api/v1/turns.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	TurnID    string `json:"turn_id"`
}

// HandleTurn processes one inbound message.
// POST /api/v1/turns
func (s *APIV1Service) HandleTurn(c echo.Context) error {
	var body TurnRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, apierrors.InvalidArgument("request body must be JSON"))
	}

	// New sessions are limited by client address until they have an id.
	key := body.SessionID
	if key == "" {
		key = "ip:" + c.RealIP()
	}
	if !s.limiter.Allow(key) {
		return fail(c, apierrors.RateLimitExceeded("too many messages, please wait a moment"))
	}

	ctx := c.Request().Context()
	resp, err := s.Orchestrator.HandleTurn(ctx, &orchestrator.TurnRequest{
		SessionID: body.SessionID,
		Message:   body.Message,
		TurnID:    body.TurnID,
	})
	if err != nil {
		return fail(c, err)
	}

	if rc, ok := observability.FromContext(ctx); ok {
		rc.SessionID = resp.SessionID
		rc.Info("turn served",
			slog.String(observability.LogFieldStatus, string(resp.Status)),
			slog.Int(observability.LogFieldMessageLen, len(body.Message)))
	}
	if resp.Status.IsTerminal() {
		s.limiter.Forget(resp.SessionID)
	}
	return c.JSON(http.StatusOK, resp)
}

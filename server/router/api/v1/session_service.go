package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/lifesaver/server/internal/errors"
	"github.com/hrygo/lifesaver/store"
)

// SessionView is the public projection of a session.
type SessionView struct {
	ID                  string            `json:"id"`
	Status              store.Status      `json:"status"`
	EmergencyType       string            `json:"emergency_type,omitempty"`
	Severity            store.Severity    `json:"severity,omitempty"`
	Procedure           string            `json:"procedure,omitempty"`
	CurrentStep         int               `json:"current_step"`
	CurrentInstruction  string            `json:"current_instruction,omitempty"`
	StepCount           int               `json:"step_count"`
	Clarifications      int               `json:"clarifications"`
	TotalClarifications int               `json:"total_clarifications"`
	Facts               map[string]string `json:"facts,omitempty"`
	EventCount          int               `json:"event_count"`
	CreatedAt           time.Time         `json:"created_at"`
	LastActivityAt      time.Time         `json:"last_activity_at"`
	ClosedAt            *time.Time        `json:"closed_at,omitempty"`
}

func newSessionView(sess *store.Session) *SessionView {
	v := &SessionView{
		ID:                  sess.ID,
		Status:              sess.Status,
		EmergencyType:       sess.EmergencyType(),
		CurrentStep:         sess.CurrentStep,
		Clarifications:      sess.Clarifications,
		TotalClarifications: sess.TotalClarifications,
		Facts:               sess.Facts,
		EventCount:          len(sess.Events),
		CreatedAt:           sess.CreatedAt,
		LastActivityAt:      sess.LastActivityAt,
		ClosedAt:            sess.ClosedAt,
	}
	if sess.Signal != nil {
		v.Severity = sess.Signal.Severity
	}
	if sess.Procedure != nil {
		v.Procedure = sess.Procedure.Title
		v.StepCount = len(sess.Procedure.Steps)
	}
	if step := sess.Step(); step != nil {
		v.CurrentInstruction = step.Instruction
	}
	return v
}

// GetSession returns the current state of a session.
// GET /api/v1/sessions/:id
func (s *APIV1Service) GetSession(c echo.Context) error {
	sess, err := s.Orchestrator.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newSessionView(sess))
}

// CloseRequest is the body of POST /api/v1/sessions/:id/close.
type CloseRequest struct {
	// Status is RESOLVED or ESCALATED.
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// CloseSession terminates a session on an external signal, such as the
// dispatcher reporting that responders took over.
// POST /api/v1/sessions/:id/close
func (s *APIV1Service) CloseSession(c echo.Context) error {
	var body CloseRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, apierrors.InvalidArgument("request body must be JSON"))
	}
	if body.Status == "" {
		body.Status = string(store.StatusResolved)
	}
	status, ok := store.ParseStatus(body.Status)
	if !ok {
		return fail(c, apierrors.InvalidArgument("unknown status "+body.Status))
	}

	id := c.Param("id")
	resp, err := s.Orchestrator.Close(c.Request().Context(), id, status, body.Reason)
	if err != nil {
		return fail(c, err)
	}
	s.limiter.Forget(id)
	return c.JSON(http.StatusOK, resp)
}

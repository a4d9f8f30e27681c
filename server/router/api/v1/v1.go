package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/plugin/ai/metrics"
	"github.com/hrygo/lifesaver/plugin/ai/orchestrator"
	apierrors "github.com/hrygo/lifesaver/server/internal/errors"
	"github.com/hrygo/lifesaver/server/internal/observability"
	ratelimit "github.com/hrygo/lifesaver/server/middleware"
)

// APIV1Service is the HTTP ingress of the guidance service.
type APIV1Service struct {
	Profile      *profile.Profile
	Orchestrator *orchestrator.Orchestrator
	// Metrics is optional; /api/v1/metrics answers 404 without it.
	Metrics *metrics.Aggregator

	limiter *ratelimit.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, orch *orchestrator.Orchestrator, agg *metrics.Aggregator) *APIV1Service {
	return &APIV1Service{
		Profile:      profile,
		Orchestrator: orch,
		Metrics:      agg,
		limiter:      ratelimit.NewRateLimiter(profile.RateLimit, profile.RateBurst),
	}
}

// Limiter exposes the per-session turn limiter for housekeeping.
func (s *APIV1Service) Limiter() *ratelimit.RateLimiter {
	return s.limiter
}

// RegisterRoutes mounts the API on e.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)

	g := e.Group("/api/v1")
	g.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, observability.HeaderRequestID},
	}))
	g.Use(requestContext)

	g.POST("/turns", s.HandleTurn)
	g.GET("/sessions/:id", s.GetSession)
	g.POST("/sessions/:id/close", s.CloseSession)
	g.GET("/sessions/:id/report", s.GetReport)
	g.GET("/metrics", s.GetMetricsOverview)
	g.GET("/reports/feed", s.GetReportFeed)
}

// Healthz reports liveness.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": s.Profile.Version})
}

// requestContext attaches a RequestContext to every API request and logs its outcome.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		rc := observability.NewRequestContextWithID(slog.Default(), req.Header.Get(observability.HeaderRequestID), c.Path())
		c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), rc)))
		c.Response().Header().Set(observability.HeaderRequestID, rc.RequestID)

		err := next(c)
		rc.Info("request served",
			slog.String("method", req.Method),
			slog.Int("http_status", c.Response().Status),
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
		return err
	}
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code      apierrors.ErrorCode `json:"code"`
	Message   string              `json:"message"`
	RequestID string              `json:"request_id,omitempty"`
}

// fail writes err as an ErrorResponse.
func fail(c echo.Context, err error) error {
	apiErr := apierrors.FromError(err)
	resp := ErrorResponse{Code: apiErr.Code, Message: apiErr.Message}
	if rc, ok := observability.FromContext(c.Request().Context()); ok {
		resp.RequestID = rc.RequestID
		if apiErr.Code == apierrors.ErrCodeInternal {
			rc.Error("request failed", err, slog.String(observability.LogFieldErrorCode, string(apiErr.Code)))
		} else {
			rc.Warn("request rejected", slog.String(observability.LogFieldErrorCode, string(apiErr.Code)))
		}
	}
	return c.JSON(apiErr.HTTPStatus(), resp)
}

package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/lifesaver/server/internal/errors"
)

// MetricsOverviewResponse represents the overview response of guidance metrics
type MetricsOverviewResponse struct {
	Turns          int64            `json:"turns"`
	Sessions       int64            `json:"sessions"`
	Clarifications int64            `json:"clarifications"`
	Degraded       int64            `json:"degraded"`
	Outcomes       map[string]int64 `json:"outcomes"`
	Events         map[string]int64 `json:"events"`
	P50LatencyMs   int64            `json:"p50_latency_ms"`
	P95LatencyMs   int64            `json:"p95_latency_ms"`
	Hours          []HourlyMetrics  `json:"hours"`
	TimeRange      string           `json:"time_range"`
}

// HourlyMetrics is one hour of turn statistics.
type HourlyMetrics struct {
	Hour         time.Time `json:"hour"`
	Turns        int64     `json:"turns"`
	P50LatencyMs int64     `json:"p50_latency_ms"`
	P95LatencyMs int64     `json:"p95_latency_ms"`
}

// GetMetricsOverview returns the guidance metrics overview
// GET /api/v1/metrics
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	if s.Metrics == nil {
		return fail(c, apierrors.NotFound("metrics are disabled"))
	}
	timeRange := c.QueryParam("range")
	if timeRange == "" {
		timeRange = "24h"
	}
	since, err := parseTimeRange(timeRange, time.Now())
	if err != nil {
		slog.Warn("Invalid time range parameter in metrics request", "range", timeRange, "error", err)
		return fail(c, apierrors.InvalidArgument(err.Error()))
	}

	o := s.Metrics.Overview()
	resp := MetricsOverviewResponse{
		Turns:          o.Turns,
		Sessions:       o.Sessions,
		Clarifications: o.Clarifications,
		Degraded:       o.Degraded,
		Outcomes:       o.Outcomes,
		Events:         o.Events,
		P50LatencyMs:   o.LatencyP50.Milliseconds(),
		P95LatencyMs:   o.LatencyP95.Milliseconds(),
		Hours:          make([]HourlyMetrics, 0, len(o.Hours)),
		TimeRange:      timeRange,
	}
	for _, h := range o.Hours {
		// Keep the hour that contains the cutoff.
		if h.Hour.Add(time.Hour).Before(since) {
			continue
		}
		resp.Hours = append(resp.Hours, HourlyMetrics{
			Hour:         h.Hour,
			Turns:        h.Turns,
			P50LatencyMs: h.LatencyP50.Milliseconds(),
			P95LatencyMs: h.LatencyP95.Milliseconds(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// parseTimeRange parses time range string and returns the start time
func parseTimeRange(timeRange string, now time.Time) (time.Time, error) {
	switch timeRange {
	case "1h":
		return now.Add(-1 * time.Hour), nil
	case "6h":
		return now.Add(-6 * time.Hour), nil
	case "24h":
		return now.Add(-24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("invalid time range: %s (valid: 1h, 6h, 24h)", timeRange)
	}
}

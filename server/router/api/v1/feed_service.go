package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/lifesaver/plugin/ai/report"
	apierrors "github.com/hrygo/lifesaver/server/internal/errors"
	"github.com/hrygo/lifesaver/store"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// GetReportFeed publishes the reports of recently closed sessions for
// dispatch consoles that poll a feed.
// GET /api/v1/reports/feed?format=atom|rss&limit=20
func (s *APIV1Service) GetReportFeed(c echo.Context) error {
	limit := defaultFeedLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fail(c, apierrors.InvalidArgument("limit must be a positive integer"))
		}
		limit = min(n, maxFeedLimit)
	}

	format := c.QueryParam("format")
	if format != "" && format != "atom" && format != "rss" {
		return fail(c, apierrors.InvalidArgument("unknown feed format "+format))
	}

	reports, err := s.Orchestrator.RecentReports(c.Request().Context(), limit)
	if err != nil {
		return fail(c, err)
	}

	base := c.Scheme() + "://" + c.Request().Host
	feed, err := buildReportFeed(base, reports, time.Now())
	if err != nil {
		return fail(c, err)
	}

	if format == "rss" {
		body, err := feed.ToRss()
		if err != nil {
			return fail(c, err)
		}
		return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(body))
	}
	body, err := feed.ToAtom()
	if err != nil {
		return fail(c, err)
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(body))
}

func buildReportFeed(base string, reports []*store.IncidentReport, now time.Time) (*feeds.Feed, error) {
	feed := &feeds.Feed{
		Title:       "Incident reports",
		Link:        &feeds.Link{Href: base + "/api/v1/reports/feed"},
		Description: "Reports of recently closed emergency sessions",
		Id:          base + "/api/v1/reports/feed",
		Created:     now,
		Items:       make([]*feeds.Item, 0, len(reports)),
	}

	for _, r := range reports {
		content, err := report.RenderHTML(r)
		if err != nil {
			return nil, fmt.Errorf("failed to render report %s: %w", r.SessionID, err)
		}
		link := fmt.Sprintf("%s/api/v1/sessions/%s/report", base, r.SessionID)
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          link,
			Title:       feedTitle(r),
			Link:        &feeds.Link{Href: link},
			Description: fmt.Sprintf("%s after %s", r.FinalStatus, r.EndedAt.Sub(r.StartedAt).Round(time.Second)),
			Content:     content,
			Created:     r.StartedAt,
			Updated:     r.EndedAt,
		})
	}
	if len(reports) > 0 {
		feed.Updated = reports[0].EndedAt
	}
	return feed, nil
}

func feedTitle(r *store.IncidentReport) string {
	kind := r.EmergencyType
	if kind == "" {
		kind = "unclassified"
	}
	return fmt.Sprintf("%s: %s (%s)", r.SessionID, kind, r.FinalStatus)
}

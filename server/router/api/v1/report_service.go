package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/lifesaver/plugin/ai/report"
	apierrors "github.com/hrygo/lifesaver/server/internal/errors"
)

// GetReport returns the incident report of a closed session.
// GET /api/v1/sessions/:id/report?format=json|markdown|html
func (s *APIV1Service) GetReport(c echo.Context) error {
	r, err := s.Orchestrator.Report(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}

	switch format := c.QueryParam("format"); format {
	case "", "json":
		return c.JSON(http.StatusOK, r)
	case "markdown", "md":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.RenderMarkdown(r)))
	case "html":
		html, err := report.RenderHTML(r)
		if err != nil {
			return fail(c, err)
		}
		return c.HTML(http.StatusOK, html)
	default:
		return fail(c, apierrors.InvalidArgument("unknown report format "+format))
	}
}

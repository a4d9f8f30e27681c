package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/lifesaver/store"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown renders the responder handoff document.
func RenderMarkdown(r *store.IncidentReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Incident Report\n\n")
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Session | %s |\n", r.SessionID)
	fmt.Fprintf(&b, "| Emergency | %s |\n", orUnknown(humanize(r.EmergencyType)))
	fmt.Fprintf(&b, "| Severity | %s |\n", orUnknown(string(r.Severity)))
	fmt.Fprintf(&b, "| Outcome | %s |\n", r.FinalStatus)
	fmt.Fprintf(&b, "| Started | %s |\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Ended | %s |\n", r.EndedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Duration | %s |\n", r.EndedAt.Sub(r.StartedAt).Round(time.Second))
	if r.FallbackProcedure {
		fmt.Fprintf(&b, "| Procedure | general (no specific protocol) |\n")
	}
	fmt.Fprintf(&b, "| Clarifications | %d |\n", r.ClarificationCount)

	if r.Narrative != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", r.Narrative)
	}
	writeList(&b, "Symptoms", r.Symptoms)
	writeList(&b, "Actions Taken", r.ActionsTaken)
	writeList(&b, "Medications", r.Medications)

	if keys := SortedFactKeys(r); len(keys) > 0 {
		fmt.Fprintf(&b, "\n## Facts\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s**: %s\n", k, r.Facts[k])
		}
	}

	if len(r.Timeline) > 0 {
		fmt.Fprintf(&b, "\n## Timeline\n\n| Time | Actor | Action |\n|---|---|---|\n")
		for _, e := range r.Timeline {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", e.Timestamp.UTC().Format("15:04:05"), e.Actor, escapeCell(e.Action))
		}
	}
	return b.String()
}

// RenderHTML converts the markdown rendering to HTML.
func RenderHTML(r *store.IncidentReport) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(RenderMarkdown(r)), &buf); err != nil {
		return "", fmt.Errorf("failed to render report html: %w", err)
	}
	return buf.String(), nil
}

func writeList(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n## %s\n\n", title)
	if len(items) == 0 {
		fmt.Fprintf(b, "_None recorded._\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

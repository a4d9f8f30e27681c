package observer

import (
	"context"
	"log/slog"
)

// LogObserver writes every event as a structured log line.
type LogObserver struct {
	logger *slog.Logger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver creates a log observer. A nil logger uses slog.Default.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (l *LogObserver) Name() string {
	return "log"
}

func (l *LogObserver) Observe(ctx context.Context, event Event) error {
	attrs := make([]any, 0, 8+2*len(event.Attrs))
	attrs = append(attrs,
		"kind", event.Kind,
		"session_id", event.SessionID,
		"status", event.Status,
	)
	if event.Latency > 0 {
		attrs = append(attrs, "latency_ms", event.Latency.Milliseconds())
	}
	for k, v := range event.Attrs {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "session event", attrs...)
	return nil
}

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultRetention is the default inactivity window before a session is deleted.
	DefaultRetention = 72 * time.Hour
	// DefaultCleanupInterval is the default interval between cleanup runs.
	DefaultCleanupInterval = time.Hour
)

// Expirer deletes sessions inactive for longer than retention.
type Expirer interface {
	DeleteExpired(ctx context.Context, retention time.Duration, terminalOnly bool) (int, error)
}

// CleanupConfig holds configuration for the cleanup job.
type CleanupConfig struct {
	Retention       time.Duration // Inactivity window (default: 72h)
	CleanupInterval time.Duration // Interval between cleanup runs (default: 1h)
	// IncludeOpen deletes abandoned open sessions too, not only terminal ones.
	IncludeOpen bool
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Retention:       DefaultRetention,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// CleanupJob handles periodic deletion of expired sessions.
type CleanupJob struct {
	store  Expirer
	config CleanupConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewCleanupJob creates a new cleanup job.
func NewCleanupJob(s Expirer, config CleanupConfig) *CleanupJob {
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	return &CleanupJob{store: s, config: config}
}

// Start begins the periodic cleanup job.
// This method is non-blocking and starts the cleanup in a goroutine.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.stopChan = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(ctx, j.stopChan, j.done)

	slog.Info("session cleanup job started",
		"retention", j.config.Retention,
		"interval", j.config.CleanupInterval,
		"include_open", j.config.IncludeOpen)
}

// Stop stops the cleanup job and waits for an in-flight run to finish.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopChan)
	done := j.done
	j.running = false
	j.mu.Unlock()

	<-done
	slog.Info("session cleanup job stopped")
}

// RunOnce executes a single cleanup run immediately.
func (j *CleanupJob) RunOnce(ctx context.Context) (int, error) {
	return j.store.DeleteExpired(ctx, j.config.Retention, !j.config.IncludeOpen)
}

func (j *CleanupJob) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	j.runLogged(ctx, "initial session cleanup")
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			j.runLogged(ctx, "session cleanup")
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context, label string) {
	start := time.Now()
	deleted, err := j.RunOnce(ctx)
	if err != nil {
		slog.Error(label+" failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info(label+" completed", "deleted", deleted, "latency_ms", time.Since(start).Milliseconds())
	}
}

// IsRunning returns whether the cleanup job is currently running.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

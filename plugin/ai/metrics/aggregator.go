// Package metrics aggregates session observations for the metrics endpoint.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/observer"
)

// maxLatencySamples bounds the per-hour latency window.
const maxLatencySamples = 4096

// Overview is a snapshot of the aggregated metrics.
type Overview struct {
	Turns          int64            `json:"turns"`
	Sessions       int64            `json:"sessions"`
	Events         map[string]int64 `json:"events"`
	Clarifications int64            `json:"clarifications"`
	Degraded       int64            `json:"degraded"`
	Outcomes       map[string]int64 `json:"outcomes"`
	LatencyP50     time.Duration    `json:"latency_p50"`
	LatencyP95     time.Duration    `json:"latency_p95"`
	Hours          []*HourStat      `json:"hours,omitempty"`
}

// HourStat is one hourly bucket of turn metrics.
type HourStat struct {
	Hour       time.Time     `json:"hour"`
	Turns      int64         `json:"turns"`
	LatencyP50 time.Duration `json:"latency_p50"`
	LatencyP95 time.Duration `json:"latency_p95"`
}

// Aggregator keeps counters in memory. It is an observer.Observer.
type Aggregator struct {
	mu sync.RWMutex

	sessions  map[string]struct{}
	events    map[observer.Kind]int64
	outcomes  map[string]int64
	clarified int64
	degraded  int64

	// Turn latencies: key = hour bucket as unix seconds
	hours     map[int64]*hourBucket
	retention time.Duration
	now       func() time.Time
}

type hourBucket struct {
	hour      time.Time
	turns     int64
	latencies []int64 // in milliseconds
}

var _ observer.Observer = (*Aggregator)(nil)

// NewAggregator creates an aggregator keeping 24 hourly buckets.
func NewAggregator() *Aggregator {
	return &Aggregator{
		sessions:  make(map[string]struct{}),
		events:    make(map[observer.Kind]int64),
		outcomes:  make(map[string]int64),
		hours:     make(map[int64]*hourBucket),
		retention: 24 * time.Hour,
		now:       time.Now,
	}
}

func (a *Aggregator) Name() string {
	return "metrics"
}

// Observe records one event.
func (a *Aggregator) Observe(_ context.Context, event observer.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.SessionID != "" {
		a.sessions[event.SessionID] = struct{}{}
	}
	a.events[event.Kind]++

	switch event.Kind {
	case observer.KindClarification:
		a.clarified++
	case observer.KindDegraded:
		a.degraded++
	case observer.KindTermination:
		a.outcomes[event.Status]++
	case observer.KindTurn:
		a.recordTurn(event)
	}
	return nil
}

func (a *Aggregator) recordTurn(event observer.Event) {
	at := event.At
	if at.IsZero() {
		at = a.now()
	}
	hour := truncateToHour(at)
	bucket, exists := a.hours[hour.Unix()]
	if !exists {
		bucket = &hourBucket{hour: hour, latencies: make([]int64, 0, 64)}
		a.hours[hour.Unix()] = bucket
		a.evict(hour)
	}
	bucket.turns++
	if len(bucket.latencies) < maxLatencySamples {
		bucket.latencies = append(bucket.latencies, event.Latency.Milliseconds())
	}
}

// evict drops buckets older than the retention window.
func (a *Aggregator) evict(latest time.Time) {
	for key, bucket := range a.hours {
		if latest.Sub(bucket.hour) >= a.retention {
			delete(a.hours, key)
		}
	}
}

// Overview returns aggregated stats.
func (a *Aggregator) Overview() *Overview {
	a.mu.RLock()
	defer a.mu.RUnlock()

	o := &Overview{
		Sessions:       int64(len(a.sessions)),
		Events:         make(map[string]int64, len(a.events)),
		Clarifications: a.clarified,
		Degraded:       a.degraded,
		Outcomes:       make(map[string]int64, len(a.outcomes)),
	}
	for k, v := range a.events {
		o.Events[string(k)] = v
	}
	for k, v := range a.outcomes {
		o.Outcomes[k] = v
	}

	all := make([]int64, 0)
	for _, bucket := range a.hours {
		o.Turns += bucket.turns
		all = append(all, bucket.latencies...)
		o.Hours = append(o.Hours, &HourStat{
			Hour:       bucket.hour,
			Turns:      bucket.turns,
			LatencyP50: time.Duration(percentile(bucket.latencies, 50)) * time.Millisecond,
			LatencyP95: time.Duration(percentile(bucket.latencies, 95)) * time.Millisecond,
		})
	}
	sort.Slice(o.Hours, func(i, j int) bool { return o.Hours[i].Hour.Before(o.Hours[j].Hour) })

	o.LatencyP50 = time.Duration(percentile(all, 50)) * time.Millisecond
	o.LatencyP95 = time.Duration(percentile(all, 95)) * time.Millisecond
	return o
}

// Helper functions

func truncateToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

// Package observability tracks which dimensions lookups filter on and how
// long lookups take.
package observability

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Latency outcomes recorded separately.
const (
	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

// QueryStats tracks filter dimension frequency and lookup latency.
type QueryStats struct {
	mu            sync.RWMutex
	dimensionFreq map[string]*DimensionStats
	latency       map[string]*ddsketch.DDSketch
	window        time.Duration
}

// DimensionStats holds statistics for one filter dimension.
type DimensionStats struct {
	Dimension string    `json:"dimension"`
	Frequency int64     `json:"frequency"`
	Values    int64     `json:"values"` // total values requested across lookups
	LastSeen  time.Time `json:"last_seen"`
}

// LatencySummary is a quantile summary in milliseconds.
type LatencySummary struct {
	Count float64 `json:"count"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// Snapshot is the JSON form of the current statistics.
type Snapshot struct {
	Dimensions []DimensionStats          `json:"dimensions"`
	Latency    map[string]LatencySummary `json:"latency"`
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old dimension entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		dimensionFreq: make(map[string]*DimensionStats),
		latency:       make(map[string]*ddsketch.DDSketch),
		window:        window,
	}
}

// RecordFilters records one lookup's filters: each dimension present and
// the number of values requested for it.
func (q *QueryStats) RecordFilters(filters map[string][]string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for dim, values := range filters {
		stats, exists := q.dimensionFreq[dim]
		if !exists {
			stats = &DimensionStats{Dimension: dim}
			q.dimensionFreq[dim] = stats
		}
		stats.Frequency++
		stats.Values += int64(len(values))
		stats.LastSeen = now
	}
}

// RecordLatency adds a lookup duration under outcome (hit or miss).
func (q *QueryStats) RecordLatency(outcome string, d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sketch, exists := q.latency[outcome]
	if !exists {
		var err error
		sketch, err = ddsketch.NewDefaultDDSketch(0.01)
		if err != nil {
			return
		}
		q.latency[outcome] = sketch
	}
	ms := float64(d) / float64(time.Millisecond)
	if ms <= 0 {
		ms = 0.001
	}
	_ = sketch.Add(ms)
}

// GetTopDimensions returns the top N dimensions by frequency.
// Returns copies sorted by frequency (descending), then by name.
func (q *QueryStats) GetTopDimensions(n int) []DimensionStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.dimensionFreq) == 0 {
		return []DimensionStats{}
	}

	stats := make([]DimensionStats, 0, len(q.dimensionFreq))
	for _, s := range q.dimensionFreq {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Dimension < stats[j].Dimension
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Latency returns the quantile summary for outcome. ok is false when
// nothing has been recorded.
func (q *QueryStats) Latency(outcome string) (LatencySummary, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	sketch, exists := q.latency[outcome]
	if !exists || sketch.IsEmpty() {
		return LatencySummary{}, false
	}
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p95, _ := sketch.GetValueAtQuantile(0.95)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	return LatencySummary{Count: sketch.GetCount(), P50: p50, P95: p95, P99: p99}, true
}

// Snapshot returns every dimension and latency summary.
func (q *QueryStats) Snapshot() Snapshot {
	snap := Snapshot{
		Dimensions: q.GetTopDimensions(math.MaxInt32),
		Latency:    make(map[string]LatencySummary),
	}
	for _, outcome := range []string{OutcomeHit, OutcomeMiss} {
		if s, ok := q.Latency(outcome); ok {
			snap.Latency[outcome] = s
		}
	}
	return snap
}

// Prune removes dimensions where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for dim, stats := range q.dimensionFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.dimensionFreq, dim)
		}
	}
}

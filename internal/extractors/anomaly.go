package extractors

import (
	"math"

	"github.com/miradorstack/fleetwatch/internal/models"
)

const anomalyDeviation = 0.25

// GroupStats accumulates per-(fleet, channel) sums and counts in one pass.
type GroupStats struct {
	groups map[models.GroupKey]*groupAggregate
}

type groupAggregate struct {
	sum   float64
	count int
}

// NewGroupStats returns an empty accumulator.
func NewGroupStats() *GroupStats {
	return &GroupStats{groups: make(map[models.GroupKey]*groupAggregate)}
}

// Add folds a chunk of readings into the accumulator.
func (g *GroupStats) Add(series []models.Measurement) {
	for _, m := range series {
		agg, ok := g.groups[m.Key()]
		if !ok {
			agg = &groupAggregate{}
			g.groups[m.Key()] = agg
		}
		agg.sum += m.Value
		agg.count++
	}
}

// Len returns the number of groups seen so far.
func (g *GroupStats) Len() int {
	return len(g.groups)
}

// LeaveOneOutMean returns the mean of m's group with m itself excluded.
// ok is false for single-reading groups and for groups m was never added to.
func (g *GroupStats) LeaveOneOutMean(m models.Measurement) (mean float64, ok bool) {
	agg, found := g.groups[m.Key()]
	if !found || agg.count <= 1 {
		return 0, false
	}
	return (agg.sum - m.Value) / float64(agg.count-1), true
}

// AnomalyExtractor flags readings that deviate from their group's leave-one-out mean.
type AnomalyExtractor struct {
	threshold float64
}

// NewAnomalyExtractor creates the statistical anomaly detector (relative deviation > 25%).
func NewAnomalyExtractor() *AnomalyExtractor {
	return &AnomalyExtractor{threshold: anomalyDeviation}
}

// Classify reports whether m is anomalous given fully accumulated stats.
func (e *AnomalyExtractor) Classify(stats *GroupStats, m models.Measurement) bool {
	loo, ok := stats.LeaveOneOutMean(m)
	if !ok || loo == 0 {
		return false
	}
	return math.Abs(m.Value-loo)/loo > e.threshold
}

// Flag emits an anomaly event for every reading of series that Classify accepts.
func (e *AnomalyExtractor) Flag(stats *GroupStats, series []models.Measurement) []models.Event {
	events := make([]models.Event, 0)
	for _, m := range series {
		if e.Classify(stats, m) {
			events = append(events, eventAt(m, models.EventAnomalousCurrent))
		}
	}
	return events
}

// Detect runs both passes over an in-memory series.
func (e *AnomalyExtractor) Detect(series []models.Measurement) []models.Event {
	stats := NewGroupStats()
	stats.Add(series)
	return e.Flag(stats, series)
}

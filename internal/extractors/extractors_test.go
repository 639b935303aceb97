package extractors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/fleetwatch/internal/models"
)

var base = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

func reading(fleet string, car models.CarNo, offset time.Duration, value float64) models.Measurement {
	return models.Measurement{OperDatetime: base.Add(offset), FleetID: fleet, CarNo: car, Value: value}
}

func TestOvercurrentBandBoundaries(t *testing.T) {
	e := NewOvercurrentExtractor()
	assert.Equal(t, 1102.0, e.Band().Lower)
	assert.Equal(t, 1218.0, e.Band().Upper)

	cases := map[float64]bool{
		1102.0:  true,
		1218.0:  true,
		1160.0:  true,
		1101.99: false,
		1218.01: false,
		1000.0:  false,
		547.0:   false,
	}
	for value, want := range cases {
		got := e.Match(reading("F1", models.Car1, 0, value))
		assert.Equalf(t, want, got, "value %v", value)
	}
}

func TestOvercurrentDetectKeepsRowTimestamps(t *testing.T) {
	series := []models.Measurement{
		reading("F1", models.Car1, 0, 1160),
		reading("F1", models.Car8, 0, 0.5),
		reading("F1", models.Car1, time.Minute, 1160),
		reading("F1", models.Car8, time.Minute, 0.5),
	}
	events := NewOvercurrentExtractor().Detect(series)
	require.Len(t, events, 2)
	for i, ev := range events {
		assert.Equal(t, models.EventOvercurrent, ev.EventNo)
		assert.Equal(t, models.Car1, ev.CarNo)
		assert.Equal(t, base.Add(time.Duration(i)*time.Minute), ev.OperDatetime)
	}
}

func TestOvercurrentEmpty(t *testing.T) {
	events := NewOvercurrentExtractor().Detect(nil)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func steadyRun(fleet string, car models.CarNo, start time.Duration, offsets ...time.Duration) []models.Measurement {
	out := make([]models.Measurement, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, reading(fleet, car, start+off, 547))
	}
	return out
}

func seconds(values ...int) []time.Duration {
	out := make([]time.Duration, 0, len(values))
	for _, v := range values {
		out = append(out, time.Duration(v)*time.Second)
	}
	return out
}

func TestOverloadBandBoundaries(t *testing.T) {
	e := NewOverloadExtractor()
	lower, upper := e.Band().Lower, e.Band().Upper
	assert.True(t, e.Qualifies(reading("F1", models.Car1, 0, lower)))
	assert.True(t, e.Qualifies(reading("F1", models.Car1, 0, upper)))
	assert.False(t, e.Qualifies(reading("F1", models.Car1, 0, 519.6)))
	assert.False(t, e.Qualifies(reading("F1", models.Car1, 0, 574.4)))
	assert.False(t, e.Qualifies(reading("F1", models.Car1, 0, 1160)))
}

func TestOverloadExactBoundaryDurationIsKept(t *testing.T) {
	series := steadyRun("F1", models.Car1, 0, seconds(0, 600, 1200, 1800, 2400, 3000, 3600)...)
	events := NewOverloadExtractor().Detect(series)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOverload, events[0].EventNo)
	assert.Equal(t, base, events[0].OperDatetime)
	assert.Equal(t, "F1", events[0].FleetID)
}

func TestOverloadJustShortDurationIsDropped(t *testing.T) {
	series := steadyRun("F1", models.Car1, 0, seconds(0, 600, 1200, 1800, 2400, 3000, 3599)...)
	assert.Empty(t, NewOverloadExtractor().Detect(series))
}

func TestOverloadGapBoundary(t *testing.T) {
	e := NewOverloadExtractor()

	same := e.Sessions(steadyRun("F1", models.Car1, 0, seconds(0, 600)...))
	require.Len(t, same, 1)
	assert.Equal(t, 2, same[0].Count)
	assert.Equal(t, 0, same[0].SessionID)

	split := e.Sessions(steadyRun("F1", models.Car1, 0, seconds(0, 601)...))
	require.Len(t, split, 2)
	assert.Equal(t, 0, split[0].SessionID)
	assert.Equal(t, 1, split[1].SessionID)
	assert.Equal(t, 1, split[1].Count)
}

func TestOverloadGapComparedInWholeSeconds(t *testing.T) {
	series := steadyRun("F1", models.Car1, 0, 0, 600*time.Second+500*time.Millisecond)
	sessions := NewOverloadExtractor().Sessions(series)
	assert.Len(t, sessions, 1)
}

func TestOverloadBreakDropsBothHalves(t *testing.T) {
	series := steadyRun("F1", models.Car1, 0, seconds(0, 600, 1200, 1801, 2400, 3000, 3600)...)
	sessions := NewOverloadExtractor().Sessions(append([]models.Measurement(nil), series...))
	require.Len(t, sessions, 2)
	assert.Empty(t, NewOverloadExtractor().Detect(series))
}

func TestOverloadSingleReadingDiscarded(t *testing.T) {
	series := []models.Measurement{reading("F1", models.Car1, 0, 547)}
	assert.Empty(t, NewOverloadExtractor().Detect(series))
}

func TestOverloadEmptyIsSchemaStable(t *testing.T) {
	e := NewOverloadExtractor()
	events := e.Detect([]models.Measurement{reading("F1", models.Car1, 0, 10)})
	assert.NotNil(t, events)
	assert.Empty(t, events)
	assert.NotNil(t, e.Detect(nil))
}

func TestOverloadGroupsAreIndependent(t *testing.T) {
	hour := seconds(0, 600, 1200, 1800, 2400, 3000, 3600)
	var series []models.Measurement
	series = append(series, steadyRun("F2", models.Car8, 0, hour...)...)
	series = append(series, steadyRun("F1", models.Car8, 0, hour...)...)
	series = append(series, steadyRun("F1", models.Car1, 2*time.Hour, hour...)...)
	series = append(series, steadyRun("F1", models.Car1, 0, hour...)...)
	// Interleaved readings of another channel must not split a session.
	series = append(series, reading("F1", models.Car8, 30*time.Second, 10))

	original := append([]models.Measurement(nil), series...)
	events := NewOverloadExtractor().Detect(series)
	assert.Equal(t, original, series, "input must not be reordered")

	require.Len(t, events, 4)
	assert.Equal(t, models.Event{OperDatetime: base, FleetID: "F1", CarNo: models.Car1, EventNo: models.EventOverload}, events[0])
	assert.Equal(t, models.Event{OperDatetime: base.Add(2 * time.Hour), FleetID: "F1", CarNo: models.Car1, EventNo: models.EventOverload}, events[1])
	assert.Equal(t, models.Event{OperDatetime: base, FleetID: "F1", CarNo: models.Car8, EventNo: models.EventOverload}, events[2])
	assert.Equal(t, models.Event{OperDatetime: base, FleetID: "F2", CarNo: models.Car8, EventNo: models.EventOverload}, events[3])
}

func TestOverloadSessionIDsRestartPerGroup(t *testing.T) {
	var series []models.Measurement
	series = append(series, steadyRun("F1", models.Car1, 0, seconds(0, 700, 1400)...)...)
	series = append(series, steadyRun("F1", models.Car8, 0, seconds(0, 700)...)...)

	sessions := NewOverloadExtractor().Sessions(series)
	require.Len(t, sessions, 5)
	ids := make([]int, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.SessionID)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, ids)
}

func TestAnomalyLeaveOneOut(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car1, 0, 100),
		reading("X", models.Car1, time.Minute, 100),
		reading("X", models.Car1, 2*time.Minute, 100),
		reading("X", models.Car1, 3*time.Minute, 200),
	}

	stats := NewGroupStats()
	stats.Add(series)
	loo, ok := stats.LeaveOneOutMean(series[3])
	require.True(t, ok)
	assert.Equal(t, 100.0, loo)

	// The value-100 rows see a mean of 400/3; their deviation of one quarter
	// rounds to just above 0.25 in float64, so every row is flagged.
	events := NewAnomalyExtractor().Detect(series)
	require.Len(t, events, 4)
	assert.Equal(t, base.Add(3*time.Minute), events[3].OperDatetime)
}

func TestAnomalyFlagsOnlyTheOutlier(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car1, 0, 100),
		reading("X", models.Car1, time.Minute, 100),
		reading("X", models.Car1, 2*time.Minute, 100),
		reading("X", models.Car1, 3*time.Minute, 100),
		reading("X", models.Car1, 4*time.Minute, 200),
	}
	events := NewAnomalyExtractor().Detect(series)
	require.Len(t, events, 1)
	assert.Equal(t, base.Add(4*time.Minute), events[0].OperDatetime)
	assert.Equal(t, models.EventAnomalousCurrent, events[0].EventNo)
	assert.Equal(t, models.Car1, events[0].CarNo)
}

func TestAnomalySingletonGroupNeverFlags(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car1, 0, 100),
		reading("Y", models.Car1, 0, 5000),
	}
	assert.Empty(t, NewAnomalyExtractor().Detect(series))
}

func TestAnomalyThresholdIsStrict(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car8, 0, 125),
		reading("X", models.Car8, time.Minute, 100),
		reading("X", models.Car8, 2*time.Minute, 100),
	}
	assert.Empty(t, NewAnomalyExtractor().Detect(series))
}

func TestAnomalyZeroMeanSkipped(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car1, 0, 10),
		reading("X", models.Car1, time.Minute, 0),
	}
	events := NewAnomalyExtractor().Detect(series)
	require.Len(t, events, 1)
	assert.Equal(t, base.Add(time.Minute), events[0].OperDatetime)
}

func TestAnomalyChannelsGroupedSeparately(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car1, 0, 100),
		reading("X", models.Car8, 0, 300),
		reading("X", models.Car1, time.Minute, 100),
		reading("X", models.Car8, time.Minute, 300),
	}
	assert.Empty(t, NewAnomalyExtractor().Detect(series))
}

func TestGroupStatsChunkedMatchesWhole(t *testing.T) {
	series := []models.Measurement{
		reading("X", models.Car1, 0, 10),
		reading("X", models.Car1, time.Minute, 20),
		reading("X", models.Car1, 2*time.Minute, 90),
	}
	whole := NewGroupStats()
	whole.Add(series)

	chunked := NewGroupStats()
	chunked.Add(series[:1])
	chunked.Add(series[1:])

	for _, m := range series {
		a, okA := whole.LeaveOneOutMean(m)
		b, okB := chunked.LeaveOneOutMean(m)
		assert.Equal(t, okA, okB)
		assert.Equal(t, a, b)
	}
	assert.Equal(t, 1, chunked.Len())
}

package extractors

import (
	"sort"
	"time"

	"github.com/miradorstack/fleetwatch/internal/models"
)

const (
	overloadTarget  = 547
	overloadCeiling = 1000

	// SessionGap is the longest pause, inclusive, between readings of one session.
	SessionGap = 600 * time.Second
	// MinSessionDuration is the shortest span, inclusive, that counts as an overload.
	MinSessionDuration = 3600 * time.Second
)

// OverloadExtractor finds sustained runs of readings inside the overload band.
type OverloadExtractor struct {
	band        Band
	ceiling     float64
	gap         time.Duration
	minDuration time.Duration
}

// NewOverloadExtractor creates the overload session detector (547 ± 5% for at least an hour).
func NewOverloadExtractor() *OverloadExtractor {
	return &OverloadExtractor{
		band:        NewBand(overloadTarget),
		ceiling:     overloadCeiling,
		gap:         SessionGap,
		minDuration: MinSessionDuration,
	}
}

// Band exposes the classification interval.
func (e *OverloadExtractor) Band() Band {
	return e.band
}

// Qualifies reports whether a single reading belongs to the overload band.
func (e *OverloadExtractor) Qualifies(m models.Measurement) bool {
	return m.Value <= e.ceiling && e.band.Contains(m.Value)
}

// Filter returns the qualifying readings as a new slice; series is left untouched.
func (e *OverloadExtractor) Filter(series []models.Measurement) []models.Measurement {
	out := make([]models.Measurement, 0)
	for _, m := range series {
		if e.Qualifies(m) {
			out = append(out, m)
		}
	}
	return out
}

// Detect filters series and emits one overload event per retained session.
func (e *OverloadExtractor) Detect(series []models.Measurement) []models.Event {
	return e.DetectQualified(e.Filter(series))
}

// DetectQualified emits overload events from readings that already passed Qualifies.
// It sorts qualified in place.
func (e *OverloadExtractor) DetectQualified(qualified []models.Measurement) []models.Event {
	events := make([]models.Event, 0)
	for _, s := range e.Sessions(qualified) {
		if wholeSeconds(s.Duration()) < int64(e.minDuration/time.Second) {
			continue
		}
		events = append(events, models.Event{
			OperDatetime: s.StartTime,
			FleetID:      s.FleetID,
			CarNo:        s.CarNo,
			EventNo:      models.EventOverload,
		})
	}
	return events
}

// Sessions sorts qualified by (fleet, channel, time) in place and splits each
// group wherever consecutive readings are more than the session gap apart.
// Session ids restart at zero for every group.
func (e *OverloadExtractor) Sessions(qualified []models.Measurement) []models.Session {
	if len(qualified) == 0 {
		return nil
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.FleetID != b.FleetID {
			return a.FleetID < b.FleetID
		}
		if a.CarNo != b.CarNo {
			return a.CarNo < b.CarNo
		}
		return a.OperDatetime.Before(b.OperDatetime)
	})

	gapSeconds := int64(e.gap / time.Second)
	sessions := make([]models.Session, 0)
	cur := -1
	for i, m := range qualified {
		newGroup := i == 0 || m.Key() != qualified[i-1].Key()
		if newGroup {
			sessions = append(sessions, newSession(m, 0))
			cur = len(sessions) - 1
			continue
		}

		delta := wholeSeconds(m.OperDatetime.Sub(qualified[i-1].OperDatetime))
		if delta > gapSeconds {
			sessions = append(sessions, newSession(m, sessions[cur].SessionID+1))
			cur = len(sessions) - 1
			continue
		}

		s := &sessions[cur]
		if m.OperDatetime.Before(s.StartTime) {
			s.StartTime = m.OperDatetime
		}
		if m.OperDatetime.After(s.EndTime) {
			s.EndTime = m.OperDatetime
		}
		s.Count++
	}
	return sessions
}

func newSession(m models.Measurement, id int) models.Session {
	return models.Session{
		FleetID:   m.FleetID,
		CarNo:     m.CarNo,
		SessionID: id,
		StartTime: m.OperDatetime,
		EndTime:   m.OperDatetime,
		Count:     1,
	}
}

// wholeSeconds truncates toward zero, matching how gaps and spans are compared.
func wholeSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

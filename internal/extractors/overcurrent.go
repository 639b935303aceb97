package extractors

import "github.com/miradorstack/fleetwatch/internal/models"

const (
	overcurrentTarget = 1160
	overcurrentFloor  = 1000
)

// OvercurrentExtractor flags single readings inside the overcurrent band.
type OvercurrentExtractor struct {
	band  Band
	floor float64
}

// NewOvercurrentExtractor creates the overcurrent classifier (1160 ± 5%).
func NewOvercurrentExtractor() *OvercurrentExtractor {
	return &OvercurrentExtractor{
		band:  NewBand(overcurrentTarget),
		floor: overcurrentFloor,
	}
}

// Band exposes the classification interval.
func (e *OvercurrentExtractor) Band() Band {
	return e.band
}

// Match reports whether m is an overcurrent reading. The floor check is kept
// separate from the band even though the band currently sits above it.
func (e *OvercurrentExtractor) Match(m models.Measurement) bool {
	if !(m.Value > e.floor) {
		return false
	}
	return e.band.Contains(m.Value)
}

// Detect emits one overcurrent event per matching reading, in input order.
func (e *OvercurrentExtractor) Detect(series []models.Measurement) []models.Event {
	events := make([]models.Event, 0)
	for _, m := range series {
		if e.Match(m) {
			events = append(events, eventAt(m, models.EventOvercurrent))
		}
	}
	return events
}

func eventAt(m models.Measurement, kind models.EventKind) models.Event {
	return models.Event{
		OperDatetime: m.OperDatetime,
		FleetID:      m.FleetID,
		CarNo:        m.CarNo,
		EventNo:      kind,
	}
}

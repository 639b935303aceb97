package models

import "time"

// EventKind enumerates abnormal operating event categories.
type EventKind int

const (
	EventOvercurrent EventKind = iota + 1
	EventOverload
	EventAnomalousCurrent
)

// Label is the operator-facing name written to the result artifact.
func (k EventKind) Label() string {
	switch k {
	case EventOvercurrent:
		return "과전류 검지"
	case EventOverload:
		return "과부하 검지"
	case EventAnomalousCurrent:
		return "이상 전류 검지"
	default:
		return "unknown"
	}
}

// Slug is the stable identifier used for metric labels and logs.
func (k EventKind) Slug() string {
	switch k {
	case EventOvercurrent:
		return "overcurrent"
	case EventOverload:
		return "overload"
	case EventAnomalousCurrent:
		return "anomalous_current"
	default:
		return "unknown"
	}
}

func (k EventKind) String() string {
	return k.Slug()
}

// Event is a detected abnormal reading or session.
type Event struct {
	OperDatetime time.Time
	FleetID      string
	CarNo        CarNo
	EventNo      EventKind
}

// Session groups consecutive overload-band readings for one vehicle channel.
type Session struct {
	FleetID   string
	CarNo     CarNo
	SessionID int
	StartTime time.Time
	EndTime   time.Time
	Count     int
}

// Duration is the span between the first and last reading of the session.
func (s Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

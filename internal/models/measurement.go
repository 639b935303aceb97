package models

import "time"

// RawRow is a wide input row as read from the source file. Every field is kept
// as text until the normalizer casts it.
type RawRow struct {
	OperDatetime string
	FleetID      string
	Car1Value    string
	Car8Value    string
}

// CarNo identifies one of the two sensor channels on a vehicle.
type CarNo int8

const (
	Car1 CarNo = 1
	Car8 CarNo = 8
)

// Measurement is a single-channel reading in long format.
type Measurement struct {
	OperDatetime time.Time
	FleetID      string
	CarNo        CarNo
	Value        float64
}

// GroupKey partitions measurements per vehicle channel.
type GroupKey struct {
	FleetID string
	CarNo   CarNo
}

// Key returns the (fleet, channel) group of the measurement.
func (m Measurement) Key() GroupKey {
	return GroupKey{FleetID: m.FleetID, CarNo: m.CarNo}
}

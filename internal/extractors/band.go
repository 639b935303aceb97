package extractors

// Band is an inclusive ±5% interval around a target reading.
type Band struct {
	Target float64
	Lower  float64
	Upper  float64
}

// NewBand builds [target*0.95, target*1.05].
func NewBand(target float64) Band {
	return Band{
		Target: target,
		Lower:  target * 0.95,
		Upper:  target * 1.05,
	}
}

// Contains reports whether v lies in the band, bounds included.
func (b Band) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

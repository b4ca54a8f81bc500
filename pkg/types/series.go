package types

// Series is a time-indexed scalar signal, used for 0/1 occupancy waves such
// as per-CPU activity.
type Series struct {
	// Times holds the sample timestamps in seconds, non-decreasing
	Times []float64 `json:"times"`

	// Values holds the sample values
	Values []float64 `json:"values"`
}

// Len returns the number of samples.
func (s Series) Len() int {
	return len(s.Times)
}

// Integral computes the integral of a square wave assuming only 0.0 and 1.0
// values. Each sample holds its value until the next sample; the last sample
// contributes nothing.
func (s Series) Integral() float64 {
	var total float64
	for i := 0; i+1 < len(s.Times); i++ {
		total += s.Values[i] * (s.Times[i+1] - s.Times[i])
	}
	return total
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	return Series{
		Times:  append([]float64(nil), s.Times...),
		Values: append([]float64(nil), s.Values...),
	}
}

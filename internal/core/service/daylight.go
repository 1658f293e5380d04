package service

import (
	"time"

	"github.com/sixdouglas/suncalc"
)

// DaylightFilter zeroes PV forecast slots that lie entirely in the night at a
// given site.
type DaylightFilter struct {
	Latitude  float64
	Longitude float64
}

func NewDaylightFilter(latitude, longitude float64) *DaylightFilter {
	return &DaylightFilter{Latitude: latitude, Longitude: longitude}
}

// IsNight reports whether the interval [from, to) has no daylight.
func (d *DaylightFilter) IsNight(from, to time.Time) bool {
	times := suncalc.GetTimes(from, d.Latitude, d.Longitude)
	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value

	if sunrise.IsZero() || sunset.IsZero() {
		// polar day or night
		return suncalc.GetPosition(from, d.Latitude, d.Longitude).Altitude < 0 &&
			suncalc.GetPosition(to, d.Latitude, d.Longitude).Altitude < 0
	}
	return !to.After(sunrise) || !from.Before(sunset)
}

// Apply returns a copy of pv with night slots set to zero. Slot i covers
// [start + i*step, start + (i+1)*step).
func (d *DaylightFilter) Apply(pv []float64, start time.Time, stepMinutes int) []float64 {
	out := append([]float64(nil), pv...)
	if d == nil || start.IsZero() || stepMinutes <= 0 {
		return out
	}
	step := time.Duration(stepMinutes) * time.Minute
	for i := range out {
		if out[i] == 0 {
			continue
		}
		from := start.Add(time.Duration(i) * step)
		if d.IsNight(from, from.Add(step)) {
			out[i] = 0
		}
	}
	return out
}

package service

import (
	"math"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
)

const (
	OSCILLATION_LOOKAHEAD_MINUTES = 120
	// PV minus consumption above this (kW) makes charging cost the feed-in price
	PV_SURPLUS_THRESHOLD_KW = 0.05
)

// FilterForecast holds the forecasts the oscillation filter needs, all
// truncated to the schedule length.
type FilterForecast struct {
	Prices      []float64
	FeedIn      []float64
	PV          []float64
	Consumption []float64
}

// StepPair is a charge/discharge pair found within the lookahead window.
type StepPair struct {
	From int
	To   int
}

// OscillationFilter neutralizes charge/discharge pairs whose spread does not
// cover the round-trip losses and battery wear.
type OscillationFilter struct {
	RoundTripEff      float64
	DegradationPerKWh float64
	MinPriceSpread    float64
	MinSoCKWh         float64
	MaxSoCKWh         float64
	WindowSteps       int
}

func NewOscillationFilter(battery domain.BatteryConfig, degradationPerKWh, minPriceSpread float64, stepMinutes int) OscillationFilter {
	window := 8
	if stepMinutes > 0 {
		window = int(math.Round(float64(OSCILLATION_LOOKAHEAD_MINUTES) / float64(stepMinutes)))
	}
	if window < 2 {
		window = 2
	}
	return OscillationFilter{
		RoundTripEff:      battery.RoundTripEfficiency,
		DegradationPerKWh: degradationPerKWh,
		MinPriceSpread:    minPriceSpread,
		MinSoCKWh:         battery.MinSoCKWh,
		MaxSoCKWh:         battery.MaxSoCKWh,
		WindowSteps:       window,
	}
}

// MinArbitrageSpread is the effective spread (EUR/kWh) a pair needs to be kept.
func (f OscillationFilter) MinArbitrageSpread() float64 {
	return (2*f.DegradationPerKWh + f.MinPriceSpread) / math.Sqrt(f.RoundTripEff)
}

// chargeCost is the feed-in price when PV surplus is available at step t, the
// buy price otherwise.
func (f OscillationFilter) chargeCost(fc FilterForecast, t int) float64 {
	if t < len(fc.PV) && t < len(fc.Consumption) && t < len(fc.FeedIn) {
		if fc.PV[t]-fc.Consumption[t] > PV_SURPLUS_THRESHOLD_KW {
			return fc.FeedIn[t]
		}
	}
	return fc.Prices[t]
}

func (f OscillationFilter) profitable(fc FilterForecast, chargeStep, dischargeStep int) bool {
	spread := fc.Prices[dischargeStep] - f.chargeCost(fc, chargeStep)/f.RoundTripEff
	return spread >= f.MinArbitrageSpread()
}

// Apply returns a filtered copy of the schedule. The SoC trajectory is
// recomputed from socKWh[0]. Inputs are not modified.
func (f OscillationFilter) Apply(powerKW []float64, modes []domain.BatteryMode, socKWh []float64,
	fc FilterForecast, durationH float64) ([]float64, []domain.BatteryMode, []float64) {
	if len(powerKW) == 0 {
		return powerKW, modes, socKWh
	}

	power := append([]float64(nil), powerKW...)
	mode := append([]domain.BatteryMode(nil), modes...)
	n := min(len(mode), len(fc.Prices))

	for i := 0; i < n-1; i++ {
		end := min(i+f.WindowSteps, n)
		switch mode[i] {
		case domain.BATTERY_MODE_CHARGING:
			for j := i + 1; j < end; j++ {
				if mode[j] == domain.BATTERY_MODE_DISCHARGING && !f.profitable(fc, i, j) {
					power[i] = 0
					mode[i] = domain.BATTERY_MODE_IDLE
					break
				}
			}
		case domain.BATTERY_MODE_DISCHARGING:
			for j := i + 1; j < end; j++ {
				if mode[j] == domain.BATTERY_MODE_CHARGING && !f.profitable(fc, j, i) {
					power[i] = 0
					mode[i] = domain.BATTERY_MODE_IDLE
					break
				}
			}
		}
	}

	start := 0.0
	if len(socKWh) > 0 {
		start = socKWh[0]
	}
	return power, mode, f.socTrajectory(start, power, durationH)
}

func (f OscillationFilter) socTrajectory(start float64, powerKW []float64, durationH float64) []float64 {
	soc := make([]float64, 0, len(powerKW)+1)
	current := start
	soc = append(soc, current)
	for _, p := range powerKW {
		if p > 0 {
			current = math.Min(current+p*durationH, f.MaxSoCKWh)
		} else if p < 0 {
			current = math.Max(current+p*durationH, f.MinSoCKWh)
		}
		soc = append(soc, current)
	}
	return soc
}

// UnprofitablePairs lists every opposite-direction pair within the lookahead
// window whose spread is below MinArbitrageSpread. From is always the earlier
// step.
func (f OscillationFilter) UnprofitablePairs(modes []domain.BatteryMode, fc FilterForecast) []StepPair {
	var pairs []StepPair
	n := min(len(modes), len(fc.Prices))
	for i := 0; i < n-1; i++ {
		end := min(i+f.WindowSteps, n)
		for j := i + 1; j < end; j++ {
			switch {
			case modes[i] == domain.BATTERY_MODE_CHARGING && modes[j] == domain.BATTERY_MODE_DISCHARGING:
				if !f.profitable(fc, i, j) {
					pairs = append(pairs, StepPair{From: i, To: j})
				}
			case modes[i] == domain.BATTERY_MODE_DISCHARGING && modes[j] == domain.BATTERY_MODE_CHARGING:
				if !f.profitable(fc, j, i) {
					pairs = append(pairs, StepPair{From: i, To: j})
				}
			}
		}
	}
	return pairs
}

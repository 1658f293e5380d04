package domain

import (
	"errors"
	"fmt"
	"math"
)

const (
	DEFAULT_CAPACITY_KWH           = 10.0
	DEFAULT_MAX_CHARGE_POWER_KW    = 5.0
	DEFAULT_MAX_DISCHARGE_POWER_KW = 5.0
	DEFAULT_ROUND_TRIP_EFFICIENCY  = 0.90
	DEFAULT_MIN_SOC_PERCENT        = 10.0
	DEFAULT_MAX_SOC_PERCENT        = 90.0
	DEFAULT_PV_DC_EFFICIENCY       = 0.97

	// DC PV surplus not stored in the battery goes through the inverter at this efficiency
	DC_TO_AC_EFFICIENCY = 0.96

	// battery power above this magnitude is considered charging/discharging
	BATTERY_MODE_THRESHOLD_W = 50.0
)

var ErrInvalidBatteryConfig = errors.New("invalid battery config")

// BatterySpec holds the user facing battery parameters. Zero values are
// replaced by defaults in NewBatteryConfig.
type BatterySpec struct {
	CapacityKWh         float64
	UsableCapacityKWh   float64
	MinSoCPercent       float64
	MaxSoCPercent       float64
	MaxChargePowerKW    float64
	MaxDischargePowerKW float64
	RoundTripEfficiency float64
	DCCoupledPV         bool
	PVDCPeakPowerKW     float64
	PVDCEfficiency      float64
}

// BatteryConfig is the immutable physical model of the battery. All derived
// values are computed once by NewBatteryConfig.
type BatteryConfig struct {
	CapacityKWh         float64
	UsableCapacityKWh   float64
	MinSoCPercent       float64
	MaxSoCPercent       float64
	MinSoCKWh           float64
	MaxSoCKWh           float64
	MaxChargePowerKW    float64
	MaxDischargePowerKW float64
	RoundTripEfficiency float64
	ChargeEfficiency    float64
	DischargeEfficiency float64
	DCCoupledPV         bool
	PVDCPeakPowerKW     float64
	PVDCEfficiency      float64
}

func DefaultBatterySpec() BatterySpec {
	return BatterySpec{
		CapacityKWh:         DEFAULT_CAPACITY_KWH,
		MinSoCPercent:       DEFAULT_MIN_SOC_PERCENT,
		MaxSoCPercent:       DEFAULT_MAX_SOC_PERCENT,
		MaxChargePowerKW:    DEFAULT_MAX_CHARGE_POWER_KW,
		MaxDischargePowerKW: DEFAULT_MAX_DISCHARGE_POWER_KW,
		RoundTripEfficiency: DEFAULT_ROUND_TRIP_EFFICIENCY,
		PVDCEfficiency:      DEFAULT_PV_DC_EFFICIENCY,
	}
}

func NewBatteryConfig(spec BatterySpec) (BatteryConfig, error) {
	if spec.PVDCEfficiency == 0 {
		spec.PVDCEfficiency = DEFAULT_PV_DC_EFFICIENCY
	}
	if spec.CapacityKWh <= 0 {
		return BatteryConfig{}, fmt.Errorf("%w: capacity must be > 0", ErrInvalidBatteryConfig)
	}
	if spec.MinSoCPercent < 0 || spec.MaxSoCPercent > 100 || spec.MinSoCPercent >= spec.MaxSoCPercent {
		return BatteryConfig{}, fmt.Errorf("%w: soc bounds must satisfy 0 <= min < max <= 100", ErrInvalidBatteryConfig)
	}
	if spec.RoundTripEfficiency <= 0 || spec.RoundTripEfficiency > 1 {
		return BatteryConfig{}, fmt.Errorf("%w: round trip efficiency must be in (0,1]", ErrInvalidBatteryConfig)
	}
	if spec.PVDCEfficiency <= 0 || spec.PVDCEfficiency > 1 {
		return BatteryConfig{}, fmt.Errorf("%w: pv dc efficiency must be in (0,1]", ErrInvalidBatteryConfig)
	}
	if spec.MaxChargePowerKW < 0 || spec.MaxDischargePowerKW < 0 {
		return BatteryConfig{}, fmt.Errorf("%w: power ratings must be >= 0", ErrInvalidBatteryConfig)
	}

	eff := math.Sqrt(spec.RoundTripEfficiency)
	cfg := BatteryConfig{
		CapacityKWh:         spec.CapacityKWh,
		UsableCapacityKWh:   spec.UsableCapacityKWh,
		MinSoCPercent:       spec.MinSoCPercent,
		MaxSoCPercent:       spec.MaxSoCPercent,
		MinSoCKWh:           spec.CapacityKWh * spec.MinSoCPercent / 100,
		MaxSoCKWh:           spec.CapacityKWh * spec.MaxSoCPercent / 100,
		MaxChargePowerKW:    spec.MaxChargePowerKW,
		MaxDischargePowerKW: spec.MaxDischargePowerKW,
		RoundTripEfficiency: spec.RoundTripEfficiency,
		ChargeEfficiency:    eff,
		DischargeEfficiency: eff,
		DCCoupledPV:         spec.DCCoupledPV,
		PVDCPeakPowerKW:     spec.PVDCPeakPowerKW,
		PVDCEfficiency:      spec.PVDCEfficiency,
	}
	if cfg.UsableCapacityKWh <= 0 {
		cfg.UsableCapacityKWh = cfg.MaxSoCKWh - cfg.MinSoCKWh
	}
	return cfg, nil
}

func (c BatteryConfig) SoCPercent(socKWh float64) float64 {
	if c.CapacityKWh <= 0 {
		return 0
	}
	return socKWh / c.CapacityKWh * 100
}

// Efficiency returns the one-way conversion efficiency for the given power
// (positive = charging) at the given state of charge.
func (c BatteryConfig) Efficiency(powerKW, socPercent float64) float64 {
	eff := c.DischargeEfficiency
	if powerKW >= 0 {
		eff = c.ChargeEfficiency
	}

	// -2% per 0.5C above 0.5C
	if c.CapacityKWh > 0 {
		cRate := math.Abs(powerKW) / c.CapacityKWh
		eff *= math.Max(0, 1-0.02*math.Max(0, cRate-0.5)/0.5)
	}

	// the extreme band replaces the mild band
	if socPercent < 10 || socPercent > 90 {
		eff *= 0.95
	} else if socPercent < 20 || socPercent > 80 {
		eff *= 0.98
	}
	return eff
}

// ApplyPower advances the state of charge by running the battery at powerKW
// for durationH hours. The returned energy is the kWh actually moved into the
// battery when charging, or the kWh taken out of it when discharging.
func (c BatteryConfig) ApplyPower(socKWh, powerKW, durationH float64) (float64, float64) {
	if durationH <= 0 || powerKW == 0 {
		return socKWh, 0
	}
	eff := c.Efficiency(powerKW, c.SoCPercent(socKWh))
	if eff <= 0 {
		return socKWh, 0
	}
	if powerKW > 0 {
		if socKWh >= c.MaxSoCKWh {
			return socKWh, 0
		}
		newSoC := math.Min(socKWh+powerKW*durationH*eff, c.MaxSoCKWh)
		return newSoC, newSoC - socKWh
	}
	if socKWh <= c.MinSoCKWh {
		return socKWh, 0
	}
	newSoC := math.Max(socKWh-(-powerKW)*durationH/eff, c.MinSoCKWh)
	return newSoC, socKWh - newSoC
}

// MaxChargePower is the highest charge power (kW) that fits the remaining
// headroom within durationH, capped at the rated power.
func (c BatteryConfig) MaxChargePower(socKWh, durationH float64) float64 {
	headroom := c.MaxSoCKWh - socKWh
	if headroom <= 0 || durationH <= 0 {
		return 0
	}
	eff := c.Efficiency(c.MaxChargePowerKW, c.SoCPercent(socKWh))
	if eff <= 0 {
		return 0
	}
	return math.Min(headroom/(durationH*eff), c.MaxChargePowerKW)
}

// MaxDischargePower is the highest discharge power (kW, positive) the stored
// energy above the floor can sustain for durationH, capped at the rated power.
func (c BatteryConfig) MaxDischargePower(socKWh, durationH float64) float64 {
	available := socKWh - c.MinSoCKWh
	if available <= 0 || durationH <= 0 {
		return 0
	}
	eff := c.Efficiency(-c.MaxDischargePowerKW, c.SoCPercent(socKWh))
	return math.Min(available*eff/durationH, c.MaxDischargePowerKW)
}

// ShouldCycle reports whether buying at buyPrice and selling later at
// sellPrice is profitable after losses and wear on both legs.
func ShouldCycle(buyPrice, sellPrice, roundTripEfficiency, degradationPerKWh float64) bool {
	if roundTripEfficiency <= 0 {
		return false
	}
	return sellPrice > buyPrice/roundTripEfficiency+2*degradationPerKWh
}

// DegradationCostPerKWh spreads the battery price over its lifetime throughput.
func DegradationCostPerKWh(batteryCost float64, cycleLife int, depthOfDischarge float64) float64 {
	if cycleLife <= 0 || depthOfDischarge <= 0 {
		return 0
	}
	return batteryCost / float64(cycleLife) / (2 * depthOfDischarge)
}

type BatteryMode string

const (
	BATTERY_MODE_IDLE        BatteryMode = "idle"
	BATTERY_MODE_CHARGING    BatteryMode = "charging"
	BATTERY_MODE_DISCHARGING BatteryMode = "discharging"
)

func BatteryModeForPowerW(powerW float64) BatteryMode {
	switch {
	case powerW > BATTERY_MODE_THRESHOLD_W:
		return BATTERY_MODE_CHARGING
	case powerW < -BATTERY_MODE_THRESHOLD_W:
		return BATTERY_MODE_DISCHARGING
	default:
		return BATTERY_MODE_IDLE
	}
}

// BatteryState is a point-in-time snapshot of the battery.
type BatteryState struct {
	SoCKWh     float64
	SoCPercent float64
	PowerKW    float64
	Mode       BatteryMode
}

func BatteryStateFromSoCKWh(socKWh, capacityKWh float64) BatteryState {
	pct := 0.0
	if capacityKWh > 0 {
		pct = socKWh / capacityKWh * 100
	}
	return BatteryState{
		SoCKWh:     socKWh,
		SoCPercent: pct,
		Mode:       BATTERY_MODE_IDLE,
	}
}

func BatteryStateFromSoCPercent(socPercent, capacityKWh float64) BatteryState {
	return BatteryState{
		SoCKWh:     capacityKWh * socPercent / 100,
		SoCPercent: socPercent,
		Mode:       BATTERY_MODE_IDLE,
	}
}

func (s BatteryState) WithPowerKW(powerKW float64) BatteryState {
	s.PowerKW = powerKW
	s.Mode = BatteryModeForPowerW(powerKW * 1000)
	return s
}

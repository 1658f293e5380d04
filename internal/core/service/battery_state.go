package service

import (
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
)

const FALLBACK_SOC_PERCENT = 50.0

// CurrentBatteryState normalizes a telemetry reading into a BatteryState.
// Without a valid SoC the last known SoC is used, or 50 % when there is none.
func CurrentBatteryState(t domain.Telemetry, lastKnown *domain.BatteryState, battery domain.BatteryConfig) domain.BatteryState {
	var state domain.BatteryState
	switch {
	case !t.SoCValid:
		pct := FALLBACK_SOC_PERCENT
		if lastKnown != nil {
			pct = lastKnown.SoCPercent
		}
		state = domain.BatteryStateFromSoCPercent(pct, battery.CapacityKWh)
	case t.SoCUnit == domain.SOC_UNIT_KWH:
		state = domain.BatteryStateFromSoCKWh(t.SoC, battery.CapacityKWh)
	default:
		state = domain.BatteryStateFromSoCPercent(t.SoC, battery.CapacityKWh)
	}

	powerKW := t.BatteryPower
	if t.BatteryPowerUnit != domain.POWER_UNIT_KW {
		powerKW /= 1000
	}
	return state.WithPowerKW(SafeFloat(powerKW, 0))
}

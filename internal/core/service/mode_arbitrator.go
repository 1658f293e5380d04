package service

import (
	"fmt"
	"math"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/port"
)

type ArbitrationInput = port.ArbitrationInput

// ModeArbitrator reconciles the optimizer plan with the live grid reading and
// the user selected control mode.
type ModeArbitrator struct {
	RoundTripEff float64
}

func NewModeArbitrator(battery domain.BatteryConfig) ModeArbitrator {
	return ModeArbitrator{RoundTripEff: battery.RoundTripEfficiency}
}

func (a ModeArbitrator) Arbitrate(in ArbitrationInput) domain.ArbitrationDecision {
	r := in.Result
	switch in.ControlMode {
	case domain.CONTROL_MODE_ZERO_GRID:
		return domain.ArbitrationDecision{Mode: domain.EFFECTIVE_MODE_ZERO_GRID, Reason: "zero_grid selected"}
	case domain.CONTROL_MODE_MANUAL:
		return domain.ArbitrationDecision{Mode: domain.EFFECTIVE_MODE_MANUAL, Reason: "manual selected"}
	case domain.CONTROL_MODE_HYBRID:
		return a.hybrid(in)
	default:
		return domain.ArbitrationDecision{
			Mode:    effectiveModeOf(r.OptimalMode),
			PowerKW: r.OptimalPowerKW,
			Reason:  "following schedule",
		}
	}
}

func (a ModeArbitrator) hybrid(in ArbitrationInput) domain.ArbitrationDecision {
	r := in.Result
	switch {
	case r.OptimalMode == domain.BATTERY_MODE_IDLE:
		if r.HasDischargeAfterFirst() && in.CurrentGridW >= 0 {
			return domain.ArbitrationDecision{Mode: domain.EFFECTIVE_MODE_IDLE, Reason: "preserving charge for planned discharge"}
		}
		return domain.ArbitrationDecision{Mode: domain.EFFECTIVE_MODE_ZERO_GRID, Reason: "no discharge planned or pv surplus"}

	case r.OptimalMode == domain.BATTERY_MODE_DISCHARGING:
		exportValue := in.FeedInPrice * math.Sqrt(a.RoundTripEff)
		if exportValue >= r.ShadowPrice {
			return domain.ArbitrationDecision{
				Mode:    domain.EFFECTIVE_MODE_DISCHARGING,
				PowerKW: r.OptimalPowerKW,
				Reason:  fmt.Sprintf("export value %.4f >= shadow price %.4f", exportValue, r.ShadowPrice),
			}
		}
		return domain.ArbitrationDecision{
			Mode:   domain.EFFECTIVE_MODE_ZERO_GRID,
			Reason: fmt.Sprintf("export value %.4f < shadow price %.4f", exportValue, r.ShadowPrice),
		}

	case r.OptimalMode == domain.BATTERY_MODE_CHARGING && in.CurrentGridW < 0:
		if in.FeedInPrice < 0 {
			return domain.ArbitrationDecision{
				Mode:    domain.EFFECTIVE_MODE_CHARGING,
				PowerKW: r.OptimalPowerKW,
				Reason:  "negative feed-in price, charging at scheduled rate",
			}
		}
		return domain.ArbitrationDecision{Mode: domain.EFFECTIVE_MODE_ZERO_GRID, Reason: "tracking pv surplus"}
	}

	return domain.ArbitrationDecision{
		Mode:    effectiveModeOf(r.OptimalMode),
		PowerKW: r.OptimalPowerKW,
		Reason:  "following schedule",
	}
}

// ResolveControllerMode maps an effective mode to the mode the real-time
// controller runs in. With live power sensors an idle plan absorbs PV
// surplus through zero_grid.
func (a ModeArbitrator) ResolveControllerMode(mode domain.EffectiveMode, gridW float64, hasPowerSensors bool) domain.ControllerMode {
	switch mode {
	case domain.EFFECTIVE_MODE_ZERO_GRID:
		return domain.CONTROLLER_MODE_ZERO_GRID
	case domain.EFFECTIVE_MODE_IDLE:
		if gridW < 0 && hasPowerSensors {
			return domain.CONTROLLER_MODE_ZERO_GRID
		}
		return domain.CONTROLLER_MODE_IDLE
	case domain.EFFECTIVE_MODE_MANUAL:
		return domain.CONTROLLER_MODE_MANUAL
	case domain.EFFECTIVE_MODE_CHARGING, domain.EFFECTIVE_MODE_DISCHARGING:
		return domain.CONTROLLER_MODE_FOLLOW_SCHEDULE
	}
	return domain.CONTROLLER_MODE_MANUAL
}

func effectiveModeOf(mode domain.BatteryMode) domain.EffectiveMode {
	switch mode {
	case domain.BATTERY_MODE_CHARGING:
		return domain.EFFECTIVE_MODE_CHARGING
	case domain.BATTERY_MODE_DISCHARGING:
		return domain.EFFECTIVE_MODE_DISCHARGING
	default:
		return domain.EFFECTIVE_MODE_IDLE
	}
}

// ensure interface compliance
var _ port.ModeArbitrator = ModeArbitrator{}

package service

import (
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/port"
)

// GridW returns the measured grid power when the meter reading is valid and
// an estimate from the forecast step otherwise.
func GridW(t domain.Telemetry, consumptionKW, pvKW, pvDCKW, batteryKW float64) float64 {
	if t.GridValid {
		return t.GridPowerW
	}
	return EstimateGridW(consumptionKW, pvKW, pvDCKW, batteryKW)
}

// PlanGridW estimates the grid power for the plan step covering now.
func PlanGridW(plan *domain.PlanSnapshot, now time.Time, batteryKW float64) float64 {
	idx := plan.StepIndex(now)
	return EstimateGridW(
		valueAt(plan.Result.ConsumptionForecast, idx),
		valueAt(plan.Result.PVForecast, idx),
		valueAt(plan.PVDCForecast, idx),
		batteryKW)
}

type ControlCycleInput struct {
	Plan            *domain.PlanSnapshot
	Telemetry       domain.Telemetry
	State           domain.BatteryState
	Now             time.Time
	HasPowerSensors bool
}

// PlanControlAction runs one real-time control step against the current
// plan. It returns false when the cycle must be skipped: no plan, or power
// sensors configured but the grid reading is invalid.
func PlanControlAction(controller port.RealtimeController, arbitrator port.ModeArbitrator, in ControlCycleInput) (domain.ControlAction, bool) {
	if in.Plan == nil {
		return domain.ControlAction{}, false
	}

	var gridW float64
	if in.HasPowerSensors {
		if !in.Telemetry.GridValid {
			return domain.ControlAction{}, false
		}
		gridW = in.Telemetry.GridPowerW
	} else {
		gridW = PlanGridW(in.Plan, in.Now, in.State.PowerKW)
	}

	batteryW := in.State.PowerKW * 1000
	if !in.HasPowerSensors && in.Plan.Decision.Mode == domain.EFFECTIVE_MODE_ZERO_GRID {
		// no meter to regulate against, the inverter keeps the grid at zero itself
		return domain.ControlAction{
			CurrentGridW:     gridW,
			CurrentBatteryW:  batteryW,
			DPScheduleW:      in.Plan.DPScheduleW,
			Mode:             domain.CONTROLLER_MODE_ZERO_GRID,
			ActionMode:       domain.ACTION_MODE_ZERO_GRID,
			SoCKWh:           in.State.SoCKWh,
			SoCPercent:       in.State.SoCPercent,
			ReleaseToBattery: true,
		}, true
	}

	mode := arbitrator.ResolveControllerMode(in.Plan.Decision.Mode, gridW, in.HasPowerSensors)
	action := controller.ControlAction(gridW, in.State.SoCKWh, batteryW, in.Plan.ScheduleWAt(in.Now), mode)
	if mode == domain.CONTROLLER_MODE_MANUAL {
		action.ReleaseToBattery = true
	}
	return action, true
}

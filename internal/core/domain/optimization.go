package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoForecast = errors.New("no forecast available")
	ErrNoSoC      = errors.New("no state of charge available")
)

// OptimizationResult is the output of one optimizer run. It is never mutated
// after it leaves the optimizer.
type OptimizationResult struct {
	PowerScheduleKW []float64
	ModeSchedule    []BatteryMode
	SoCScheduleKWh  []float64
	TotalCost       float64
	BaselineCost    float64
	Savings         float64
	OptimalPowerKW  float64
	OptimalMode     BatteryMode
	ShadowPrice     float64

	PriceForecast       []float64
	PVForecast          []float64
	ConsumptionForecast []float64
}

func (r OptimizationResult) Steps() int {
	return len(r.PowerScheduleKW)
}

// HasDischargeAfterFirst reports whether any step after the first one is
// scheduled to discharge.
func (r OptimizationResult) HasDischargeAfterFirst() bool {
	for i := 1; i < len(r.ModeSchedule); i++ {
		if r.ModeSchedule[i] == BATTERY_MODE_DISCHARGING {
			return true
		}
	}
	return false
}

// ControlMode is the user selected top level strategy.
type ControlMode string

const (
	CONTROL_MODE_ZERO_GRID       ControlMode = "zero_grid"
	CONTROL_MODE_MANUAL          ControlMode = "manual"
	CONTROL_MODE_HYBRID          ControlMode = "hybrid"
	CONTROL_MODE_FOLLOW_SCHEDULE ControlMode = "follow_schedule"
)

var ControlModes = []ControlMode{
	CONTROL_MODE_ZERO_GRID,
	CONTROL_MODE_MANUAL,
	CONTROL_MODE_HYBRID,
	CONTROL_MODE_FOLLOW_SCHEDULE,
}

func ParseControlMode(value string) (ControlMode, error) {
	v := ControlMode(strings.ToLower(strings.TrimSpace(value)))
	for _, m := range ControlModes {
		if m == v {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown control mode %q", value)
}

// EffectiveMode is the arbitrated mode for the current optimizer cycle.
type EffectiveMode string

const (
	EFFECTIVE_MODE_ZERO_GRID   EffectiveMode = "zero_grid"
	EFFECTIVE_MODE_MANUAL      EffectiveMode = "manual"
	EFFECTIVE_MODE_IDLE        EffectiveMode = "idle"
	EFFECTIVE_MODE_CHARGING    EffectiveMode = "charging"
	EFFECTIVE_MODE_DISCHARGING EffectiveMode = "discharging"
)

// ControllerMode is the mode the real-time controller runs in.
type ControllerMode string

const (
	CONTROLLER_MODE_ZERO_GRID       ControllerMode = "zero_grid"
	CONTROLLER_MODE_IDLE            ControllerMode = "idle"
	CONTROLLER_MODE_FOLLOW_SCHEDULE ControllerMode = "follow_schedule"
	CONTROLLER_MODE_MANUAL          ControllerMode = "manual"
)

// ArbitrationDecision is the outcome of reconciling the DP plan with the
// current grid reading and the selected control mode.
type ArbitrationDecision struct {
	Mode    EffectiveMode
	PowerKW float64
	Reason  string
}

// ACTION_MODE_ZERO_GRID is reported as the action mode when the battery's own
// zero export logic is in charge.
const ACTION_MODE_ZERO_GRID BatteryMode = "zero_grid"

// ControlAction is the actionable setpoint produced by the real-time
// controller.
type ControlAction struct {
	TargetPowerW     float64
	TargetPowerKW    float64
	RawTargetW       float64
	CurrentGridW     float64
	CurrentBatteryW  float64
	DPScheduleW      float64
	Mode             ControllerMode
	ActionMode       BatteryMode
	SoCKWh           float64
	SoCPercent       float64
	ReleaseToBattery bool
}

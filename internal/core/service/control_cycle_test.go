package service

import (
	"testing"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cycleStart = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func cyclePlan(mode domain.EffectiveMode, powerKW float64) *domain.PlanSnapshot {
	return &domain.PlanSnapshot{
		Result: domain.OptimizationResult{
			PowerScheduleKW:     []float64{powerKW, powerKW},
			ConsumptionForecast: []float64{0.5, 0.5},
			PVForecast:          []float64{2.0, 2.0},
		},
		Decision:      domain.ArbitrationDecision{Mode: mode, PowerKW: powerKW},
		DPScheduleW:   powerKW * 1000,
		ForecastStart: cycleStart,
		StepMinutes:   15,
	}
}

func newCycleController() *ZeroGridController {
	return NewZeroGridControllerForBattery(battery, 50, 10, DEFAULT_CONTROL_PRIORITY, nil)
}

func TestGridW(t *testing.T) {
	assert.Equal(t, 300.0, GridW(domain.Telemetry{GridValid: true, GridPowerW: 300}, 1, 0, 0, 0))
	assert.InDelta(t, -1500.0, GridW(domain.Telemetry{}, 0.5, 2.0, 0, 0), 1e-9)
}

func TestPlanControlActionNeedsPlan(t *testing.T) {
	_, ok := PlanControlAction(newCycleController(), arbitrator, ControlCycleInput{Now: cycleStart})
	assert.False(t, ok)
}

func TestPlanControlActionInvalidGridWithSensors(t *testing.T) {
	_, ok := PlanControlAction(newCycleController(), arbitrator, ControlCycleInput{
		Plan:            cyclePlan(domain.EFFECTIVE_MODE_ZERO_GRID, 0),
		Telemetry:       domain.Telemetry{GridValid: false},
		State:           domain.BatteryStateFromSoCPercent(50, 10),
		Now:             cycleStart,
		HasPowerSensors: true,
	})
	assert.False(t, ok)
}

func TestPlanControlActionZeroGridWithSensors(t *testing.T) {
	require := require.New(t)

	action, ok := PlanControlAction(newCycleController(), arbitrator, ControlCycleInput{
		Plan:            cyclePlan(domain.EFFECTIVE_MODE_ZERO_GRID, 0),
		Telemetry:       domain.Telemetry{GridValid: true, GridPowerW: -1200},
		State:           domain.BatteryStateFromSoCPercent(50, 10),
		Now:             cycleStart,
		HasPowerSensors: true,
	})
	require.True(ok)
	require.Equal(domain.CONTROLLER_MODE_ZERO_GRID, action.Mode)
	require.Equal(1200.0, action.TargetPowerW)
	require.Equal(domain.BATTERY_MODE_CHARGING, action.ActionMode)
	require.False(action.ReleaseToBattery)
}

func TestPlanControlActionZeroGridWithoutSensors(t *testing.T) {
	require := require.New(t)

	action, ok := PlanControlAction(newCycleController(), arbitrator, ControlCycleInput{
		Plan:  cyclePlan(domain.EFFECTIVE_MODE_ZERO_GRID, 0),
		State: domain.BatteryStateFromSoCPercent(50, 10),
		Now:   cycleStart,
	})
	require.True(ok)
	require.Equal(0.0, action.TargetPowerW)
	require.Equal(domain.ACTION_MODE_ZERO_GRID, action.ActionMode)
	require.True(action.ReleaseToBattery)
	// estimated from the plan step: 0.5 kW load, 2 kW PV
	require.InDelta(-1500.0, action.CurrentGridW, 1e-9)
}

func TestPlanControlActionFollowSchedule(t *testing.T) {
	require := require.New(t)

	plan := cyclePlan(domain.EFFECTIVE_MODE_DISCHARGING, -2.0)
	plan.Result.PowerScheduleKW[1] = -1.0

	controller := newCycleController()
	action, ok := PlanControlAction(controller, arbitrator, ControlCycleInput{
		Plan:            plan,
		Telemetry:       domain.Telemetry{GridValid: true, GridPowerW: 800},
		State:           domain.BatteryStateFromSoCPercent(50, 10),
		Now:             cycleStart,
		HasPowerSensors: true,
	})
	require.True(ok)
	require.Equal(domain.CONTROLLER_MODE_FOLLOW_SCHEDULE, action.Mode)
	require.Equal(-2000.0, action.TargetPowerW)

	// the second step reads its own schedule entry
	action, ok = PlanControlAction(controller, arbitrator, ControlCycleInput{
		Plan:            plan,
		Telemetry:       domain.Telemetry{GridValid: true, GridPowerW: 800},
		State:           domain.BatteryStateFromSoCPercent(50, 10),
		Now:             cycleStart.Add(20 * time.Minute),
		HasPowerSensors: true,
	})
	require.True(ok)
	require.Equal(-1000.0, action.TargetPowerW)
}

func TestPlanControlActionManualReleases(t *testing.T) {
	action, ok := PlanControlAction(newCycleController(), arbitrator, ControlCycleInput{
		Plan:            cyclePlan(domain.EFFECTIVE_MODE_MANUAL, 0),
		Telemetry:       domain.Telemetry{GridValid: true, GridPowerW: 500},
		State:           domain.BatteryStateFromSoCPercent(50, 10),
		Now:             cycleStart,
		HasPowerSensors: true,
	})
	assert.True(t, ok)
	assert.Equal(t, domain.CONTROLLER_MODE_MANUAL, action.Mode)
	assert.True(t, action.ReleaseToBattery)
	assert.Equal(t, 0.0, action.TargetPowerW)
}

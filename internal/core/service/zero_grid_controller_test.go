package service

import (
	"testing"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroGridCompensatesImport(t *testing.T) {
	c := newController()
	assert.InDelta(t, -1000.0, c.ComputeTarget(1000, 5.0, 0, domain.CONTROLLER_MODE_ZERO_GRID), 1e-9)
}

func TestZeroGridCompensatesExport(t *testing.T) {
	c := newController()
	assert.InDelta(t, 2000.0, c.ComputeTarget(-2000, 5.0, 0, domain.CONTROLLER_MODE_ZERO_GRID), 1e-9)
}

func TestZeroGridBalanced(t *testing.T) {
	c := newController()
	assert.Equal(t, 0.0, c.ComputeTarget(0, 5.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
}

func TestZeroGridClampedToRating(t *testing.T) {
	c := newController()
	assert.Equal(t, -5000.0, c.ComputeTarget(8000, 5.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
	assert.Equal(t, 5000.0, c.ComputeTarget(-8000, 5.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
}

func TestZeroGridSoCHardStop(t *testing.T) {
	c := newController()
	// 1.0 and 9.0 kWh are the SoC bounds of a 10 kWh battery at 10-90 %
	assert.Equal(t, 0.0, c.ComputeTarget(2000, 1.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
	assert.Equal(t, 0.0, c.ComputeTarget(-2000, 9.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
	// the opposite direction is still allowed
	assert.Equal(t, 2000.0, c.ComputeTarget(-2000, 1.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
	assert.Equal(t, -2000.0, c.ComputeTarget(2000, 9.0, 0, domain.CONTROLLER_MODE_ZERO_GRID))
}

func TestZeroGridIntegratesOnLastTarget(t *testing.T) {
	require := require.New(t)

	c := newController()
	a := c.ControlAction(-1500, 5.0, 0, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	require.Equal(1500.0, a.TargetPowerW)

	// battery now absorbs most of the surplus, 300 W still exported
	a = c.ControlAction(-300, 5.0, 1500, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	require.Equal(1800.0, a.TargetPowerW)

	// small residual stays within the deadband
	a = c.ControlAction(20, 5.0, 1800, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	require.Equal(1800.0, a.TargetPowerW)
	require.Equal(1780.0, a.RawTargetW)
}

func TestFollowSchedule(t *testing.T) {
	c := newController()
	assert.Equal(t, 2000.0, c.ComputeTarget(1000, 5.0, 2000, domain.CONTROLLER_MODE_FOLLOW_SCHEDULE))
	assert.Equal(t, -3000.0, c.ComputeTarget(0, 5.0, -3000, domain.CONTROLLER_MODE_FOLLOW_SCHEDULE))
	assert.Equal(t, 5000.0, c.ComputeTarget(0, 5.0, 8000, domain.CONTROLLER_MODE_FOLLOW_SCHEDULE))
	assert.Equal(t, 0.0, c.ComputeTarget(0, 1.0, -3000, domain.CONTROLLER_MODE_FOLLOW_SCHEDULE))
}

func TestIdleAndManualHoldBattery(t *testing.T) {
	c := newController()
	for _, grid := range []float64{1000, -2000, 0} {
		assert.Equal(t, 0.0, c.ComputeTarget(grid, 5.0, -5000, domain.CONTROLLER_MODE_IDLE))
	}
	assert.Equal(t, 0.0, c.ComputeTarget(5000, 5.0, 3000, domain.CONTROLLER_MODE_MANUAL))
	assert.Equal(t, 0.0, c.ComputeTarget(1000, 5.0, 2000, domain.ControllerMode("unknown_mode")))
}

func TestDeadband(t *testing.T) {
	require := require.New(t)

	c := newController()
	require.Equal(1000.0, c.ApplyDeadband(1000), "first call has no previous target")

	c.lastTargetW = 1000
	require.Equal(1000.0, c.ApplyDeadband(1020))
	require.Equal(1100.0, c.ApplyDeadband(1100))
	// exactly the deadband is accepted
	require.Equal(1050.0, c.ApplyDeadband(1050))
	// ApplyDeadband alone does not move the reference
	require.Equal(1000.0, c.LastTargetW())
}

func TestDeadbandIdempotent(t *testing.T) {
	c := newController()
	c.lastTargetW = -800
	for _, v := range []float64{-790, -810, -820, -780} {
		a := c.ControlAction(0, 5.0, 0, v, domain.CONTROLLER_MODE_FOLLOW_SCHEDULE)
		assert.Equal(t, -800.0, a.TargetPowerW)
	}
	a := c.ControlAction(0, 5.0, 0, -900, domain.CONTROLLER_MODE_FOLLOW_SCHEDULE)
	assert.Equal(t, -900.0, a.TargetPowerW)
	assert.Equal(t, -900.0, c.LastTargetW())
}

func TestControlActionFields(t *testing.T) {
	require := require.New(t)

	c := newController()
	a := c.ControlAction(-2000, 5.0, 0, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	require.Equal(domain.BATTERY_MODE_CHARGING, a.ActionMode)
	require.Equal(2.0, a.TargetPowerKW)
	require.Equal(-2000.0, a.CurrentGridW)
	require.Equal(domain.CONTROLLER_MODE_ZERO_GRID, a.Mode)

	c = newController()
	a = c.ControlAction(2000, 5.0, 0, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	require.Equal(domain.BATTERY_MODE_DISCHARGING, a.ActionMode)

	c = newController()
	a = c.ControlAction(0, 5.0, 120, 0, domain.CONTROLLER_MODE_MANUAL)
	require.Equal(domain.BATTERY_MODE_IDLE, a.ActionMode)
	require.InDelta(50.0, a.SoCPercent, 1e-9)
	require.Equal(120.0, a.CurrentBatteryW)
}

func TestControllerForBattery(t *testing.T) {
	c := NewZeroGridControllerForBattery(battery, 100, 10, "", nil)
	assert.Equal(t, 5000.0, c.Config.MaxChargeW)
	assert.Equal(t, 5000.0, c.Config.MaxDischargeW)
	assert.Equal(t, 100.0, c.Config.DeadbandW)
	assert.Equal(t, DEFAULT_CONTROL_PRIORITY, c.Config.Priority)

	c.SetDeadbandW(20)
	assert.Equal(t, 20.0, c.Config.DeadbandW)
}

func newController() *ZeroGridController {
	return NewZeroGridControllerForBattery(battery, DEFAULT_DEADBAND_W, DEFAULT_RESPONSE_TIME_S, DEFAULT_CONTROL_PRIORITY, nil)
}

func TestRestoreTargetResetsIntegratorBase(t *testing.T) {
	c := newController()
	a := c.ControlAction(-1500, 5.0, 0, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	assert.Equal(t, 1500.0, c.LastTargetW())

	// the setpoint write failed, the inverter never left 0 W
	c.RestoreTargetW(0)
	a = c.ControlAction(-1500, 5.0, 0, 0, domain.CONTROLLER_MODE_ZERO_GRID)
	assert.Equal(t, 1500.0, a.TargetPowerW)
}

package service

import (
	"math"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	DEFAULT_DEADBAND_W       = 50.0
	DEFAULT_RESPONSE_TIME_S  = 10.0
	DEFAULT_CONTROL_PRIORITY = "schedule"
)

type ZeroGridControllerConfig struct {
	MaxChargeW    float64
	MaxDischargeW float64
	DeadbandW     float64
	ResponseTimeS float64
	// "schedule" or "zero_grid", reported only
	Priority string
}

// ZeroGridController drives the battery setpoint towards zero grid exchange.
// The last accepted target is its only state: it is both the deadband
// reference and the integrator base of the zero_grid mode.
type ZeroGridController struct {
	Config      ZeroGridControllerConfig
	Battery     domain.BatteryConfig
	Logger      *zap.Logger
	lastTargetW float64
}

func NewZeroGridController(cfg ZeroGridControllerConfig, battery domain.BatteryConfig, logger *zap.Logger) *ZeroGridController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZeroGridController{
		Config:  cfg,
		Battery: battery,
		Logger:  logger,
	}
}

// NewZeroGridControllerForBattery derives the power limits (W) from the
// battery ratings.
func NewZeroGridControllerForBattery(battery domain.BatteryConfig, deadbandW, responseTimeS float64,
	priority string, logger *zap.Logger) *ZeroGridController {
	if priority == "" {
		priority = DEFAULT_CONTROL_PRIORITY
	}
	return NewZeroGridController(ZeroGridControllerConfig{
		MaxChargeW:    battery.MaxChargePowerKW * 1000,
		MaxDischargeW: battery.MaxDischargePowerKW * 1000,
		DeadbandW:     deadbandW,
		ResponseTimeS: responseTimeS,
		Priority:      priority,
	}, battery, logger)
}

func (c *ZeroGridController) LastTargetW() float64 {
	return c.lastTargetW
}

func (c *ZeroGridController) RestoreTargetW(targetW float64) {
	c.lastTargetW = targetW
}

func (c *ZeroGridController) SetDeadbandW(deadbandW float64) {
	c.Config.DeadbandW = deadbandW
}

// UpdateConfig replaces the tuning parameters. The last target is kept.
func (c *ZeroGridController) UpdateConfig(cfg ZeroGridControllerConfig) {
	c.Config = cfg
}

// ComputeTarget returns the raw battery setpoint in W (positive = charge)
// for the given controller mode. gridW is positive when importing.
func (c *ZeroGridController) ComputeTarget(gridW, socKWh, dpScheduleW float64, mode domain.ControllerMode) float64 {
	switch mode {
	case domain.CONTROLLER_MODE_ZERO_GRID:
		// integrate on the previous target, not on the measured battery power
		return c.limit(c.lastTargetW-gridW, socKWh)
	case domain.CONTROLLER_MODE_FOLLOW_SCHEDULE:
		return c.limit(dpScheduleW, socKWh)
	default:
		// idle, manual and unknown modes hold the battery
		return 0
	}
}

func (c *ZeroGridController) limit(targetW, socKWh float64) float64 {
	targetW = math.Max(-c.Config.MaxDischargeW, math.Min(c.Config.MaxChargeW, targetW))
	if socKWh <= c.Battery.MinSoCKWh && targetW < 0 {
		return 0
	}
	if socKWh >= c.Battery.MaxSoCKWh && targetW > 0 {
		return 0
	}
	return targetW
}

// ApplyDeadband keeps the previous target unless the new one moves by at
// least the deadband. It does not update the controller state.
func (c *ZeroGridController) ApplyDeadband(targetW float64) float64 {
	if math.Abs(targetW-c.lastTargetW) < c.Config.DeadbandW {
		return c.lastTargetW
	}
	return targetW
}

// ControlAction computes the setpoint for one control cycle and records the
// accepted target.
func (c *ZeroGridController) ControlAction(gridW, socKWh, batteryW, dpScheduleW float64, mode domain.ControllerMode) domain.ControlAction {
	raw := c.ComputeTarget(gridW, socKWh, dpScheduleW, mode)
	final := c.ApplyDeadband(raw)
	c.lastTargetW = final

	action := domain.ControlAction{
		TargetPowerW:    final,
		TargetPowerKW:   final / 1000,
		RawTargetW:      raw,
		CurrentGridW:    gridW,
		CurrentBatteryW: batteryW,
		DPScheduleW:     dpScheduleW,
		Mode:            mode,
		ActionMode:      domain.BatteryModeForPowerW(final),
		SoCKWh:          socKWh,
		SoCPercent:      c.Battery.SoCPercent(socKWh),
	}
	c.Logger.Debug("control action",
		zap.String("mode", string(mode)),
		zap.Float64("grid_w", gridW),
		zap.Float64("raw_target_w", raw),
		zap.Float64("target_w", final))
	return action
}

// ensure interface compliance
var _ port.RealtimeController = (*ZeroGridController)(nil)

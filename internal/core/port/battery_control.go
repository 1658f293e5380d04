package port

import (
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
)

// OptimizationInput carries the forecasts for one optimizer run. Prices are
// in EUR/kWh, power forecasts in kW. A nil FeedIn means feed-in is paid at the
// buy price, a nil PVDC means no DC coupled PV.
type OptimizationInput struct {
	CurrentSoCKWh     float64
	Prices            []float64
	FeedIn            []float64
	PV                []float64
	PVDC              []float64
	Consumption       []float64
	StepMinutes       int
	DegradationPerKWh float64
	MinPriceSpread    float64
}

type ArbitrationInput struct {
	ControlMode  domain.ControlMode
	Result       domain.OptimizationResult
	CurrentGridW float64
	// feed-in price of the current step (EUR/kWh)
	FeedInPrice float64
}

type ScheduleOptimizer interface {
	Optimize(in OptimizationInput) domain.OptimizationResult
}

type RealtimeController interface {
	ControlAction(gridW, socKWh, batteryW, dpScheduleW float64, mode domain.ControllerMode) domain.ControlAction
	LastTargetW() float64
	// RestoreTargetW resets the accepted target after a setpoint that never
	// reached the inverter.
	RestoreTargetW(targetW float64)
	SetDeadbandW(deadbandW float64)
}

type ModeArbitrator interface {
	Arbitrate(in ArbitrationInput) domain.ArbitrationDecision
	ResolveControllerMode(mode domain.EffectiveMode, gridW float64, hasPowerSensors bool) domain.ControllerMode
}

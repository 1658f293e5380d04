package service

import (
	"math"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
)

// StepInput describes one time step for StepCost. Powers are in W, prices in
// EUR/kWh, the action is positive when charging.
type StepInput struct {
	DurationH         float64
	SoCWh             float64
	ActionW           float64
	BuyPrice          float64
	FeedInPrice       float64
	PVW               float64
	PVDCW             float64
	ConsumptionW      float64
	RoundTripEff      float64
	DegradationPerKWh float64
}

// StepCost returns the cost in EUR of running the battery at in.ActionW for
// one step. Negative values are revenue.
func StepCost(battery domain.BatteryConfig, in StepInput) float64 {
	sqrtRTE := math.Sqrt(in.RoundTripEff)
	dcEff := sqrtRTE
	if battery.DCCoupledPV {
		dcEff = battery.PVDCEfficiency
	}

	var gridToBatteryW float64
	dcExcessW := in.PVDCW

	if in.ActionW > 0 {
		// DC PV charges first, the rest is drawn on the AC side
		dcChargeW := math.Min(in.ActionW, in.PVDCW*dcEff)
		acChargeW := in.ActionW - dcChargeW
		dcExcessW = math.Max(0, in.PVDCW-dcChargeW/dcEff)
		if acChargeW > 0 {
			gridToBatteryW = acChargeW / sqrtRTE
		}
	} else if in.ActionW < 0 {
		gridToBatteryW = -math.Abs(in.ActionW) * sqrtRTE
	}

	var dcToACW float64
	if dcExcessW > 0 {
		dcToACW = dcExcessW * domain.DC_TO_AC_EFFICIENCY
	}

	netGridW := in.ConsumptionW - (in.PVW + dcToACW) + gridToBatteryW

	energyKWh := math.Abs(netGridW) * in.DurationH / 1000
	var gridCost float64
	if netGridW > 0 {
		gridCost = energyKWh * in.BuyPrice
	} else {
		gridCost = -energyKWh * in.FeedInPrice
	}

	throughputKWh := math.Abs(in.ActionW) * in.DurationH / 1000
	return gridCost + throughputKWh*in.DegradationPerKWh
}

// EstimateGridW estimates the grid exchange (W, positive = import) from the
// forecast of one step when no grid power sensor is available.
func EstimateGridW(consumptionKW, pvKW, pvDCKW, batteryKW float64) float64 {
	return (consumptionKW - (pvKW + pvDCKW*domain.DC_TO_AC_EFFICIENCY) + batteryKW) * 1000
}

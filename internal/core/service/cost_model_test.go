package service

import (
	"testing"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepIn(action, price, pv, pvdc, cons float64) StepInput {
	return StepInput{
		DurationH:         0.25,
		SoCWh:             5000,
		ActionW:           action,
		BuyPrice:          price,
		FeedInPrice:       0.07,
		PVW:               pv,
		PVDCW:             pvdc,
		ConsumptionW:      cons,
		RoundTripEff:      0.9,
		DegradationPerKWh: 0.03,
	}
}

func TestStepCostIdleImport(t *testing.T) {
	cost := StepCost(battery, stepIn(0, 0.30, 0, 0, 1000))
	assert.InDelta(t, 0.075, cost, 1e-9)
}

func TestStepCostPVSurplusExport(t *testing.T) {
	cost := StepCost(battery, stepIn(0, 0.30, 3000, 0, 1000))
	assert.InDelta(t, -0.035, cost, 1e-9)
}

func TestStepCostCharging(t *testing.T) {
	cost := StepCost(battery, stepIn(2000, 0.10, 0, 0, 500))
	assert.Greater(t, cost, 0.07)

	idle := StepCost(battery, stepIn(0, 0.10, 0, 0, 500))
	assert.Greater(t, cost, idle, "charging from grid must cost more than idling")
}

func TestStepCostDischarging(t *testing.T) {
	cost := StepCost(battery, stepIn(-2000, 0.30, 0, 0, 2000))
	assert.Less(t, cost, 0.15)
}

func TestStepCostDegradation(t *testing.T) {
	in := stepIn(2000, 0.10, 0, 0, 500)
	in.DegradationPerKWh = 0
	withoutWear := StepCost(battery, in)
	in.DegradationPerKWh = 0.05
	withWear := StepCost(battery, in)
	// 2 kW for 15 min moves 0.5 kWh
	assert.InDelta(t, 0.025, withWear-withoutWear, 1e-9)

	idle := stepIn(0, 0.10, 0, 0, 0)
	charge := stepIn(2000, 0.10, 0, 0, 0)
	assert.Greater(t, StepCost(battery, charge), StepCost(battery, idle))
}

func TestStepCostDCCoupledCharging(t *testing.T) {
	require := require.New(t)

	costDC := StepCost(dcBattery, stepIn(2000, 0.30, 1000, 2000, 1000))
	costAC := StepCost(dcBattery, stepIn(2000, 0.30, 3000, 0, 1000))
	require.LessOrEqual(costDC, costAC, "DC PV charging avoids the AC round trip")
}

func TestStepCostDCExcessExported(t *testing.T) {
	cost := StepCost(dcBattery, stepIn(0, 0.30, 0, 3000, 1000))
	assert.Less(t, cost, 0.0)
}

func TestEstimateGridW(t *testing.T) {
	assert.InDelta(t, 500.0, EstimateGridW(1.5, 1.0, 0, 0), 1e-9)
	assert.InDelta(t, -920.0, EstimateGridW(0.5, 0.5, 1.0, 0.04), 1e-9)
	assert.InDelta(t, 2500.0, EstimateGridW(0.5, 0, 0, 2.0), 1e-9)
}

var battery = mustBattery(domain.BatterySpec{
	CapacityKWh:         10,
	MinSoCPercent:       10,
	MaxSoCPercent:       90,
	MaxChargePowerKW:    5,
	MaxDischargePowerKW: 5,
	RoundTripEfficiency: 0.9,
})

var dcBattery = mustBattery(domain.BatterySpec{
	CapacityKWh:         10,
	MinSoCPercent:       10,
	MaxSoCPercent:       90,
	MaxChargePowerKW:    5,
	MaxDischargePowerKW: 5,
	RoundTripEfficiency: 0.9,
	DCCoupledPV:         true,
	PVDCPeakPowerKW:     3.0,
	PVDCEfficiency:      0.97,
})

func mustBattery(spec domain.BatterySpec) domain.BatteryConfig {
	cfg, err := domain.NewBatteryConfig(spec)
	if err != nil {
		panic(err)
	}
	return cfg
}

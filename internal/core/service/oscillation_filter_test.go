package service

import (
	"math"
	"testing"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	C = domain.BATTERY_MODE_CHARGING
	D = domain.BATTERY_MODE_DISCHARGING
	I = domain.BATTERY_MODE_IDLE
)

func TestMinArbitrageSpread(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	assert.InDelta(t, (2*0.03+0.05)/math.Sqrt(0.9), f.MinArbitrageSpread(), 1e-12)
}

func TestFilterWindowFollowsStepLength(t *testing.T) {
	assert.Equal(t, 8, NewOscillationFilter(battery, 0.03, 0.05, 15).WindowSteps)
	assert.Equal(t, 2, NewOscillationFilter(battery, 0.03, 0.05, 60).WindowSteps)
	assert.Equal(t, 24, NewOscillationFilter(battery, 0.03, 0.05, 5).WindowSteps)
	assert.Equal(t, 8, NewOscillationFilter(battery, 0.03, 0.05, 0).WindowSteps)
}

func TestFilterEmptySchedule(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	p, m, s := f.Apply(nil, nil, []float64{5}, FilterForecast{}, 0.25)
	assert.Empty(t, p)
	assert.Empty(t, m)
	assert.Equal(t, []float64{5}, s)
}

func TestFilterNeutralizesSmallSpread(t *testing.T) {
	require := require.New(t)

	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	power := []float64{2, 0, -2, 0}
	modes := []domain.BatteryMode{C, I, D, I}
	fc := flatForecast([]float64{0.24, 0.25, 0.26, 0.25})

	p, m, s := f.Apply(power, modes, []float64{5, 5.5, 5.5, 5, 5}, fc, 0.25)
	require.Equal([]domain.BatteryMode{I, I, D, I}, m)
	require.Equal([]float64{0, 0, -2, 0}, p)
	require.InDeltaSlice([]float64{5, 5, 5, 4.5, 4.5}, s, 1e-9)

	// inputs are untouched
	require.Equal([]domain.BatteryMode{C, I, D, I}, modes)
	require.Equal(2.0, power[0])
}

func TestFilterKeepsProfitablePair(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	modes := []domain.BatteryMode{C, C, D, D}
	fc := flatForecast([]float64{0.10, 0.10, 0.35, 0.35})

	_, m, _ := f.Apply([]float64{3, 3, -3, -3}, modes, []float64{5}, fc, 0.25)
	assert.Equal(t, modes, m)
	assert.Empty(t, f.UnprofitablePairs(m, fc))
}

func TestFilterDischargeBeforeCharge(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	fc := flatForecast([]float64{0.26, 0.25, 0.25, 0.24})

	_, m, _ := f.Apply([]float64{-1, 0, 0, 1}, []domain.BatteryMode{D, I, I, C}, []float64{5}, fc, 0.25)
	assert.Equal(t, []domain.BatteryMode{I, I, I, C}, m)
}

func TestFilterIgnoresPairsOutsideWindow(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 60)
	fc := flatForecast([]float64{0.24, 0.25, 0.26})

	_, m, _ := f.Apply([]float64{1, 0, -1}, []domain.BatteryMode{C, I, D}, []float64{5}, fc, 1)
	assert.Equal(t, []domain.BatteryMode{C, I, D}, m)
}

func TestFilterUsesFeedInForPVCharging(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	fc := FilterForecast{
		Prices:      []float64{0.25, 0.30},
		FeedIn:      []float64{0.07, 0.07},
		PV:          []float64{3, 0},
		Consumption: []float64{0.5, 0.5},
	}
	// charging from PV surplus costs the lost feed-in, not the buy price
	_, m, _ := f.Apply([]float64{2, -2}, []domain.BatteryMode{C, D}, []float64{5}, fc, 0.25)
	assert.Equal(t, []domain.BatteryMode{C, D}, m)

	fc.PV = []float64{0, 0}
	_, m, _ = f.Apply([]float64{2, -2}, []domain.BatteryMode{C, D}, []float64{5}, fc, 0.25)
	assert.Equal(t, []domain.BatteryMode{I, D}, m)
}

func TestFilterSoCClampedToBounds(t *testing.T) {
	f := NewOscillationFilter(battery, 0, 0, 15)
	fc := flatForecast([]float64{0.1, 0.1, 0.1})
	_, _, s := f.Apply([]float64{5, 5, 5}, []domain.BatteryMode{C, C, C}, []float64{8}, fc, 0.25)
	assert.InDeltaSlice(t, []float64{8, 9, 9, 9}, s, 1e-9)
}

func TestFilterLeavesNoUnprofitablePairs(t *testing.T) {
	f := NewOscillationFilter(battery, 0.03, 0.05, 15)
	prices := []float64{0.20, 0.28, 0.19, 0.30, 0.22, 0.24, 0.18, 0.33, 0.21, 0.26, 0.25, 0.29}
	modes := []domain.BatteryMode{C, D, C, D, C, D, C, D, C, D, C, D}
	power := make([]float64, len(modes))
	for i, m := range modes {
		if m == C {
			power[i] = 1
		} else {
			power[i] = -1
		}
	}
	fc := flatForecast(prices)

	require.NotEmpty(t, f.UnprofitablePairs(modes, fc))
	_, m, _ := f.Apply(power, modes, []float64{5}, fc, 0.25)
	assert.Empty(t, f.UnprofitablePairs(m, fc))
}

func flatForecast(prices []float64) FilterForecast {
	return FilterForecast{
		Prices:      prices,
		FeedIn:      prices,
		PV:          repeat(0, len(prices)),
		Consumption: repeat(0.5, len(prices)),
	}
}

package service

import (
	"testing"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestBatteryStateFromPercent(t *testing.T) {
	s := CurrentBatteryState(domain.Telemetry{
		SoC:          40,
		SoCUnit:      domain.SOC_UNIT_PERCENT,
		SoCValid:     true,
		BatteryPower: -1500,
	}, nil, battery)
	assert.InDelta(t, 4.0, s.SoCKWh, 1e-9)
	assert.InDelta(t, -1.5, s.PowerKW, 1e-9)
	assert.Equal(t, domain.BATTERY_MODE_DISCHARGING, s.Mode)
}

func TestBatteryStateFromKWh(t *testing.T) {
	s := CurrentBatteryState(domain.Telemetry{
		SoC:              6.5,
		SoCUnit:          domain.SOC_UNIT_KWH,
		SoCValid:         true,
		BatteryPower:     2.0,
		BatteryPowerUnit: domain.POWER_UNIT_KW,
	}, nil, battery)
	assert.InDelta(t, 65.0, s.SoCPercent, 1e-9)
	assert.InDelta(t, 2.0, s.PowerKW, 1e-9)
	assert.Equal(t, domain.BATTERY_MODE_CHARGING, s.Mode)
}

func TestBatteryStateFallback(t *testing.T) {
	s := CurrentBatteryState(domain.Telemetry{BatteryPower: 30}, nil, battery)
	assert.InDelta(t, FALLBACK_SOC_PERCENT, s.SoCPercent, 1e-9)
	assert.Equal(t, domain.BATTERY_MODE_IDLE, s.Mode)

	last := domain.BatteryStateFromSoCPercent(72, battery.CapacityKWh)
	s = CurrentBatteryState(domain.Telemetry{}, &last, battery)
	assert.InDelta(t, 7.2, s.SoCKWh, 1e-9)
}

package domain

import "time"

type SoCUnit string

const (
	SOC_UNIT_PERCENT SoCUnit = "%"
	SOC_UNIT_KWH     SoCUnit = "kWh"
)

type PowerUnit string

const (
	POWER_UNIT_W  PowerUnit = "W"
	POWER_UNIT_KW PowerUnit = "kW"
)

// Telemetry is one live reading of the battery inverter and the grid meter.
// Battery power is positive when charging, grid power positive when
// importing.
type Telemetry struct {
	SoC              float64
	SoCUnit          SoCUnit
	SoCValid         bool
	BatteryPower     float64
	BatteryPowerUnit PowerUnit
	GridPowerW       float64
	GridValid        bool
	PVPowerW         float64
	Timestamp        time.Time
}

package sunspec_modbus

import (
	"fmt"
)

// storage states
const (
	StorageChargeStatusOff         = 1
	StorageChargeStatusEmpty       = 2
	StorageChargeStatusDischarging = 3
	StorageChargeStatusCharging    = 4
	StorageChargeStatusFull        = 5
	StorageChargeStatusHolding     = 6
	StorageChargeStatusTest        = 7
)

// storage state strings
const (
	StorageChargeStatusOffStr         = "off"
	StorageChargeStatusEmptyStr       = "empty"
	StorageChargeStatusDischargingStr = "discharging"
	StorageChargeStatusChargingStr    = "charging"
	StorageChargeStatusFullStr        = "full"
	StorageChargeStatusHoldingStr     = "holding"
	StorageChargeStatusTestStr        = "test"
	StorageChargeStatusUnknownStr     = "unknown"
)

func StorageChargeStatusToString(storage uint16) string {
	switch storage {
	case StorageChargeStatusOff:
		return StorageChargeStatusOffStr
	case StorageChargeStatusEmpty:
		return StorageChargeStatusEmptyStr
	case StorageChargeStatusDischarging:
		return StorageChargeStatusDischargingStr
	case StorageChargeStatusCharging:
		return StorageChargeStatusChargingStr
	case StorageChargeStatusFull:
		return StorageChargeStatusFullStr
	case StorageChargeStatusHolding:
		return StorageChargeStatusHoldingStr
	case StorageChargeStatusTest:
		return StorageChargeStatusTestStr
	default:
		return fmt.Sprintf("%s(%d)", StorageChargeStatusUnknownStr, storage)
	}
}

// StorageControl (StorCtl_Mod) bits
const (
	StorageControlCharge    uint16 = 0x01
	StorageControlDischarge uint16 = 0x02
)

type DeviceInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

type InverterInfo struct {
	DeviceInfo
	MaxRatedPowerWatt   uint32
	MaxChargeRateWatt   uint32
	HasStorage          bool
	HasMeter            bool
	MeterInfo           *DeviceInfo
	StorageCapacityWatt uint32
}

// StorageTelemetry is one reading of the inverter, its battery and the
// optional grid meter. Battery power is positive when charging, grid power is
// positive when importing.
type StorageTelemetry struct {
	StateOfCharge   float64
	SoCValid        bool
	BatteryPowerW   float64
	PVPowerW        float64
	ACPowerW        float64
	GridPowerW      float64
	GridValid       bool
	ChargeStatus    uint16
	ChargeStatusStr string
}

// Setpoint asks the inverter to run the battery at PowerW (positive charges).
// Release hands control back to the inverter's own logic.
type Setpoint struct {
	PowerW        float64
	Release       bool
	RevertSeconds uint32
}

type StorageInverter interface {
	Open() error
	Close() error
	GetInfo() (*InverterInfo, error)
	GetTelemetry() (*StorageTelemetry, error)
	ApplySetpoint(sp Setpoint) error
}

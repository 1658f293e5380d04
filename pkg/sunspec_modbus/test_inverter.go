package sunspec_modbus

import (
	"sync"
)

// TestStorageInverter is an in-memory inverter used by tests and by the
// service when no Modbus host is configured.
type TestStorageInverter struct {
	mu sync.Mutex

	Info      InverterInfo
	Telemetry StorageTelemetry
	Setpoints []Setpoint
	FailNext  error
	// fails the next setpoint write only
	FailWrite error
}

func CreateTestStorageInverter() *TestStorageInverter {
	meter := DeviceInfo{
		Manufacturer: "Batteryopt",
		Model:        "Smart Meter TS 100A-1",
		Version:      "1.2",
		Serial:       "SM-0001",
	}
	return &TestStorageInverter{
		Info: InverterInfo{
			DeviceInfo: DeviceInfo{
				Manufacturer: "Batteryopt",
				Model:        "Primo GEN24 4.0",
				Version:      "1.30.7-1",
				Serial:       "INV-0001",
			},
			MaxRatedPowerWatt: 4000,
			MaxChargeRateWatt: 5260,
			HasStorage:        true,
			HasMeter:          true,
			MeterInfo:         &meter,
		},
		Telemetry: StorageTelemetry{
			StateOfCharge:   23.5,
			SoCValid:        true,
			BatteryPowerW:   572.45,
			PVPowerW:        920.3,
			ACPowerW:        320.2,
			GridPowerW:      -1250,
			GridValid:       true,
			ChargeStatus:    StorageChargeStatusCharging,
			ChargeStatusStr: StorageChargeStatusToString(StorageChargeStatusCharging),
		},
	}
}

func (inv *TestStorageInverter) Open() error {
	return nil
}

func (inv *TestStorageInverter) Close() error {
	return nil
}

func (inv *TestStorageInverter) GetInfo() (*InverterInfo, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	info := inv.Info
	return &info, nil
}

func (inv *TestStorageInverter) GetTelemetry() (*StorageTelemetry, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.takeFailure(); err != nil {
		return nil, err
	}
	t := inv.Telemetry
	return &t, nil
}

func (inv *TestStorageInverter) ApplySetpoint(sp Setpoint) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.takeFailure(); err != nil {
		return err
	}
	if err := inv.FailWrite; err != nil {
		inv.FailWrite = nil
		return err
	}
	if _, err := setpointRates(sp, float64(inv.Info.MaxChargeRateWatt)); err != nil {
		return err
	}
	inv.Setpoints = append(inv.Setpoints, sp)
	if !sp.Release {
		inv.Telemetry.BatteryPowerW = sp.PowerW
	}
	return nil
}

func (inv *TestStorageInverter) SetTelemetry(t StorageTelemetry) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.Telemetry = t
}

func (inv *TestStorageInverter) LastSetpoint() (Setpoint, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.Setpoints) == 0 {
		return Setpoint{}, false
	}
	return inv.Setpoints[len(inv.Setpoints)-1], true
}

func (inv *TestStorageInverter) SetpointCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.Setpoints)
}

// FailOnce makes the next telemetry read or setpoint write return err.
func (inv *TestStorageInverter) FailOnce(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.FailNext = err
}

// FailSetpointOnce makes the next setpoint write return err. Telemetry reads
// keep working.
func (inv *TestStorageInverter) FailSetpointOnce(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.FailWrite = err
}

func (inv *TestStorageInverter) takeFailure() error {
	err := inv.FailNext
	inv.FailNext = nil
	return err
}

var _ StorageInverter = (*TestStorageInverter)(nil)
var _ StorageInverter = (*SunSpecStorageInverter)(nil)

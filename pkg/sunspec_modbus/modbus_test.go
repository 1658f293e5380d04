package sunspec_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyScaleFactor(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(235.0, applySF(2350, uint16(0xFFFF)), 1e-9) // sf -1
	assert.InDelta(5000.0, applySF(50, 2), 1e-9)
	assert.InDelta(-1250.0, applySFint16(-1250, 0), 1e-9)
	assert.InDelta(5000.0, applySFInv(50, uint16(0xFFFE)), 1e-9) // sf -2
}

func TestSetpointRatesCharge(t *testing.T) {
	r, err := setpointRates(Setpoint{PowerW: 2630}, 5260)
	require.NoError(t, err)
	assert.InDelta(t, -50.0, r.outWRte, 1e-9)
	assert.InDelta(t, 50.0, r.inWRte, 1e-9)
	assert.Equal(t, StorageControlCharge|StorageControlDischarge, r.control)
}

func TestSetpointRatesDischarge(t *testing.T) {
	r, err := setpointRates(Setpoint{PowerW: -1315}, 5260)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, r.outWRte, 1e-9)
	assert.InDelta(t, -25.0, r.inWRte, 1e-9)
}

func TestSetpointRatesHoldAndRelease(t *testing.T) {
	r, err := setpointRates(Setpoint{PowerW: 0}, 5260)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.outWRte)
	assert.Equal(t, 0.0, r.inWRte)
	assert.NotZero(t, r.control)

	r, err = setpointRates(Setpoint{Release: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, storageRates{outWRte: 100, inWRte: 100}, r)
}

func TestSetpointRatesClampAndErrors(t *testing.T) {
	r, err := setpointRates(Setpoint{PowerW: 20000}, 5000)
	require.NoError(t, err)
	assert.Equal(t, -100.0, r.outWRte)

	_, err = setpointRates(Setpoint{PowerW: 100}, 0)
	assert.ErrorIs(t, err, ErrNoChargeRate)
}

func TestStorageRatesRegisters(t *testing.T) {
	r := storageRates{outWRte: -50, inWRte: 50}
	// InOutWRte_SF = -2: percent is written in hundredths
	regs := r.registers(uint16(0xFFFE))
	assert.Equal(t, int16(-5000), int16(regs[0]))
	assert.Equal(t, int16(5000), int16(regs[1]))
}

func TestStorageChargeStatusToString(t *testing.T) {
	assert.Equal(t, "charging", StorageChargeStatusToString(StorageChargeStatusCharging))
	assert.Equal(t, "unknown(42)", StorageChargeStatusToString(42))
}

func TestTestStorageInverter(t *testing.T) {
	assert := assert.New(t)

	inv := CreateTestStorageInverter()
	assert.NoError(inv.Open())

	info, err := inv.GetInfo()
	assert.NoError(err)
	assert.True(info.HasStorage)
	assert.Equal(uint32(5260), info.MaxChargeRateWatt)

	tel, err := inv.GetTelemetry()
	assert.NoError(err)
	assert.Equal(23.5, tel.StateOfCharge)
	assert.Equal(-1250.0, tel.GridPowerW)

	assert.NoError(inv.ApplySetpoint(Setpoint{PowerW: -800, RevertSeconds: 30}))
	sp, ok := inv.LastSetpoint()
	assert.True(ok)
	assert.Equal(-800.0, sp.PowerW)

	tel, _ = inv.GetTelemetry()
	assert.Equal(-800.0, tel.BatteryPowerW)

	inv.FailOnce(errors.New("timeout"))
	_, err = inv.GetTelemetry()
	assert.Error(err)
	_, err = inv.GetTelemetry()
	assert.NoError(err)
	assert.Equal(1, inv.SetpointCount())

	assert.NoError(inv.Close())
}

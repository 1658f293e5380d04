package sunspec_modbus

import (
	"errors"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// storage model (124) offsets
const (
	storageWChaMax      = 2
	storageCtlMod       = 5
	storageOutWRte      = 12
	storageRvrtTms      = 15
	storageBlockRegs    = 24
	storageRegChaState  = 6  // +8
	storageRegChaSt     = 9  // +11
	storageRegWChaMaxSF = 16 // +18
	storageRegChaStSF   = 20 // +22
	storageRegInOutSF   = 23 // +25
)

type SunSpecStorageInverter struct {
	inverter *ModbusClient
	meter    *ModbusClient

	blocks      inverterBlocks
	meterBlocks meterBlocks
	logger      *zap.Logger
}

type StorageInverterConfig struct {
	Host       string
	Port       uint
	InverterId uint8
	MeterId    uint8
	Timeout    time.Duration
}

// CreateSunSpecStorageInverter builds the Modbus TCP clients for the inverter
// and, when MeterId > 0, for the grid meter behind it.
func CreateSunSpecStorageInverter(cfg StorageInverterConfig, logger *zap.Logger, instrumentation *ModbusInstrument) (StorageInverter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inv, err := newModbusClient(cfg.Host, cfg.Port, cfg.InverterId, cfg.Timeout, logger.With(zap.String("target", "inverter")), instrumentation)
	if err != nil {
		return nil, err
	}
	var meter *ModbusClient
	if cfg.MeterId > 0 {
		meter, err = newModbusClient(cfg.Host, cfg.Port, cfg.MeterId, cfg.Timeout, logger.With(zap.String("target", "acMeter")), instrumentation)
		if err != nil {
			return nil, err
		}
	}
	return &SunSpecStorageInverter{
		inverter: inv,
		meter:    meter,
		logger:   logger,
	}, nil
}

func (s *SunSpecStorageInverter) Open() error {
	if err := s.inverter.client.Open(); err != nil {
		return err
	}
	blocks, err := s.inverter.surveyInverter()
	if err != nil {
		return err
	}
	s.blocks = blocks

	if s.meter != nil {
		if err := s.meter.client.Open(); err != nil {
			return err
		}
		mb, err := s.meter.surveyMeter()
		if err != nil {
			return err
		}
		s.meterBlocks = mb
	}
	return nil
}

func (s *SunSpecStorageInverter) Close() error {
	err := s.inverter.client.Close()
	if s.meter != nil {
		err = errors.Join(err, s.meter.client.Close())
	}
	return err
}

func (s *SunSpecStorageInverter) GetInfo() (*InverterInfo, error) {
	common, err := s.inverter.readCommon(s.blocks.common)
	if err != nil {
		return nil, err
	}
	pow, err := s.inverter.readRegister(s.blocks.inverter+82, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	powSF, err := s.inverter.readRegister(s.blocks.inverter+102, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	maxCharge, err := s.maxChargeRateW()
	if err != nil {
		return nil, err
	}
	hasStorage, err := s.hasStorage()
	if err != nil {
		return nil, err
	}

	info := &InverterInfo{
		DeviceInfo:        common,
		MaxRatedPowerWatt: uint32(applySF(pow, powSF)),
		MaxChargeRateWatt: uint32(maxCharge),
		HasStorage:        hasStorage,
		HasMeter:          s.meter != nil,
	}
	if s.meter != nil {
		meterInfo, err := s.meter.readCommon(s.meterBlocks.common)
		if err != nil {
			return nil, err
		}
		info.MeterInfo = &meterInfo
	}
	return info, nil
}

func (s *SunSpecStorageInverter) GetTelemetry() (*StorageTelemetry, error) {
	regs, err := s.inverter.readRegisters(s.blocks.storage+2, storageBlockRegs, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	t := &StorageTelemetry{
		ChargeStatus:    regs[storageRegChaSt],
		ChargeStatusStr: StorageChargeStatusToString(regs[storageRegChaSt]),
	}
	if int16(regs[storageRegChaState]) != -1 && regs[storageRegChaSt] != StorageChargeStatusOff {
		t.StateOfCharge = applySF(regs[storageRegChaState], regs[storageRegChaStSF])
		t.SoCValid = true
	}

	ac, err := s.inverter.readRegisters(s.blocks.inverter+14, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	t.ACPowerW = applySFint16(int16(ac[0]), ac[1])

	if s.blocks.mppt > 0 {
		pv, charge, discharge, err := s.dcPowerFlow()
		if err != nil {
			return nil, err
		}
		t.PVPowerW = pv
		t.BatteryPowerW = charge - discharge
	}

	if s.meter != nil {
		w, err := s.meter.readRegister(s.meterBlocks.acMeter+18, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		sf, err := s.meter.readRegister(s.meterBlocks.acMeter+22, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		t.GridPowerW = applySFint16(int16(w), sf)
		t.GridValid = true
	}
	return t, nil
}

func (s *SunSpecStorageInverter) ApplySetpoint(sp Setpoint) error {
	regs, err := s.inverter.readRegisters(s.blocks.storage+2, storageBlockRegs, modbus.HOLDING_REGISTER)
	if err != nil {
		return err
	}
	maxCharge := applySF(regs[0], regs[storageRegWChaMaxSF])
	rates, err := setpointRates(sp, maxCharge)
	if err != nil {
		return err
	}
	s.logger.Debug("apply setpoint", zap.Float64("power", sp.PowerW), zap.Bool("release", sp.Release),
		zap.Float64("outWRte", rates.outWRte), zap.Float64("inWRte", rates.inWRte))

	if err := s.inverter.writeRegisters(s.blocks.storage+storageOutWRte, rates.registers(regs[storageRegInOutSF])); err != nil {
		return err
	}
	if err := s.inverter.writeRegister(s.blocks.storage+storageCtlMod, rates.control); err != nil {
		return err
	}
	if !sp.Release && sp.RevertSeconds > 0 {
		return s.inverter.writeRegister(s.blocks.storage+storageRvrtTms, uint16(sp.RevertSeconds))
	}
	return nil
}

func (s *SunSpecStorageInverter) hasStorage() (bool, error) {
	if s.blocks.status == 0 {
		return s.blocks.storage > 0, nil
	}
	storageConn, err := s.inverter.readRegister(s.blocks.status+3, modbus.HOLDING_REGISTER)
	if err != nil {
		return false, err
	}
	return storageConn&0x0001 != 0 && s.blocks.storage > 0, nil
}

func (s *SunSpecStorageInverter) maxChargeRateW() (float64, error) {
	wChaMax, err := s.inverter.readRegister(s.blocks.storage+storageWChaMax, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	sf, err := s.inverter.readRegister(s.blocks.storage+18, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return applySF(wChaMax, sf), nil
}

// dcPowerFlow reads the MPPT model. Hybrid inverters report the battery as
// two extra modules (charge, discharge) after the PV strings.
func (s *SunSpecStorageInverter) dcPowerFlow() (pv, charge, discharge float64, err error) {
	sf, err := s.inverter.readRegister(s.blocks.mppt+4, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, 0, 0, err
	}
	nMods, err := s.inverter.readRegister(s.blocks.mppt+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, 0, 0, err
	}
	pvMods := nMods
	if nMods == 3 || nMods == 4 {
		pvMods = nMods - 2
	}
	for i := uint16(0); i < pvMods; i++ {
		p, err := s.readModulePower(i)
		if err != nil {
			return 0, 0, 0, err
		}
		pv += applySF(p, sf)
	}
	if nMods == 3 || nMods == 4 {
		c, err := s.readModulePower(nMods - 2)
		if err != nil {
			return 0, 0, 0, err
		}
		d, err := s.readModulePower(nMods - 1)
		if err != nil {
			return 0, 0, 0, err
		}
		charge = applySF(c, sf)
		discharge = applySF(d, sf)
	}
	return pv, charge, discharge, nil
}

func (s *SunSpecStorageInverter) readModulePower(index uint16) (uint16, error) {
	addr := s.blocks.mppt + 10 + 20*index + 11
	p, err := s.inverter.readRegister(addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	if int16(p) == -1 {
		return 0, nil
	}
	return p, nil
}

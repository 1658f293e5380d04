package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDR        = 40000
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_STORAGE       = 124
	SUNSPEC_WK_MPPT          = 160
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204
	SUNSPEC_END_BLOCK        = 0xFFFF

	maxSurveyBlocks = 20
)

var ErrNotSunSpec = errors.New("could not find a SunSpec device")

type inverterBlocks struct {
	common   uint16
	inverter uint16
	status   uint16
	mppt     uint16
	storage  uint16
}

func (blk inverterBlocks) allDefined() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.status > 0 &&
		blk.mppt > 0 && blk.storage > 0
}

type meterBlocks struct {
	common  uint16
	acMeter uint16
}

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_END_BLOCK
}

// surveyBlocks walks the SunSpec model chain starting after the "SunS"
// marker and calls visit for every model until the end marker, or until visit
// returns true.
func (reader ModbusClient) surveyBlocks(visit func(block modbusBlock) bool) error {
	str, err := reader.readString(SUNSPEC_BASE_ADDR, 4)
	if err != nil {
		return err
	}
	if str != "SunS" {
		return ErrNotSunSpec
	}

	var baseAddr uint16 = SUNSPEC_BASE_ADDR + 2
	for n := 0; n < maxSurveyBlocks; n++ {
		header, err := reader.readRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
		if err != nil {
			return err
		}
		block := modbusBlock{id: header[0], length: header[1], baseAddr: baseAddr}
		if block.isEndBlock() || visit(block) {
			return nil
		}
		baseAddr = baseAddr + block.length + 2
	}
	return nil
}

func (reader ModbusClient) surveyInverter() (inverterBlocks, error) {
	blocks := inverterBlocks{}
	err := reader.surveyBlocks(func(block modbusBlock) bool {
		switch {
		case block.id >= SUNSPEC_WK_INVERTERS_MIN && block.id <= SUNSPEC_WK_INVERTERS_MAX:
			blocks.inverter = block.baseAddr
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id == SUNSPEC_WK_STATUS:
			blocks.status = block.baseAddr
		case block.id == SUNSPEC_WK_STORAGE:
			blocks.storage = block.baseAddr
		case block.id == SUNSPEC_WK_MPPT:
			blocks.mppt = block.baseAddr
		}
		return blocks.allDefined()
	})
	if err != nil {
		return blocks, err
	}
	if blocks.common == 0 || blocks.inverter == 0 || blocks.storage == 0 {
		return blocks, errors.New("could not find all required sunspec blocks (common, inverter, storage)")
	}
	return blocks, nil
}

func (reader ModbusClient) surveyMeter() (meterBlocks, error) {
	blocks := meterBlocks{}
	err := reader.surveyBlocks(func(block modbusBlock) bool {
		switch {
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id >= SUNSPEC_WK_METERS_MIN && block.id <= SUNSPEC_WK_METERS_MAX:
			blocks.acMeter = block.baseAddr
		}
		return blocks.common > 0 && blocks.acMeter > 0
	})
	if err != nil {
		return blocks, err
	}
	if blocks.common == 0 || blocks.acMeter == 0 {
		return blocks, errors.New("could not find all required sunspec blocks (common, ac_meter)")
	}
	return blocks, nil
}

func (reader ModbusClient) readCommon(common uint16) (DeviceInfo, error) {
	manufacturer, err := reader.readString(common+2, 32)
	if err != nil {
		return DeviceInfo{}, err
	}
	model, err := reader.readString(common+18, 32)
	if err != nil {
		return DeviceInfo{}, err
	}
	version, err := reader.readString(common+42, 16)
	if err != nil {
		return DeviceInfo{}, err
	}
	serial, err := reader.readString(common+50, 32)
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}, nil
}

package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/batteryopt2mqtt/pkg/sunspec_modbus"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE            = "bridge"
	SENSOR_ID_TARGET_POWER            = "target_power"
	SENSOR_ID_ACTION_MODE             = "action_mode"
	SENSOR_ID_CONTROLLER_MODE         = "controller_mode"
	SENSOR_ID_EFFECTIVE_MODE          = "effective_mode"
	SENSOR_ID_ARBITRATION_REASON      = "arbitration_reason"
	SENSOR_ID_SHADOW_PRICE            = "shadow_price"
	SENSOR_ID_TOTAL_COST              = "total_cost"
	SENSOR_ID_BASELINE_COST           = "baseline_cost"
	SENSOR_ID_SAVINGS                 = "savings"
	SENSOR_ID_OPTIMAL_POWER           = "optimal_power"
	SENSOR_ID_OPTIMAL_MODE            = "optimal_mode"
	SENSOR_ID_SKIP_REASON             = "optimizer_skip_reason"
	SENSOR_ID_BATTERY_SOC             = "battery_soc"
	SENSOR_ID_BATTERY_POWER           = "battery_power"
	SENSOR_ID_BATTERY_OPERATING_STATE = "battery_operating_state"
	SENSOR_ID_GRID_POWER              = "grid_power"
	SENSOR_ID_PV_POWER                = "pv_power"
	SENSOR_ID_GRID_SENSOR             = "grid_sensor"
	SELECT_ID_CONTROL_MODE            = "control_mode"
	SWITCH_ID_OPTIMIZER               = "optimizer"
	INPUT_NUMBER_ID_DEADBAND          = "deadband"
	STATE_CLASS_MEASUREMENT           = "measurement"
	DEVICE_CLASS_BATTERY              = "battery"
	DEVICE_CLASS_MONETARY             = "monetary"
	DEVICE_CLASS_POWER                = "power"
	DEVICE_CLASS_CONNECTIVITY         = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC           = "diagnostic"
	ENTITY_CLASS_CONFIG               = "config"
	SENSOR_TYPE_SENSOR                = "sensor"
	SENSOR_TYPE_BINARY                = "binary_sensor"
	INPUT_NUMBER_MODE_BOX             = "box"
	INPUT_NUMBER_MODE_SLIDER          = "slider"

	CURRENCY_PER_KWH = "EUR/kWh"
	CURRENCY         = "EUR"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("batteryopt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Batteryopt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Batteryopt %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(info *sunspec_modbus.InverterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("bopt_inverter_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// OptimizerSensors describe the plan and the arbitration outcome.
func OptimizerSensors(device Device) []GenericSensor {
	return []GenericSensor{
		powerSensor(device, SENSOR_ID_OPTIMAL_POWER, "Optimal battery power", "kW", "mdi:battery-sync"),
		textSensor(device, SENSOR_ID_OPTIMAL_MODE, "Optimal battery mode", "mdi:battery-sync-outline"),
		textSensor(device, SENSOR_ID_EFFECTIVE_MODE, "Effective mode", "mdi:state-machine"),
		{
			Device:         device,
			Id:             SENSOR_ID_ARBITRATION_REASON,
			SensorType:     SENSOR_TYPE_SENSOR,
			Name:           "Arbitration reason",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(device.Id, SENSOR_ID_ARBITRATION_REASON),
		},
		{
			Device:            device,
			Id:                SENSOR_ID_SHADOW_PRICE,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Stored energy value",
			StateClass:        STATE_CLASS_MEASUREMENT,
			UnitOfMeasurement: CURRENCY_PER_KWH,
			Icon:              "mdi:cash-clock",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_SHADOW_PRICE),
		},
		moneySensor(device, SENSOR_ID_TOTAL_COST, "Planned cost"),
		moneySensor(device, SENSOR_ID_BASELINE_COST, "Baseline cost"),
		moneySensor(device, SENSOR_ID_SAVINGS, "Planned savings"),
		{
			Device:           device,
			Id:               SENSOR_ID_SKIP_REASON,
			SensorType:       SENSOR_TYPE_SENSOR,
			Name:             "Optimizer skip reason",
			EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
			EnabledByDefault: optionalBool(false),
			UniqueId:         uniqueId(device.Id, SENSOR_ID_SKIP_REASON),
		},
	}
}

// ControllerSensors describe the real-time control loop and the battery
// readings it acts on.
func ControllerSensors(device Device, hasMeter bool) []GenericSensor {
	sensors := []GenericSensor{
		powerSensor(device, SENSOR_ID_TARGET_POWER, "Battery target power", "W", "mdi:target"),
		textSensor(device, SENSOR_ID_ACTION_MODE, "Battery action", "mdi:battery-charging"),
		textSensor(device, SENSOR_ID_CONTROLLER_MODE, "Controller mode", "mdi:tune"),
		{
			Device:            device,
			Id:                SENSOR_ID_BATTERY_SOC,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Battery SoC",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_BATTERY,
			UnitOfMeasurement: "%",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_BATTERY_SOC),
		},
		powerSensor(device, SENSOR_ID_BATTERY_POWER, "Battery power", "W", ""),
		powerSensor(device, SENSOR_ID_PV_POWER, "PV power", "W", "mdi:solar-power"),
		textSensor(device, SENSOR_ID_BATTERY_OPERATING_STATE, "Battery operating state", ""),
		{
			Device:         device,
			Id:             SENSOR_ID_GRID_SENSOR,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Grid sensor",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(device.Id, SENSOR_ID_GRID_SENSOR),
		},
	}
	if hasMeter {
		sensors = append(sensors, powerSensor(device, SENSOR_ID_GRID_POWER, "Grid power", "W", "mdi:transmission-tower"))
	}
	return sensors
}

func ControlSelects(device Device) []GenericSelect {
	options := make([]string, len(ControlModes))
	for i, m := range ControlModes {
		options[i] = string(m)
	}
	return []GenericSelect{{
		Device:   device,
		Id:       SELECT_ID_CONTROL_MODE,
		Name:     "Control mode",
		UniqueId: uniqueId(device.Id, SELECT_ID_CONTROL_MODE),
		Icon:     "mdi:battery-sync",
		Options:  options,
	}}
}

func ControlSwitches(device Device) []GenericSwitch {
	return []GenericSwitch{{
		Device:   device,
		Id:       SWITCH_ID_OPTIMIZER,
		Name:     "Optimizer",
		UniqueId: uniqueId(device.Id, SWITCH_ID_OPTIMIZER),
		Icon:     "mdi:chart-timeline-variant",
	}}
}

func ControlInputNumbers(device Device, deadbandW float64) []GenericInputNumber {
	return []GenericInputNumber{{
		Device:       device,
		Id:           INPUT_NUMBER_ID_DEADBAND,
		Name:         "Control deadband",
		UniqueId:     uniqueId(device.Id, INPUT_NUMBER_ID_DEADBAND),
		Icon:         "mdi:arrow-expand-horizontal",
		Max:          1000,
		Min:          0,
		Step:         10,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: deadbandW,
	}}
}

func powerSensor(device Device, id, name, unit, icon string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: unit,
		Icon:              icon,
		UniqueId:          uniqueId(device.Id, id),
	}
}

func moneySensor(device Device, id, name string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		DeviceClass:       DEVICE_CLASS_MONETARY,
		UnitOfMeasurement: CURRENCY,
		UniqueId:          uniqueId(device.Id, id),
	}
}

func textSensor(device Device, id, name, icon string) GenericSensor {
	return GenericSensor{
		Device:     device,
		Id:         id,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       name,
		Icon:       icon,
		UniqueId:   uniqueId(device.Id, id),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}

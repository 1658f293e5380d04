package events

import (
	. "github.com/berfenger/batteryopt2mqtt/internal/core/domain"
)

func PlanSnapshotToUpdateEvents(plan *PlanSnapshot) []any {
	if plan == nil {
		return nil
	}
	var events []any
	r := plan.Result

	events = append(events, floatEvent(SENSOR_ID_OPTIMAL_POWER, r.OptimalPowerKW, 3))
	events = append(events, textEvent(SENSOR_ID_OPTIMAL_MODE, string(r.OptimalMode)))
	events = append(events, textEvent(SENSOR_ID_EFFECTIVE_MODE, string(plan.Decision.Mode)))
	events = append(events, textEvent(SENSOR_ID_ARBITRATION_REASON, plan.Decision.Reason))
	events = append(events, floatEvent(SENSOR_ID_SHADOW_PRICE, r.ShadowPrice, 4))
	events = append(events, floatEvent(SENSOR_ID_TOTAL_COST, r.TotalCost, 2))
	events = append(events, floatEvent(SENSOR_ID_BASELINE_COST, r.BaselineCost, 2))
	events = append(events, floatEvent(SENSOR_ID_SAVINGS, r.Savings, 2))
	events = append(events, ControlModeToUpdateEvent(plan.ControlMode))

	return events
}

func ControlActionToUpdateEvents(a ControlAction) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_TARGET_POWER, a.TargetPowerW, 0))
	events = append(events, textEvent(SENSOR_ID_ACTION_MODE, string(a.ActionMode)))
	events = append(events, textEvent(SENSOR_ID_CONTROLLER_MODE, string(a.Mode)))

	return events
}

// TelemetryToUpdateEvents reports the live readings. Grid power is only
// published when the meter reading is valid.
func TelemetryToUpdateEvents(t Telemetry, state BatteryState, chargeStatus string) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_BATTERY_SOC, state.SoCPercent, 1))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_POWER, state.PowerKW*1000, 0))
	events = append(events, floatEvent(SENSOR_ID_PV_POWER, t.PVPowerW, 0))
	if chargeStatus != "" {
		events = append(events, textEvent(SENSOR_ID_BATTERY_OPERATING_STATE, chargeStatus))
	}
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_SENSOR},
		Value:                  t.GridValid,
	})
	if t.GridValid {
		events = append(events, floatEvent(SENSOR_ID_GRID_POWER, t.GridPowerW, 0))
	}

	return events
}

func SkipReasonToUpdateEvent(reason SkipReason) any {
	value := string(reason)
	if reason == SKIP_REASON_NONE {
		value = "none"
	}
	return textEvent(SENSOR_ID_SKIP_REASON, value)
}

func ControlModeToUpdateEvent(mode ControlMode) any {
	return SelectSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SELECT_ID_CONTROL_MODE},
		Value:                  string(mode),
	}
}

func DeadbandToUpdateEvent(deadbandW float64) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: INPUT_NUMBER_ID_DEADBAND},
		Value:                  deadbandW,
		Decimals:               0,
	}
}

func OptimizerEnabledToUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SWITCH_ID_OPTIMIZER},
		Value:                  enabled,
	}
}

func floatEvent(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: id},
		Value:                  value,
		Decimals:               decimals,
	}
}

func textEvent(id string, value string) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: id},
		Value:                  value,
	}
}

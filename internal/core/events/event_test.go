package events

import (
	"testing"

	. "github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func findEvent(events []any, id string) any {
	for _, e := range events {
		if s, ok := e.(SensorUpdateEvent); ok && s.SensorId() == id {
			return e
		}
	}
	return nil
}

func TestPlanSnapshotToUpdateEvents(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(PlanSnapshotToUpdateEvents(nil))

	plan := &PlanSnapshot{
		Result: OptimizationResult{
			OptimalPowerKW: 2.5,
			OptimalMode:    BATTERY_MODE_CHARGING,
			ShadowPrice:    0.21,
			TotalCost:      1.2,
			BaselineCost:   2.0,
			Savings:        0.8,
		},
		Decision:    ArbitrationDecision{Mode: EFFECTIVE_MODE_CHARGING, PowerKW: 2.5, Reason: "cheap"},
		ControlMode: CONTROL_MODE_HYBRID,
	}
	events := PlanSnapshotToUpdateEvents(plan)

	power, ok := findEvent(events, SENSOR_ID_OPTIMAL_POWER).(FloatSensorUpdateEvent)
	assert.True(ok)
	assert.Equal(2.5, power.Value)

	mode, ok := findEvent(events, SENSOR_ID_EFFECTIVE_MODE).(TextSensorUpdateEvent)
	assert.True(ok)
	assert.Equal("charging", mode.Value)

	sel, ok := findEvent(events, SELECT_ID_CONTROL_MODE).(SelectSensorUpdateEvent)
	assert.True(ok)
	assert.Equal("hybrid", sel.Value)
}

func TestTelemetryToUpdateEventsWithoutGrid(t *testing.T) {
	assert := assert.New(t)

	tel := Telemetry{SoC: 40, SoCUnit: SOC_UNIT_PERCENT, SoCValid: true, PVPowerW: 800}
	state := BatteryStateFromSoCPercent(40, 10).WithPowerKW(-1.2)
	events := TelemetryToUpdateEvents(tel, state, "")

	assert.Nil(findEvent(events, SENSOR_ID_GRID_POWER))
	assert.Nil(findEvent(events, SENSOR_ID_BATTERY_OPERATING_STATE))
	grid, ok := findEvent(events, SENSOR_ID_GRID_SENSOR).(BinarySensorUpdateEvent)
	assert.True(ok)
	assert.False(grid.Value)

	batt := findEvent(events, SENSOR_ID_BATTERY_POWER).(FloatSensorUpdateEvent)
	assert.InDelta(-1200.0, batt.Value, 1e-9)
}

func TestSkipReasonToUpdateEvent(t *testing.T) {
	assert.Equal(t, "none", SkipReasonToUpdateEvent(SKIP_REASON_NONE).(TextSensorUpdateEvent).Value)
	assert.Equal(t, "no_soc", SkipReasonToUpdateEvent(SKIP_REASON_NO_SOC).(TextSensorUpdateEvent).Value)
}

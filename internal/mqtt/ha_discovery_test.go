package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/batteryopt2mqtt/internal/config"
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDiscoveryMessage(t *testing.T) {
	c := newMQTTClient(nil, config.MQTTConfig{BaseTopic: "bopt"})
	dev := domain.Device{Id: "dev1", Name: "Batteryopt"}
	sel := domain.ControlSelects(dev)[0]

	assert.Equal(t, "homeassistant/select/dev1/control_mode/config", HADiscoverySelectTopic(sel))

	msg := GenericSelectToHADiscoveryMessage(c, sel)
	assert.Equal(t, "bopt/select/control_mode/state", msg.StateTopic)
	assert.Equal(t, "bopt/select/control_mode/set", msg.CommandTopic)
	assert.Equal(t, "bopt/bridge/state", msg.AvTopic)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded["options"], len(domain.ControlModes))
}

func TestBinarySensorDiscoveryPayloads(t *testing.T) {
	c := newMQTTClient(nil, config.MQTTConfig{BaseTopic: "bopt"})
	dev := domain.Device{Id: "dev1"}

	bridge := GenericSensorToHADiscoveryMessage(c, domain.BridgeSensors(dev)[0])
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, bridge.PayloadOn)
	assert.Equal(t, "bopt/bridge/state", bridge.StateTopic)

	for _, s := range domain.ControllerSensors(dev, false) {
		if s.Id == domain.SENSOR_ID_GRID_SENSOR {
			msg := GenericSensorToHADiscoveryMessage(c, s)
			assert.Equal(t, "bopt/binary_sensor/grid_sensor/state", msg.StateTopic)
			assert.Equal(t, MQTT_PAYLOAD_ON, msg.PayloadOn)
		}
	}
}

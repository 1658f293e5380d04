package actorutil

import (
	"testing"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/mqtt"

	"github.com/stretchr/testify/assert"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {
	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SELECT_ID_CONTROL_MODE,
		Command:  mqtt.COMMAND_SELECT,
		Payload:  "Zero_Grid",
	})
	assert.NoError(err)
	assert.Equal(domain.SetControlModeRequest{Mode: domain.CONTROL_MODE_ZERO_GRID}, req)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_DEADBAND,
		Command:  mqtt.COMMAND_NUMBER,
		Payload:  "120",
	})
	assert.NoError(err)
	assert.Equal(domain.SetDeadbandRequest{DeadbandW: 120}, req)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_OPTIMIZER,
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "off",
	})
	assert.NoError(err)
	assert.Equal(domain.SetOptimizerEnabledRequest{Enabled: false}, req)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "unknown",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "on",
	})
	assert.NoError(err)
	assert.Nil(req)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SELECT_ID_CONTROL_MODE,
		Command:  mqtt.COMMAND_SELECT,
		Payload:  "turbo",
	})
	assert.Error(err)
}

package actor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/util"
	"github.com/berfenger/batteryopt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := &eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, es, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	es.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_TARGET_POWER,
		},
		Value:    -812.4,
		Decimals: 0,
	})
	es.Publish(domain.SelectSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SELECT_ID_CONTROL_MODE,
		},
		Value: "hybrid",
	})
	es.Publish(domain.PlanUpdatedEvent{Snapshot: &domain.PlanSnapshot{
		ControlMode: domain.CONTROL_MODE_HYBRID,
		Decision:    domain.ArbitrationDecision{Mode: domain.EFFECTIVE_MODE_IDLE},
		StepMinutes: 15,
	}})

	time.Sleep(300 * time.Millisecond)

	result, err = context.RequestFuture(pid, GetPublishedRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	published := result.(GetPublishedResponse).Messages

	assert.Equal(t, "-812", published["batteryopt/sensor/target_power/state"])
	assert.Equal(t, "hybrid", published["batteryopt/select/control_mode/state"])

	var view domain.PlanView
	require.NoError(t, json.Unmarshal([]byte(published["batteryopt/plan/state"]), &view))
	assert.Equal(t, "idle", view.EffectiveMode)
	assert.Equal(t, 15, view.StepMinutes)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestMQTTActorDiscovery(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, nil, logger) })
	pid := context.Spawn(props)

	dev := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	req := domain.PublishDiscoveryRequest{
		Sensors:      domain.OptimizerSensors(dev),
		Switches:     domain.ControlSwitches(dev),
		InputNumbers: domain.ControlInputNumbers(dev, 50),
		Selects:      domain.ControlSelects(dev),
	}
	result, err := context.RequestFuture(pid, req, 2*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, result.(domain.PublishDiscoveryResponse).HasResponseError())

	result, err = context.RequestFuture(pid, GetPublishedRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	published := result.(GetPublishedResponse).Messages

	total := len(req.Sensors) + len(req.Switches) + len(req.InputNumbers) + len(req.Selects)
	assert.Len(t, published, total)
	assert.Contains(t, published, "homeassistant/select/"+dev.Id+"/control_mode/config")

	context.Stop(pid)

	as.Shutdown()
}

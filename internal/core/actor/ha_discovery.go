package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/config"
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/util/actorutil"
	"github.com/berfenger/batteryopt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

var ErrDiscoveryDepsUnhealthy = errors.New("MQTT Actor or Modbus Actor are not healthy")

// HADiscoveryActor publishes the Home Assistant discovery configuration once
// both the inverter and the broker are reachable, then goes idle.
type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	modbusActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, modbusActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		modbusActor: modbusActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		state.healthyRecv = 0
		state.modbusActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MODBUS,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.modbusActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.modbusActorHealthy || !state.mqttActorHealthy {
				panic(ErrDiscoveryDepsUnhealthy)
			}
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetDevicesInfoRequest{}, 2*time.Second), func(err error) any {
				return domain.GetDevicesInfoResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}
			})
			state.behavior.Become(state.WaitingInfoReceive)
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetDevicesInfoResponse")
		ctx.Send(state.mqttActor, DiscoveryRequest(state.config, msg.Inverter))
		state.behavior.Become(state.Done)
	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "done",
		})
	}
}

// DiscoveryRequest lays out the entities: optimizer outputs and runtime
// controls belong to the bridge device, live readings and the control loop
// to the inverter device.
func DiscoveryRequest(cfg *config.Config, inverter *sunspec_modbus.InverterInfo) domain.PublishDiscoveryRequest {
	var req domain.PublishDiscoveryRequest

	bridgeDevice := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	req.Sensors = append(req.Sensors, domain.BridgeSensors(bridgeDevice)...)
	bridgeRef := domain.IdDevice(bridgeDevice)
	req.Sensors = append(req.Sensors, domain.OptimizerSensors(bridgeRef)...)
	req.Selects = domain.ControlSelects(bridgeRef)
	req.Switches = domain.ControlSwitches(bridgeRef)
	req.InputNumbers = domain.ControlInputNumbers(bridgeRef, cfg.Controller.DeadbandW)

	if inverter != nil {
		inverterDevice := domain.InverterDevice(inverter)
		inverterDevice.ViaDevice = bridgeDevice.Id
		controllerSensors := domain.ControllerSensors(inverterDevice, inverter.HasMeter)
		for i := range controllerSensors {
			if i > 0 {
				controllerSensors[i].Device = domain.IdDevice(inverterDevice)
			}
			req.Sensors = append(req.Sensors, controllerSensors[i])
		}
	}
	return req
}

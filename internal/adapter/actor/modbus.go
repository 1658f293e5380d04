package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/util/actorutil"
	"github.com/berfenger/batteryopt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const MODBUS_TASK_TIMEOUT = 2 * time.Second

// ModbusActor serializes every access to the storage inverter. While a
// Modbus transaction is running, incoming requests are stashed.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	inverter sunspec_modbus.StorageInverter
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(inverter sunspec_modbus.StorageInverter, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		inverter: inverter,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.inverter.Open(); err != nil {
			state.logger.Error("modbus@starting open failed", zap.Error(err))
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.inverter.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default: GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		runModbusTask(ctx, sender, state.getDevicesInfo, func(err error) domain.GetDevicesInfoResponse {
			return domain.GetDevicesInfoResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetTelemetryRequest:
		state.logger.Debug("modbus@default: GetTelemetryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		runModbusTask(ctx, sender, state.getTelemetry, func(err error) domain.GetTelemetryResponse {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ApplySetpointRequest:
		state.logger.Debug("modbus@default: ApplySetpointRequest",
			zap.Float64("power_w", msg.Setpoint.PowerW), zap.Bool("release", msg.Setpoint.Release))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		setpoint := msg.Setpoint
		runModbusTask(ctx, sender, func() (*domain.ApplySetpointResponse, error) {
			return state.applySetpoint(setpoint), nil
		}, func(err error) domain.ApplySetpointResponse {
			return domain.ApplySetpointResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.inverter.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.inverter.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func runModbusTask[T any](ctx actor.Context, sender *actor.PID, fn func() (*T, error), onError func(error) T) {
	actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, fn),
		mapTaskResult[T](sender)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: onError(err),
			replyTo: sender,
		}
	}).WithTimeout(MODBUS_TASK_TIMEOUT).PipeTo(ctx.Self())
}

func (a *ModbusActor) getDevicesInfo() (*domain.GetDevicesInfoResponse, error) {
	info, err := a.inverter.GetInfo()
	if err != nil {
		a.logger.Error("modbus: get info failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetDevicesInfoResponse{
		Inverter: info,
	}, nil
}

func (a *ModbusActor) getTelemetry() (*domain.GetTelemetryResponse, error) {
	t, err := a.inverter.GetTelemetry()
	if err != nil {
		a.logger.Error("modbus: get telemetry failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetTelemetryResponse{
		Telemetry:    StorageTelemetryToTelemetry(t, time.Now()),
		ChargeStatus: t.ChargeStatusStr,
	}, nil
}

func (a *ModbusActor) applySetpoint(sp sunspec_modbus.Setpoint) *domain.ApplySetpointResponse {
	if err := a.inverter.ApplySetpoint(sp); err != nil {
		a.logger.Error("modbus: apply setpoint failed", zap.Error(err))
		return &domain.ApplySetpointResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	}
	return &domain.ApplySetpointResponse{}
}

func StorageTelemetryToTelemetry(t *sunspec_modbus.StorageTelemetry, now time.Time) domain.Telemetry {
	return domain.Telemetry{
		SoC:              t.StateOfCharge,
		SoCUnit:          domain.SOC_UNIT_PERCENT,
		SoCValid:         t.SoCValid,
		BatteryPower:     t.BatteryPowerW,
		BatteryPowerUnit: domain.POWER_UNIT_W,
		GridPowerW:       t.GridPowerW,
		GridValid:        t.GridValid,
		PVPowerW:         t.PVPowerW,
		Timestamp:        now,
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}

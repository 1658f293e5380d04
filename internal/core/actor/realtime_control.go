package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/config"
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/events"
	"github.com/berfenger/batteryopt2mqtt/internal/core/port"
	"github.com/berfenger/batteryopt2mqtt/internal/core/service"
	. "github.com/berfenger/batteryopt2mqtt/internal/util/actorutil"
	"github.com/berfenger/batteryopt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const MODBUS_RESPONSE_TIMEOUT = 2 * time.Second

var ErrReceiveTimeout = errors.New("receive timeout")

// RealtimeControlActor runs the zero-grid control loop against the latest
// plan snapshot. At most one control cycle (telemetry read, setpoint write)
// is in flight; ticks arriving meanwhile are dropped.
type RealtimeControlActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	modbusActor *actor.PID
	config      *config.Config
	battery     domain.BatteryConfig
	eventStream *eventstream.EventStream
	controller  port.RealtimeController
	arbitrator  port.ModeArbitrator
	cancelTick  scheduler.CancelFunc

	plan       *domain.PlanSnapshot
	lastAction *domain.ControlAction
	lastKnown  *domain.BatteryState

	logger *zap.Logger
}

type controlTick struct {
}

func NewRealtimeControlActor(config *config.Config, battery domain.BatteryConfig, modbusActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *RealtimeControlActor {
	act := &RealtimeControlActor{
		config:      config,
		battery:     battery,
		modbusActor: modbusActor,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_REALTIME, logger),
		eventStream: eventStream,
		controller: service.NewZeroGridControllerForBattery(battery, config.Controller.DeadbandW,
			config.Controller.ResponseTimeS, config.Controller.Priority, logger),
		arbitrator: service.NewModeArbitrator(battery),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(RTStartingState{
		actor: act,
	})
	return act
}

func (state *RealtimeControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type RTStartingState struct {
	ActorState
	actor *RealtimeControlActor
}

func (state RTStartingState) Name() string {
	return "starting"
}

func (state RTStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("realtime@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		// ticks also refresh the setpoint before the inverter reverts it
		interval := state.actor.tickInterval()
		state.actor.cancelTick = state.actor.scheduler.RequestRepeatedly(interval, interval, ctx.Self(), controlTick{})
		state.actor.eventStream.Publish(events.DeadbandToUpdateEvent(state.actor.config.Controller.DeadbandW))
		state.actor.Become(RTWaitingPlanState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("realtime@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting plan state

type RTWaitingPlanState struct {
	ActorState
	actor *RealtimeControlActor
}

func (state RTWaitingPlanState) Name() string {
	return "waitingPlan"
}

func (state RTWaitingPlanState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case controlTick:
		// nothing to control without a plan
	case domain.PlanUpdated:
		state.actor.logger.Info("realtime@waitingPlan: first plan received")
		state.actor.plan = msg.Snapshot
		controlling := RTControllingState{
			actor: state.actor,
		}
		state.actor.Become(controlling)
		controlling.startCycle(ctx)
	default:
		state.actor.handleCommon(ctx, state)
	}
}

// Controlling state

type RTControllingState struct {
	ActorState
	actor *RealtimeControlActor
}

func (state RTControllingState) Name() string {
	return "controlling"
}

func (state RTControllingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case controlTick:
		state.actor.logger.Debug("realtime@controlling controlTick")
		state.startCycle(ctx)
	case domain.PlanUpdated:
		state.actor.logger.Debug("realtime@controlling PlanUpdated")
		state.actor.plan = msg.Snapshot
		state.startCycle(ctx)
	default:
		state.actor.handleCommon(ctx, state)
	}
}

func (state RTControllingState) startCycle(ctx actor.Context) {
	state.actor.BecomeStacked(RTAwaitTelemetryState{
		actor: state.actor,
	}.OnEnterAction(ctx))
}

// Await telemetry state

type RTAwaitTelemetryState struct {
	ActorState
	actor *RealtimeControlActor
}

func (state RTAwaitTelemetryState) Name() string {
	return "awaitTelemetry"
}

func (state RTAwaitTelemetryState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx)
	case domain.GetTelemetryResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("realtime@awaitTelemetry: GetTelemetryResponse error", zap.Error(msg.GetResponseError()))
			state.actor.endCycle(ctx)
			return
		}
		batteryState := state.actor.batteryState(msg.Telemetry)
		for _, ev := range events.TelemetryToUpdateEvents(msg.Telemetry, batteryState, msg.ChargeStatus) {
			state.actor.eventStream.Publish(ev)
		}

		previousTargetW := state.actor.controller.LastTargetW()
		action, ok := service.PlanControlAction(state.actor.controller, state.actor.arbitrator, service.ControlCycleInput{
			Plan:            state.actor.plan,
			Telemetry:       msg.Telemetry,
			State:           batteryState,
			Now:             time.Now(),
			HasPowerSensors: state.actor.config.Controller.HasPowerSensors,
		})
		if !ok {
			state.actor.logger.Debug("realtime@awaitTelemetry: no grid reading, cycle skipped")
			state.actor.endCycle(ctx)
			return
		}
		state.actor.UnbecomeStacked()
		state.actor.BecomeStacked(RTAwaitSetpointState{
			actor:           state.actor,
			action:          action,
			previousTargetW: previousTargetW,
		}.OnEnterAction(ctx))
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("realtime@awaitTelemetry: ReceiveTimeout")
		state.actor.endCycle(ctx)
	default:
		state.actor.logger.Debug("realtime@awaitTelemetry: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state RTAwaitTelemetryState) OnEnterAction(ctx actor.Context) RTAwaitTelemetryState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor,
		domain.GetTelemetryRequest{}, MODBUS_RESPONSE_TIMEOUT),
		func(err error) any {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
	ctx.SetReceiveTimeout(MODBUS_RESPONSE_TIMEOUT)
	return state
}

// Await setpoint state

type RTAwaitSetpointState struct {
	ActorState
	actor  *RealtimeControlActor
	action domain.ControlAction
	// controller target before this cycle, restored when the write fails
	previousTargetW float64
}

func (state RTAwaitSetpointState) Name() string {
	return "awaitSetpoint"
}

func (state RTAwaitSetpointState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx)
	case domain.ApplySetpointResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("realtime@awaitSetpoint: ApplySetpointResponse error", zap.Error(msg.GetResponseError()))
			state.actor.controller.RestoreTargetW(state.previousTargetW)
		} else {
			state.actor.onApplied(state.action)
		}
		state.actor.endCycle(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("realtime@awaitSetpoint: ReceiveTimeout", zap.Error(ErrReceiveTimeout))
		state.actor.controller.RestoreTargetW(state.previousTargetW)
		state.actor.endCycle(ctx)
	default:
		state.actor.logger.Debug("realtime@awaitSetpoint: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state RTAwaitSetpointState) OnEnterAction(ctx actor.Context) RTAwaitSetpointState {
	setpoint := sunspec_modbus.Setpoint{
		PowerW:        state.action.TargetPowerW,
		Release:       state.action.ReleaseToBattery,
		RevertSeconds: state.actor.config.InverterModbusTcp.RevertSeconds,
	}
	state.actor.logger.Debug("realtime@awaitSetpoint: apply",
		zap.Float64("target_w", setpoint.PowerW), zap.Bool("release", setpoint.Release))
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor,
		domain.ApplySetpointRequest{Setpoint: setpoint}, MODBUS_RESPONSE_TIMEOUT),
		func(err error) any {
			return domain.ApplySetpointResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
	ctx.SetReceiveTimeout(MODBUS_RESPONSE_TIMEOUT)
	return state
}

// Other actor function helpers

// handleCommon serves the requests every resting state answers the same way.
func (state *RealtimeControlActor) handleCommon(ctx actor.Context, current ActorState) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("realtime@%s: ActorHealthRequest", current.Name()))
		state.respondHealth(ctx)
	case domain.SetDeadbandRequest:
		state.logger.Info("realtime: deadband", zap.Float64("deadband_w", msg.DeadbandW))
		state.controller.SetDeadbandW(msg.DeadbandW)
		state.eventStream.Publish(events.DeadbandToUpdateEvent(msg.DeadbandW))
		ForRequest(msg).Respond(ctx, domain.SetDeadbandResponse{DeadbandW: msg.DeadbandW})
	case domain.GetControlActionRequest:
		ForRequest(msg).Respond(ctx, domain.GetControlActionResponse{Action: state.lastAction})
	case domain.ApplySetpointResponse, domain.GetTelemetryResponse:
		// late response of a timed out cycle
		ctx.SetReceiveTimeout(0)
	case *actor.Stopping:
		if state.cancelTick != nil {
			state.cancelTick()
		}
	default:
		state.logger.Debug(fmt.Sprintf("realtime@%s: recv", current.Name()), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *RealtimeControlActor) respondHealth(ctx actor.Context) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_REALTIME,
		Healthy: true,
		State:   state.StateName(),
	})
}

// endCycle leaves the in-flight states. Ticks queued during the cycle are
// stale and dropped.
func (state *RealtimeControlActor) endCycle(ctx actor.Context) {
	if dropped := DropAll[controlTick](state.stash); dropped > 0 {
		state.logger.Debug("realtime: ticks dropped", zap.Int("count", dropped))
	}
	state.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *RealtimeControlActor) onApplied(action domain.ControlAction) {
	state.lastAction = &action
	state.logger.Debug("realtime: setpoint applied",
		zap.String("mode", string(action.Mode)),
		zap.Float64("target_w", action.TargetPowerW),
		zap.Float64("grid_w", action.CurrentGridW))
	for _, ev := range events.ControlActionToUpdateEvents(action) {
		state.eventStream.Publish(ev)
	}
	state.eventStream.Publish(domain.ControlActionEvent{Action: action})
}

func (state *RealtimeControlActor) batteryState(t domain.Telemetry) domain.BatteryState {
	batteryState := service.CurrentBatteryState(t, state.lastKnown, state.battery)
	if t.SoCValid {
		known := batteryState
		state.lastKnown = &known
	}
	return batteryState
}

func (state *RealtimeControlActor) tickInterval() time.Duration {
	seconds := state.config.Controller.ResponseTimeS
	if seconds <= 0 {
		seconds = service.DEFAULT_RESPONSE_TIME_S
	}
	return time.Duration(seconds * float64(time.Second))
}

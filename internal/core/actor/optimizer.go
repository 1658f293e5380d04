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
	"github.com/berfenger/batteryopt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	DEFAULT_OPTIMIZER_TIMEOUT = 30 * time.Second
	TELEMETRY_REQUEST_TIMEOUT = 3 * time.Second
)

var ErrOptimizerTimeout = errors.New("optimizer run timed out")

// OptimizerActor owns the plan. It runs one optimizer cycle at a time, on
// every cron fire, on significant price changes and on demand, and hands each
// new plan snapshot to the real-time actor.
type OptimizerActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	config        *config.Config
	battery       domain.BatteryConfig
	modbusActor   *actor.PID
	realtimeActor *actor.PID
	eventStream   *eventstream.EventStream
	optimizer     port.ScheduleOptimizer
	arbitrator    port.ModeArbitrator
	daylight      *service.DaylightFilter
	trigger       *quartz.CronTrigger

	forecast    *domain.Forecast
	plan        *domain.PlanSnapshot
	lastSkip    domain.SkipReason
	enabled     bool
	controlMode domain.ControlMode
	lastKnown   *domain.BatteryState

	cycle    *optimizerCycle
	cycleSeq uint64

	logger *zap.Logger
}

type optimizerTick struct {
}

// optimizerCycle is the state of the cycle in flight.
type optimizerCycle struct {
	seq       uint64
	replyTo   []*actor.PID
	started   time.Time
	telemetry domain.Telemetry
	state     domain.BatteryState
	aligned   domain.AlignedForecast
}

type optimizationSolved struct {
	seq    uint64
	result domain.OptimizationResult
	err    error
}

func NewOptimizerActor(config *config.Config, battery domain.BatteryConfig, modbusActor *actor.PID, realtimeActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *OptimizerActor {
	act := &OptimizerActor{
		config:        config,
		battery:       battery,
		modbusActor:   modbusActor,
		realtimeActor: realtimeActor,
		eventStream:   eventStream,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_OPTIMIZER, logger),
		optimizer:     service.NewDPOptimizer(battery, logger),
		arbitrator:    service.NewModeArbitrator(battery),
		enabled:       config.Optimizer.Enabled,
		controlMode:   controlModeOrDefault(config.Optimizer.ControlMode),
	}
	if config.Site.HasLocation() {
		act.daylight = service.NewDaylightFilter(*config.Site.Latitude, *config.Site.Longitude)
	}
	if config.Optimizer.Cron != "" {
		trigger, err := quartz.NewCronTrigger(config.Optimizer.Cron)
		if err != nil {
			act.logger.Error("optimizer: invalid cron expression, periodic runs disabled",
				zap.String("cron", config.Optimizer.Cron), zap.Error(err))
		} else {
			act.trigger = trigger
		}
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func controlModeOrDefault(value string) domain.ControlMode {
	mode, err := domain.ParseControlMode(value)
	if err != nil {
		return domain.CONTROL_MODE_HYBRID
	}
	return mode
}

func (state *OptimizerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *OptimizerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("optimizer@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduleNextTick(ctx)
		state.publishControls()
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("optimizer@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *OptimizerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("optimizer@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_OPTIMIZER,
			Healthy: true,
			State:   "idle",
		})
	case optimizerTick:
		state.logger.Debug("optimizer@default tick")
		state.scheduleNextTick(ctx)
		state.startCycle(ctx, nil)
	case domain.UpdateForecastRequest:
		now := time.Now()
		forecast := service.AnchorForecast(msg.Forecast, now)
		significant := state.forecast == nil ||
			service.PriceChangeSignificant(*state.forecast, forecast, now, state.priceChangeThreshold())
		state.logger.Debug("optimizer@default: UpdateForecastRequest",
			zap.Int("prices", len(forecast.Prices)), zap.Time("start", forecast.Start), zap.Bool("significant", significant))
		state.forecast = &forecast
		actorutil.ForRequest(msg).Respond(ctx, domain.UpdateForecastResponse{Triggered: significant})
		if significant {
			state.startCycle(ctx, nil)
		}
	case domain.RunOptimizationRequest:
		state.logger.Debug("optimizer@default: RunOptimizationRequest")
		state.startCycle(ctx, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.GetPlanRequest:
		state.respondPlan(ctx, msg)
	case domain.SetControlModeRequest:
		state.logger.Info("optimizer@default: control mode", zap.String("mode", string(msg.Mode)))
		state.controlMode = msg.Mode
		state.eventStream.Publish(events.ControlModeToUpdateEvent(msg.Mode))
		actorutil.ForRequest(msg).Respond(ctx, domain.SetControlModeResponse{Mode: msg.Mode})
		// re-arbitrate right away
		state.startCycle(ctx, nil)
	case domain.SetOptimizerEnabledRequest:
		state.logger.Info("optimizer@default: optimizer enabled", zap.Bool("enabled", msg.Enabled))
		wasEnabled := state.enabled
		state.enabled = msg.Enabled
		state.eventStream.Publish(events.OptimizerEnabledToUpdateEvent(msg.Enabled))
		actorutil.ForRequest(msg).Respond(ctx, domain.SetOptimizerEnabledResponse{Enabled: msg.Enabled})
		if msg.Enabled && !wasEnabled {
			state.startCycle(ctx, nil)
		}
	default:
		state.logger.Debug("optimizer@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// RunningReceive handles the cycle in flight. Requests that change the
// optimizer inputs are stashed until the cycle ends.
func (state *OptimizerActor) RunningReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_OPTIMIZER,
			Healthy: true,
			State:   "running",
		})
	case domain.GetPlanRequest:
		state.respondPlan(ctx, msg)
	case optimizerTick:
		state.logger.Debug("optimizer@running tick dropped")
		state.scheduleNextTick(ctx)
	case domain.RunOptimizationRequest:
		state.logger.Debug("optimizer@running: RunOptimizationRequest already running")
		actorutil.ForRequest(msg).Respond(ctx, domain.RunOptimizationResponse{
			Snapshot:   state.plan,
			SkipReason: domain.SKIP_REASON_ALREADY_RUNNING,
		})
	case domain.GetTelemetryResponse:
		if msg.HasResponseError() {
			state.logger.Warn("optimizer@running: GetTelemetryResponse error", zap.Error(msg.GetResponseError()))
			state.finishCycle(ctx, domain.SKIP_REASON_TELEMETRY_FAILED)
			return
		}
		state.onTelemetry(ctx, msg.Telemetry)
	case optimizationSolved:
		if state.cycle == nil || msg.seq != state.cycle.seq {
			state.logger.Debug("optimizer@running: stale result dropped")
			return
		}
		if msg.err != nil {
			state.logger.Error("optimizer@running: optimization failed", zap.Error(msg.err))
			state.finishCycle(ctx, domain.SKIP_REASON_TIMEOUT)
			return
		}
		state.onSolved(ctx, msg.result)
	case *actor.ReceiveTimeout:
		state.logger.Warn("optimizer@running: ReceiveTimeout")
		state.finishCycle(ctx, domain.SKIP_REASON_TIMEOUT)
	default:
		state.logger.Debug("optimizer@running: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *OptimizerActor) startCycle(ctx actor.Context, replyTo *actor.PID) {
	var replies []*actor.PID
	if replyTo != nil {
		replies = append(replies, replyTo)
	}
	if !state.enabled {
		state.skipCycle(ctx, replies, domain.SKIP_REASON_DISABLED)
		return
	}
	if state.forecast == nil {
		state.skipCycle(ctx, replies, domain.SKIP_REASON_NO_FORECAST)
		return
	}

	state.cycleSeq++
	state.cycle = &optimizerCycle{
		seq:     state.cycleSeq,
		replyTo: replies,
		started: time.Now(),
	}
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetTelemetryRequest{}, TELEMETRY_REQUEST_TIMEOUT), func(err error) any {
		return domain.GetTelemetryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
	ctx.SetReceiveTimeout(state.solveTimeout() + TELEMETRY_REQUEST_TIMEOUT + time.Second)
	state.behavior.BecomeStacked(state.RunningReceive)
}

func (state *OptimizerActor) onTelemetry(ctx actor.Context, t domain.Telemetry) {
	if !t.SoCValid && state.lastKnown == nil {
		state.logger.Warn("optimizer@running: no valid state of charge")
		state.finishCycle(ctx, domain.SKIP_REASON_NO_SOC)
		return
	}
	batteryState := service.CurrentBatteryState(t, state.lastKnown, state.battery)
	if t.SoCValid {
		known := batteryState
		state.lastKnown = &known
	}

	aligned := service.AlignForecasts(*state.forecast, state.config.Optimizer.StepMinutes, state.config.Optimizer.FixedFeedInPricePtr())
	// step 0 is the slot in progress
	aligned = service.TrimElapsed(aligned, state.cycle.started)
	if aligned.Steps() == 0 {
		state.logger.Warn("optimizer@running: forecast has no slot left", zap.Time("start", state.forecast.Start))
		state.finishCycle(ctx, domain.SKIP_REASON_EMPTY_HORIZON)
		return
	}
	if state.daylight != nil {
		aligned.PV = state.daylight.Apply(aligned.PV, aligned.Start, aligned.StepMinutes)
		if aligned.PVDC != nil {
			aligned.PVDC = state.daylight.Apply(aligned.PVDC, aligned.Start, aligned.StepMinutes)
		}
	}
	state.cycle.telemetry = t
	state.cycle.state = batteryState
	state.cycle.aligned = aligned

	input := port.OptimizationInput{
		CurrentSoCKWh:     batteryState.SoCKWh,
		Prices:            aligned.Prices,
		FeedIn:            aligned.FeedIn,
		PV:                aligned.PV,
		PVDC:              aligned.PVDC,
		Consumption:       aligned.Consumption,
		StepMinutes:       aligned.StepMinutes,
		DegradationPerKWh: state.config.Optimizer.DegradationPerKWh,
		MinPriceSpread:    state.config.Optimizer.MinPriceSpread,
	}
	state.logger.Debug("optimizer@running: solving",
		zap.Int("steps", aligned.Steps()), zap.Float64("soc_kwh", batteryState.SoCKWh))

	optimizer, seq := state.optimizer, state.cycle.seq
	actorutil.NewBackgroundTaskNoError(ctx, func() *optimizationSolved {
		return &optimizationSolved{seq: seq, result: optimizer.Optimize(input)}
	}).Recover(func(err error) optimizationSolved {
		return optimizationSolved{seq: seq, err: fmt.Errorf("%w: %w", ErrOptimizerTimeout, err)}
	}).WithTimeout(state.solveTimeout()).PipeTo(ctx.Self())
}

func (state *OptimizerActor) onSolved(ctx actor.Context, result domain.OptimizationResult) {
	cycle := state.cycle
	if result.Steps() == 0 {
		state.finishCycle(ctx, domain.SKIP_REASON_EMPTY_HORIZON)
		return
	}

	aligned := cycle.aligned
	gridW := service.GridW(cycle.telemetry,
		valueOrZero(aligned.Consumption, 0), valueOrZero(aligned.PV, 0), valueOrZero(aligned.PVDC, 0),
		cycle.state.PowerKW)
	feedIn := aligned.FeedInAt(0)

	decision := state.arbitrator.Arbitrate(port.ArbitrationInput{
		ControlMode:  state.controlMode,
		Result:       result,
		CurrentGridW: gridW,
		FeedInPrice:  feedIn,
	})

	snapshot := &domain.PlanSnapshot{
		Result:        result,
		Decision:      decision,
		ControlMode:   state.controlMode,
		DPScheduleW:   decision.PowerKW * 1000,
		FeedInPrice:   feedIn,
		ForecastStart: aligned.Start,
		StepMinutes:   aligned.StepMinutes,
		CreatedAt:     time.Now(),
		PVDCForecast:  aligned.PVDC,
	}
	state.plan = snapshot
	state.logger.Info("optimizer@running: new plan",
		zap.String("effective_mode", string(decision.Mode)),
		zap.Float64("power_kw", decision.PowerKW),
		zap.String("reason", decision.Reason),
		zap.Float64("savings", result.Savings),
		zap.Duration("elapsed", time.Since(cycle.started)))

	for _, ev := range events.PlanSnapshotToUpdateEvents(snapshot) {
		state.eventStream.Publish(ev)
	}
	state.eventStream.Publish(domain.PlanUpdatedEvent{Snapshot: snapshot})
	if state.realtimeActor != nil {
		ctx.Send(state.realtimeActor, domain.PlanUpdated{Snapshot: snapshot})
	}
	state.finishCycle(ctx, domain.SKIP_REASON_NONE)
}

func (state *OptimizerActor) finishCycle(ctx actor.Context, reason domain.SkipReason) {
	ctx.SetReceiveTimeout(0)
	var replies []*actor.PID
	if state.cycle != nil {
		replies = state.cycle.replyTo
	}
	state.cycle = nil
	state.skipCycle(ctx, replies, reason)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// skipCycle records the outcome of a cycle and answers the waiting requests.
// The last good plan is kept on skips.
func (state *OptimizerActor) skipCycle(ctx actor.Context, replyTo []*actor.PID, reason domain.SkipReason) {
	if reason != domain.SKIP_REASON_NONE {
		state.logger.Info("optimizer: cycle skipped", zap.String("reason", string(reason)))
	}
	state.lastSkip = reason
	state.eventStream.Publish(events.SkipReasonToUpdateEvent(reason))
	for _, pid := range replyTo {
		ctx.Send(pid, domain.RunOptimizationResponse{
			Snapshot:   state.plan,
			SkipReason: reason,
		})
	}
}

func (state *OptimizerActor) respondPlan(ctx actor.Context, req domain.GetPlanRequest) {
	actorutil.ForRequest(req).Respond(ctx, domain.GetPlanResponse{
		Snapshot:       state.plan,
		LastSkipReason: state.lastSkip,
		Enabled:        state.enabled,
		ControlMode:    state.controlMode,
	})
}

func (state *OptimizerActor) publishControls() {
	state.eventStream.Publish(events.ControlModeToUpdateEvent(state.controlMode))
	state.eventStream.Publish(events.OptimizerEnabledToUpdateEvent(state.enabled))
}

// scheduleNextTick arms the timer for the next cron fire time.
func (state *OptimizerActor) scheduleNextTick(ctx actor.Context) {
	if state.trigger == nil {
		return
	}
	now := time.Now()
	next, err := state.trigger.NextFireTime(now.UnixNano())
	if err != nil {
		state.logger.Error("optimizer: no next fire time", zap.Error(err))
		return
	}
	delay := time.Unix(0, next).Sub(now)
	state.logger.Debug("optimizer: next run", zap.Duration("in", delay))
	state.scheduler.RequestOnce(delay, ctx.Self(), optimizerTick{})
}

func (state *OptimizerActor) solveTimeout() time.Duration {
	if state.config.Optimizer.TimeoutSeconds > 0 {
		return time.Duration(state.config.Optimizer.TimeoutSeconds) * time.Second
	}
	return DEFAULT_OPTIMIZER_TIMEOUT
}

func (state *OptimizerActor) priceChangeThreshold() float64 {
	if state.config.Optimizer.PriceChangeThreshold > 0 {
		return state.config.Optimizer.PriceChangeThreshold
	}
	return service.DEFAULT_PRICE_CHANGE_THRESHOLD
}

func valueOrZero(values []float64, idx int) float64 {
	if idx < len(values) {
		return values[idx]
	}
	return 0
}

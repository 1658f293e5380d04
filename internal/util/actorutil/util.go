package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/service"
	"github.com/berfenger/batteryopt2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an inbound MQTT command to the request
// understood by the optimizer or the real-time actor. A nil request with a
// nil error means the command is not handled.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch {
	case cmd.Command == mqtt.COMMAND_FORECAST:
		forecast, err := service.ParseForecast([]byte(cmd.Payload))
		if err != nil {
			return nil, err
		}
		return domain.UpdateForecastRequest{Forecast: forecast}, nil
	case cmd.Command == mqtt.COMMAND_SELECT && cmd.DeviceId == domain.SELECT_ID_CONTROL_MODE:
		mode, err := domain.ParseControlMode(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetControlModeRequest{Mode: mode}, nil
	case cmd.Command == mqtt.COMMAND_NUMBER && cmd.DeviceId == domain.INPUT_NUMBER_ID_DEADBAND:
		value, err := strconv.ParseFloat(strings.TrimSpace(cmd.Payload), 64)
		if err != nil {
			return nil, err
		}
		if value < 0 {
			return nil, fmt.Errorf("invalid deadband %f", value)
		}
		return domain.SetDeadbandRequest{DeadbandW: value}, nil
	case cmd.Command == mqtt.COMMAND_SWITCH && cmd.DeviceId == domain.SWITCH_ID_OPTIMIZER:
		return domain.SetOptimizerEnabledRequest{
			Enabled: strings.EqualFold(cmd.Payload, mqtt.MQTT_PAYLOAD_ON),
		}, nil
	}
	return nil, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/batteryopt2mqtt/internal/adapter/actor"
	"github.com/berfenger/batteryopt2mqtt/internal/config"
	"github.com/berfenger/batteryopt2mqtt/internal/core/actor"
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/server"
	"github.com/berfenger/batteryopt2mqtt/internal/util/actorutil"
	"github.com/berfenger/batteryopt2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	battery, err := domain.NewBatteryConfig(cfg.Battery.Spec())
	if err != nil {
		slog.Error("battery config errors", "error", err)
		return
	}

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// plan and control updates are shared by the MQTT bridge and the websocket hub
	eventStream := &eventstream.EventStream{}

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, battery, eventStream, modbusProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, eventStream, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => BATTERYOPT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BATTERYOPT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("batteryopt")
	// battery.capacity_kwh => BATTERYOPT_BATTERY_CAPACITY_KWH
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// no defaults, an unset coordinate must stay nil
	_ = viper.BindEnv("site.latitude")
	_ = viper.BindEnv("site.longitude")

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Optimizer.StepMinutes <= 0 || 60%cfg.Optimizer.StepMinutes != 0 {
		return nil, errors.New("config param optimizer.step_minutes should be a divisor of 60")
	}
	if cfg.Optimizer.PriceChangeThreshold < 0 {
		return nil, errors.New("config param optimizer.price_change_threshold should be >= 0")
	}
	if cfg.Optimizer.TimeoutSeconds == 0 {
		return nil, errors.New("config param optimizer.timeout_seconds should be > 0")
	}
	if cfg.Optimizer.Cron != "" {
		if _, err := quartz.NewCronTrigger(cfg.Optimizer.Cron); err != nil {
			return nil, fmt.Errorf("config param optimizer.cron is invalid: %w", err)
		}
	}
	if _, err := domain.ParseControlMode(cfg.Optimizer.ControlMode); err != nil {
		slog.Warn("unknown control mode, using hybrid", "control_mode", cfg.Optimizer.ControlMode)
		cfg.Optimizer.ControlMode = string(domain.CONTROL_MODE_HYBRID)
	}
	if cfg.Controller.DeadbandW < 0 {
		return nil, errors.New("config param controller.deadband_w should be >= 0")
	}
	if cfg.Controller.ResponseTimeS < 1 {
		return nil, errors.New("config param controller.response_time_s should be >= 1")
	}
	if cfg.Controller.Priority != "schedule" && cfg.Controller.Priority != "zero_grid" {
		return nil, errors.New("config param controller.priority should be schedule or zero_grid")
	}
	if cfg.InverterModbusTcp.RevertSeconds > 0 && float64(cfg.InverterModbusTcp.RevertSeconds) <= cfg.Controller.ResponseTimeS {
		return nil, errors.New("config param inverter_modbus_tcp.revert_seconds must be > controller.response_time_s")
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	var inv sunspec_modbus.StorageInverter
	if cfg.InverterModbusTcp.Host == "" {
		logger.Warn("no inverter host configured, using the simulated inverter")
		inv = sunspec_modbus.CreateTestStorageInverter()
	} else {
		var err error
		inv, err = sunspec_modbus.CreateSunSpecStorageInverter(sunspec_modbus.StorageInverterConfig{
			Host:       cfg.InverterModbusTcp.Host,
			Port:       cfg.InverterModbusTcp.Port,
			InverterId: uint8(cfg.InverterModbusTcp.InverterId),
			MeterId:    uint8(cfg.InverterModbusTcp.MeterId),
			Timeout:    time.Duration(cfg.InverterModbusTcp.TimeoutMillis) * time.Millisecond,
		}, logger, nil)
		if err != nil {
			return nil, err
		}
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(inv, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	// comma separated in BATTERYOPT_HTTP_CORS_ORIGINS
	viper.SetDefault("http_cors_origins", []string{})

	viper.SetDefault("inverter_modbus_tcp.host", "")
	viper.SetDefault("inverter_modbus_tcp.port", 502)
	viper.SetDefault("inverter_modbus_tcp.inverter_id", 1)
	viper.SetDefault("inverter_modbus_tcp.meter_id", 200)
	viper.SetDefault("inverter_modbus_tcp.timeout_millis", 1000)
	viper.SetDefault("inverter_modbus_tcp.revert_seconds", 60)

	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "batteryopt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")

	viper.SetDefault("battery.capacity_kwh", 10.0)
	viper.SetDefault("battery.usable_capacity_kwh", 0.0)
	viper.SetDefault("battery.min_soc_percent", 10.0)
	viper.SetDefault("battery.max_soc_percent", 90.0)
	viper.SetDefault("battery.max_charge_power_kw", 5.0)
	viper.SetDefault("battery.max_discharge_power_kw", 5.0)
	viper.SetDefault("battery.round_trip_efficiency", 0.90)
	viper.SetDefault("battery.dc_coupled_pv", false)
	viper.SetDefault("battery.pv_dc_peak_power_kw", 0.0)
	viper.SetDefault("battery.pv_dc_efficiency", domain.DEFAULT_PV_DC_EFFICIENCY)

	viper.SetDefault("optimizer.enabled", true)
	viper.SetDefault("optimizer.step_minutes", 15)
	viper.SetDefault("optimizer.degradation_per_kwh", 0.03)
	viper.SetDefault("optimizer.min_price_spread", 0.05)
	viper.SetDefault("optimizer.fixed_feed_in", true)
	viper.SetDefault("optimizer.fixed_feed_in_price", 0.07)
	viper.SetDefault("optimizer.price_change_threshold", 0.10)
	viper.SetDefault("optimizer.cron", "0 0/15 * * * *")
	viper.SetDefault("optimizer.control_mode", string(domain.CONTROL_MODE_HYBRID))
	viper.SetDefault("optimizer.timeout_seconds", 30)

	viper.SetDefault("controller.deadband_w", 50.0)
	viper.SetDefault("controller.response_time_s", 10.0)
	viper.SetDefault("controller.priority", "schedule")
	viper.SetDefault("controller.has_power_sensors", true)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}

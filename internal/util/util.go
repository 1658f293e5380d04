package util

import (
	"github.com/berfenger/batteryopt2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:          "",
			Port:          502,
			MeterId:       200,
			InverterId:    1,
			TimeoutMillis: 1000,
			RevertSeconds: 30,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "batteryopt",
		},
		Battery: config.BatteryConfig{
			CapacityKWh:         10,
			MinSoCPercent:       10,
			MaxSoCPercent:       90,
			MaxChargePowerKW:    5,
			MaxDischargePowerKW: 5,
			RoundTripEfficiency: 0.9,
			PVDCEfficiency:      0.96,
		},
		Optimizer: config.OptimizerConfig{
			Enabled:              true,
			StepMinutes:          15,
			DegradationPerKWh:    0.03,
			MinPriceSpread:       0.05,
			FixedFeedInPrice:     0.07,
			PriceChangeThreshold: 0.10,
			Cron:                 "0 0/15 * * * *",
			ControlMode:          "hybrid",
			TimeoutSeconds:       30,
		},
		Controller: config.ControllerConfig{
			DeadbandW:       50,
			ResponseTimeS:   10,
			Priority:        "schedule",
			HasPowerSensors: true,
		},
		Port: 8080,
	}
}

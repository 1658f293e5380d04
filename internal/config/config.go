package config

import (
	"errors"
	"regexp"
	"strings"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel          zapcore.Level
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`

	Battery    BatteryConfig    `mapstructure:"battery"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Controller ControllerConfig `mapstructure:"controller"`
	Site       SiteConfig       `mapstructure:"site"`
	Port       uint             `mapstructure:"port"`
	HttpLog    bool             `mapstructure:"http_log"`
	// browser origins allowed to call the HTTP API, none when empty
	HttpCORSOrigins []string `mapstructure:"http_cors_origins"`
}

// InverterModbusTCPConfig points at a SunSpec storage inverter. An empty
// host runs the service against the in-memory simulator.
type InverterModbusTCPConfig struct {
	Host          string
	Port          uint
	MeterId       uint   `mapstructure:"meter_id"`
	InverterId    uint   `mapstructure:"inverter_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
	RevertSeconds uint32 `mapstructure:"revert_seconds"`
}

type BatteryConfig struct {
	CapacityKWh         float64 `mapstructure:"capacity_kwh"`
	UsableCapacityKWh   float64 `mapstructure:"usable_capacity_kwh"`
	MinSoCPercent       float64 `mapstructure:"min_soc_percent"`
	MaxSoCPercent       float64 `mapstructure:"max_soc_percent"`
	MaxChargePowerKW    float64 `mapstructure:"max_charge_power_kw"`
	MaxDischargePowerKW float64 `mapstructure:"max_discharge_power_kw"`
	RoundTripEfficiency float64 `mapstructure:"round_trip_efficiency"`
	DCCoupledPV         bool    `mapstructure:"dc_coupled_pv"`
	PVDCPeakPowerKW     float64 `mapstructure:"pv_dc_peak_power_kw"`
	PVDCEfficiency      float64 `mapstructure:"pv_dc_efficiency"`
}

type OptimizerConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	StepMinutes          int     `mapstructure:"step_minutes"`
	DegradationPerKWh    float64 `mapstructure:"degradation_per_kwh"`
	MinPriceSpread       float64 `mapstructure:"min_price_spread"`
	FixedFeedIn          bool    `mapstructure:"fixed_feed_in"`
	FixedFeedInPrice     float64 `mapstructure:"fixed_feed_in_price"`
	PriceChangeThreshold float64 `mapstructure:"price_change_threshold"`
	Cron                 string  `mapstructure:"cron"`
	ControlMode          string  `mapstructure:"control_mode"`
	TimeoutSeconds       uint32  `mapstructure:"timeout_seconds"`
}

type ControllerConfig struct {
	DeadbandW       float64 `mapstructure:"deadband_w"`
	ResponseTimeS   float64 `mapstructure:"response_time_s"`
	Priority        string  `mapstructure:"priority"`
	HasPowerSensors bool    `mapstructure:"has_power_sensors"`
}

// SiteConfig locates the PV installation. Night PV sanitation is enabled
// only when both coordinates are set; 0 is a valid coordinate.
type SiteConfig struct {
	Latitude  *float64 `mapstructure:"latitude"`
	Longitude *float64 `mapstructure:"longitude"`
}

func (s SiteConfig) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (b BatteryConfig) Spec() domain.BatterySpec {
	return domain.BatterySpec{
		CapacityKWh:         b.CapacityKWh,
		UsableCapacityKWh:   b.UsableCapacityKWh,
		MinSoCPercent:       b.MinSoCPercent,
		MaxSoCPercent:       b.MaxSoCPercent,
		MaxChargePowerKW:    b.MaxChargePowerKW,
		MaxDischargePowerKW: b.MaxDischargePowerKW,
		RoundTripEfficiency: b.RoundTripEfficiency,
		DCCoupledPV:         b.DCCoupledPV,
		PVDCPeakPowerKW:     b.PVDCPeakPowerKW,
		PVDCEfficiency:      b.PVDCEfficiency,
	}
}

// FixedFeedInPricePtr returns the constant feed-in price, or nil when the
// forecast sell series should be used.
func (o OptimizerConfig) FixedFeedInPricePtr() *float64 {
	if !o.FixedFeedIn {
		return nil
	}
	price := o.FixedFeedInPrice
	return &price
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

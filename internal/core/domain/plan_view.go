package domain

import "time"

// PlanView is the JSON representation of a plan snapshot shared by the MQTT
// plan topic, the HTTP API and the websocket stream.
type PlanView struct {
	CreatedAt           time.Time `json:"created_at"`
	ForecastStart       time.Time `json:"forecast_start"`
	StepMinutes         int       `json:"step_minutes"`
	ControlMode         string    `json:"control_mode"`
	EffectiveMode       string    `json:"effective_mode"`
	Reason              string    `json:"reason"`
	OptimalPowerKW      float64   `json:"optimal_power_kw"`
	OptimalMode         string    `json:"optimal_mode"`
	DPScheduleW         float64   `json:"dp_schedule_w"`
	ShadowPrice         float64   `json:"shadow_price"`
	TotalCost           float64   `json:"total_cost"`
	BaselineCost        float64   `json:"baseline_cost"`
	Savings             float64   `json:"savings"`
	FeedInPrice         float64   `json:"feed_in_price"`
	PowerScheduleKW     []float64 `json:"power_schedule_kw"`
	ModeSchedule        []string  `json:"mode_schedule"`
	SoCScheduleKWh      []float64 `json:"soc_schedule_kwh"`
	PriceForecast       []float64 `json:"price_forecast"`
	PVForecast          []float64 `json:"pv_forecast"`
	ConsumptionForecast []float64 `json:"consumption_forecast"`
	PVDCForecast        []float64 `json:"pv_dc_forecast,omitempty"`
}

func NewPlanView(p *PlanSnapshot) *PlanView {
	if p == nil {
		return nil
	}
	modes := make([]string, len(p.Result.ModeSchedule))
	for i, m := range p.Result.ModeSchedule {
		modes[i] = string(m)
	}
	return &PlanView{
		CreatedAt:           p.CreatedAt,
		ForecastStart:       p.ForecastStart,
		StepMinutes:         p.StepMinutes,
		ControlMode:         string(p.ControlMode),
		EffectiveMode:       string(p.Decision.Mode),
		Reason:              p.Decision.Reason,
		OptimalPowerKW:      p.Result.OptimalPowerKW,
		OptimalMode:         string(p.Result.OptimalMode),
		DPScheduleW:         p.DPScheduleW,
		ShadowPrice:         p.Result.ShadowPrice,
		TotalCost:           p.Result.TotalCost,
		BaselineCost:        p.Result.BaselineCost,
		Savings:             p.Result.Savings,
		FeedInPrice:         p.FeedInPrice,
		PowerScheduleKW:     p.Result.PowerScheduleKW,
		ModeSchedule:        modes,
		SoCScheduleKWh:      p.Result.SoCScheduleKWh,
		PriceForecast:       p.Result.PriceForecast,
		PVForecast:          p.Result.PVForecast,
		ConsumptionForecast: p.Result.ConsumptionForecast,
		PVDCForecast:        p.PVDCForecast,
	}
}

// ControlActionView is the JSON representation of a control action.
type ControlActionView struct {
	TargetPowerW     float64 `json:"target_power_w"`
	RawTargetW       float64 `json:"raw_target_w"`
	CurrentGridW     float64 `json:"current_grid_w"`
	CurrentBatteryW  float64 `json:"current_battery_w"`
	DPScheduleW      float64 `json:"dp_schedule_w"`
	Mode             string  `json:"mode"`
	ActionMode       string  `json:"action_mode"`
	SoCKWh           float64 `json:"soc_kwh"`
	SoCPercent       float64 `json:"soc_percent"`
	ReleaseToBattery bool    `json:"release_to_battery"`
}

func NewControlActionView(a *ControlAction) *ControlActionView {
	if a == nil {
		return nil
	}
	return &ControlActionView{
		TargetPowerW:     a.TargetPowerW,
		RawTargetW:       a.RawTargetW,
		CurrentGridW:     a.CurrentGridW,
		CurrentBatteryW:  a.CurrentBatteryW,
		DPScheduleW:      a.DPScheduleW,
		Mode:             string(a.Mode),
		ActionMode:       string(a.ActionMode),
		SoCKWh:           a.SoCKWh,
		SoCPercent:       a.SoCPercent,
		ReleaseToBattery: a.ReleaseToBattery,
	}
}

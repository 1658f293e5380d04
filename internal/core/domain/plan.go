package domain

import "time"

// PlanSnapshot is the single-writer state cell shared between the optimizer
// cycle and the real-time ticks. Only the optimizer builds snapshots, the
// real-time controller reads them.
type PlanSnapshot struct {
	Result        OptimizationResult
	Decision      ArbitrationDecision
	ControlMode   ControlMode
	DPScheduleW   float64
	FeedInPrice   float64
	ForecastStart time.Time
	StepMinutes   int
	CreatedAt     time.Time
	// aligned DC PV forecast (kW), nil without DC coupled PV
	PVDCForecast []float64
}

// StepIndex returns the schedule step that covers the given instant, clamped
// to the plan horizon.
func (p *PlanSnapshot) StepIndex(now time.Time) int {
	if p == nil || p.StepMinutes <= 0 || p.ForecastStart.IsZero() || now.Before(p.ForecastStart) {
		return 0
	}
	idx := int(now.Sub(p.ForecastStart) / (time.Duration(p.StepMinutes) * time.Minute))
	if n := p.Result.Steps(); idx >= n {
		if n == 0 {
			return 0
		}
		return n - 1
	}
	return idx
}

// ScheduleWAt returns the DP schedule (W) for the step covering now. The
// first step uses the arbitrated setpoint.
func (p *PlanSnapshot) ScheduleWAt(now time.Time) float64 {
	if p == nil {
		return 0
	}
	idx := p.StepIndex(now)
	if idx == 0 || idx >= len(p.Result.PowerScheduleKW) {
		return p.DPScheduleW
	}
	return p.Result.PowerScheduleKW[idx] * 1000
}

// SkipReason explains why an optimizer cycle did not produce a new plan.
type SkipReason string

const (
	SKIP_REASON_NONE             SkipReason = ""
	SKIP_REASON_NO_FORECAST      SkipReason = "no_forecast"
	SKIP_REASON_NO_SOC           SkipReason = "no_soc"
	SKIP_REASON_DISABLED         SkipReason = "disabled"
	SKIP_REASON_TELEMETRY_FAILED SkipReason = "telemetry_failed"
	SKIP_REASON_ALREADY_RUNNING  SkipReason = "already_running"
	SKIP_REASON_EMPTY_HORIZON    SkipReason = "empty_horizon"
	SKIP_REASON_TIMEOUT          SkipReason = "timeout"
)

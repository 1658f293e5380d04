package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanStepIndex(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	plan := &PlanSnapshot{
		Result:        OptimizationResult{PowerScheduleKW: []float64{1, 2, -1, 0}},
		DPScheduleW:   1500,
		ForecastStart: start,
		StepMinutes:   15,
	}

	assert.Equal(0, plan.StepIndex(start.Add(-time.Hour)))
	assert.Equal(0, plan.StepIndex(start.Add(14*time.Minute)))
	assert.Equal(1, plan.StepIndex(start.Add(15*time.Minute)))
	assert.Equal(3, plan.StepIndex(start.Add(10*time.Hour)))

	var nilPlan *PlanSnapshot
	assert.Equal(0, nilPlan.StepIndex(start))
}

func TestPlanScheduleWAt(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	plan := &PlanSnapshot{
		Result:        OptimizationResult{PowerScheduleKW: []float64{1, 2, -1}},
		DPScheduleW:   1500,
		ForecastStart: start,
		StepMinutes:   15,
	}

	// first step follows the arbitrated setpoint
	assert.Equal(1500.0, plan.ScheduleWAt(start.Add(5*time.Minute)))
	assert.Equal(2000.0, plan.ScheduleWAt(start.Add(20*time.Minute)))
	assert.Equal(-1000.0, plan.ScheduleWAt(start.Add(5*time.Hour)))

	var nilPlan *PlanSnapshot
	assert.Equal(0.0, nilPlan.ScheduleWAt(start))
}

func TestNewPlanViewNil(t *testing.T) {
	assert.Nil(t, NewPlanView(nil))
	assert.Nil(t, NewControlActionView(nil))
}

func TestNewPlanView(t *testing.T) {
	plan := &PlanSnapshot{
		Result: OptimizationResult{
			PowerScheduleKW: []float64{2},
			ModeSchedule:    []BatteryMode{BATTERY_MODE_CHARGING},
			OptimalMode:     BATTERY_MODE_CHARGING,
		},
		Decision:    ArbitrationDecision{Mode: EFFECTIVE_MODE_CHARGING, PowerKW: 2, Reason: "cheap"},
		ControlMode: CONTROL_MODE_HYBRID,
		DPScheduleW: 2000,
	}
	view := NewPlanView(plan)
	assert.Equal(t, []string{"charging"}, view.ModeSchedule)
	assert.Equal(t, "hybrid", view.ControlMode)
	assert.Equal(t, "charging", view.EffectiveMode)
	assert.Equal(t, 2000.0, view.DPScheduleW)
}

package domain

import "fmt"

// OptimizerRequest

type OptimizerRequest interface {
	ActorRequest
	OptimizerCommand() string
}

type OptimizerRequestMixIn struct {
	ActorRequestMixIn
}

func (r OptimizerRequestMixIn) OptimizerCommand() string {
	return fmt.Sprintf("%T", r)
}

// RealtimeRequest

type RealtimeRequest interface {
	ActorRequest
	RealtimeCommand() string
}

type RealtimeRequestMixIn struct {
	ActorRequestMixIn
}

func (r RealtimeRequestMixIn) RealtimeCommand() string {
	return fmt.Sprintf("%T", r)
}

// Optimizer commands

type UpdateForecastRequest struct {
	OptimizerRequestMixIn
	Forecast Forecast
}

type UpdateForecastResponse struct {
	ActorResponseMixIn
	// Triggered is true when the new prices started an immediate optimizer run
	Triggered bool
}

type RunOptimizationRequest struct {
	OptimizerRequestMixIn
}

type RunOptimizationResponse struct {
	ActorResponseMixIn
	Snapshot   *PlanSnapshot
	SkipReason SkipReason
}

type GetPlanRequest struct {
	OptimizerRequestMixIn
}

type GetPlanResponse struct {
	ActorResponseMixIn
	Snapshot       *PlanSnapshot
	LastSkipReason SkipReason
	Enabled        bool
	ControlMode    ControlMode
}

type SetControlModeRequest struct {
	OptimizerRequestMixIn
	Mode ControlMode
}

type SetControlModeResponse struct {
	ActorResponseMixIn
	Mode ControlMode
}

type SetOptimizerEnabledRequest struct {
	OptimizerRequestMixIn
	Enabled bool
}

type SetOptimizerEnabledResponse struct {
	ActorResponseMixIn
	Enabled bool
}

// Realtime commands

type SetDeadbandRequest struct {
	RealtimeRequestMixIn
	DeadbandW float64
}

type SetDeadbandResponse struct {
	ActorResponseMixIn
	DeadbandW float64
}

type GetControlActionRequest struct {
	RealtimeRequestMixIn
}

type GetControlActionResponse struct {
	ActorResponseMixIn
	Action *ControlAction
}

// PlanUpdated hands a new plan snapshot from the optimizer to the real-time
// controller. The snapshot is never mutated after it is sent.
type PlanUpdated struct {
	Snapshot *PlanSnapshot
}

// ensure interface compliance
var _ OptimizerRequest = (*UpdateForecastRequest)(nil)
var _ RealtimeRequest = (*SetDeadbandRequest)(nil)

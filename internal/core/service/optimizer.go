package service

import (
	"math"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	DEFAULT_STEP_MINUTES             = 15
	DEFAULT_DEGRADATION_COST_PER_KWH = 0.03
	DEFAULT_MIN_PRICE_SPREAD         = 0.05

	SOC_STEP_WH   = 25
	ACTION_STEP_W = 100
)

type OptimizationInput = port.OptimizationInput

// DPOptimizer computes a cost-minimal battery schedule by backward dynamic
// programming over a discretized state of charge grid.
type DPOptimizer struct {
	Battery domain.BatteryConfig
	logger  *zap.Logger
}

func NewDPOptimizer(battery domain.BatteryConfig, logger *zap.Logger) *DPOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DPOptimizer{
		Battery: battery,
		logger:  logger,
	}
}

type socGrid struct {
	minWh  int
	stepWh int
	states []int
}

func newSoCGrid(minWh, maxWh, stepWh int) socGrid {
	count := 1
	if maxWh > minWh {
		count = (maxWh-minWh)/stepWh + 1
	}
	states := make([]int, count)
	for i := range states {
		states[i] = minWh + i*stepWh
	}
	return socGrid{minWh: minWh, stepWh: stepWh, states: states}
}

// nearest returns the index of the grid state closest to socWh. Ties go to
// the even index.
func (g socGrid) nearest(socWh float64) int {
	if len(g.states) <= 1 {
		return 0
	}
	idx := int(math.RoundToEven((socWh - float64(g.states[0])) / float64(g.stepWh)))
	if idx < 0 {
		return 0
	}
	if idx >= len(g.states) {
		return len(g.states) - 1
	}
	return idx
}

func valueAt(values []float64, idx int) float64 {
	if idx < len(values) {
		return values[idx]
	}
	return 0
}

func emptyResult(currentSoCKWh float64) domain.OptimizationResult {
	return domain.OptimizationResult{
		PowerScheduleKW:     []float64{},
		ModeSchedule:        []domain.BatteryMode{},
		SoCScheduleKWh:      []float64{currentSoCKWh},
		OptimalMode:         domain.BATTERY_MODE_IDLE,
		PriceForecast:       []float64{},
		PVForecast:          []float64{},
		ConsumptionForecast: []float64{},
	}
}

// Optimize runs the optimizer. The horizon is the shortest of the price, PV
// and consumption forecasts. An empty horizon yields an idle result.
func (o *DPOptimizer) Optimize(in OptimizationInput) domain.OptimizationResult {
	feedIn := in.FeedIn
	if feedIn == nil {
		feedIn = in.Prices
	}

	n := min(len(in.Prices), len(in.PV), len(in.Consumption))
	if n == 0 {
		return emptyResult(in.CurrentSoCKWh)
	}

	pvdc := in.PVDC
	if pvdc == nil {
		pvdc = make([]float64, n)
	}

	stepMinutes := in.StepMinutes
	if stepMinutes <= 0 {
		stepMinutes = DEFAULT_STEP_MINUTES
	}
	dt := float64(stepMinutes) / 60

	minWh := int(o.Battery.MinSoCKWh * 1000)
	maxWh := int(o.Battery.MaxSoCKWh * 1000)
	grid := newSoCGrid(minWh, maxWh, SOC_STEP_WH)
	nStates := len(grid.states)

	dischargeSteps := int(o.Battery.MaxDischargePowerKW * 1000 / ACTION_STEP_W)
	chargeSteps := int(o.Battery.MaxChargePowerKW * 1000 / ACTION_STEP_W)
	actions := make([]float64, 0, dischargeSteps+chargeSteps+1)
	for i := dischargeSteps; i > 0; i-- {
		actions = append(actions, -float64(i*ACTION_STEP_W))
	}
	for i := 0; i <= chargeSteps; i++ {
		actions = append(actions, float64(i*ACTION_STEP_W))
	}

	// value function and policy as flat arenas indexed [t*nStates+s]
	values := make([]float64, (n+1)*nStates)
	for i := range values {
		values[i] = math.Inf(1)
	}
	policy := make([]float64, n*nStates)

	terminalPrice := 0.0
	if len(feedIn) > 0 {
		terminalPrice = feedIn[len(feedIn)-1]
	}
	for s, soc := range grid.states {
		values[n*nStates+s] = -(float64(soc-minWh) / 1000) * terminalPrice
	}

	for t := n - 1; t >= 0; t-- {
		price := in.Prices[t]
		feedInPrice := price
		if t < len(feedIn) {
			feedInPrice = feedIn[t]
		}
		pvW := valueAt(in.PV, t) * 1000
		pvdcW := valueAt(pvdc, t) * 1000
		consW := valueAt(in.Consumption, t) * 1000

		next := values[(t+1)*nStates : (t+2)*nStates]
		for s, soc := range grid.states {
			best := math.Inf(1)
			bestAction := 0.0
			for _, a := range actions {
				var newSoC float64
				if a > 0 {
					newSoC = float64(soc) + a*dt
				} else {
					newSoC = float64(soc) - math.Abs(a)*dt
				}
				if newSoC > float64(maxWh) || newSoC < float64(minWh) {
					continue
				}
				cost := StepCost(o.Battery, StepInput{
					DurationH:         dt,
					SoCWh:             float64(soc),
					ActionW:           a,
					BuyPrice:          price,
					FeedInPrice:       feedInPrice,
					PVW:               pvW,
					PVDCW:             pvdcW,
					ConsumptionW:      consW,
					RoundTripEff:      o.Battery.RoundTripEfficiency,
					DegradationPerKWh: in.DegradationPerKWh,
				})
				total := cost + next[grid.nearest(newSoC)]
				if total < best {
					best = total
					bestAction = a
				}
			}
			values[t*nStates+s] = best
			policy[t*nStates+s] = bestAction
		}
	}

	startIdx := grid.nearest(float64(int(in.CurrentSoCKWh * 1000)))
	shadowPrice := o.shadowPrice(values[:nStates], startIdx)

	powerKW := make([]float64, 0, n)
	modes := make([]domain.BatteryMode, 0, n)
	socKWh := make([]float64, 0, n+1)
	socKWh = append(socKWh, in.CurrentSoCKWh)
	current := float64(grid.states[startIdx])
	for t := 0; t < n; t++ {
		a := policy[t*nStates+grid.nearest(current)]
		powerKW = append(powerKW, a/1000)
		switch {
		case a > 0:
			modes = append(modes, domain.BATTERY_MODE_CHARGING)
		case a < 0:
			modes = append(modes, domain.BATTERY_MODE_DISCHARGING)
		default:
			modes = append(modes, domain.BATTERY_MODE_IDLE)
		}
		current = math.Max(float64(minWh), math.Min(float64(maxWh), current+a*dt))
		socKWh = append(socKWh, current/1000)
	}

	filterFeedIn := in.Prices[:n]
	if len(feedIn) >= n {
		filterFeedIn = feedIn[:n]
	}
	filter := NewOscillationFilter(o.Battery, in.DegradationPerKWh, in.MinPriceSpread, stepMinutes)
	powerKW, modes, socKWh = filter.Apply(powerKW, modes, socKWh, FilterForecast{
		Prices:      in.Prices[:n],
		FeedIn:      filterFeedIn,
		PV:          in.PV[:n],
		Consumption: in.Consumption[:n],
	}, dt)

	totalCost := values[startIdx]
	baseline := o.baselineCost(in, feedIn, pvdc, n, dt)

	result := domain.OptimizationResult{
		PowerScheduleKW:     powerKW,
		ModeSchedule:        modes,
		SoCScheduleKWh:      socKWh,
		TotalCost:           totalCost,
		BaselineCost:        baseline,
		Savings:             baseline - totalCost,
		OptimalPowerKW:      powerKW[0],
		OptimalMode:         modes[0],
		ShadowPrice:         shadowPrice,
		PriceForecast:       append([]float64(nil), in.Prices[:n]...),
		PVForecast:          append([]float64(nil), in.PV[:n]...),
		ConsumptionForecast: append([]float64(nil), in.Consumption[:n]...),
	}

	o.logger.Debug("optimization done",
		zap.Int("steps", n),
		zap.Int("states", nStates),
		zap.Int("actions", len(actions)),
		zap.Float64("total_cost", result.TotalCost),
		zap.Float64("baseline_cost", result.BaselineCost),
		zap.Float64("savings", result.Savings),
		zap.Float64("shadow_price", result.ShadowPrice),
		zap.Float64("optimal_power_kw", result.OptimalPowerKW))
	return result
}

// shadowPrice is the marginal value (EUR/kWh) of stored energy at the start
// state, from a finite difference of the step 0 value function.
func (o *DPOptimizer) shadowPrice(v0 []float64, idx int) float64 {
	stepKWh := float64(SOC_STEP_WH) / 1000
	n := len(v0)
	switch {
	case n >= 3 && idx > 0 && idx < n-1:
		return (v0[idx-1] - v0[idx+1]) / (2 * stepKWh)
	case n >= 2 && idx == 0:
		return (v0[0] - v0[1]) / stepKWh
	case n >= 2:
		return (v0[n-2] - v0[n-1]) / stepKWh
	}
	return 0
}

// baselineCost is the cost of the horizon with the battery left idle.
func (o *DPOptimizer) baselineCost(in OptimizationInput, feedIn, pvdc []float64, n int, dt float64) float64 {
	var total float64
	for t := 0; t < n; t++ {
		price := in.Prices[t]
		feedInPrice := price
		if t < len(feedIn) {
			feedInPrice = feedIn[t]
		}
		pvW := valueAt(in.PV, t) * 1000
		consW := valueAt(in.Consumption, t) * 1000
		var dcToACW float64
		if pvdcW := valueAt(pvdc, t) * 1000; pvdcW > 0 {
			dcToACW = pvdcW * domain.DC_TO_AC_EFFICIENCY
		}
		netW := consW - (pvW + dcToACW)
		energyKWh := math.Abs(netW) * dt / 1000
		if netW > 0 {
			total += energyKWh * price
		} else {
			total -= energyKWh * feedInPrice
		}
	}
	return total
}

// ensure interface compliance
var _ port.ScheduleOptimizer = (*DPOptimizer)(nil)

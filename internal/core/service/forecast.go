package service

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
)

const (
	DEFAULT_FORECAST_INTERVAL_MINUTES = 60
	DEFAULT_CONSUMPTION_KW            = 0.5
	DEFAULT_FIXED_FEED_IN_PRICE       = 0.07
	DEFAULT_PRICE_CHANGE_THRESHOLD    = 0.10
)

// ResampleForecast converts a series from srcMinutes to dstMinutes steps.
// Every target step is the overlap-weighted average of the source steps it
// covers. A trailing partial target step is dropped.
func ResampleForecast(values []float64, srcMinutes, dstMinutes int) []float64 {
	if srcMinutes == dstMinutes || srcMinutes <= 0 || dstMinutes <= 0 {
		return append([]float64(nil), values...)
	}
	if len(values) == 0 {
		return []float64{}
	}

	targetSteps := len(values) * srcMinutes / dstMinutes
	out := make([]float64, 0, targetSteps)
	for i := 0; i < targetSteps; i++ {
		start := i * dstMinutes
		end := start + dstMinutes

		var sum, weight float64
		for j := start / srcMinutes; j < len(values) && j*srcMinutes < end; j++ {
			overlap := min(end, (j+1)*srcMinutes) - max(start, j*srcMinutes)
			if overlap > 0 {
				sum += values[j] * float64(overlap)
				weight += float64(overlap)
			}
		}
		if weight > 0 {
			out = append(out, sum/weight)
		}
	}
	return out
}

// DetectPriceInterval returns the spacing of the first two timestamps in
// minutes when it is 15, 30 or 60, and 60 otherwise.
func DetectPriceInterval(timestamps []time.Time) int {
	if len(timestamps) < 2 {
		return DEFAULT_FORECAST_INTERVAL_MINUTES
	}
	minutes := int(timestamps[1].UTC().Sub(timestamps[0].UTC()).Minutes())
	switch minutes {
	case 15, 30, 60:
		return minutes
	}
	return DEFAULT_FORECAST_INTERVAL_MINUTES
}

// AlignForecasts resamples every series to stepMinutes and fits it to the
// price horizon. Feed-in and consumption are padded with their last value,
// PV with zeros. A missing feed-in series becomes fixedFeedIn when it is set,
// and stays nil otherwise. A DC PV series without any production becomes nil.
func AlignForecasts(f domain.Forecast, stepMinutes int, fixedFeedIn *float64) domain.AlignedForecast {
	if stepMinutes <= 0 {
		stepMinutes = DEFAULT_STEP_MINUTES
	}
	priceInterval := PriceIntervalMinutes(f)
	pvInterval := orDefault(f.PVIntervalMinutes, DEFAULT_FORECAST_INTERVAL_MINUTES)
	consInterval := orDefault(f.ConsumptionIntervalMinutes, DEFAULT_FORECAST_INTERVAL_MINUTES)

	prices := ResampleForecast(f.Prices, priceInterval, stepMinutes)
	n := len(prices)

	var feedIn []float64
	if len(f.FeedIn) > 0 {
		feedIn = ResampleForecast(f.FeedIn, priceInterval, stepMinutes)
		feedIn = fitLength(feedIn, n, lastOr(feedIn, 0))
	} else if fixedFeedIn != nil {
		feedIn = fitLength(nil, n, *fixedFeedIn)
	}

	pv := fitLength(ResampleForecast(f.PV, pvInterval, stepMinutes), n, 0)
	for i := range pv {
		pv[i] = math.Max(0, pv[i])
	}

	var pvdc []float64
	if anyPositive(f.PVDC) {
		pvdc = fitLength(ResampleForecast(f.PVDC, pvInterval, stepMinutes), n, 0)
	}

	cons := ResampleForecast(f.Consumption, consInterval, stepMinutes)
	cons = fitLength(cons, n, lastOr(cons, DEFAULT_CONSUMPTION_KW))

	return domain.AlignedForecast{
		Start:       f.Start,
		StepMinutes: stepMinutes,
		Prices:      prices,
		FeedIn:      feedIn,
		PV:          pv,
		PVDC:        pvdc,
		Consumption: cons,
	}
}

// ParseForecast decodes and validates a forecast payload as published on
// the forecast MQTT topic or posted to the HTTP API.
func ParseForecast(payload []byte) (domain.Forecast, error) {
	var forecast domain.Forecast
	if err := json.Unmarshal(payload, &forecast); err != nil {
		return domain.Forecast{}, fmt.Errorf("invalid forecast payload: %w", err)
	}
	if err := forecast.Validate(); err != nil {
		return domain.Forecast{}, err
	}
	return forecast, nil
}

// PriceIntervalMinutes is the spacing of the price series: the declared
// interval, or the one detected from the price timestamps.
func PriceIntervalMinutes(f domain.Forecast) int {
	if f.IntervalMinutes > 0 {
		return f.IntervalMinutes
	}
	return DetectPriceInterval(f.PriceTimestamps)
}

// AnchorForecast fixes the start of a forecast received without one. The
// first price timestamp is used when present, the price slot containing now
// otherwise. Forecasts with a start are returned unchanged.
func AnchorForecast(f domain.Forecast, now time.Time) domain.Forecast {
	if !f.Start.IsZero() {
		return f
	}
	if len(f.PriceTimestamps) > 0 {
		f.Start = f.PriceTimestamps[0]
		return f
	}
	f.Start = now.Truncate(time.Duration(PriceIntervalMinutes(f)) * time.Minute)
	return f
}

// TrimElapsed drops the steps that ended before now, so that step 0 is the
// slot containing now. Start moves to the beginning of that slot. A forecast
// that lies entirely in the past comes back with no steps.
func TrimElapsed(a domain.AlignedForecast, now time.Time) domain.AlignedForecast {
	if a.StepMinutes <= 0 || a.Start.IsZero() || !now.After(a.Start) {
		return a
	}
	step := time.Duration(a.StepMinutes) * time.Minute
	elapsed := int(now.Sub(a.Start) / step)
	if elapsed == 0 {
		return a
	}
	a.Start = a.Start.Add(time.Duration(elapsed) * step)
	a.Prices = dropSteps(a.Prices, elapsed)
	a.FeedIn = dropSteps(a.FeedIn, elapsed)
	a.PV = dropSteps(a.PV, elapsed)
	a.PVDC = dropSteps(a.PVDC, elapsed)
	a.Consumption = dropSteps(a.Consumption, elapsed)
	return a
}

// PriceChangeSignificant reports whether a price of next that has not
// elapsed yet moved by at least threshold relative to the price prev had for
// the same instant. Slots are matched by time, so a forecast published one
// slot later is compared hour against hour. A next forecast that shares no
// slot with prev is always significant. Both forecasts need a start.
func PriceChangeSignificant(prev, next domain.Forecast, now time.Time, threshold float64) bool {
	prevStep := time.Duration(PriceIntervalMinutes(prev)) * time.Minute
	nextStep := time.Duration(PriceIntervalMinutes(next)) * time.Minute

	compared := false
	for i, price := range next.Prices {
		at := next.Start.Add(time.Duration(i) * nextStep)
		if !at.Add(nextStep).After(now) || at.Before(prev.Start) {
			continue
		}
		j := int(at.Sub(prev.Start) / prevStep)
		if j >= len(prev.Prices) {
			break
		}
		compared = true
		if prev.Prices[j] == 0 {
			continue
		}
		if math.Abs(price-prev.Prices[j])/math.Abs(prev.Prices[j]) >= threshold {
			return true
		}
	}
	return !compared
}

// SafeFloat returns def for NaN and infinite values.
func SafeFloat(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func fitLength(values []float64, n int, pad float64) []float64 {
	out := make([]float64, n)
	copied := copy(out, values)
	for i := copied; i < n; i++ {
		out[i] = pad
	}
	return out
}

func dropSteps(values []float64, n int) []float64 {
	if values == nil {
		return nil
	}
	if n >= len(values) {
		return []float64{}
	}
	return values[n:]
}

func lastOr(values []float64, def float64) float64 {
	if len(values) == 0 {
		return def
	}
	return values[len(values)-1]
}

func anyPositive(values []float64) bool {
	for _, v := range values {
		if v > 0 {
			return true
		}
	}
	return false
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

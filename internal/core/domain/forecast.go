package domain

import (
	"fmt"
	"time"
)

// Forecast is the raw forecast bundle as received from MQTT or HTTP. Prices
// are in EUR/kWh, power series in kW. Interval fields are in minutes; a zero
// interval is detected from PriceTimestamps (prices) or defaults to 60.
type Forecast struct {
	Start                      time.Time   `json:"start"`
	IntervalMinutes            int         `json:"interval_minutes"`
	PriceTimestamps            []time.Time `json:"price_timestamps,omitempty"`
	Prices                     []float64   `json:"price"`
	FeedIn                     []float64   `json:"feed_in,omitempty"`
	PV                         []float64   `json:"pv,omitempty"`
	PVDC                       []float64   `json:"pv_dc,omitempty"`
	Consumption                []float64   `json:"consumption,omitempty"`
	PVIntervalMinutes          int         `json:"pv_interval_minutes,omitempty"`
	ConsumptionIntervalMinutes int         `json:"consumption_interval_minutes,omitempty"`
}

func (f Forecast) Validate() error {
	if len(f.Prices) == 0 {
		return fmt.Errorf("%w: empty price series", ErrNoForecast)
	}
	for _, v := range []int{f.IntervalMinutes, f.PVIntervalMinutes, f.ConsumptionIntervalMinutes} {
		if v < 0 {
			return fmt.Errorf("invalid forecast interval %d", v)
		}
	}
	return nil
}

// AlignedForecast holds forecast series resampled to the optimizer step and
// cut or padded to the price horizon.
type AlignedForecast struct {
	Start       time.Time
	StepMinutes int
	Prices      []float64
	FeedIn      []float64
	PV          []float64
	PVDC        []float64
	Consumption []float64
}

func (a AlignedForecast) Steps() int {
	return len(a.Prices)
}

// FeedInAt returns the feed-in price of step i, or the buy price when no
// feed-in series is known.
func (a AlignedForecast) FeedInAt(i int) float64 {
	if i < len(a.FeedIn) {
		return a.FeedIn[i]
	}
	if i < len(a.Prices) {
		return a.Prices[i]
	}
	return 0
}

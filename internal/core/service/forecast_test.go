package service

import (
	"math"
	"testing"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleSameInterval(t *testing.T) {
	in := []float64{1, 2, 3}
	out := ResampleForecast(in, 60, 60)
	assert.Equal(t, in, out)
	out[0] = 9
	assert.Equal(t, 1.0, in[0], "result must not alias the input")
}

func TestResampleUpsample(t *testing.T) {
	out := ResampleForecast([]float64{1, 2}, 60, 15)
	assert.Equal(t, []float64{1, 1, 1, 1, 2, 2, 2, 2}, out)
}

func TestResampleDownsample(t *testing.T) {
	out := ResampleForecast([]float64{1, 2, 3, 4}, 15, 60)
	assert.Equal(t, []float64{2.5}, out)
}

func TestResampleNonAligned(t *testing.T) {
	// 45 min target over 30 min source: [0,45) = 30*a + 15*b
	out := ResampleForecast([]float64{1, 4, 7}, 30, 45)
	require.Len(t, out, 2)
	assert.InDelta(t, (30*1.0+15*4.0)/45, out[0], 1e-12)
	assert.InDelta(t, (15*4.0+30*7.0)/45, out[1], 1e-12)
}

func TestResampleEmpty(t *testing.T) {
	assert.Empty(t, ResampleForecast(nil, 60, 15))
}

func TestDetectPriceInterval(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 15, DetectPriceInterval([]time.Time{t0, t0.Add(15 * time.Minute)}))
	assert.Equal(t, 30, DetectPriceInterval([]time.Time{t0, t0.Add(30 * time.Minute)}))
	assert.Equal(t, 60, DetectPriceInterval([]time.Time{t0, t0.Add(time.Hour)}))
	assert.Equal(t, 60, DetectPriceInterval([]time.Time{t0, t0.Add(20 * time.Minute)}))
	assert.Equal(t, 60, DetectPriceInterval([]time.Time{t0}))
}

func TestAlignForecastsPadding(t *testing.T) {
	require := require.New(t)

	f := domain.Forecast{
		IntervalMinutes: 15,
		Prices:          repeat(0.2, 8),
		FeedIn:          []float64{0.05, 0.06},
		PV:              []float64{1.0},
		Consumption:     []float64{0.8},
	}
	a := AlignForecasts(f, 15, nil)
	require.Equal(8, a.Steps())
	require.Equal([]float64{0.05, 0.06, 0.06, 0.06, 0.06, 0.06, 0.06, 0.06}, a.FeedIn)
	require.Equal([]float64{1, 1, 1, 1, 0, 0, 0, 0}, a.PV)
	require.Equal(repeat(0.8, 8), a.Consumption)
	require.Nil(a.PVDC)
}

func TestAlignForecastsDefaults(t *testing.T) {
	require := require.New(t)

	f := domain.Forecast{
		IntervalMinutes: 60,
		Prices:          []float64{0.2, 0.3},
		PVDC:            []float64{0, 0},
	}
	a := AlignForecasts(f, 15, nil)
	require.Equal(8, a.Steps())
	require.Nil(a.FeedIn)
	require.Nil(a.PVDC, "dc series without production is dropped")
	require.Equal(repeat(DEFAULT_CONSUMPTION_KW, 8), a.Consumption)
	require.Equal(0.2, a.FeedInAt(0), "missing feed-in falls back to the buy price")

	fixed := 0.07
	a = AlignForecasts(f, 15, &fixed)
	require.Equal(repeat(0.07, 8), a.FeedIn)
}

func TestAlignForecastsTruncatesToPriceHorizon(t *testing.T) {
	f := domain.Forecast{
		IntervalMinutes: 60,
		Prices:          []float64{0.2},
		PV:              repeat(1, 24),
		PVDC:            repeat(0.5, 24),
		Consumption:     repeat(0.4, 24),
	}
	a := AlignForecasts(f, 15, nil)
	assert.Len(t, a.PV, 4)
	assert.Len(t, a.PVDC, 4)
	assert.Len(t, a.Consumption, 4)
}

func TestAlignForecastsDetectsInterval(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := domain.Forecast{
		PriceTimestamps: []time.Time{t0, t0.Add(30 * time.Minute)},
		Prices:          []float64{0.1, 0.2},
	}
	a := AlignForecasts(f, 15, nil)
	assert.Equal(t, []float64{0.1, 0.1, 0.2, 0.2}, a.Prices)
}

func hourly(start time.Time, prices ...float64) domain.Forecast {
	return domain.Forecast{Start: start, IntervalMinutes: 60, Prices: prices}
}

func TestPriceChangeSignificant(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(10 * time.Minute)
	prev := hourly(t0, 0.20, 0.30)

	assert.False(t, PriceChangeSignificant(prev, hourly(t0, 0.21, 0.31), now, 0.10))
	assert.True(t, PriceChangeSignificant(prev, hourly(t0, 0.20, 0.33), now, 0.10))
	assert.False(t, PriceChangeSignificant(hourly(t0, 0), hourly(t0, 0.2), now, 0.10))
	// no common slot
	assert.True(t, PriceChangeSignificant(prev, hourly(t0.Add(6*time.Hour), 0.2), now, 0.10))
}

func TestPriceChangeMatchesSlotsByTime(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := hourly(t0, 0.20, 0.30, 0.40)
	now := t0.Add(65 * time.Minute)

	// same prices republished one hour later
	assert.False(t, PriceChangeSignificant(prev, hourly(t0.Add(time.Hour), 0.30, 0.40, 0.50), now, 0.10))
	// 14:00 dropped from 0.40 to 0.20
	assert.True(t, PriceChangeSignificant(prev, hourly(t0.Add(time.Hour), 0.30, 0.20), now, 0.10))
	// a change in the elapsed 12:00 slot does not count
	assert.False(t, PriceChangeSignificant(prev, hourly(t0, 0.90, 0.30, 0.40), now, 0.10))
	// a 15 minute series against the hourly one
	quarter := domain.Forecast{Start: t0.Add(time.Hour), IntervalMinutes: 15, Prices: []float64{0.30, 0.30, 0.30, 0.30, 0.40}}
	assert.False(t, PriceChangeSignificant(prev, quarter, now, 0.10))
	quarter.Prices[4] = 0.60
	assert.True(t, PriceChangeSignificant(prev, quarter, now, 0.10))
}

func TestAnchorForecast(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(40 * time.Minute)

	f := AnchorForecast(domain.Forecast{IntervalMinutes: 60, Prices: []float64{0.1}}, now)
	assert.Equal(t, t0, f.Start)

	f = AnchorForecast(domain.Forecast{IntervalMinutes: 15, Prices: []float64{0.1}}, now)
	assert.Equal(t, t0.Add(30*time.Minute), f.Start)

	f = AnchorForecast(domain.Forecast{PriceTimestamps: []time.Time{t0.Add(-time.Hour)}, Prices: []float64{0.1}}, now)
	assert.Equal(t, t0.Add(-time.Hour), f.Start)

	start := t0.Add(-3 * time.Hour)
	f = AnchorForecast(domain.Forecast{Start: start, Prices: []float64{0.1}}, now)
	assert.Equal(t, start, f.Start)
}

func TestTrimElapsed(t *testing.T) {
	require := require.New(t)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := domain.AlignedForecast{
		Start:       t0,
		StepMinutes: 15,
		Prices:      []float64{0.05, 0.05, 0.05, 0.05, 0.30, 0.30, 0.30, 0.30},
		FeedIn:      []float64{0, 1, 2, 3, 4, 5, 6, 7},
		PV:          []float64{0, 0, 0, 0, 1, 1, 1, 1},
		Consumption: []float64{0.5, 0.5, 0.5, 0.5, 0.7, 0.7, 0.7, 0.7},
	}

	trimmed := TrimElapsed(a, t0.Add(62*time.Minute))
	require.Equal(t0.Add(time.Hour), trimmed.Start)
	require.Equal([]float64{0.30, 0.30, 0.30, 0.30}, trimmed.Prices)
	require.Equal([]float64{4, 5, 6, 7}, trimmed.FeedIn)
	require.Equal([]float64{1, 1, 1, 1}, trimmed.PV)
	require.Equal([]float64{0.7, 0.7, 0.7, 0.7}, trimmed.Consumption)
	require.Nil(trimmed.PVDC)

	// inside the first slot, or before the start, nothing is dropped
	require.Equal(a, TrimElapsed(a, t0.Add(14*time.Minute)))
	require.Equal(a, TrimElapsed(a, t0.Add(-time.Hour)))

	require.Equal(0, TrimElapsed(a, t0.Add(3*time.Hour)).Steps())
}

func TestParseForecast(t *testing.T) {
	payload := `{"interval_minutes":15,"price":[0.1,0.2],"pv":[1.5],"pv_interval_minutes":60,"start":"2026-06-01T10:00:00Z"}`
	f, err := ParseForecast([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 15, f.IntervalMinutes)
	assert.Equal(t, []float64{0.1, 0.2}, f.Prices)
	assert.Equal(t, 60, f.PVIntervalMinutes)
	assert.Equal(t, 10, f.Start.Hour())

	_, err = ParseForecast([]byte(`{"price":[]}`))
	assert.ErrorIs(t, err, domain.ErrNoForecast)

	_, err = ParseForecast([]byte(`not json`))
	assert.Error(t, err)
}

func TestSafeFloatAndClamp(t *testing.T) {
	assert.Equal(t, 1.5, SafeFloat(1.5, 0))
	assert.Equal(t, 2.0, SafeFloat(math.NaN(), 2))
	assert.Equal(t, 2.0, SafeFloat(math.Inf(-1), 2))
	assert.Equal(t, 5.0, Clamp(7, 0, 5))
	assert.Equal(t, 0.0, Clamp(-1, 0, 5))
	assert.Equal(t, 3.0, Clamp(3, 0, 5))
}

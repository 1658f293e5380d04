package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaylightNightSlots(t *testing.T) {
	require := require.New(t)

	// Amsterdam in June: sunrise around 03:20 UTC, sunset around 20:00 UTC
	d := NewDaylightFilter(52.37, 4.90)
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)

	require.True(d.IsNight(day.Add(time.Hour), day.Add(2*time.Hour)))
	require.False(d.IsNight(day.Add(12*time.Hour), day.Add(13*time.Hour)))
	require.True(d.IsNight(day.Add(22*time.Hour), day.Add(23*time.Hour)))
}

func TestDaylightApply(t *testing.T) {
	d := NewDaylightFilter(52.37, 4.90)
	start := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	pv := repeat(1.0, 24)

	out := d.Apply(pv, start, 60)
	assert.Equal(t, 0.0, out[1])
	assert.Equal(t, 1.0, out[12])
	assert.Equal(t, 0.0, out[23])
	assert.Equal(t, 1.0, pv[1], "input is not modified")
}

func TestDaylightApplyWithoutStart(t *testing.T) {
	d := NewDaylightFilter(52.37, 4.90)
	pv := []float64{1, 2}
	assert.Equal(t, pv, d.Apply(pv, time.Time{}, 60))

	var none *DaylightFilter
	assert.Equal(t, pv, none.Apply(pv, time.Now(), 60))
}

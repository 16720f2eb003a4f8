package climate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatIndexPassthroughBelowThresholds(t *testing.T) {
	tests := []struct {
		name     string
		temp     float64
		humidity float64
	}{
		{"Cool room", 18.0, 80.0},
		{"Just below temp threshold", 19.9, 95.0},
		{"Dry air", 30.0, 39.9},
		{"Cold and dry", 5.0, 10.0},
		{"Below freezing", -10.0, 90.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeatIndex(Float(tt.temp), Float(tt.humidity))
			require.NotNil(t, got)
			assert.Equal(t, tt.temp, *got)
		})
	}
}

func TestHeatIndexHotHumid(t *testing.T) {
	got := HeatIndex(Float(30.0), Float(70.0))
	require.NotNil(t, got)
	assert.InDelta(t, 50.11, *got, 0.1)
}

func TestHeatIndexMissingInputs(t *testing.T) {
	assert.Nil(t, HeatIndex(nil, Float(70.0)))
	assert.Nil(t, HeatIndex(Float(30.0), nil))
	assert.Nil(t, HeatIndex(nil, nil))
}

func TestDewPoint(t *testing.T) {
	got := DewPoint(Float(25.0), Float(60.0))
	require.NotNil(t, got)
	assert.InDelta(t, 16.7, *got, 0.5)
}

func TestDewPointSaturatedAir(t *testing.T) {
	// At 100% humidity the dew point equals the air temperature.
	got := DewPoint(Float(20.0), Float(100.0))
	require.NotNil(t, got)
	assert.InDelta(t, 20.0, *got, 0.1)
}

func TestDewPointInvalidHumidity(t *testing.T) {
	tests := []struct {
		name     string
		humidity float64
	}{
		{"Zero", 0.0},
		{"Negative", -5.0},
		{"Above hundred", 100.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, DewPoint(Float(22.0), Float(tt.humidity)))
		})
	}
}

func TestDewPointMissingInputs(t *testing.T) {
	assert.Nil(t, DewPoint(nil, Float(60.0)))
	assert.Nil(t, DewPoint(Float(25.0), nil))
}

func TestAbsoluteHumidity(t *testing.T) {
	got := AbsoluteHumidity(Float(20.0), Float(50.0))
	require.NotNil(t, got)
	assert.InDelta(t, 8.7, *got, 0.5)
}

func TestAbsoluteHumidityInvalidHumidity(t *testing.T) {
	tests := []struct {
		name     string
		humidity float64
	}{
		{"Zero", 0.0},
		{"Negative", -1.0},
		{"Above hundred", 101.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, AbsoluteHumidity(Float(20.0), Float(tt.humidity)))
		})
	}
}

func TestAbsoluteHumidityMissingInputs(t *testing.T) {
	assert.Nil(t, AbsoluteHumidity(nil, Float(50.0)))
	assert.Nil(t, AbsoluteHumidity(Float(20.0), nil))
}

func TestDerivedMetricsRounding(t *testing.T) {
	// All derived values carry a single decimal place.
	hi := HeatIndex(Float(28.3), Float(65.7))
	require.NotNil(t, hi)
	assert.Equal(t, round1(*hi), *hi)

	dp := DewPoint(Float(23.4), Float(57.2))
	require.NotNil(t, dp)
	assert.Equal(t, round1(*dp), *dp)

	ah := AbsoluteHumidity(Float(23.4), Float(57.2))
	require.NotNil(t, ah)
	assert.Equal(t, round1(*ah), *ah)
}

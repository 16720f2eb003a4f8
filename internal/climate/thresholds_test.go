package climate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultThresholds(t *testing.T) {
	defaults := DefaultThresholds()

	assert.Equal(t, 2.0, defaults.HumidityChange)
	assert.Equal(t, 26.0, defaults.HeatIndexWarning)
	assert.Equal(t, 2.0, defaults.DewPointWarning)
	assert.Equal(t, 25.0, defaults.DifferentialSignificant)
}

func TestNewThresholdSetOverrides(t *testing.T) {
	set := NewThresholdSet(map[string]float64{
		TriggerHumidityChange:   5.0,
		TriggerHeatIndexWarning: 28.5,
		"not_a_threshold":       99.0, // silently ignored
	})

	assert.Equal(t, 5.0, set.HumidityChange)
	assert.Equal(t, 28.5, set.HeatIndexWarning)
	assert.Equal(t, 2.0, set.DewPointWarning)
	assert.Equal(t, 25.0, set.DifferentialSignificant)
}

func TestThresholdSetMap(t *testing.T) {
	m := DefaultThresholds().Map()

	assert.Equal(t, 2.0, m[TriggerHumidityChange])
	assert.Equal(t, 26.0, m[TriggerHeatIndexWarning])
	assert.Equal(t, 2.0, m[TriggerDewPointWarning])
	assert.Equal(t, 25.0, m[TriggerDifferentialSignificant])
	assert.Len(t, m, 4)
}

func TestDetectorFirstCheckAlwaysEmpty(t *testing.T) {
	detector := NewDetector(DefaultThresholds())

	// Values that would fire every trigger if a baseline existed
	fired := detector.Check(map[string]float64{
		KeyIndoorHumidity: 95.0,
		KeyHeatIndex:      45.0,
		KeyIndoorTemp:     30.0,
		KeyDewPointIndoor: 29.5,
		KeyDifferential:   60.0,
	})

	assert.Empty(t, fired)
}

func TestDetectorHumidityChange(t *testing.T) {
	tests := []struct {
		name     string
		last     float64
		current  float64
		expected bool
	}{
		{"Below threshold", 45.0, 46.5, false},
		{"At threshold", 45.0, 47.0, true},
		{"Above threshold", 45.0, 50.0, true},
		{"Downward change", 45.0, 43.0, true},
		{"No change", 45.0, 45.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := NewDetector(DefaultThresholds())
			detector.Update(map[string]float64{KeyIndoorHumidity: tt.last})

			fired := detector.Check(map[string]float64{KeyIndoorHumidity: tt.current})

			if tt.expected {
				assert.Contains(t, fired, TriggerHumidityChange)
			} else {
				assert.NotContains(t, fired, TriggerHumidityChange)
			}
		})
	}
}

func TestDetectorHumidityChangeMissingValues(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyIndoorTemp: 21.0})

	// Baseline exists but has no humidity, so a big reading cannot fire
	fired := detector.Check(map[string]float64{KeyIndoorHumidity: 90.0})
	assert.NotContains(t, fired, TriggerHumidityChange)

	// Nor can a cycle with no humidity at all
	fired = detector.Check(map[string]float64{KeyIndoorTemp: 22.0})
	assert.NotContains(t, fired, TriggerHumidityChange)
}

func TestDetectorHeatIndexEdgeTriggered(t *testing.T) {
	detector := NewDetector(DefaultThresholds())

	sequence := []float64{25.0, 25.0, 27.0, 27.0}
	firedCount := 0
	for _, hi := range sequence {
		fired := detector.Check(map[string]float64{KeyHeatIndex: hi})
		for _, trigger := range fired {
			if trigger == TriggerHeatIndexWarning {
				firedCount++
			}
		}
		detector.Update(map[string]float64{KeyHeatIndex: hi})
	}

	// Fires on the 25→27 crossing only, not again while it stays above
	assert.Equal(t, 1, firedCount)
}

func TestDetectorHeatIndexNoBaselineValue(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyIndoorHumidity: 50.0})

	// Baseline is non-empty but has never seen a heat index, so a value
	// above the threshold counts as an upward crossing.
	fired := detector.Check(map[string]float64{KeyHeatIndex: 30.0})
	assert.Contains(t, fired, TriggerHeatIndexWarning)
}

func TestDetectorDewPointLevelTriggered(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyIndoorTemp: 22.0})

	values := map[string]float64{
		KeyIndoorTemp:     22.0,
		KeyDewPointIndoor: 20.5,
	}

	// Spread of 1.5°C stays within the 2.0°C warning band, so the trigger
	// repeats on every cycle while the condition holds.
	for i := 0; i < 3; i++ {
		fired := detector.Check(values)
		assert.Contains(t, fired, TriggerDewPointWarning)
		detector.Update(values)
	}
}

func TestDetectorDewPointSafeSpread(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyIndoorTemp: 22.0})

	fired := detector.Check(map[string]float64{
		KeyIndoorTemp:     22.0,
		KeyDewPointIndoor: 15.0,
	})
	assert.NotContains(t, fired, TriggerDewPointWarning)
}

func TestDetectorDifferentialEdgeTriggered(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyDifferential: 10.0})

	// Crossing into the significant band fires
	fired := detector.Check(map[string]float64{KeyDifferential: 30.0})
	assert.Contains(t, fired, TriggerDifferentialSignificant)
	detector.Update(map[string]float64{KeyDifferential: 30.0})

	// Staying in the band does not fire again, even with a sign flip
	fired = detector.Check(map[string]float64{KeyDifferential: -28.0})
	assert.NotContains(t, fired, TriggerDifferentialSignificant)
	detector.Update(map[string]float64{KeyDifferential: -28.0})

	// Dropping out and crossing back in fires again
	detector.Update(map[string]float64{KeyDifferential: 5.0})
	fired = detector.Check(map[string]float64{KeyDifferential: -30.0})
	assert.Contains(t, fired, TriggerDifferentialSignificant)
}

func TestDetectorUpdateMergesPresentKeys(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{
		KeyIndoorHumidity: 45.0,
		KeyHeatIndex:      24.0,
	})

	// A cycle where the heat index could not be derived keeps the old one
	detector.Update(map[string]float64{KeyIndoorHumidity: 46.0})

	last := detector.LastValues()
	assert.Equal(t, 46.0, last[KeyIndoorHumidity])
	assert.Equal(t, 24.0, last[KeyHeatIndex])
}

func TestDetectorLastValuesIsACopy(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyIndoorHumidity: 45.0})

	last := detector.LastValues()
	last[KeyIndoorHumidity] = 99.0

	assert.Equal(t, 45.0, detector.LastValues()[KeyIndoorHumidity])
}

func TestDetectorRestoreLastValues(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.RestoreLastValues(map[string]float64{KeyHeatIndex: 24.0})

	// The restored baseline behaves exactly like one built from readings
	fired := detector.Check(map[string]float64{KeyHeatIndex: 27.0})
	assert.Contains(t, fired, TriggerHeatIndexWarning)
}

func TestDetectorRestoreNilResets(t *testing.T) {
	detector := NewDetector(DefaultThresholds())
	detector.Update(map[string]float64{KeyHeatIndex: 24.0})

	detector.RestoreLastValues(nil)

	fired := detector.Check(map[string]float64{KeyHeatIndex: 30.0})
	assert.Empty(t, fired)
}

func TestDetectorConcurrentUpdateAndRead(t *testing.T) {
	detector := NewDetector(DefaultThresholds())

	// Baseline writes race against persistence reads when the poll loop
	// and a save overlap; both must be safe to run together.
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			values := map[string]float64{
				KeyIndoorHumidity: 40.0 + float64(i%10),
				KeyHeatIndex:      22.0 + float64(i%8),
			}
			detector.Check(values)
			detector.Update(values)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			detector.LastValues()
		}
	}()

	wg.Wait()

	last := detector.LastValues()
	assert.Contains(t, last, KeyIndoorHumidity)
}

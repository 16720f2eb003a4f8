package climate

import (
	"math"
	"sync"
)

// Trigger names emitted by the detector.
const (
	TriggerHumidityChange          = "humidity_change"
	TriggerHeatIndexWarning        = "heat_index_warning"
	TriggerDewPointWarning         = "dew_point_warning"
	TriggerDifferentialSignificant = "differential_significant"
)

// ThresholdSet holds the numeric trigger thresholds. It is built once from
// defaults plus config overrides and never changes afterwards.
type ThresholdSet struct {
	// HumidityChange is the minimum absolute indoor humidity delta (%)
	// between consecutive readings that counts as a change.
	HumidityChange float64
	// HeatIndexWarning is the heat index (°C) whose upward crossing fires
	// a warning.
	HeatIndexWarning float64
	// DewPointWarning is the maximum spread (°C) between indoor temperature
	// and indoor dew point before condensation risk is flagged.
	DewPointWarning float64
	// DifferentialSignificant is the minimum absolute indoor/outdoor
	// humidity differential (%) considered significant.
	DifferentialSignificant float64
}

// DefaultThresholds returns the built-in threshold values.
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		HumidityChange:          2.0,
		HeatIndexWarning:        26.0,
		DewPointWarning:         2.0,
		DifferentialSignificant: 25.0,
	}
}

// NewThresholdSet builds a ThresholdSet from the defaults with the given
// named overrides applied. Unknown names are ignored.
func NewThresholdSet(overrides map[string]float64) ThresholdSet {
	t := DefaultThresholds()

	for name, value := range overrides {
		switch name {
		case TriggerHumidityChange:
			t.HumidityChange = value
		case TriggerHeatIndexWarning:
			t.HeatIndexWarning = value
		case TriggerDewPointWarning:
			t.DewPointWarning = value
		case TriggerDifferentialSignificant:
			t.DifferentialSignificant = value
		}
	}

	return t
}

// Map returns the thresholds as a name→value map, matching the persisted
// representation.
func (t ThresholdSet) Map() map[string]float64 {
	return map[string]float64{
		TriggerHumidityChange:          t.HumidityChange,
		TriggerHeatIndexWarning:        t.HeatIndexWarning,
		TriggerDewPointWarning:         t.DewPointWarning,
		TriggerDifferentialSignificant: t.DifferentialSignificant,
	}
}

// Detector compares successive snapshot value maps against a ThresholdSet
// and reports which triggers fired. It keeps the previous cycle's values as
// its only state; the very first reading has no baseline and never triggers.
//
// Check never mutates the detector. The caller must invoke Update exactly
// once per reading cycle, after trigger evaluation, so that edge-triggered
// conditions see the values the triggers were evaluated against. The
// baseline is lock-guarded so persistence can read it while a cycle runs.
type Detector struct {
	mu         sync.RWMutex
	thresholds ThresholdSet
	last       map[string]float64
}

// NewDetector creates a detector with an empty baseline.
func NewDetector(thresholds ThresholdSet) *Detector {
	return &Detector{
		thresholds: thresholds,
		last:       make(map[string]float64),
	}
}

// Thresholds returns the detector's threshold set.
func (d *Detector) Thresholds() ThresholdSet {
	return d.thresholds
}

// Check evaluates the trigger conditions for the new value map and returns
// the names of the triggers that fired. Missing values never error; they
// simply cannot trigger.
func (d *Detector) Check(values map[string]float64) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// First reading ever: no baseline to compare against
	if len(d.last) == 0 {
		return nil
	}

	var fired []string

	// humidity_change: delta between consecutive indoor readings
	if newHum, ok := values[KeyIndoorHumidity]; ok {
		if lastHum, ok := d.last[KeyIndoorHumidity]; ok {
			if math.Abs(newHum-lastHum) >= d.thresholds.HumidityChange {
				fired = append(fired, TriggerHumidityChange)
			}
		}
	}

	// heat_index_warning: edge-triggered on the upward crossing only
	if newHI, ok := values[KeyHeatIndex]; ok && newHI >= d.thresholds.HeatIndexWarning {
		lastHI, hadLast := d.last[KeyHeatIndex]
		if !hadLast || lastHI < d.thresholds.HeatIndexWarning {
			fired = append(fired, TriggerHeatIndexWarning)
		}
	}

	// dew_point_warning: level-triggered while the spread stays small
	if temp, ok := values[KeyIndoorTemp]; ok {
		if dewPoint, ok := values[KeyDewPointIndoor]; ok {
			if temp-dewPoint <= d.thresholds.DewPointWarning {
				fired = append(fired, TriggerDewPointWarning)
			}
		}
	}

	// differential_significant: edge-triggered like heat_index_warning
	if newDiff, ok := values[KeyDifferential]; ok && math.Abs(newDiff) >= d.thresholds.DifferentialSignificant {
		lastDiff, hadLast := d.last[KeyDifferential]
		if !hadLast || math.Abs(lastDiff) < d.thresholds.DifferentialSignificant {
			fired = append(fired, TriggerDifferentialSignificant)
		}
	}

	return fired
}

// Update merges the present values into the detector's baseline. Absent keys
// keep their previous values.
func (d *Detector) Update(values map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, value := range values {
		d.last[key] = value
	}
}

// LastValues returns a copy of the detector's baseline, for diagnostics and
// persistence.
func (d *Detector) LastValues() map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make(map[string]float64, len(d.last))
	for key, value := range d.last {
		values[key] = value
	}
	return values
}

// RestoreLastValues replaces the baseline, used when loading persisted state.
// A nil map resets the detector to its initial empty baseline.
func (d *Detector) RestoreLastValues(values map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = make(map[string]float64, len(values))
	for key, value := range values {
		d.last[key] = value
	}
}

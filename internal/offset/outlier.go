package offset

import (
	"math"
	"sort"
)

// madScale converts a median absolute deviation into a consistent estimate
// of the standard deviation for normally distributed data.
const madScale = 1.4826

// OutlierConfig bounds and tunes an outlier detector.
type OutlierConfig struct {
	// Min and Max are absolute plausibility bounds; values outside are
	// always outliers.
	Min float64
	Max float64
	// ZScoreCutoff is the robust z-score above which a value is flagged
	// once enough history exists.
	ZScoreCutoff float64
	// MinHistory is the number of accepted values required before the
	// z-score test applies.
	MinHistory int
	// HistorySize bounds the retained history window.
	HistorySize int
}

// Outlier detector defaults.
const (
	defaultZScoreCutoff = 3.5
	defaultMinHistory   = 10
	defaultHistorySize  = 100
)

func (c OutlierConfig) withDefaults() OutlierConfig {
	if c.ZScoreCutoff <= 0 {
		c.ZScoreCutoff = defaultZScoreCutoff
	}
	if c.MinHistory <= 0 {
		c.MinHistory = defaultMinHistory
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	return c
}

// OutlierDetector flags implausible readings before they reach the learner.
// It combines hard absolute bounds with a MAD-based robust z-score once
// enough history has accumulated; readings it accepts feed the history.
type OutlierDetector struct {
	config  OutlierConfig
	history []float64
}

// NewOutlierDetector creates a detector with the given bounds and tuning
// defaults applied.
func NewOutlierDetector(config OutlierConfig) *OutlierDetector {
	return &OutlierDetector{config: config.withDefaults()}
}

// IsOutlier reports whether the value should be rejected. Accepted values
// are recorded into the history window.
func (d *OutlierDetector) IsOutlier(value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return true
	}
	if value < d.config.Min || value > d.config.Max {
		return true
	}

	if len(d.history) >= d.config.MinHistory {
		median := median(d.history)
		mad := medianAbsoluteDeviation(d.history, median)
		if mad == 0 {
			// Degenerate spread: every historical value equals the
			// median, so only exact-median values pass the robust test.
			if value != median {
				return true
			}
		} else if math.Abs(value-median)/(madScale*mad) > d.config.ZScoreCutoff {
			return true
		}
	}

	d.record(value)
	return false
}

// HistoryLen returns the number of accepted values currently retained.
func (d *OutlierDetector) HistoryLen() int {
	return len(d.history)
}

func (d *OutlierDetector) record(value float64) {
	d.history = append(d.history, value)
	if len(d.history) > d.config.HistorySize {
		d.history = d.history[len(d.history)-d.config.HistorySize:]
	}
}

// median returns the middle value of the data, averaging the two central
// values for even lengths. Returns 0 for empty input.
func median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// medianAbsoluteDeviation returns the median of absolute deviations from
// the given center.
func medianAbsoluteDeviation(data []float64, center float64) float64 {
	deviations := make([]float64, len(data))
	for i, v := range data {
		deviations[i] = math.Abs(v - center)
	}
	return median(deviations)
}

package offset

import "math"

// Learner defaults.
const (
	defaultEMAAlpha      = 0.1
	defaultMaxSamples    = 1000
	fullConfidenceCount  = 30
	similarityTempScale  = 5.0 // °C at which outdoor temp similarity halves-ish
	minSimilarWeight     = 0.5 // below this the hour pattern stands alone
	patternBlendFraction = 0.5
)

// hourPattern is the exponential moving average of offsets seen in one hour
// of the day, with the number of contributing samples.
type hourPattern struct {
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Learner maintains a per-hour-of-day offset pattern plus a bounded window
// of enhanced samples, and predicts the current offset by blending the hour
// pattern with a similar-conditions weighted average over the samples.
//
// It never errors: before any sample has been learned, predictions are
// (0, 0).
type Learner struct {
	alpha      float64
	maxSamples int
	hours      [24]hourPattern
	samples    []Sample
}

// NewLearner creates a learner with the given EMA alpha and sample
// retention, falling back to defaults for non-positive values.
func NewLearner(alpha float64, maxSamples int) *Learner {
	if alpha <= 0 || alpha >= 1 {
		alpha = defaultEMAAlpha
	}
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &Learner{alpha: alpha, maxSamples: maxSamples}
}

// Learn folds a sample into the hour pattern and retains it for
// similar-conditions matching. Samples with an out-of-range hour are
// ignored.
func (l *Learner) Learn(s Sample) {
	if s.Hour < 0 || s.Hour > 23 {
		return
	}

	p := &l.hours[s.Hour]
	if p.Count == 0 {
		p.Avg = s.Offset
	} else {
		p.Avg = (1-l.alpha)*p.Avg + l.alpha*s.Offset
	}
	p.Count++

	l.samples = append(l.samples, s)
	if len(l.samples) > l.maxSamples {
		l.samples = l.samples[len(l.samples)-l.maxSamples:]
	}
}

// SampleCount returns the number of retained enhanced samples.
func (l *Learner) SampleCount() int {
	return len(l.samples)
}

// Samples returns a copy of the retained enhanced samples in learning order.
func (l *Learner) Samples() []Sample {
	return append([]Sample(nil), l.samples...)
}

// HourCounts returns the per-hour sample counts, for diagnostics.
func (l *Learner) HourCounts() [24]int {
	var counts [24]int
	for i, p := range l.hours {
		counts[i] = p.Count
	}
	return counts
}

// Predict estimates the offset under the given conditions. The hour pattern
// provides the base; when enough similar samples exist their weighted
// average is blended in. Confidence grows with sample support for the hour
// and shrinks with the dispersion of the matched samples.
func (l *Learner) Predict(cond Conditions) Prediction {
	if cond.Hour < 0 || cond.Hour > 23 {
		return Prediction{}
	}

	pattern := l.hours[cond.Hour]
	if pattern.Count == 0 && len(l.samples) == 0 {
		return Prediction{}
	}

	predicted := pattern.Avg
	support := pattern.Count

	similarAvg, weight, dispersion := l.similarConditionsAverage(cond)
	if weight >= minSimilarWeight {
		if pattern.Count == 0 {
			predicted = similarAvg
		} else {
			predicted = patternBlendFraction*pattern.Avg + (1-patternBlendFraction)*similarAvg
		}
	}

	confidence := float64(support) / fullConfidenceCount
	if confidence > 1 {
		confidence = 1
	}
	// Widely scattered matches mean the conditions do not pin the offset
	// down, so dispersion discounts the support-based confidence.
	confidence /= 1 + dispersion

	return Prediction{
		Offset:     math.Round(predicted*100) / 100,
		Confidence: math.Round(confidence*100) / 100,
		Samples:    support,
	}
}

// similarConditionsAverage computes the similarity-weighted mean offset
// over the retained samples, the total similarity weight and the weighted
// standard deviation of the matched offsets.
func (l *Learner) similarConditionsAverage(cond Conditions) (avg, totalWeight, dispersion float64) {
	var weightedSum float64
	for _, s := range l.samples {
		w := similarity(s, cond)
		if w <= 0 {
			continue
		}
		weightedSum += w * s.Offset
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, 0, 0
	}
	avg = weightedSum / totalWeight

	var varianceSum float64
	for _, s := range l.samples {
		w := similarity(s, cond)
		if w <= 0 {
			continue
		}
		d := s.Offset - avg
		varianceSum += w * d * d
	}
	dispersion = math.Sqrt(varianceSum / totalWeight)
	return avg, totalWeight, dispersion
}

// similarity scores how closely a sample's conditions match the query.
// Power state and daylight are strong discriminators; outdoor temperature
// contributes a distance-decayed factor when both sides have it.
func similarity(s Sample, cond Conditions) float64 {
	score := 1.0

	if cond.PowerState != PowerUnknown && s.PowerState != PowerUnknown {
		if s.PowerState != cond.PowerState {
			return 0
		}
	}

	if s.Daylight != cond.Daylight {
		score *= 0.5
	}

	if cond.OutdoorTemp != nil && s.OutdoorTemp != nil {
		delta := math.Abs(*cond.OutdoorTemp - *s.OutdoorTemp)
		score *= math.Exp(-delta / similarityTempScale)
	}

	return score
}

// LearnerState is the persisted form of the learner.
type LearnerState struct {
	Hours   [24]hourPattern `json:"hours"`
	Samples []Sample        `json:"samples"`
}

func (l *Learner) snapshot() LearnerState {
	return LearnerState{
		Hours:   l.hours,
		Samples: append([]Sample(nil), l.samples...),
	}
}

func (l *Learner) restore(s LearnerState) {
	l.hours = s.Hours
	l.samples = append([]Sample(nil), s.Samples...)
	if len(l.samples) > l.maxSamples {
		l.samples = l.samples[len(l.samples)-l.maxSamples:]
	}
}

package offset

import (
	"sync"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/clock"
)

// Feature names the engine can report impacts for.
const (
	FeatureHumidity    = "humidity"
	FeatureOutdoorTemp = "outdoor_temp"
	FeaturePower       = "power"
	FeatureDaylight    = "daylight"
)

// Config tunes the offset engine.
type Config struct {
	// PowerIdleThreshold and PowerActiveThreshold classify the device's
	// power draw (W). Between the two the previous state is kept.
	PowerIdleThreshold   float64 `yaml:"power_idle_threshold"`
	PowerActiveThreshold float64 `yaml:"power_active_threshold"`
	// EMAAlpha is the hour-pattern learning rate.
	EMAAlpha float64 `yaml:"ema_alpha"`
	// MaxSamples bounds the enhanced sample retention.
	MaxSamples int `yaml:"max_samples"`
	// TransitionWindow bounds the hysteresis transition history.
	TransitionWindow int `yaml:"transition_window"`
	// TempMin and TempMax are the plausible temperature bounds (°C) for
	// outlier rejection.
	TempMin float64 `yaml:"temp_min"`
	TempMax float64 `yaml:"temp_max"`
	// PowerMax is the plausible power draw ceiling (W).
	PowerMax float64 `yaml:"power_max"`
	// ZScoreCutoff tunes the robust outlier test.
	ZScoreCutoff float64 `yaml:"zscore_cutoff"`
	// Latitude and Longitude locate the installation for the daylight
	// feature.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Engine config defaults.
const (
	defaultPowerIdleThreshold   = 50.0
	defaultPowerActiveThreshold = 100.0
	defaultTempMin              = -10.0
	defaultTempMax              = 50.0
	defaultPowerMax             = 5000.0
)

// WithDefaults fills unset config fields with the built-in defaults.
func (c Config) WithDefaults() Config {
	if c.PowerIdleThreshold <= 0 {
		c.PowerIdleThreshold = defaultPowerIdleThreshold
	}
	if c.PowerActiveThreshold <= 0 {
		c.PowerActiveThreshold = defaultPowerActiveThreshold
	}
	if c.TempMin == 0 && c.TempMax == 0 {
		c.TempMin = defaultTempMin
		c.TempMax = defaultTempMax
	}
	if c.PowerMax <= 0 {
		c.PowerMax = defaultPowerMax
	}
	return c
}

// Observation carries the sensor values relevant to one learning cycle.
// Nil fields mean the sensor was unavailable.
type Observation struct {
	ACInternalTemp *float64
	RoomTemp       *float64
	OutdoorTemp    *float64
	Humidity       *float64
	Power          *float64
}

// Engine learns the offset between the climate device's internal
// temperature sensor and the trusted room sensor. Each poll cycle it is fed
// an observation; when the device exposes its internal reading the offset
// is recorded, screened by the outlier detectors, and folded into the
// learner. Predictions and feature impacts never error; without data they
// degrade to zero.
type Engine struct {
	config   Config
	clk      clock.Clock
	logger   *zap.Logger
	mu       sync.Mutex
	learner  *Learner
	hyst     *HysteresisLearner
	temps    *OutlierDetector
	power    *OutlierDetector
	lastPred Prediction
	cycles   int
	rejected int
}

// NewEngine creates an engine with defaults applied to the config. A nil
// clock gets the real one.
func NewEngine(config Config, clk clock.Clock, logger *zap.Logger) *Engine {
	config = config.WithDefaults()
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Engine{
		config:  config,
		clk:     clk,
		logger:  logger.Named("offset"),
		learner: NewLearner(config.EMAAlpha, config.MaxSamples),
		hyst:    NewHysteresisLearner(config.TransitionWindow),
		temps: NewOutlierDetector(OutlierConfig{
			Min:          config.TempMin,
			Max:          config.TempMax,
			ZScoreCutoff: config.ZScoreCutoff,
		}),
		power: NewOutlierDetector(OutlierConfig{
			Min:          0,
			Max:          config.PowerMax,
			ZScoreCutoff: config.ZScoreCutoff,
		}),
	}
}

// classifyPower maps a power reading onto the idle/active states. A nil
// reading is unknown; draws between the two thresholds stay unknown rather
// than guessing.
func (e *Engine) classifyPower(power *float64) string {
	if power == nil {
		return PowerUnknown
	}
	switch {
	case *power <= e.config.PowerIdleThreshold:
		return PowerIdle
	case *power >= e.config.PowerActiveThreshold:
		return PowerActive
	default:
		return PowerUnknown
	}
}

// daylight reports whether the sun is up at the configured coordinates.
// Without coordinates it defaults to false.
func (e *Engine) daylight() bool {
	if e.config.Latitude == 0 && e.config.Longitude == 0 {
		return false
	}
	now := e.clk.Now()
	rise, set := sunrise.SunriseSunset(
		e.config.Latitude, e.config.Longitude,
		now.Year(), now.Month(), now.Day(),
	)
	return now.After(rise) && now.Before(set)
}

// RecordCycle feeds one poll cycle's observation into the learners. Cycles
// without both the device's internal temperature and the room temperature
// only advance the hysteresis learner; outlier readings are rejected and
// counted.
func (e *Engine) RecordCycle(obs Observation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cycles++
	powerState := e.classifyPower(obs.Power)

	if obs.RoomTemp != nil && powerState != PowerUnknown {
		e.hyst.Observe(powerState, *obs.RoomTemp)
	}

	if obs.ACInternalTemp == nil || obs.RoomTemp == nil {
		return
	}

	if obs.Power != nil && e.power.IsOutlier(*obs.Power) {
		e.rejected++
		e.logger.Debug("Rejected power outlier", zap.Float64("power", *obs.Power))
		return
	}
	if e.temps.IsOutlier(*obs.RoomTemp) || e.temps.IsOutlier(*obs.ACInternalTemp) {
		e.rejected++
		e.logger.Debug("Rejected temperature outlier",
			zap.Float64("room_temp", *obs.RoomTemp),
			zap.Float64("ac_internal_temp", *obs.ACInternalTemp))
		return
	}

	now := e.clk.Now()
	sample := Sample{
		Offset:         *obs.ACInternalTemp - *obs.RoomTemp,
		ACInternalTemp: *obs.ACInternalTemp,
		RoomTemp:       *obs.RoomTemp,
		OutdoorTemp:    copyFloat(obs.OutdoorTemp),
		Humidity:       copyFloat(obs.Humidity),
		Power:          copyFloat(obs.Power),
		PowerState:     powerState,
		Hour:           now.Hour(),
		Daylight:       e.daylight(),
		Timestamp:      now.Format("2006-01-02T15:04:05"),
	}
	e.learner.Learn(sample)

	e.logger.Debug("Learned offset sample",
		zap.Float64("offset", sample.Offset),
		zap.String("power_state", powerState),
		zap.Int("samples", e.learner.SampleCount()))
}

// Predict returns the offset estimate for the current conditions and caches
// it for diagnostics.
func (e *Engine) Predict(obs Observation) Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clk.Now()
	pred := e.learner.Predict(Conditions{
		Hour:        now.Hour(),
		OutdoorTemp: obs.OutdoorTemp,
		PowerState:  e.classifyPower(obs.Power),
		Daylight:    e.daylight(),
	})
	e.lastPred = pred
	return pred
}

// LastPrediction returns the most recent prediction.
func (e *Engine) LastPrediction() Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPred
}

// FeatureImportance reports the fraction of retained samples that carry
// the named feature. The second return is false for unknown features or an
// empty sample window.
func (e *Engine) FeatureImportance(name string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.featureImportanceLocked(name)
}

func (e *Engine) featureImportanceLocked(name string) (float64, bool) {
	samples := e.learner.Samples()
	if len(samples) == 0 {
		return 0, false
	}

	carrying := 0
	for _, s := range samples {
		if featurePresent(s, name) {
			carrying++
		}
	}
	if carrying == 0 {
		return 0, false
	}
	return float64(carrying) / float64(len(samples)), true
}

// FeatureContribution estimates how much the named feature shifts the
// learned offset: the mean offset of samples where the feature is high
// minus the overall mean. The second return is false when the feature has
// no supporting samples.
func (e *Engine) FeatureContribution(name string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := e.learner.Samples()
	if len(samples) == 0 {
		return 0, false
	}

	var overallSum float64
	for _, s := range samples {
		overallSum += s.Offset
	}
	overall := overallSum / float64(len(samples))

	var highSum float64
	highN := 0
	threshold, ok := featureMedian(samples, name)
	if !ok {
		return 0, false
	}
	for _, s := range samples {
		v, present := featureValue(s, name)
		if !present || v < threshold {
			continue
		}
		highSum += s.Offset
		highN++
	}
	if highN == 0 {
		return 0, false
	}
	return highSum/float64(highN) - overall, true
}

// ConfidenceImpact reports how much the named feature supports prediction
// confidence: its importance scaled by the overall sample support.
func (e *Engine) ConfidenceImpact(name string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	importance, ok := e.featureImportanceLocked(name)
	if !ok {
		return 0, false
	}

	support := float64(e.learner.SampleCount()) / fullConfidenceCount
	if support > 1 {
		support = 1
	}
	return importance * support, true
}

func featurePresent(s Sample, name string) bool {
	_, present := featureValue(s, name)
	return present
}

// featureValue extracts the named feature as a float; daylight maps to 0/1.
func featureValue(s Sample, name string) (float64, bool) {
	switch name {
	case FeatureHumidity:
		if s.Humidity == nil {
			return 0, false
		}
		return *s.Humidity, true
	case FeatureOutdoorTemp:
		if s.OutdoorTemp == nil {
			return 0, false
		}
		return *s.OutdoorTemp, true
	case FeaturePower:
		if s.Power == nil {
			return 0, false
		}
		return *s.Power, true
	case FeatureDaylight:
		if s.Daylight {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// featureMedian returns the median of the feature values across the samples
// that carry the feature.
func featureMedian(samples []Sample, name string) (float64, bool) {
	var values []float64
	for _, s := range samples {
		if v, ok := featureValue(s, name); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	return median(values), true
}

// SampleCount reports how many enhanced samples the learner holds.
func (e *Engine) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.SampleCount()
}

// EngineState is the persisted form of the engine.
type EngineState struct {
	Learner    LearnerState    `json:"learner"`
	Hysteresis HysteresisState `json:"hysteresis"`
}

// Snapshot captures the engine's learned state for persistence.
func (e *Engine) Snapshot() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineState{
		Learner:    e.learner.snapshot(),
		Hysteresis: e.hyst.snapshot(),
	}
}

// Restore replaces the learned state with a persisted one.
func (e *Engine) Restore(state EngineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learner.restore(state.Learner)
	e.hyst.restore(state.Hysteresis)
}

// Diagnostics summarizes the engine for the diagnostics API.
func (e *Engine) Diagnostics() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	diag := map[string]any{
		"samples":          e.learner.SampleCount(),
		"cycles":           e.cycles,
		"rejected":         e.rejected,
		"last_offset":      e.lastPred.Offset,
		"last_confidence":  e.lastPred.Confidence,
		"hysteresis_ready": e.hyst.HasSufficientData(),
	}
	if start, ok := e.hyst.StartThreshold(); ok {
		diag["hysteresis_start"] = start
	}
	if stop, ok := e.hyst.StopThreshold(); ok {
		diag["hysteresis_stop"] = stop
	}
	return diag
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

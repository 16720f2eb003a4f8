package offset

const defaultTransitionWindow = 50

// HysteresisLearner watches the climate device's power transitions to learn
// the temperature window it cycles across: the room temperature at which it
// starts cooling and the one at which it stops. The medians of the recorded
// transition temperatures form the learned window.
type HysteresisLearner struct {
	window     int
	lastPower  string
	startTemps []float64
	stopTemps  []float64
}

// NewHysteresisLearner creates a learner keeping the given number of
// transition temperatures per direction, falling back to 50 for
// non-positive values.
func NewHysteresisLearner(window int) *HysteresisLearner {
	if window <= 0 {
		window = defaultTransitionWindow
	}
	return &HysteresisLearner{
		window:    window,
		lastPower: PowerUnknown,
	}
}

// Observe records the current power state and room temperature. Transitions
// between idle and active capture the temperature at which they happened;
// unknown power states break the transition chain without recording.
func (h *HysteresisLearner) Observe(powerState string, roomTemp float64) {
	defer func() { h.lastPower = powerState }()

	if powerState == PowerUnknown || h.lastPower == PowerUnknown {
		return
	}
	if h.lastPower == PowerIdle && powerState == PowerActive {
		h.startTemps = appendBounded(h.startTemps, roomTemp, h.window)
	}
	if h.lastPower == PowerActive && powerState == PowerIdle {
		h.stopTemps = appendBounded(h.stopTemps, roomTemp, h.window)
	}
}

// HasSufficientData reports whether both transition directions have been
// seen at least once.
func (h *HysteresisLearner) HasSufficientData() bool {
	return len(h.startTemps) > 0 && len(h.stopTemps) > 0
}

// StartThreshold returns the median room temperature at which the device
// starts running. The second return is false until a start transition has
// been observed.
func (h *HysteresisLearner) StartThreshold() (float64, bool) {
	if len(h.startTemps) == 0 {
		return 0, false
	}
	return median(h.startTemps), true
}

// StopThreshold returns the median room temperature at which the device
// stops running.
func (h *HysteresisLearner) StopThreshold() (float64, bool) {
	if len(h.stopTemps) == 0 {
		return 0, false
	}
	return median(h.stopTemps), true
}

// State classifies where the room temperature sits inside the learned
// window given the current power state. Returns PowerUnknown until both
// thresholds are learned.
func (h *HysteresisLearner) State(powerState string) string {
	if !h.HasSufficientData() {
		return PowerUnknown
	}
	switch powerState {
	case PowerActive, PowerIdle:
		return powerState
	default:
		return PowerUnknown
	}
}

// HysteresisState is the persisted form of the learner.
type HysteresisState struct {
	StartTemps []float64 `json:"start_temps"`
	StopTemps  []float64 `json:"stop_temps"`
	LastPower  string    `json:"last_power"`
}

func (h *HysteresisLearner) snapshot() HysteresisState {
	return HysteresisState{
		StartTemps: append([]float64(nil), h.startTemps...),
		StopTemps:  append([]float64(nil), h.stopTemps...),
		LastPower:  h.lastPower,
	}
}

func (h *HysteresisLearner) restore(s HysteresisState) {
	h.startTemps = appendAllBounded(nil, s.StartTemps, h.window)
	h.stopTemps = appendAllBounded(nil, s.StopTemps, h.window)
	h.lastPower = s.LastPower
	if h.lastPower == "" {
		h.lastPower = PowerUnknown
	}
}

func appendBounded(values []float64, v float64, limit int) []float64 {
	values = append(values, v)
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	return values
}

func appendAllBounded(dst, src []float64, limit int) []float64 {
	dst = append(dst, src...)
	if len(dst) > limit {
		dst = dst[len(dst)-limit:]
	}
	return dst
}

// Package offset learns the difference between a climate device's internal
// temperature sensor and the trusted room sensor, so setpoints can correct
// for the device's skewed readings. Learning is per hour of day with a
// similar-conditions refinement, guarded by an outlier detector, plus a
// hysteresis learner that watches power transitions.
package offset

// Power states classified from the device's power draw.
const (
	PowerIdle    = "idle"
	PowerActive  = "active"
	PowerUnknown = "unknown"
)

// Sample is one observation of the device offset together with the
// conditions it was taken under.
type Sample struct {
	Offset         float64  `json:"offset"`
	ACInternalTemp float64  `json:"ac_internal_temp"`
	RoomTemp       float64  `json:"room_temp"`
	OutdoorTemp    *float64 `json:"outdoor_temp,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
	Power          *float64 `json:"power,omitempty"`
	PowerState     string   `json:"power_state"`
	Hour           int      `json:"hour"`
	Daylight       bool     `json:"daylight"`
	Timestamp      string   `json:"timestamp"`
}

// Conditions are the features available when asking for a prediction.
type Conditions struct {
	Hour        int
	OutdoorTemp *float64
	PowerState  string
	Daylight    bool
}

// Prediction is the learner's offset estimate with its confidence in [0, 1].
type Prediction struct {
	Offset     float64 `json:"offset"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
}

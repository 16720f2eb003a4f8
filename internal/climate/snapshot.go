package climate

// Value map keys used by the threshold detector.
const (
	KeyIndoorHumidity  = "indoor_humidity"
	KeyOutdoorHumidity = "outdoor_humidity"
	KeyIndoorTemp      = "indoor_temp"
	KeyOutdoorTemp     = "outdoor_temp"
	KeyDifferential    = "differential"
	KeyHeatIndex       = "heat_index"
	KeyDewPointIndoor  = "dew_point_indoor"
)

// Reading holds one poll cycle's raw sensor values. A nil field means the
// sensor was unavailable for that cycle.
type Reading struct {
	IndoorHumidity  *float64 `json:"indoor_humidity,omitempty"`
	OutdoorHumidity *float64 `json:"outdoor_humidity,omitempty"`
	IndoorTemp      *float64 `json:"indoor_temp,omitempty"`
	OutdoorTemp     *float64 `json:"outdoor_temp,omitempty"`
}

// Snapshot is a Reading plus the metrics derived from it. Any derived field
// is nil when its inputs are nil or the humidity is outside (0, 100].
type Snapshot struct {
	Reading
	HumidityDifferential *float64 `json:"humidity_differential,omitempty"`
	HeatIndex            *float64 `json:"heat_index,omitempty"`
	DewPointIndoor       *float64 `json:"dew_point_indoor,omitempty"`
	DewPointOutdoor      *float64 `json:"dew_point_outdoor,omitempty"`
	AbsoluteHumidity     *float64 `json:"absolute_humidity,omitempty"`
}

// NewSnapshot derives all computed metrics from a raw reading.
func NewSnapshot(r Reading) Snapshot {
	s := Snapshot{Reading: r}

	if r.IndoorHumidity != nil && r.OutdoorHumidity != nil {
		diff := round1(*r.IndoorHumidity - *r.OutdoorHumidity)
		s.HumidityDifferential = &diff
	}

	s.HeatIndex = HeatIndex(r.IndoorTemp, r.IndoorHumidity)
	s.DewPointIndoor = DewPoint(r.IndoorTemp, r.IndoorHumidity)
	s.DewPointOutdoor = DewPoint(r.OutdoorTemp, r.OutdoorHumidity)
	s.AbsoluteHumidity = AbsoluteHumidity(r.IndoorTemp, r.IndoorHumidity)

	return s
}

// Values flattens the snapshot into the detector's value map. Nil fields are
// simply absent from the map.
func (s Snapshot) Values() map[string]float64 {
	values := make(map[string]float64)

	put := func(key string, v *float64) {
		if v != nil {
			values[key] = *v
		}
	}

	put(KeyIndoorHumidity, s.IndoorHumidity)
	put(KeyOutdoorHumidity, s.OutdoorHumidity)
	put(KeyIndoorTemp, s.IndoorTemp)
	put(KeyOutdoorTemp, s.OutdoorTemp)
	put(KeyDifferential, s.HumidityDifferential)
	put(KeyHeatIndex, s.HeatIndex)
	put(KeyDewPointIndoor, s.DewPointIndoor)

	return values
}

// Float returns a pointer to v. Convenience for building readings from
// parsed sensor states and in tests.
func Float(v float64) *float64 {
	return &v
}

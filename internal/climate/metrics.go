// Package climate implements the humidity engine: derived comfort metrics,
// threshold-crossing detection, the 24h sample buffer and daily aggregation.
package climate

import "math"

// Magnus formula constants for dew point calculation.
const (
	magnusB = 17.62
	magnusC = 243.12
)

// HeatIndex computes a simplified heat index in °C from temperature and
// relative humidity. Returns nil if either input is nil. Below 20°C or 40%
// humidity the heat index is not meaningful and the temperature is returned
// unchanged.
func HeatIndex(tempC, humidityPct *float64) *float64 {
	if tempC == nil || humidityPct == nil {
		return nil
	}

	t := *tempC
	h := *humidityPct

	if t < 20.0 || h < 40.0 {
		result := t
		return &result
	}

	result := round1(t + 0.348*h - 4.25)
	return &result
}

// DewPoint computes the dew point in °C using the Magnus formula.
// Returns nil if either input is nil or humidity is outside (0, 100].
func DewPoint(tempC, humidityPct *float64) *float64 {
	if tempC == nil || humidityPct == nil {
		return nil
	}

	t := *tempC
	h := *humidityPct

	// Guard the logarithm domain before computing gamma
	if h <= 0.0 || h > 100.0 {
		return nil
	}

	gamma := magnusB*t/(magnusC+t) + math.Log(h/100.0)
	result := round1(magnusC * gamma / (magnusB - gamma))
	return &result
}

// AbsoluteHumidity computes absolute humidity in g/m³ using the Buck equation
// for saturation vapor pressure. Returns nil if either input is nil or
// humidity is outside (0, 100].
func AbsoluteHumidity(tempC, humidityPct *float64) *float64 {
	if tempC == nil || humidityPct == nil {
		return nil
	}

	t := *tempC
	h := *humidityPct

	if h <= 0.0 || h > 100.0 {
		return nil
	}

	// Saturation vapor pressure in kPa (Buck equation)
	svp := 0.61121 * math.Exp((18.678-t/234.5)*(t/(257.14+t)))

	// Actual vapor pressure in kPa
	vp := h / 100.0 * svp

	// Absolute humidity in g/m³ via the ideal gas law
	// (vp*1000 converts kPa to Pa, 18.016 g/mol water, 8.314 J/(mol·K))
	result := round1(vp * 1000.0 * 18.016 / (8.314 * (t + 273.15)))
	return &result
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10.0) / 10.0
}

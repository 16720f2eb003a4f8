package monitor

import (
	"fmt"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
)

// TriggerEvent is one fired threshold with its human-readable context,
// captured for the event log and optional notification.
type TriggerEvent struct {
	Name      string             `json:"name"`
	Message   string             `json:"message"`
	Values    map[string]float64 `json:"values"`
	Timestamp string             `json:"timestamp"`
}

// FormatTrigger builds the contextual message for a fired trigger from the
// snapshot it fired on, the previous cycle's values and the thresholds in
// effect. Unknown trigger names get a generic message rather than an error.
func FormatTrigger(name string, snap climate.Snapshot, last map[string]float64, thresholds climate.ThresholdSet) string {
	switch name {
	case climate.TriggerHumidityChange:
		current := floatValue(snap.IndoorHumidity)
		if previous, ok := last[climate.KeyIndoorHumidity]; ok {
			return fmt.Sprintf("Indoor humidity changed from %.1f%% to %.1f%%", previous, current)
		}
		return fmt.Sprintf("Indoor humidity changed to %.1f%%", current)

	case climate.TriggerHeatIndexWarning:
		return fmt.Sprintf("Heat index reached %.1f°C (warning threshold %.1f°C)",
			floatValue(snap.HeatIndex), thresholds.HeatIndexWarning)

	case climate.TriggerDewPointWarning:
		temp := floatValue(snap.IndoorTemp)
		dewPoint := floatValue(snap.DewPointIndoor)
		return fmt.Sprintf("Indoor temperature %.1f°C is within %.1f°C of the dew point %.1f°C, condensation risk",
			temp, temp-dewPoint, dewPoint)

	case climate.TriggerDifferentialSignificant:
		return fmt.Sprintf("Indoor/outdoor humidity differential reached %.1f%% (threshold %.1f%%)",
			floatValue(snap.HumidityDifferential), thresholds.DifferentialSignificant)

	default:
		return fmt.Sprintf("Threshold %s fired", name)
	}
}

// eventLog is a bounded FIFO of the most recent trigger events.
type eventLog struct {
	limit  int
	events []TriggerEvent
}

func newEventLog(limit int) *eventLog {
	return &eventLog{limit: limit}
}

func (l *eventLog) append(e TriggerEvent) {
	l.events = append(l.events, e)
	if len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}
}

func (l *eventLog) recent() []TriggerEvent {
	out := make([]TriggerEvent, len(l.events))
	copy(out, l.events)
	return out
}

func floatValue(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

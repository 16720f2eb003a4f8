package climate

import (
	"sync"
	"time"

	"github.com/VectorBarks/smart-climate-sub001/internal/clock"
)

// TimestampLayout is the wall-clock format stamped on buffer entries.
// Second precision, no zone suffix, matching the persisted history format.
const TimestampLayout = "2006-01-02T15:04:05"

const (
	defaultWindowHours = 24
	entriesPerHour     = 12 // 5-minute polling cadence
)

// BufferEntry is one recorded observation: the sensor pair, the derived
// metrics, and the learner impacts active at that moment. Timestamp is
// assigned by Buffer.Add.
type BufferEntry struct {
	Timestamp          string   `json:"timestamp"`
	Indoor             *float64 `json:"indoor,omitempty"`
	Outdoor            *float64 `json:"outdoor,omitempty"`
	IndoorTemp         *float64 `json:"indoor_temp,omitempty"`
	OutdoorTemp        *float64 `json:"outdoor_temp,omitempty"`
	Differential       *float64 `json:"differential,omitempty"`
	HeatIndex          *float64 `json:"heat_index,omitempty"`
	DewPointIndoor     *float64 `json:"dew_point_indoor,omitempty"`
	DewPointOutdoor    *float64 `json:"dew_point_outdoor,omitempty"`
	AbsoluteHumidity   *float64 `json:"absolute_humidity,omitempty"`
	MLOffsetImpact     *float64 `json:"ml_offset_impact,omitempty"`
	MLConfidenceImpact *float64 `json:"ml_confidence_impact,omitempty"`
	ComfortZone        *bool    `json:"comfort_zone,omitempty"`
}

// NewBufferEntry maps a snapshot onto an entry. The humidity pair lands on
// the short indoor/outdoor names used by the aggregator.
func NewBufferEntry(s Snapshot) BufferEntry {
	return BufferEntry{
		Indoor:           s.IndoorHumidity,
		Outdoor:          s.OutdoorHumidity,
		IndoorTemp:       s.IndoorTemp,
		OutdoorTemp:      s.OutdoorTemp,
		Differential:     s.HumidityDifferential,
		HeatIndex:        s.HeatIndex,
		DewPointIndoor:   s.DewPointIndoor,
		DewPointOutdoor:  s.DewPointOutdoor,
		AbsoluteHumidity: s.AbsoluteHumidity,
	}
}

// clone returns a copy whose pointer fields are independent of the original,
// so later caller mutations cannot reach into stored history.
func (e BufferEntry) clone() BufferEntry {
	c := e
	c.Indoor = copyFloat(e.Indoor)
	c.Outdoor = copyFloat(e.Outdoor)
	c.IndoorTemp = copyFloat(e.IndoorTemp)
	c.OutdoorTemp = copyFloat(e.OutdoorTemp)
	c.Differential = copyFloat(e.Differential)
	c.HeatIndex = copyFloat(e.HeatIndex)
	c.DewPointIndoor = copyFloat(e.DewPointIndoor)
	c.DewPointOutdoor = copyFloat(e.DewPointOutdoor)
	c.AbsoluteHumidity = copyFloat(e.AbsoluteHumidity)
	c.MLOffsetImpact = copyFloat(e.MLOffsetImpact)
	c.MLConfidenceImpact = copyFloat(e.MLConfidenceImpact)
	c.ComfortZone = copyBool(e.ComfortZone)
	return c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Buffer is a fixed-capacity FIFO of timestamped entries. Capacity is
// hours * 12, assuming one entry per five minutes; the buffer does not
// enforce cadence, the poll loop does. Once full, each Add evicts the
// oldest entry.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	entries  []BufferEntry
	clk      clock.Clock
}

// NewBuffer creates a buffer covering the given number of hours. Non-positive
// hours falls back to a 24-hour window (288 entries). A nil clock gets the
// real one.
func NewBuffer(hours int, clk clock.Clock) *Buffer {
	if hours <= 0 {
		hours = defaultWindowHours
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	capacity := hours * entriesPerHour
	return &Buffer{
		capacity: capacity,
		entries:  make([]BufferEntry, 0, capacity),
		clk:      clk,
	}
}

// Capacity returns the maximum number of retained entries.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Len returns the current number of entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Add stamps the entry with the current time and appends it, evicting the
// oldest entry when the buffer is full. The stored entry is independent of
// the caller's value.
func (b *Buffer) Add(e BufferEntry) {
	stored := e.clone()
	stored.Timestamp = b.clk.Now().Format(TimestampLayout)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.capacity {
		drop := len(b.entries) - b.capacity + 1
		b.entries = append(b.entries[:0], b.entries[drop:]...)
	}
	b.entries = append(b.entries, stored)
}

// GetRecent returns entries newer than the given number of minutes, in
// insertion order. Entries whose timestamps fail to parse are skipped.
// The buffer itself is never mutated.
func (b *Buffer) GetRecent(minutes int) []BufferEntry {
	now := b.clk.Now()
	cutoff := now.Add(-time.Duration(minutes) * time.Minute)

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]BufferEntry, 0)
	for _, e := range b.entries {
		t, err := time.ParseInLocation(TimestampLayout, e.Timestamp, now.Location())
		if err != nil {
			continue
		}
		if t.After(cutoff) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Entries returns a copy of the full buffer contents in insertion order.
func (b *Buffer) Entries() []BufferEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]BufferEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.clone())
	}
	return out
}

// Restore replaces the buffer contents with previously persisted entries,
// keeping only the newest capacity entries if given more.
func (b *Buffer) Restore(entries []BufferEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(entries) > b.capacity {
		entries = entries[len(entries)-b.capacity:]
	}
	b.entries = make([]BufferEntry, 0, b.capacity)
	for _, e := range entries {
		b.entries = append(b.entries, e.clone())
	}
}

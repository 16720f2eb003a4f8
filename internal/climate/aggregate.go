package climate

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DayLayout is the key format for daily aggregates.
const DayLayout = "2006-01-02"

const defaultRetentionDays = 90

// Comfort band for indoor relative humidity, used when an entry carries no
// explicit comfort flag.
const (
	comfortMinHumidity = 30.0
	comfortMaxHumidity = 60.0
)

// FieldStats summarizes one humidity field across a day.
type FieldStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// MLImpact averages the learner contributions recorded alongside readings.
// Both values default to zero when no entry carried them.
type MLImpact struct {
	AvgOffset     float64 `json:"avg_offset"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// DailyAggregate is the per-day reduction of buffer entries. Indoor and
// Outdoor are omitted when no entry supplied that field.
type DailyAggregate struct {
	Indoor             *FieldStats `json:"indoor,omitempty"`
	Outdoor            *FieldStats `json:"outdoor,omitempty"`
	MLImpact           MLImpact    `json:"ml_impact"`
	ComfortTimePercent float64     `json:"comfort_time_percent"`
}

// DayKey formats a time as a daily aggregate key.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// Aggregate reduces a day's entries to summary statistics. Returns nil when
// there are no entries.
func Aggregate(events []BufferEntry) *DailyAggregate {
	if len(events) == 0 {
		return nil
	}

	agg := &DailyAggregate{
		Indoor:  fieldStats(events, func(e BufferEntry) *float64 { return e.Indoor }),
		Outdoor: fieldStats(events, func(e BufferEntry) *float64 { return e.Outdoor }),
	}

	var offsetSum, confidenceSum float64
	var offsetN, confidenceN int
	comfortable := 0
	for _, e := range events {
		if e.MLOffsetImpact != nil {
			offsetSum += *e.MLOffsetImpact
			offsetN++
		}
		if e.MLConfidenceImpact != nil {
			confidenceSum += *e.MLConfidenceImpact
			confidenceN++
		}
		if isComfortable(e) {
			comfortable++
		}
	}
	if offsetN > 0 {
		agg.MLImpact.AvgOffset = round1(offsetSum / float64(offsetN))
	}
	if confidenceN > 0 {
		agg.MLImpact.AvgConfidence = round1(confidenceSum / float64(confidenceN))
	}
	agg.ComfortTimePercent = round1(float64(comfortable) / float64(len(events)) * 100)

	return agg
}

func fieldStats(events []BufferEntry, field func(BufferEntry) *float64) *FieldStats {
	var stats *FieldStats
	var sum float64
	n := 0
	for _, e := range events {
		v := field(e)
		if v == nil {
			continue
		}
		if stats == nil {
			stats = &FieldStats{Min: *v, Max: *v}
		} else {
			stats.Min = math.Min(stats.Min, *v)
			stats.Max = math.Max(stats.Max, *v)
		}
		sum += *v
		n++
	}
	if stats != nil {
		stats.Avg = round1(sum / float64(n))
	}
	return stats
}

// isComfortable prefers the explicit flag; without one it falls back to the
// indoor humidity band. Missing indoor humidity counts as not comfortable.
func isComfortable(e BufferEntry) bool {
	if e.ComfortZone != nil {
		return *e.ComfortZone
	}
	if e.Indoor == nil {
		return false
	}
	return *e.Indoor >= comfortMinHumidity && *e.Indoor <= comfortMaxHumidity
}

// DailyStore keeps aggregates keyed by day string, bounded to the most
// recent retention days. Day keys sort chronologically, so eviction removes
// the smallest keys.
type DailyStore struct {
	mu        sync.RWMutex
	retention int
	days      map[string]DailyAggregate
}

// NewDailyStore creates a store retaining the given number of days, falling
// back to 90 for non-positive values.
func NewDailyStore(retentionDays int) *DailyStore {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &DailyStore{
		retention: retentionDays,
		days:      make(map[string]DailyAggregate),
	}
}

// Set records the aggregate for a day, overwriting any existing entry and
// purging the oldest days beyond retention.
func (s *DailyStore) Set(day string, agg DailyAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[day] = agg
	s.purgeLocked()
}

// Get returns the aggregate for a day.
func (s *DailyStore) Get(day string) (DailyAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.days[day]
	return agg, ok
}

// All returns a copy of every retained day.
func (s *DailyStore) All() map[string]DailyAggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DailyAggregate, len(s.days))
	for k, v := range s.days {
		out[k] = v
	}
	return out
}

// Len returns the number of retained days.
func (s *DailyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.days)
}

// Replace swaps in previously persisted aggregates, then applies retention.
func (s *DailyStore) Replace(days map[string]DailyAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days = make(map[string]DailyAggregate, len(days))
	for k, v := range days {
		s.days[k] = v
	}
	s.purgeLocked()
}

func (s *DailyStore) purgeLocked() {
	if len(s.days) <= s.retention {
		return
	}
	keys := make([]string, 0, len(s.days))
	for k := range s.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-s.retention] {
		delete(s.days, k)
	}
}

// Package monitor drives the humidity engine: every poll cycle it reads
// the cached sensor values, derives the comfort metrics, evaluates the
// thresholds, feeds the offset engine and records the result into the
// history buffer. Scheduled jobs reduce each finished day into the daily
// aggregate store and persist learned state to disk.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/clock"
	"github.com/VectorBarks/smart-climate-sub001/internal/ha"
	"github.com/VectorBarks/smart-climate-sub001/internal/offset"
	"github.com/VectorBarks/smart-climate-sub001/internal/sensors"
	"github.com/VectorBarks/smart-climate-sub001/internal/store"
)

// Monitor defaults.
const (
	defaultPollInterval    = 5 * time.Minute
	defaultStartupTimeout  = 5 * time.Minute
	defaultSaveEveryCycles = 12
	defaultEventLogSize    = 50

	// Daily aggregation runs shortly after midnight so the previous day
	// is complete.
	dailyAggregationSpec = "5 0 * * *"
)

// FeatureSource is the optional capability of an ML subsystem to report
// per-feature impacts. The second return is false when the feature is
// unknown or unsupported; callers degrade the value to zero. Whether a
// source exists is decided once at construction, never probed per call.
type FeatureSource interface {
	FeatureContribution(name string) (float64, bool)
	ConfidenceImpact(name string) (float64, bool)
	FeatureImportance(name string) (float64, bool)
}

// Store persists and recovers monitor snapshots.
type Store interface {
	Save(doc store.Document) error
	Load() (store.Document, bool)
}

// Config tunes the monitor.
type Config struct {
	// PollInterval is the cycle cadence. The buffer's 5-minute-granularity
	// capacity assumes the default.
	PollInterval time.Duration
	// StartupTimeout bounds the wait for sensor entities at startup.
	StartupTimeout time.Duration
	// BufferHours sizes the history buffer window.
	BufferHours int
	// RetentionDays bounds the daily aggregate store.
	RetentionDays int
	// SaveEveryCycles is the number of poll cycles between snapshot saves.
	SaveEveryCycles int
	// NotifyService is the Home Assistant notify service to forward
	// trigger events to, empty to disable.
	NotifyService string
	// ReadOnly suppresses all service calls back into Home Assistant.
	ReadOnly bool
	// ComfortMin and ComfortMax bound the indoor humidity comfort band
	// used for the explicit comfort flag.
	ComfortMin float64
	ComfortMax float64
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = defaultStartupTimeout
	}
	if c.SaveEveryCycles <= 0 {
		c.SaveEveryCycles = defaultSaveEveryCycles
	}
	if c.ComfortMin == 0 && c.ComfortMax == 0 {
		c.ComfortMin = 30.0
		c.ComfortMax = 60.0
	}
	return c
}

// Monitor owns one monitored climate setup: the sensor source, the
// threshold detector, the history buffer, the daily aggregates and the
// optional offset engine. All cycle work happens on the poll goroutine;
// the mutex only guards the bits the API server reads concurrently.
type Monitor struct {
	config   Config
	client   ha.HAClient
	source   *sensors.Source
	engine   *offset.Engine
	features FeatureSource
	st       Store
	clk      clock.Clock
	logger   *zap.Logger

	detector *climate.Detector
	buffer   *climate.Buffer
	daily    *climate.DailyStore

	mu           sync.RWMutex
	lastSnapshot *climate.Snapshot
	lastTriggers []string
	lastPred     offset.Prediction
	events       *eventLog
	cycles       int
	lastCycle    time.Time

	cron     *cron.Cron
	stop     chan struct{}
	loopDone chan struct{}
}

// NewMonitor wires a monitor from its collaborators. The engine and
// feature source may be nil; learning and ML impacts then degrade to
// nothing rather than erroring. A nil store disables persistence.
func NewMonitor(
	client ha.HAClient,
	source *sensors.Source,
	engine *offset.Engine,
	features FeatureSource,
	st Store,
	thresholds climate.ThresholdSet,
	config Config,
	clk clock.Clock,
	logger *zap.Logger,
) *Monitor {
	config = config.withDefaults()
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Monitor{
		config:   config,
		client:   client,
		source:   source,
		engine:   engine,
		features: features,
		st:       st,
		clk:      clk,
		logger:   logger.Named("monitor"),
		detector: climate.NewDetector(thresholds),
		buffer:   climate.NewBuffer(config.BufferHours, clk),
		daily:    climate.NewDailyStore(config.RetentionDays),
		events:   newEventLog(defaultEventLogSize),
		stop:     make(chan struct{}),
	}
}

// Start waits for the configured sensors to come up, primes the sensor
// cache, restores persisted state and launches the poll loop and the
// scheduled jobs.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("Starting humidity monitor",
		zap.Duration("poll_interval", m.config.PollInterval),
		zap.Bool("read_only", m.config.ReadOnly))

	waiter := ha.NewEntityWaiter(m.client, m.clk, m.logger)
	if err := waiter.Wait(ctx, m.source.EntityIDs(), m.config.StartupTimeout); err != nil {
		return fmt.Errorf("sensors not ready: %w", err)
	}

	if err := m.source.Sync(); err != nil {
		return fmt.Errorf("failed to prime sensor cache: %w", err)
	}

	if m.st != nil {
		if doc, ok := m.st.Load(); ok {
			m.restore(doc)
		}
	}

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(dailyAggregationSpec, m.runDailyAggregation); err != nil {
		return fmt.Errorf("failed to schedule daily aggregation: %w", err)
	}
	m.cron.Start()

	m.loopDone = make(chan struct{})
	go m.pollLoop()

	m.logger.Info("Humidity monitor started")
	return nil
}

// Stop halts the poll loop and scheduled jobs, performs a final save and
// releases the sensor subscriptions.
func (m *Monitor) Stop() error {
	m.logger.Info("Stopping humidity monitor")

	close(m.stop)
	if m.cron != nil {
		m.cron.Stop()
	}
	// Let an in-flight cycle finish before the final save reads its state.
	if m.loopDone != nil {
		<-m.loopDone
	}

	var errs error
	if err := m.persist(); err != nil {
		errs = multierr.Append(errs, err)
	}
	m.source.Close()

	m.logger.Info("Humidity monitor stopped")
	return errs
}

func (m *Monitor) pollLoop() {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	// First cycle immediately so a restart does not leave a gap
	m.RunCycle()

	for {
		select {
		case <-ticker.C:
			m.RunCycle()
		case <-m.stop:
			return
		}
	}
}

// RunCycle performs one synchronous poll cycle: read, derive, detect,
// learn, record. It never errors; missing sensors simply produce a sparser
// snapshot.
func (m *Monitor) RunCycle() {
	reading := m.source.Current()
	snap := climate.NewSnapshot(reading)
	values := snap.Values()

	fired := m.detector.Check(values)
	for _, name := range fired {
		m.handleTrigger(name, snap)
	}

	// Baseline update happens exactly once per cycle, after trigger
	// evaluation, so edge-triggered conditions see the pre-cycle values.
	m.detector.Update(values)

	obs := m.observation(reading)
	var pred offset.Prediction
	if m.engine != nil {
		m.engine.RecordCycle(obs)
		pred = m.engine.Predict(obs)
	}

	entry := climate.NewBufferEntry(snap)
	m.applyMLImpacts(&entry)
	entry.ComfortZone = m.comfortFlag(snap)
	m.buffer.Add(entry)

	m.mu.Lock()
	m.lastSnapshot = &snap
	m.lastTriggers = fired
	m.lastPred = pred
	m.cycles++
	cycles := m.cycles
	m.lastCycle = m.clk.Now()
	m.mu.Unlock()

	if m.st != nil && cycles%m.config.SaveEveryCycles == 0 {
		if err := m.persist(); err != nil {
			m.logger.Warn("Periodic snapshot save failed", zap.Error(err))
		}
	}
}

// observation assembles the offset engine's view of the cycle from the
// sensor cache.
func (m *Monitor) observation(reading climate.Reading) offset.Observation {
	obs := offset.Observation{
		RoomTemp:    reading.IndoorTemp,
		OutdoorTemp: reading.OutdoorTemp,
		Humidity:    reading.IndoorHumidity,
	}
	if v, ok := m.source.Value(sensors.QtyACInternalTemp); ok {
		obs.ACInternalTemp = &v
	}
	if v, ok := m.source.Value(sensors.QtyPower); ok {
		obs.Power = &v
	}
	return obs
}

// applyMLImpacts records the humidity feature's learner impacts on the
// entry. Without a feature source the fields stay unset; with one, failed
// queries degrade to zero.
func (m *Monitor) applyMLImpacts(entry *climate.BufferEntry) {
	if m.features == nil {
		return
	}

	contribution, ok := m.features.FeatureContribution(offset.FeatureHumidity)
	if !ok {
		contribution = 0.0
	}
	confidence, ok := m.features.ConfidenceImpact(offset.FeatureHumidity)
	if !ok {
		confidence = 0.0
	}
	entry.MLOffsetImpact = &contribution
	entry.MLConfidenceImpact = &confidence
}

// comfortFlag decides the explicit comfort flag: set only when both the
// indoor humidity and the heat index are known, true when the humidity
// sits inside the comfort band and the heat index stays below the warning
// threshold. Otherwise nil, leaving the aggregator to its inference.
func (m *Monitor) comfortFlag(snap climate.Snapshot) *bool {
	if snap.IndoorHumidity == nil || snap.HeatIndex == nil {
		return nil
	}
	comfortable := *snap.IndoorHumidity >= m.config.ComfortMin &&
		*snap.IndoorHumidity <= m.config.ComfortMax &&
		*snap.HeatIndex < m.detector.Thresholds().HeatIndexWarning
	return &comfortable
}

// handleTrigger logs a fired trigger, records it in the event log and, in
// read-write mode with a notify service configured, forwards it to Home
// Assistant.
func (m *Monitor) handleTrigger(name string, snap climate.Snapshot) {
	message := FormatTrigger(name, snap, m.detector.LastValues(), m.detector.Thresholds())
	event := TriggerEvent{
		Name:      name,
		Message:   message,
		Values:    snap.Values(),
		Timestamp: m.clk.Now().Format(climate.TimestampLayout),
	}

	m.logger.Info("Threshold triggered",
		zap.String("trigger", name),
		zap.String("message", message))

	m.mu.Lock()
	m.events.append(event)
	m.mu.Unlock()

	if m.config.NotifyService == "" {
		return
	}
	if m.config.ReadOnly {
		m.logger.Debug("Skipping notification in read-only mode",
			zap.String("trigger", name))
		return
	}

	if err := m.client.CallService("notify", m.config.NotifyService, map[string]interface{}{
		"title":   "Smart Climate",
		"message": message,
	}); err != nil {
		m.logger.Error("Failed to send trigger notification",
			zap.String("trigger", name),
			zap.Error(err))
	}
}

// runDailyAggregation reduces the previous day's buffer entries into the
// daily store and persists the result.
func (m *Monitor) runDailyAggregation() {
	day := climate.DayKey(m.clk.Now().AddDate(0, 0, -1))
	m.AggregateDay(day)

	if m.st != nil {
		if err := m.persist(); err != nil {
			m.logger.Warn("Post-aggregation snapshot save failed", zap.Error(err))
		}
	}
}

// AggregateDay reduces the buffer entries stamped with the given day key
// into the daily store. Days without entries are skipped.
func (m *Monitor) AggregateDay(day string) {
	var entries []climate.BufferEntry
	for _, e := range m.buffer.Entries() {
		if strings.HasPrefix(e.Timestamp, day) {
			entries = append(entries, e)
		}
	}

	agg := climate.Aggregate(entries)
	if agg == nil {
		m.logger.Debug("No entries to aggregate", zap.String("day", day))
		return
	}

	m.daily.Set(day, *agg)
	m.logger.Info("Daily aggregate recorded",
		zap.String("day", day),
		zap.Int("entries", len(entries)),
		zap.Float64("comfort_time_percent", agg.ComfortTimePercent))
}

// Snapshot captures the monitor's full state as a persistable document.
func (m *Monitor) Snapshot() store.Document {
	doc := store.Document{
		Buffer:          m.buffer.Entries(),
		DailyAggregates: m.daily.All(),
		LastValues:      m.detector.LastValues(),
		Thresholds:      m.detector.Thresholds().Map(),
	}
	if m.engine != nil {
		state := m.engine.Snapshot()
		doc.Learner = &state
	}
	return doc
}

// restore replays a persisted document into the monitor's state. The
// thresholds in effect come from config; persisted ones are informational.
func (m *Monitor) restore(doc store.Document) {
	m.buffer.Restore(doc.Buffer)
	m.daily.Replace(doc.DailyAggregates)
	m.detector.RestoreLastValues(doc.LastValues)
	if m.engine != nil && doc.Learner != nil {
		m.engine.Restore(*doc.Learner)
	}

	m.logger.Info("Monitor state restored",
		zap.Int("buffer_entries", m.buffer.Len()),
		zap.Int("daily_aggregates", m.daily.Len()))
}

func (m *Monitor) persist() error {
	if m.st == nil {
		return nil
	}
	if err := m.st.Save(m.Snapshot()); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LastSnapshot returns the most recent cycle's snapshot and the triggers
// it fired. The second return is false before the first cycle.
func (m *Monitor) LastSnapshot() (climate.Snapshot, []string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastSnapshot == nil {
		return climate.Snapshot{}, nil, false
	}
	triggers := append([]string(nil), m.lastTriggers...)
	return *m.lastSnapshot, triggers, true
}

// RecentEvents returns the retained trigger events, oldest first.
func (m *Monitor) RecentEvents() []TriggerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events.recent()
}

// History returns buffer entries newer than the given number of minutes.
func (m *Monitor) History(minutes int) []climate.BufferEntry {
	return m.buffer.GetRecent(minutes)
}

// Daily returns every retained daily aggregate keyed by day.
func (m *Monitor) Daily() map[string]climate.DailyAggregate {
	return m.daily.All()
}

// Prediction returns the offset prediction from the most recent cycle.
func (m *Monitor) Prediction() offset.Prediction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPred
}

// Diagnostics summarizes the monitor for the diagnostics API.
func (m *Monitor) Diagnostics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	diag := map[string]any{
		"cycles":          m.cycles,
		"buffer_len":      m.buffer.Len(),
		"buffer_capacity": m.buffer.Capacity(),
		"daily_days":      m.daily.Len(),
		"recent_events":   len(m.events.events),
		"read_only":       m.config.ReadOnly,
	}
	if !m.lastCycle.IsZero() {
		diag["last_cycle"] = m.lastCycle.Format(climate.TimestampLayout)
	}
	return diag
}

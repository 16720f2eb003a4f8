// Package sensors reads the configured climate sensor entities from Home
// Assistant and keeps their latest values cached via state change
// subscriptions. A sensor that is unavailable, unknown or unparseable simply
// yields no value; nothing in this package errors on bad sensor data.
package sensors

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/ha"
)

// Quantity names accepted by Source.Value.
const (
	QtyIndoorHumidity  = "indoor_humidity"
	QtyOutdoorHumidity = "outdoor_humidity"
	QtyIndoorTemp      = "indoor_temp"
	QtyOutdoorTemp     = "outdoor_temp"
	QtyPower           = "power"
	QtyACInternalTemp  = "ac_internal_temp"
)

// EntityMap names the Home Assistant entities backing each sensor role. Only
// the roles a deployment uses need entries; readings for unmapped roles stay
// absent. Power and ACInternalTemp feed the offset engine.
type EntityMap struct {
	IndoorHumidity  string `yaml:"indoor_humidity"`
	OutdoorHumidity string `yaml:"outdoor_humidity"`
	IndoorTemp      string `yaml:"indoor_temperature"`
	OutdoorTemp     string `yaml:"outdoor_temperature"`
	Power           string `yaml:"power"`
	ACInternalTemp  string `yaml:"ac_internal_temperature"`
}

func (e EntityMap) byQuantity() map[string]string {
	return map[string]string{
		QtyIndoorHumidity:  e.IndoorHumidity,
		QtyOutdoorHumidity: e.OutdoorHumidity,
		QtyIndoorTemp:      e.IndoorTemp,
		QtyOutdoorTemp:     e.OutdoorTemp,
		QtyPower:           e.Power,
		QtyACInternalTemp:  e.ACInternalTemp,
	}
}

// Configured returns the non-empty entity IDs, in role order.
func (e EntityMap) Configured() []string {
	var ids []string
	for _, id := range []string{
		e.IndoorHumidity, e.OutdoorHumidity, e.IndoorTemp, e.OutdoorTemp,
		e.Power, e.ACInternalTemp,
	} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Source caches the latest value of each configured sensor entity and
// assembles readings from the cache.
type Source struct {
	client   ha.HAClient
	logger   *zap.Logger
	entities EntityMap
	cache    map[string]*float64
	cacheMu  sync.RWMutex
	subs     []ha.Subscription
}

// NewSource creates a sensor source for the given entity mapping.
func NewSource(client ha.HAClient, entities EntityMap, logger *zap.Logger) *Source {
	return &Source{
		client:   client,
		logger:   logger,
		entities: entities,
		cache:    make(map[string]*float64),
	}
}

// EntityIDs returns the configured entity IDs, the set startup waits on.
func (s *Source) EntityIDs() []string {
	return s.entities.Configured()
}

// Sync primes the cache from a full state fetch and subscribes to state
// changes for every configured entity. Entities missing from Home Assistant
// are logged and left absent; they fill in once their first change arrives.
func (s *Source) Sync() error {
	states, err := s.client.GetAllStates()
	if err != nil {
		return fmt.Errorf("failed to get states: %w", err)
	}

	stateMap := make(map[string]*ha.State)
	for _, state := range states {
		stateMap[state.EntityID] = state
	}

	synced := 0
	for _, entityID := range s.entities.Configured() {
		state, ok := stateMap[entityID]
		if !ok {
			s.logger.Warn("Sensor entity not found in HA",
				zap.String("entity_id", entityID))
		} else {
			s.store(entityID, state.Numeric())
			synced++
		}

		if err := s.subscribe(entityID); err != nil {
			s.logger.Warn("Failed to subscribe to sensor",
				zap.String("entity_id", entityID),
				zap.Error(err))
		}
	}

	s.logger.Info("Sensor cache primed",
		zap.Int("synced", synced),
		zap.Int("configured", len(s.entities.Configured())))

	return nil
}

func (s *Source) subscribe(entityID string) error {
	sub, err := s.client.SubscribeStateChanges(entityID, func(entity string, oldState, newState *ha.State) {
		if newState == nil {
			return
		}

		value := newState.Numeric()
		s.store(entity, value)

		if value == nil {
			s.logger.Debug("Sensor became unavailable",
				zap.String("entity_id", entity),
				zap.String("state", newState.State))
		}
	})
	if err != nil {
		return err
	}

	s.subs = append(s.subs, sub)
	return nil
}

func (s *Source) store(entityID string, value *float64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[entityID] = value
}

func (s *Source) lookup(entityID string) *float64 {
	if entityID == "" {
		return nil
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache[entityID]
}

// Current assembles a reading from the cached sensor values.
func (s *Source) Current() climate.Reading {
	return climate.Reading{
		IndoorHumidity:  s.lookup(s.entities.IndoorHumidity),
		OutdoorHumidity: s.lookup(s.entities.OutdoorHumidity),
		IndoorTemp:      s.lookup(s.entities.IndoorTemp),
		OutdoorTemp:     s.lookup(s.entities.OutdoorTemp),
	}
}

// Value returns the cached value for a quantity name. The second return is
// false for unknown quantities, unmapped roles and unavailable sensors.
func (s *Source) Value(quantity string) (float64, bool) {
	entityID, ok := s.entities.byQuantity()[quantity]
	if !ok {
		return 0, false
	}
	v := s.lookup(entityID)
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Close drops all state change subscriptions.
func (s *Source) Close() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe sensor", zap.Error(err))
		}
	}
	s.subs = nil
}

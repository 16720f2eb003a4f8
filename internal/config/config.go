// Package config loads the service configuration from a single YAML file,
// applies defaults and environment overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/offset"
	"github.com/VectorBarks/smart-climate-sub001/internal/sensors"
)

// Config defaults.
const (
	DefaultPollInterval   = 5 * time.Minute
	DefaultStartupTimeout = 5 * time.Minute
	DefaultBufferHours    = 24
	DefaultRetentionDays  = 90
	DefaultAPIPort        = 8081
	DefaultStorePath      = "smartclimate-state.json"
	DefaultSaveEvery      = 12
)

// HomeAssistant holds the connection settings for the Home Assistant
// WebSocket API. URL and Token fall back to the HA_URL and HA_TOKEN
// environment variables when unset.
type HomeAssistant struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Thresholds carries the optional trigger threshold overrides keyed by
// trigger name.
type Thresholds map[string]float64

// Monitor configures the poll loop and trigger handling.
type Monitor struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	StartupTimeout  time.Duration `yaml:"startup_timeout"`
	BufferHours     int           `yaml:"buffer_hours"`
	RetentionDays   int           `yaml:"retention_days"`
	SaveEveryCycles int           `yaml:"save_every_cycles"`
	NotifyService   string        `yaml:"notify_service"`
	ReadOnly        bool          `yaml:"read_only"`
	ComfortMin      float64       `yaml:"comfort_min"`
	ComfortMax      float64       `yaml:"comfort_max"`
}

// Offset configures the offset learning engine.
type Offset struct {
	Enabled       bool `yaml:"enabled"`
	offset.Config `yaml:",inline"`
}

// Location holds the installation coordinates for the daylight feature.
// When zero, the coordinates are taken from the Home Assistant instance
// configuration at startup.
type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// API configures the HTTP diagnostics server.
type API struct {
	Port int `yaml:"port"`
}

// Store configures snapshot persistence.
type Store struct {
	Path string `yaml:"path"`
}

// Logging selects the zap logger profile.
type Logging struct {
	Development bool `yaml:"development"`
}

// Config is the complete service configuration.
type Config struct {
	HomeAssistant HomeAssistant     `yaml:"homeassistant"`
	Sensors       sensors.EntityMap `yaml:"sensors"`
	Thresholds    Thresholds        `yaml:"thresholds"`
	Monitor       Monitor           `yaml:"monitor"`
	Offset        Offset            `yaml:"offset"`
	Location      Location          `yaml:"location"`
	API           API               `yaml:"api"`
	Store         Store             `yaml:"store"`
	Logging       Logging           `yaml:"logging"`
}

// Load reads and parses the config file, then applies environment
// overrides and defaults. The returned config is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv folds environment overrides into the config. Environment wins
// over the file for the Home Assistant connection and read-only mode.
func (c *Config) applyEnv() {
	if url := os.Getenv("HA_URL"); url != "" {
		c.HomeAssistant.URL = url
	}
	if token := os.Getenv("HA_TOKEN"); token != "" {
		c.HomeAssistant.Token = token
	}
	if os.Getenv("READ_ONLY") == "true" {
		c.Monitor.ReadOnly = true
	}
}

func (c *Config) applyDefaults() {
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = DefaultPollInterval
	}
	if c.Monitor.StartupTimeout <= 0 {
		c.Monitor.StartupTimeout = DefaultStartupTimeout
	}
	if c.Monitor.BufferHours <= 0 {
		c.Monitor.BufferHours = DefaultBufferHours
	}
	if c.Monitor.RetentionDays <= 0 {
		c.Monitor.RetentionDays = DefaultRetentionDays
	}
	if c.Monitor.SaveEveryCycles <= 0 {
		c.Monitor.SaveEveryCycles = DefaultSaveEvery
	}
	if c.API.Port <= 0 {
		c.API.Port = DefaultAPIPort
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.HomeAssistant.URL == "" {
		return fmt.Errorf("homeassistant.url is required (or set HA_URL)")
	}
	if c.HomeAssistant.Token == "" {
		return fmt.Errorf("homeassistant.token is required (or set HA_TOKEN)")
	}
	if len(c.Sensors.Configured()) == 0 {
		return fmt.Errorf("at least one sensor entity must be configured")
	}
	for name := range c.Thresholds {
		switch name {
		case climate.TriggerHumidityChange, climate.TriggerHeatIndexWarning,
			climate.TriggerDewPointWarning, climate.TriggerDifferentialSignificant:
		default:
			return fmt.Errorf("unknown threshold name %q", name)
		}
	}
	if c.Offset.Enabled && c.Sensors.ACInternalTemp == "" {
		return fmt.Errorf("offset learning requires sensors.ac_internal_temperature")
	}
	return nil
}

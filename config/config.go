// Package config loads the experiment configuration from a JSON or YAML
// file with optional environment overrides (DT_SECTION__KEY).
package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/swedishdeveloper/digital-twin/infra/stats"
	"github.com/swedishdeveloper/digital-twin/infra/telemetry"
)

// ServicesConfig points at the external collaborators.
type ServicesConfig struct {
	OSRMURL   string `json:"osrm_url" yaml:"osrm_url"`
	VroomURL  string `json:"vroom_url" yaml:"vroom_url"`
	PeliasURL string `json:"pelias_url" yaml:"pelias_url"`
}

// SimulationConfig controls the experiment clock and fleet sizing.
type SimulationConfig struct {
	// Multiplier scales logical time against wall time. 0 starts paused.
	// A negative value means infinite: the clock jumps to every awaited
	// timestamp.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	// Municipality names the experiment area.
	Municipality string `json:"municipality" yaml:"municipality"`
	// Fleets configures the operators, in booking-routing priority order.
	Fleets []FleetConfig `json:"fleets" yaml:"fleets"`
}

// FleetConfig sizes one operator.
type FleetConfig struct {
	Name         string         `json:"name" yaml:"name"`
	HubLon       float64        `json:"hub_lon" yaml:"hub_lon"`
	HubLat       float64        `json:"hub_lat" yaml:"hub_lat"`
	BookingTypes []string       `json:"booking_types" yaml:"booking_types"`
	Vehicles     map[string]int `json:"vehicles" yaml:"vehicles"`
}

// Config is the root experiment configuration.
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Services   ServicesConfig   `json:"services" yaml:"services"`
	Influx     stats.Config     `json:"influx" yaml:"influx"`
	Telemetry  telemetry.Config `json:"telemetry" yaml:"telemetry"`
	// PrometheusPort serves the scrape endpoint; 0 disables it.
	PrometheusPort int `json:"prometheus_port" yaml:"prometheus_port"`
}

// ClockMultiplier maps the configured multiplier to the clock's domain.
func (s SimulationConfig) ClockMultiplier() float64 {
	if s.Multiplier < 0 {
		return math.Inf(1)
	}
	return s.Multiplier
}

// SetDefaults fills unset fields with working local-dev values.
func (c *Config) SetDefaults() {
	if c.Simulation.Multiplier == 0 {
		c.Simulation.Multiplier = 60
	}
	if c.Simulation.Municipality == "" {
		c.Simulation.Municipality = "Ljusdal"
	}
	if c.Services.OSRMURL == "" {
		c.Services.OSRMURL = "http://localhost:5000"
	}
	if c.Services.VroomURL == "" {
		c.Services.VroomURL = "http://localhost:3000"
	}
	if c.Services.PeliasURL == "" {
		c.Services.PeliasURL = "http://localhost:4000"
	}
}

// Validate rejects configurations the simulation cannot start with.
func (c *Config) Validate() error {
	if len(c.Simulation.Fleets) == 0 {
		return fmt.Errorf("config: at least one fleet required")
	}
	for i, f := range c.Simulation.Fleets {
		if f.Name == "" {
			return fmt.Errorf("config: fleet %d has no name", i)
		}
		total := 0
		for _, n := range f.Vehicles {
			if n < 0 {
				return fmt.Errorf("config: fleet %s has a negative vehicle count", f.Name)
			}
			total += n
		}
		if total == 0 {
			return fmt.Errorf("config: fleet %s has no vehicles", f.Name)
		}
	}
	return nil
}

// Load reads the configuration file and applies DT_ environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("DT_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "dt_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

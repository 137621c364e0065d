// Package config loads and validates the simulator's JSON configuration:
// server/Modbus ports, the optional MQTT publisher, and the fleet of
// configured plants.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devskill-org/solar-fleet-sim/plant"
)

// ModbusMapping is the per-plant Modbus register placement.
type ModbusMapping struct {
	BaseAddress uint16 `json:"base_address"`
}

// PlantConfig is one plant entry in the configuration file.
type PlantConfig struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Latitude       float64       `json:"latitude"`
	Longitude      float64       `json:"longitude"`
	NominalPowerKW float64       `json:"nominal_power_kw"`
	Timezone       string        `json:"timezone"`
	ModbusMapping  ModbusMapping `json:"modbus_mapping"`
}

// ToPlant converts the JSON-facing config into the domain type consumed by
// the tick engine, decoupling wire shape from simulation logic.
func (p PlantConfig) ToPlant() plant.Config {
	return plant.Config{
		ID:                p.ID,
		Name:              p.Name,
		LatitudeDeg:       p.Latitude,
		LongitudeDeg:      p.Longitude,
		NominalPowerKW:    p.NominalPowerKW,
		Timezone:          p.Timezone,
		ModbusBaseAddress: p.ModbusMapping.BaseAddress,
	}
}

// ServerConfig is the HTTP/WS/metrics facade's listen configuration.
type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// ModbusServerConfig is the Modbus/TCP server's listen configuration.
type ModbusServerConfig struct {
	Port int `json:"port"`
}

// WeatherConfig configures the optional online irradiance source (C2).
// When Endpoint is empty, the fleet runs in offline-only mode
// regardless of the offline_mode flag, since there is nowhere to fetch
// live conditions from.
type WeatherConfig struct {
	Endpoint  string `json:"endpoint,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// MQTTConfig configures the optional MQTT publisher.
type MQTTConfig struct {
	Enabled          bool   `json:"enabled"`
	BrokerHost       string `json:"broker_host"`
	BrokerPort       int    `json:"broker_port"`
	TopicPrefix      string `json:"topic_prefix"`
	ClientID         string `json:"client_id"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	PublishIntervalS int    `json:"publish_interval_s,omitempty"`
}

// Config is the top-level configuration file shape (spec.md §6).
type Config struct {
	Server       ServerConfig       `json:"server"`
	Modbus       ModbusServerConfig `json:"modbus"`
	OfflineMode  bool               `json:"offline_mode"`
	Weather      WeatherConfig      `json:"weather,omitempty"`
	MQTT         MQTTConfig         `json:"mqtt"`
	Plants       []PlantConfig      `json:"plants"`
	TickInterval time.Duration      `json:"tick_interval"`
}

// DefaultConfig mirrors the teacher's DefaultConfig: every optional field
// pre-populated so a minimal JSON document still produces a runnable system.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Modbus: ModbusServerConfig{
			Port: 502,
		},
		OfflineMode: false,
		MQTT: MQTTConfig{
			Enabled:          false,
			BrokerPort:       1883,
			TopicPrefix:      "solar",
			PublishIntervalS: 10,
		},
		TickInterval: 5 * time.Second,
	}
}

// LoadConfig loads and validates configuration from a JSON file on disk.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads and validates configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ports, tick interval, MQTT settings and every plant,
// and returns an error for the first out-of-range field it finds; fields
// after that one are not checked.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", c.Server.Port)
	}
	if c.Modbus.Port < 0 || c.Modbus.Port > 65535 {
		return fmt.Errorf("modbus.port must be between 0 and 65535, got: %d", c.Modbus.Port)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be greater than 0, got: %s", c.TickInterval)
	}
	if c.MQTT.Enabled {
		if c.MQTT.BrokerHost == "" {
			return fmt.Errorf("mqtt.broker_host cannot be empty when mqtt.enabled is true")
		}
		if c.MQTT.BrokerPort <= 0 || c.MQTT.BrokerPort > 65535 {
			return fmt.Errorf("mqtt.broker_port must be between 1 and 65535, got: %d", c.MQTT.BrokerPort)
		}
		if c.MQTT.PublishIntervalS < 0 {
			return fmt.Errorf("mqtt.publish_interval_s must be non-negative, got: %d", c.MQTT.PublishIntervalS)
		}
	}

	seen := make(map[string]bool, len(c.Plants))
	for _, p := range c.Plants {
		if p.ID == "" {
			return fmt.Errorf("plant id cannot be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate plant id: %s", p.ID)
		}
		seen[p.ID] = true
		if p.Latitude < -90 || p.Latitude > 90 {
			return fmt.Errorf("plant %s: latitude must be between -90 and 90, got: %f", p.ID, p.Latitude)
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			return fmt.Errorf("plant %s: longitude must be between -180 and 180, got: %f", p.ID, p.Longitude)
		}
		if p.NominalPowerKW <= 0 {
			return fmt.Errorf("plant %s: nominal_power_kw must be greater than 0, got: %f", p.ID, p.NominalPowerKW)
		}
		if p.ModbusMapping.BaseAddress > 65535-63 {
			return fmt.Errorf("plant %s: modbus_mapping.base_address must leave room for a 63-register block (max %d), got: %d", p.ID, 65535-63, p.ModbusMapping.BaseAddress)
		}
	}
	return nil
}

// MarshalJSON round-trips time.Duration fields (tick_interval and the
// server timeouts) as Go duration strings ("5s") rather than raw
// nanosecond integers.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	type serverJSON struct {
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	}
	return json.Marshal(&struct {
		*Alias
		TickInterval string     `json:"tick_interval"`
		Server       serverJSON `json:"server"`
	}{
		Alias:        (*Alias)(c),
		TickInterval: c.TickInterval.String(),
		Server: serverJSON{
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout.String(),
			WriteTimeout: c.Server.WriteTimeout.String(),
		},
	})
}

// UnmarshalJSON accepts duration strings for tick_interval and the server
// timeouts, following the teacher's Alias-struct trick.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		TickInterval string `json:"tick_interval"`
		Server       struct {
			Port         int    `json:"port"`
			ReadTimeout  string `json:"read_timeout"`
			WriteTimeout string `json:"write_timeout"`
		} `json:"server"`
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TickInterval != "" {
		d, err := time.ParseDuration(aux.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval: %w", err)
		}
		c.TickInterval = d
	}
	if aux.Server.Port != 0 {
		c.Server.Port = aux.Server.Port
	}
	if aux.Server.ReadTimeout != "" {
		d, err := time.ParseDuration(aux.Server.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid server.read_timeout: %w", err)
		}
		c.Server.ReadTimeout = d
	}
	if aux.Server.WriteTimeout != "" {
		d, err := time.ParseDuration(aux.Server.WriteTimeout)
		if err != nil {
			return fmt.Errorf("invalid server.write_timeout: %w", err)
		}
		c.Server.WriteTimeout = d
	}
	return nil
}

// String renders the configuration as indented JSON, for the CLI's -info flag.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

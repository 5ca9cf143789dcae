package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ntpzones/ntpzones/internal/registry"
)

// Environment variables consulted by Resolve
const (
	EnvConfig = "NTPZONES_CONFIG"
	EnvHost   = "NTPZONES_HOST"
	EnvPort   = "NTPZONES_PORT"
)

// Default returns the built-in configuration: five national NTP servers and
// the nine default zones
func Default() *Config {
	c := &Config{Version: CurrentVersion}
	applyDefaults(c)
	return c
}

// Load loads configuration from the specified file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}

// Resolve picks the config file from path, falling back to NTPZONES_CONFIG and
// then the built-in defaults, and applies environment overrides
func Resolve(path string) (*Config, error) {
	return resolve(path, os.Getenv)
}

func resolve(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = getenv(EnvConfig)
	}

	var c *Config
	if path == "" {
		c = Default()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	if err := applyEnv(c, getenv); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults sets default values for optional fields. A missing sources or
// zones key selects the built-in list; an explicit empty list is kept.
func applyDefaults(c *Config) {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}

	if c.Sources == nil {
		c.Sources = registry.DefaultSources()
	}
	if c.Zones == nil {
		c.Zones = registry.DefaultZones()
	}
	for i := range c.Zones {
		if strings.TrimSpace(c.Zones[i].Label) == "" {
			c.Zones[i].Label = c.Zones[i].Identifier
		}
	}

	// NTP defaults
	defNTP := DefaultNTP()
	if c.NTP == nil {
		c.NTP = &NTP{}
	}
	if c.NTP.TimeoutSeconds == 0 {
		c.NTP.TimeoutSeconds = defNTP.TimeoutSeconds
	}
	if c.NTP.Version == 0 {
		c.NTP.Version = defNTP.Version
	}
	if c.NTP.OffsetMode == "" {
		c.NTP.OffsetMode = defNTP.OffsetMode
	}

	// Web console defaults
	defWeb := DefaultWeb()
	if c.Web == nil {
		c.Web = &Web{}
	}
	if c.Web.Port == 0 {
		c.Web.Port = defWeb.Port
	}
	if c.Web.PushIntervalSeconds == 0 {
		c.Web.PushIntervalSeconds = defWeb.PushIntervalSeconds
	}

	// Export defaults
	defExport := DefaultExport()
	if c.Export == nil {
		c.Export = &Export{}
	}
	if c.Export.Protocol == "" {
		c.Export.Protocol = defExport.Protocol
	}
	if c.Export.Port == 0 {
		c.Export.Port = defaultExportPort(c.Export.Protocol)
	}
	if c.Export.TimeoutConnectSeconds == 0 {
		c.Export.TimeoutConnectSeconds = defExport.TimeoutConnectSeconds
	}
	if c.Export.IntervalSeconds == 0 {
		c.Export.IntervalSeconds = defExport.IntervalSeconds
	}
}

// applyEnv lets the deployment environment move the console without editing the file
func applyEnv(c *Config, getenv func(string) string) error {
	if c.Web == nil {
		c.Web = &Web{}
	}
	if host := getenv(EnvHost); host != "" {
		c.Web.Host = host
	}
	if raw := getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, raw)
		}
		c.Web.Port = port
	}
	return nil
}

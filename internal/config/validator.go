package config

import (
	"fmt"
	"strings"

	"github.com/ntpzones/ntpzones/internal/registry"
	"github.com/ntpzones/ntpzones/internal/sntp"
)

// Validate validates the configuration
func Validate(c *Config) error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}

	if _, err := registry.NewRegistry(c.Sources); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if _, err := registry.NewCatalog(c.Zones); err != nil {
		return fmt.Errorf("zones: %w", err)
	}

	if c.NTP != nil {
		if err := validateNTP(c.NTP); err != nil {
			return fmt.Errorf("ntp: %w", err)
		}
	}
	if c.Web != nil {
		if err := validateWeb(c.Web); err != nil {
			return fmt.Errorf("web: %w", err)
		}
	}
	if c.Export != nil && c.Export.Enabled {
		if err := validateExport(c.Export); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	return nil
}

func validateNTP(n *NTP) error {
	if n.TimeoutSeconds < 1 || n.TimeoutSeconds > 60 {
		return fmt.Errorf("timeout_seconds must be between 1 and 60")
	}
	if n.Version < 2 || n.Version > 4 {
		return fmt.Errorf("version must be 2, 3 or 4")
	}
	if n.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative")
	}
	if n.OverallTimeoutSeconds < 0 {
		return fmt.Errorf("overall_timeout_seconds cannot be negative")
	}

	switch sntp.OffsetMode(n.OffsetMode) {
	case sntp.OffsetSingleSample, sntp.OffsetDelayCorrected:
	default:
		return fmt.Errorf("offset_mode must be %q or %q", sntp.OffsetSingleSample, sntp.OffsetDelayCorrected)
	}
	return nil
}

func validateWeb(w *Web) error {
	if w.Port < 1 || w.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if w.PushIntervalSeconds < 1 {
		return fmt.Errorf("push_interval_seconds must be at least 1")
	}
	return nil
}

func validateExport(e *Export) error {
	if e.Protocol != "sftp" && e.Protocol != "ftps" {
		return fmt.Errorf("protocol must be 'sftp' or 'ftps'")
	}
	if e.Host == "" {
		return fmt.Errorf("host is required")
	}
	if e.Username == "" {
		return fmt.Errorf("username is required")
	}
	if e.Password == "" {
		return fmt.Errorf("password is required")
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if strings.Contains(e.BasePath, "..") {
		return fmt.Errorf("base_path cannot contain '..'")
	}
	if e.IntervalSeconds < 10 {
		return fmt.Errorf("interval_seconds must be at least 10")
	}
	return nil
}

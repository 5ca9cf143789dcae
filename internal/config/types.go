package config

import (
	"net"
	"strconv"
	"time"

	"github.com/ntpzones/ntpzones/internal/registry"
	"github.com/ntpzones/ntpzones/internal/report"
	"github.com/ntpzones/ntpzones/internal/sntp"
)

// CurrentVersion is the only config version this build understands
const CurrentVersion = 1

// Config represents the root configuration structure
type Config struct {
	Version int                       `json:"version"`          // Config version, current: 1
	Sources []registry.TimeSource     `json:"sources"`          // NTP servers in display order
	Zones   []registry.ZoneDefinition `json:"zones"`            // Zones every instant is projected into
	NTP     *NTP                      `json:"ntp,omitempty"`    // Query settings
	Web     *Web                      `json:"web,omitempty"`    // HTTP console settings
	Export  *Export                   `json:"export,omitempty"` // SFTP snapshot export
}

// NTP controls how sources are queried
type NTP struct {
	TimeoutSeconds        int    `json:"timeout_seconds,omitempty"`         // Per-query timeout, default: 5
	Version               int    `json:"version,omitempty"`                 // NTP protocol version 2-4, default: 3
	MaxConcurrency        int    `json:"max_concurrency,omitempty"`         // 0 = one query per source at once
	OverallTimeoutSeconds int    `json:"overall_timeout_seconds,omitempty"` // 0 = only the per-query timeout
	OffsetMode            string `json:"offset_mode,omitempty"`             // "single_sample" or "delay_corrected"
}

// Web represents the HTTP console settings
type Web struct {
	Host                string `json:"host,omitempty"`                  // Bind host, default: all interfaces
	Port                int    `json:"port,omitempty"`                  // Default: 8080
	Password            string `json:"password,omitempty"`              // Enables basic auth when set
	PushIntervalSeconds int    `json:"push_interval_seconds,omitempty"` // Websocket refresh, default: 20
}

// Export represents snapshot export settings
type Export struct {
	Enabled               bool   `json:"enabled"`
	Protocol              string `json:"protocol,omitempty"` // "sftp" (default) or "ftps"
	Host                  string `json:"host"`
	Port                  int    `json:"port,omitempty"` // Default: 22 for sftp, 21 for ftps
	Username              string `json:"username"`
	Password              string `json:"password"`
	BasePath              string `json:"base_path,omitempty"`               // Remote directory, relative to the login directory
	TimeoutConnectSeconds int    `json:"timeout_connect_seconds,omitempty"` // Default: 10
	IntervalSeconds       int    `json:"interval_seconds,omitempty"`        // Periodic export from serve, default: 300

	// SFTP: empty skips host key verification
	KnownHostsPath string `json:"known_hosts_path,omitempty"`

	// FTPS: custom CA bundle and an escape hatch for self-signed servers
	CABundlePath string `json:"ca_bundle_path,omitempty"`
	TLSInsecure  bool   `json:"tls_insecure,omitempty"`
}

// DefaultNTP returns the default query settings
func DefaultNTP() NTP {
	return NTP{
		TimeoutSeconds: int(sntp.DefaultTimeout / time.Second),
		Version:        sntp.DefaultVersion,
		OffsetMode:     string(sntp.OffsetSingleSample),
	}
}

// DefaultWeb returns the default console settings
func DefaultWeb() Web {
	return Web{
		Port:                8080,
		PushIntervalSeconds: 20,
	}
}

// DefaultExport returns export defaults; export stays disabled until configured
func DefaultExport() Export {
	return Export{
		Protocol:              "sftp",
		Port:                  22,
		TimeoutConnectSeconds: 10,
		IntervalSeconds:       300,
	}
}

// Registry builds the validated source registry
func (c *Config) Registry() (*registry.Registry, error) {
	return registry.NewRegistry(c.Sources)
}

// Catalog builds the validated zone catalog
func (c *Config) Catalog() (*registry.Catalog, error) {
	return registry.NewCatalog(c.Zones)
}

// SNTPConfig returns the query client settings
func (c *Config) SNTPConfig() sntp.Config {
	n := c.ntp()
	return sntp.Config{
		TimeoutSeconds: n.TimeoutSeconds,
		Version:        n.Version,
		OffsetMode:     sntp.OffsetMode(n.OffsetMode),
	}
}

// ReportConfig returns the snapshot builder settings
func (c *Config) ReportConfig() report.Config {
	n := c.ntp()
	return report.Config{
		MaxConcurrency: n.MaxConcurrency,
		OverallTimeout: time.Duration(n.OverallTimeoutSeconds) * time.Second,
	}
}

// GetWebAddr returns the console listen address
func (c *Config) GetWebAddr() string {
	w := DefaultWeb()
	if c.Web != nil {
		w.Host = c.Web.Host
		if c.Web.Port > 0 {
			w.Port = c.Web.Port
		}
	}
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// GetPushInterval returns the websocket refresh interval
func (c *Config) GetPushInterval() time.Duration {
	if c.Web == nil || c.Web.PushIntervalSeconds <= 0 {
		return time.Duration(DefaultWeb().PushIntervalSeconds) * time.Second
	}
	return time.Duration(c.Web.PushIntervalSeconds) * time.Second
}

// GetWebPassword returns the console password, empty when auth is off
func (c *Config) GetWebPassword() string {
	if c.Web == nil {
		return ""
	}
	return c.Web.Password
}

// ExportEnabled reports whether periodic export should run
func (c *Config) ExportEnabled() bool {
	return c.Export != nil && c.Export.Enabled
}

// Addr returns host:port of the SFTP server
func (e *Export) Addr() string {
	port := e.Port
	if port == 0 {
		port = defaultExportPort(e.Protocol)
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// ConnectTimeout returns the SSH dial timeout
func (e *Export) ConnectTimeout() time.Duration {
	if e.TimeoutConnectSeconds <= 0 {
		return time.Duration(DefaultExport().TimeoutConnectSeconds) * time.Second
	}
	return time.Duration(e.TimeoutConnectSeconds) * time.Second
}

// Interval returns the periodic export interval
func (e *Export) Interval() time.Duration {
	if e.IntervalSeconds <= 0 {
		return time.Duration(DefaultExport().IntervalSeconds) * time.Second
	}
	return time.Duration(e.IntervalSeconds) * time.Second
}

func defaultExportPort(protocol string) int {
	if protocol == "ftps" {
		return 21
	}
	return DefaultExport().Port
}

func (c *Config) ntp() NTP {
	if c.NTP == nil {
		return DefaultNTP()
	}
	return *c.NTP
}
